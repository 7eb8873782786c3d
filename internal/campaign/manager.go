// Package campaign owns the outreach lifecycle: campaign creation over
// a company set, the initial send, follow-up scheduling, reply
// detection, and aging-out of stale threads and campaigns.
package campaign

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/gmail"
)

var (
	// ErrNoEligibleCompanies means campaign creation resolved zero target
	// companies.
	ErrNoEligibleCompanies = eris.New("campaign: no eligible companies")

	// ErrMissingRecipientEmail is the per-thread failure for a company
	// without a delivery address.
	ErrMissingRecipientEmail = eris.New("campaign: missing recipient email")

	// ErrNoActiveAccount means no mailbox account is available to send
	// from.
	ErrNoActiveAccount = eris.New("campaign: no active email account")
)

// threadMaxAge is how long a pending thread with exhausted follow-ups
// may linger before the aging sweep closes it.
const threadMaxAge = 6 * 7 * 24 * time.Hour

// Template is the initial outreach message with {{placeholder}} tokens.
type Template struct {
	Subject string
	Body    string
}

// MailboxFactory builds a mailbox client for an account. Indirection
// point for tests and for per-account token sources.
type MailboxFactory func(ctx context.Context, account *model.EmailAccount) (gmail.Mailbox, error)

// Config holds campaign manager settings.
type Config struct {
	SendPacing time.Duration
	SweepLimit int
	Variants   Variants
}

// Manager drives campaign operations against the store and mailbox.
type Manager struct {
	store      store.Store
	cache      *cache.Cache
	mailboxFor MailboxFactory
	variants   Variants
	pacer      *resilience.Pacer
	sweepLimit int
	log        *zap.Logger

	// randDays picks the 3-or-4 day early follow-up gap.
	randDays func() int
}

func NewManager(st store.Store, c *cache.Cache, mailboxFor MailboxFactory, cfg Config) *Manager {
	variants := cfg.Variants
	if len(variants.Messages) == 0 {
		variants = DefaultVariants()
	}
	return &Manager{
		store:      st,
		cache:      c,
		mailboxFor: mailboxFor,
		variants:   variants,
		pacer:      resilience.NewPacer(cfg.SendPacing),
		sweepLimit: cfg.SweepLimit,
		log:        zap.L().Named("campaign"),
		randDays:   func() int { return 3 + rand.IntN(2) },
	}
}

// Create resolves the target companies and creates a draft campaign
// with one pending thread per company, in a single transaction.
// Explicit IDs win over the filter when both are given.
func (m *Manager) Create(ctx context.Context, name string, tmpl Template, companyIDs []string, filter model.CompanyFilter) (*model.EmailCampaign, error) {
	account, err := m.store.GetActiveAccount(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: load account")
	}
	if account == nil {
		return nil, ErrNoActiveAccount
	}

	var companies []model.Company
	if len(companyIDs) > 0 {
		companies, err = m.store.ListCompaniesByIDs(ctx, companyIDs)
	} else {
		companies, err = m.store.ListCompanies(ctx, filter)
	}
	if err != nil {
		return nil, eris.Wrap(err, "campaign: resolve companies")
	}
	if len(companies) == 0 {
		return nil, ErrNoEligibleCompanies
	}

	now := time.Now().UTC()
	campaign := model.EmailCampaign{
		ID:           uuid.New().String(),
		Name:         name,
		AccountID:    account.ID,
		CompanyCount: len(companies),
		Status:       model.CampaignStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	threads := make([]model.EmailThread, 0, len(companies))
	for _, c := range companies {
		threads = append(threads, model.EmailThread{
			ID:                 uuid.New().String(),
			CampaignID:         campaign.ID,
			CompanyID:          c.ID,
			Subject:            tmpl.Subject,
			EmailContent:       tmpl.Body,
			ConversationStatus: model.ConversationStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	if err := m.store.CreateCampaignWithThreads(ctx, campaign, threads); err != nil {
		return nil, eris.Wrap(err, "campaign: create")
	}
	m.log.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("name", name),
		zap.Int("companies", len(companies)))
	return &campaign, nil
}

// Start sends the initial email for every unsent pending thread of a
// campaign. Per-thread failures are recorded and do not stop the run;
// the campaign becomes active if at least one thread was sent.
func (m *Manager) Start(ctx context.Context, campaignID string) (*model.Summary, error) {
	campaign, err := m.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignStatusCompleted || campaign.Status == model.CampaignStatusPaused {
		return nil, eris.Errorf("campaign: cannot start %s campaign %s", campaign.Status, campaignID)
	}

	account, err := m.store.GetAccount(ctx, campaign.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != model.AccountStatusActive {
		return nil, eris.Errorf("campaign: account %s is %s", account.Email, account.Status)
	}
	mailbox, err := m.mailboxFor(ctx, account)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: open mailbox")
	}

	threads, err := m.store.ListUnsentThreads(ctx, campaignID)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: list unsent threads")
	}

	summary := &model.Summary{}
	for _, t := range threads {
		if err := m.sendInitial(ctx, mailbox, t); err != nil {
			if gmail.IsAuthRevoked(err) {
				m.failAccount(ctx, account)
				return summary, eris.Wrap(err, "campaign: account auth revoked")
			}
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.RecordFailure(t.ID, err)
			continue
		}
		summary.RecordSuccess()
	}

	if summary.Succeeded > 0 && campaign.Status == model.CampaignStatusDraft {
		if err := m.store.UpdateCampaignStatus(ctx, campaignID, model.CampaignStatusActive); err != nil {
			return summary, eris.Wrap(err, "campaign: activate")
		}
	}

	m.log.Info("campaign start complete",
		zap.String("campaign_id", campaignID),
		zap.String("summary", summary.String()))
	return summary, nil
}

func (m *Manager) sendInitial(ctx context.Context, mailbox gmail.Mailbox, t model.EmailThread) error {
	company, err := m.store.GetCompany(ctx, t.CompanyID)
	if err != nil {
		return err
	}
	if company.Email == "" {
		return ErrMissingRecipientEmail
	}

	values := ValuesFor(company)
	subject := Render(t.Subject, values)
	body := Render(t.EmailContent, values)

	if err := m.pacer.Wait(ctx); err != nil {
		return err
	}
	if _, err := mailbox.Send(ctx, gmail.OutgoingMessage{
		To:      company.Email,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	next := now.AddDate(0, 0, m.randDays())
	if err := m.store.MarkThreadSent(ctx, t.ID, now, next); err != nil {
		return err
	}
	m.appendSent(ctx, t.ID, body)
	return nil
}

// appendSent logs an outbound message under the thread. Log append
// failures are not fatal to the send, which already happened.
func (m *Manager) appendSent(ctx context.Context, threadID, body string) {
	if _, err := m.store.AppendConversation(ctx, model.Conversation{
		ThreadID:       threadID,
		Sender:         model.SenderAI,
		MessageContent: body,
	}); err != nil {
		m.log.Warn("conversation append failed", zap.String("thread_id", threadID), zap.Error(err))
	}
}

// failAccount flips an account to error status so nothing else tries to
// send through dead credentials.
func (m *Manager) failAccount(ctx context.Context, account *model.EmailAccount) {
	if err := m.store.UpdateAccountStatus(ctx, account.ID, model.AccountStatusError); err != nil {
		m.log.Error("account status update failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	m.log.Warn("account disabled after auth failure", zap.String("email", account.Email))
}
