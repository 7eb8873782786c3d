package campaign

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/gmail"
)

// RunFollowUps advances every thread whose next-follow-up time has
// elapsed: sends the next variant, increments the count, and schedules
// the one after (or stops at the ceiling). A thread whose send fails is
// left untouched and retried on the next sweep.
func (m *Manager) RunFollowUps(ctx context.Context, now time.Time) (*model.Summary, error) {
	threads, err := m.store.ListDueThreads(ctx, now.UTC(), m.sweepLimit)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: list due threads")
	}
	m.log.Info("follow-up sweep", zap.Int("due", len(threads)))

	summary := &model.Summary{}
	accounts := make(map[string]*model.EmailAccount) // campaignID -> account
	mailboxes := make(map[string]gmail.Mailbox)      // accountID -> mailbox

	for _, t := range threads {
		account, mailbox, err := m.mailboxForThread(ctx, t, accounts, mailboxes)
		if err != nil {
			summary.RecordFailure(t.ID, err)
			continue
		}

		applied, err := m.sendFollowUp(ctx, mailbox, t, now)
		if err != nil {
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
		if !applied {
			// A concurrent sweep advanced the thread first.
			summary.RecordSkip()
			continue
		}
		summary.RecordSuccess()
	}

	m.log.Info("follow-up sweep complete", zap.String("summary", summary.String()))
	return summary, nil
}

func (m *Manager) mailboxForThread(ctx context.Context, t model.EmailThread, accounts map[string]*model.EmailAccount, mailboxes map[string]gmail.Mailbox) (*model.EmailAccount, gmail.Mailbox, error) {
	account, ok := accounts[t.CampaignID]
	if !ok {
		campaign, err := m.store.GetCampaign(ctx, t.CampaignID)
		if err != nil {
			return nil, nil, err
		}
		account, err = m.store.GetAccount(ctx, campaign.AccountID)
		if err != nil {
			return nil, nil, err
		}
		accounts[t.CampaignID] = account
	}
	if account.Status != model.AccountStatusActive {
		return account, nil, eris.Errorf("campaign: account %s is %s", account.Email, account.Status)
	}

	mailbox, ok := mailboxes[account.ID]
	if !ok {
		var err error
		mailbox, err = m.mailboxFor(ctx, account)
		if err != nil {
			return account, nil, eris.Wrap(err, "campaign: open mailbox")
		}
		mailboxes[account.ID] = mailbox
	}
	return account, mailbox, nil
}

// sendFollowUp sends the next variant for one due thread and advances
// its state. Returns false without error when the guarded update lost
// to a concurrent sweep.
func (m *Manager) sendFollowUp(ctx context.Context, mailbox gmail.Mailbox, t model.EmailThread, now time.Time) (bool, error) {
	company, err := m.store.GetCompany(ctx, t.CompanyID)
	if err != nil {
		return false, err
	}
	if company.Email == "" {
		return false, ErrMissingRecipientEmail
	}

	nextCount := t.FollowUpCount + 1
	variant := m.variants.ForCount(nextCount)
	values := ValuesFor(company)
	subject := PrefixSubject(Render(t.Subject, values), variant.Prefix)
	body := Render(variant.Body, values)

	if err := m.pacer.Wait(ctx); err != nil {
		return false, err
	}
	if _, err := mailbox.Send(ctx, gmail.OutgoingMessage{
		To:      company.Email,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return false, err
	}

	var next *time.Time
	if nextCount < MaxFollowUps {
		at := m.nextFollowUpAt(now, nextCount+1)
		next = &at
	}
	applied, err := m.store.AdvanceThreadFollowUp(ctx, t.ID, t.FollowUpCount, next)
	if err != nil {
		return false, eris.Wrapf(err, "campaign: advance thread %s", t.ID)
	}
	if applied {
		m.appendSent(ctx, t.ID, body)
	}
	return applied, nil
}

// nextFollowUpAt computes when the upcoming follow-up (1-based index)
// should go out: the first two are front-loaded at 3-4 days, the rest
// weekly.
func (m *Manager) nextFollowUpAt(now time.Time, upcoming int) time.Time {
	if upcoming <= 2 {
		return now.UTC().AddDate(0, 0, m.randDays())
	}
	return now.UTC().AddDate(0, 0, 7)
}

// CompleteAged closes pending threads that exhausted the follow-up
// ceiling at least six weeks ago, then completes campaigns past the
// campaign age limit.
func (m *Manager) CompleteAged(ctx context.Context, now time.Time) (threadsClosed, campaignsClosed int, err error) {
	threadsClosed, err = m.store.CompleteAgedThreads(ctx, now.UTC().Add(-threadMaxAge), MaxFollowUps)
	if err != nil {
		return 0, 0, eris.Wrap(err, "campaign: complete aged threads")
	}
	campaignsClosed, err = m.store.CompleteAgedCampaigns(ctx, now.UTC().Add(-model.CampaignMaxAge))
	if err != nil {
		return threadsClosed, 0, eris.Wrap(err, "campaign: complete aged campaigns")
	}
	if threadsClosed > 0 || campaignsClosed > 0 {
		m.log.Info("aging sweep",
			zap.Int("threads_closed", threadsClosed),
			zap.Int("campaigns_closed", campaignsClosed))
	}
	return threadsClosed, campaignsClosed, nil
}
