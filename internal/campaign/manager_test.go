package campaign

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/dedupe"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/gmail"
)

type fakeMailbox struct {
	mu      sync.Mutex
	sent    []gmail.OutgoingMessage
	inbound []gmail.InboundMessage
	sendErr error
	failTo  map[string]error
}

func (f *fakeMailbox) Send(_ context.Context, msg gmail.OutgoingMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	if err, ok := f.failTo[msg.To]; ok {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return "msg-id", nil
}

func (f *fakeMailbox) ListInbound(_ context.Context, _ time.Time, _ int64) ([]gmail.InboundMessage, error) {
	return f.inbound, nil
}

func (f *fakeMailbox) sentMessages() []gmail.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gmail.OutgoingMessage(nil), f.sent...)
}

func newTestManager(t *testing.T) (*Manager, store.Store, *fakeMailbox) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mailbox := &fakeMailbox{}
	m := NewManager(st, cache.New(st), func(_ context.Context, _ *model.EmailAccount) (gmail.Mailbox, error) {
		return mailbox, nil
	}, Config{SweepLimit: 100})
	m.randDays = func() int { return 3 }
	return m, st, mailbox
}

func seedAccount(t *testing.T, st store.Store) *model.EmailAccount {
	t.Helper()
	account, err := st.CreateAccount(context.Background(), "sender@example.com", []byte(`{}`))
	require.NoError(t, err)
	return account
}

func seedCompany(t *testing.T, st store.Store, name, email string) *model.Company {
	t.Helper()
	c, _, err := st.UpsertCompany(context.Background(), dedupe.Identity(name, "Austin, TX"), model.Company{
		Name:    name,
		Email:   email,
		Address: "Austin, TX",
	})
	require.NoError(t, err)
	return c
}

var testTemplate = Template{
	Subject: "Quick question for {{company_name}}",
	Body:    "Hi {{contact_name}},\n\nI came across {{company_name}} and wanted to ask about {{company_services}}.\n\nBest,",
}

func TestCreate_ResolvesByFilter(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)
	seedAccount(t, st)
	seedCompany(t, st, "Acme Plumbing", "owner@acme.com")
	seedCompany(t, st, "Apex Roofing", "info@apex.com")

	c, err := m.Create(ctx, "austin-push", testTemplate, nil, model.CompanyFilter{Location: "Austin"})
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusDraft, c.Status)
	assert.Equal(t, 2, c.CompanyCount)

	threads, err := st.ListUnsentThreads(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	for _, th := range threads {
		assert.Equal(t, model.ConversationStatusPending, th.ConversationStatus)
		assert.Zero(t, th.FollowUpCount)
		assert.Nil(t, th.SentAt)
	}
}

func TestCreate_NoEligibleCompanies(t *testing.T) {
	m, st, _ := newTestManager(t)
	seedAccount(t, st)

	_, err := m.Create(context.Background(), "empty", testTemplate, nil, model.CompanyFilter{Category: "nonexistent"})
	assert.ErrorIs(t, err, ErrNoEligibleCompanies)
}

func TestCreate_NoActiveAccount(t *testing.T) {
	m, st, _ := newTestManager(t)
	seedCompany(t, st, "Acme Plumbing", "owner@acme.com")

	_, err := m.Create(context.Background(), "orphan", testTemplate, nil, model.CompanyFilter{})
	assert.ErrorIs(t, err, ErrNoActiveAccount)
}

// Scenario: three targets, one without an email address. The two
// deliverable threads send, the third records a per-thread failure, and
// the campaign still activates.
func TestStart_PartialFailureActivatesCampaign(t *testing.T) {
	ctx := context.Background()
	m, st, mailbox := newTestManager(t)
	seedAccount(t, st)
	seedCompany(t, st, "Acme Plumbing", "owner@acme.com")
	seedCompany(t, st, "Apex Roofing", "info@apex.com")
	noEmail := seedCompany(t, st, "Ghost LLC", "")

	c, err := m.Create(ctx, "push", testTemplate, nil, model.CompanyFilter{})
	require.NoError(t, err)

	summary, err := m.Start(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Reason, "missing recipient email")

	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, got.Status)

	sent := mailbox.sentMessages()
	require.Len(t, sent, 2)
	var acme *gmail.OutgoingMessage
	for i := range sent {
		if sent[i].To == "owner@acme.com" {
			acme = &sent[i]
		}
	}
	require.NotNil(t, acme)
	assert.Equal(t, "Quick question for Acme Plumbing", acme.Subject)
	assert.Contains(t, acme.Body, "Hi there,", "missing contact falls back to neutral greeting")

	// The no-email thread stays unsent and pending.
	unsent, err := st.ListUnsentThreads(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	assert.Equal(t, noEmail.ID, unsent[0].CompanyID)

	// Sent threads got their first follow-up scheduled 3 days out.
	due, err := st.ListDueThreads(ctx, time.Now().UTC().AddDate(0, 0, 4), 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestStart_NothingSentStaysDraft(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)
	seedAccount(t, st)
	seedCompany(t, st, "Ghost LLC", "")

	c, err := m.Create(ctx, "push", testTemplate, nil, model.CompanyFilter{})
	require.NoError(t, err)

	summary, err := m.Start(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.Succeeded)

	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusDraft, got.Status)
}

func TestStart_AuthRevokedDisablesAccount(t *testing.T) {
	ctx := context.Background()
	m, st, mailbox := newTestManager(t)
	account := seedAccount(t, st)
	seedCompany(t, st, "Acme Plumbing", "owner@acme.com")
	mailbox.sendErr = &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusUnauthorized}}

	c, err := m.Create(ctx, "push", testTemplate, nil, model.CompanyFilter{})
	require.NoError(t, err)

	_, err = m.Start(ctx, c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth revoked")

	got, err := st.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusError, got.Status)
}

func startedCampaign(t *testing.T, m *Manager, st store.Store) (*model.EmailCampaign, *model.Company) {
	t.Helper()
	ctx := context.Background()
	seedAccount(t, st)
	company := seedCompany(t, st, "Acme Plumbing", "owner@acme.com")

	c, err := m.Create(ctx, "push", testTemplate, nil, model.CompanyFilter{})
	require.NoError(t, err)
	summary, err := m.Start(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	return c, company
}

func singleThread(t *testing.T, st store.Store, companyID string) *model.EmailThread {
	t.Helper()
	th, err := st.LatestOpenThreadForCompany(context.Background(), companyID)
	require.NoError(t, err)
	require.NotNil(t, th)
	return th
}

// Scenario: one sweep past the due time advances the thread once and
// prefixes the subject exactly once.
func TestRunFollowUps_AdvancesDueThread(t *testing.T) {
	ctx := context.Background()
	m, st, mailbox := newTestManager(t)
	_, company := startedCampaign(t, m, st)

	sweepAt := time.Now().UTC().AddDate(0, 0, 4)
	summary, err := m.RunFollowUps(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	th := singleThread(t, st, company.ID)
	assert.Equal(t, 1, th.FollowUpCount)
	require.NotNil(t, th.NextFollowUp)
	assert.WithinDuration(t, sweepAt.AddDate(0, 0, 3), *th.NextFollowUp, time.Minute)

	sent := mailbox.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "Re: Quick question for Acme Plumbing", sent[1].Subject)
}

// Scenario: sweeping to the ceiling stops scheduling. The count lands
// exactly on the maximum and never moves again.
func TestRunFollowUps_StopsAtCeiling(t *testing.T) {
	ctx := context.Background()
	m, st, mailbox := newTestManager(t)
	_, company := startedCampaign(t, m, st)

	now := time.Now().UTC()
	for i := 1; i <= MaxFollowUps; i++ {
		th := singleThread(t, st, company.ID)
		require.NotNil(t, th.NextFollowUp, "follow-up %d must be scheduled", i)
		now = th.NextFollowUp.Add(time.Hour)

		summary, err := m.RunFollowUps(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 1, summary.Succeeded)

		th = singleThread(t, st, company.ID)
		assert.Equal(t, i, th.FollowUpCount)
	}

	th := singleThread(t, st, company.ID)
	assert.Equal(t, MaxFollowUps, th.FollowUpCount)
	assert.Nil(t, th.NextFollowUp, "no follow-up beyond the ceiling")

	// Nothing is due ever again.
	summary, err := m.RunFollowUps(ctx, now.AddDate(0, 0, 60))
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)

	// Initial + MaxFollowUps sends; later variants escalate and never
	// compound prefixes.
	sent := mailbox.sentMessages()
	require.Len(t, sent, 1+MaxFollowUps)
	assert.Equal(t, "Following up: Quick question for Acme Plumbing", sent[3].Subject)
	assert.Equal(t, "Final follow-up: Quick question for Acme Plumbing", sent[4].Subject)
	assert.Equal(t, "Final follow-up: Quick question for Acme Plumbing", sent[6].Subject)
}

func TestRunFollowUps_SendFailureLeavesThreadUntouched(t *testing.T) {
	ctx := context.Background()
	m, st, mailbox := newTestManager(t)
	_, company := startedCampaign(t, m, st)
	before := singleThread(t, st, company.ID)

	mailbox.failTo = map[string]error{"owner@acme.com": assert.AnError}

	summary, err := m.RunFollowUps(ctx, time.Now().UTC().AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	after := singleThread(t, st, company.ID)
	assert.Equal(t, before.FollowUpCount, after.FollowUpCount)
	require.NotNil(t, after.NextFollowUp)
	assert.Equal(t, before.NextFollowUp.Unix(), after.NextFollowUp.Unix(), "failed send must not reschedule")
}

func TestRunFollowUps_WeeklySpacingFromThirdOnward(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)
	_, company := startedCampaign(t, m, st)

	now := time.Now().UTC()
	// Advance through follow-ups 1 and 2.
	for i := 0; i < 2; i++ {
		th := singleThread(t, st, company.ID)
		now = th.NextFollowUp.Add(time.Hour)
		_, err := m.RunFollowUps(ctx, now)
		require.NoError(t, err)
	}

	// After follow-up 2, the third is a week out.
	th := singleThread(t, st, company.ID)
	require.NotNil(t, th.NextFollowUp)
	assert.WithinDuration(t, now.AddDate(0, 0, 7), *th.NextFollowUp, time.Minute)
}

// Scenario: an inbound reply flips the thread to responded and halts
// automation; a duplicate delivery of the same message is a no-op.
func TestProcessInbound_ReplyHaltsThread(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)
	_, company := startedCampaign(t, m, st)

	threadID := singleThread(t, st, company.ID).ID

	msg := gmail.InboundMessage{
		MessageID:   "<reply-1@mail.example.com>",
		FromAddress: "owner@acme.com",
		Subject:     "Re: Quick question for Acme Plumbing",
		Snippet:     "Sure, let's talk next week.",
	}

	matched, err := m.ProcessInbound(ctx, msg)
	require.NoError(t, err)
	assert.True(t, matched)

	th, err := st.GetThread(ctx, threadID)
	require.NoError(t, err)
	assert.True(t, th.ResponseReceived)
	assert.Equal(t, model.ConversationStatusResponded, th.ConversationStatus)
	assert.Nil(t, th.NextFollowUp)

	convs, err := st.ListConversations(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2) // initial ai send + prospect reply
	assert.Equal(t, model.SenderProspect, convs[1].Sender)
	assert.Equal(t, "Sure, let's talk next week.", convs[1].MessageContent)

	// Duplicate delivery: no new conversation entry, no state change.
	matched, err = m.ProcessInbound(ctx, msg)
	require.NoError(t, err)
	assert.False(t, matched)

	convs, err = st.ListConversations(ctx, th.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	// A responded thread never comes due again.
	summary, err := m.RunFollowUps(ctx, time.Now().UTC().AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestProcessInbound_UnknownSenderIsSilent(t *testing.T) {
	m, st, _ := newTestManager(t)
	startedCampaign(t, m, st)

	matched, err := m.ProcessInbound(context.Background(), gmail.InboundMessage{
		MessageID:   "<spam-1@mail.example.com>",
		FromAddress: "stranger@elsewhere.com",
		Subject:     "Buy now",
	})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestSyncReplies_MixedInbox(t *testing.T) {
	ctx := context.Background()
	m, st, mailbox := newTestManager(t)
	startedCampaign(t, m, st)

	mailbox.inbound = []gmail.InboundMessage{
		{MessageID: "<r1@m>", FromAddress: "owner@acme.com", Snippet: "interested"},
		{MessageID: "<r2@m>", FromAddress: "stranger@elsewhere.com", Snippet: "unrelated"},
	}

	summary, err := m.SyncReplies(ctx, time.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
}

func TestCompleteAged_FreshDataUntouched(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t)
	startedCampaign(t, m, st)

	threads, campaigns, err := m.CompleteAged(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, threads)
	assert.Zero(t, campaigns)

	got, err := st.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEqual(t, model.CampaignStatusCompleted, got[0].Status)
}
