package campaign

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/gmail"
)

// processedMarker is the cached record that an inbound message ID has
// already been applied, making reply processing idempotent under
// duplicate delivery.
type processedMarker struct {
	ThreadID    string    `json:"thread_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// SyncReplies pulls inbound messages received since the given time and
// applies reply detection to each. Matched messages flip their thread
// to responded; unmatched mail is expected and counted as skipped.
func (m *Manager) SyncReplies(ctx context.Context, since time.Time) (*model.Summary, error) {
	account, err := m.store.GetActiveAccount(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: load account")
	}
	if account == nil {
		return nil, ErrNoActiveAccount
	}
	mailbox, err := m.mailboxFor(ctx, account)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: open mailbox")
	}

	msgs, err := mailbox.ListInbound(ctx, since, int64(m.sweepLimit))
	if err != nil {
		if gmail.IsAuthRevoked(err) {
			m.failAccount(ctx, account)
		}
		return nil, eris.Wrap(err, "campaign: list inbound")
	}
	m.log.Info("reply scan", zap.Int("inbound", len(msgs)))

	summary := &model.Summary{}
	for _, msg := range msgs {
		matched, err := m.ProcessInbound(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.RecordFailure(msg.MessageID, err)
			continue
		}
		if matched {
			summary.RecordSuccess()
		} else {
			summary.RecordSkip()
		}
	}

	m.log.Info("reply scan complete", zap.String("summary", summary.String()))
	return summary, nil
}

// ProcessInbound applies one inbound message: resolve the sender to a
// company, find its most recent unresponded thread, and mark it
// responded. Reports whether a thread was advanced. Unsolicited mail is
// a silent no-op. Each message ID is applied at most once.
func (m *Manager) ProcessInbound(ctx context.Context, msg gmail.InboundMessage) (bool, error) {
	key := cache.MessageKey(msg.MessageID)
	if msg.MessageID != "" {
		var marker processedMarker
		if m.cache.GetJSON(ctx, key, cache.CategoryMessage, &marker) {
			m.log.Debug("duplicate inbound message", zap.String("message_id", msg.MessageID))
			return false, nil
		}
	}

	company, err := m.store.GetCompanyByEmail(ctx, msg.FromAddress)
	if err != nil {
		return false, eris.Wrap(err, "campaign: resolve sender")
	}
	if company == nil {
		m.log.Debug("inbound from unknown sender", zap.String("from", msg.FromAddress))
		m.markProcessed(ctx, msg.MessageID, "")
		return false, nil
	}

	thread, err := m.store.LatestOpenThreadForCompany(ctx, company.ID)
	if err != nil {
		return false, eris.Wrap(err, "campaign: resolve thread")
	}
	if thread == nil {
		m.log.Debug("inbound with no open thread", zap.String("company_id", company.ID))
		m.markProcessed(ctx, msg.MessageID, "")
		return false, nil
	}

	if err := m.store.MarkThreadResponded(ctx, thread.ID); err != nil {
		return false, eris.Wrapf(err, "campaign: mark responded %s", thread.ID)
	}

	content := msg.Snippet
	if content == "" {
		content = msg.Subject
	}
	if _, err := m.store.AppendConversation(ctx, model.Conversation{
		ThreadID:       thread.ID,
		Sender:         model.SenderProspect,
		MessageContent: content,
	}); err != nil {
		m.log.Warn("conversation append failed", zap.String("thread_id", thread.ID), zap.Error(err))
	}

	m.markProcessed(ctx, msg.MessageID, thread.ID)
	m.log.Info("reply detected",
		zap.String("company_id", company.ID),
		zap.String("thread_id", thread.ID))
	return true, nil
}

func (m *Manager) markProcessed(ctx context.Context, messageID, threadID string) {
	if messageID == "" {
		return
	}
	m.cache.SetJSON(ctx, cache.MessageKey(messageID), cache.CategoryMessage, processedMarker{
		ThreadID:    threadID,
		ProcessedAt: time.Now().UTC(),
	}, cache.MessageTTL)
}
