package model

import "time"

// CampaignStatus represents the lifecycle state of an email campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// CampaignMaxAge is how long a campaign may stay open before the aging
// sweep marks it completed regardless of outstanding threads.
const CampaignMaxAge = 56 * 24 * time.Hour

// EmailCampaign groups one outreach effort over a set of companies. A
// campaign starts in draft and becomes active only once at least one of
// its threads has been sent.
type EmailCampaign struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	AccountID    string         `json:"account_id"`
	CompanyCount int            `json:"company_count"`
	Status       CampaignStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ConversationStatus represents the automation state of a thread.
type ConversationStatus string

const (
	ConversationStatusPending   ConversationStatus = "pending"
	ConversationStatusResponded ConversationStatus = "responded"
	ConversationStatusCompleted ConversationStatus = "completed"
)

// EmailThread is one company's outreach conversation within one campaign;
// the unit of follow-up scheduling.
//
// Invariants maintained by the store and scheduler:
//   - FollowUpCount is monotonically non-decreasing and never exceeds the
//     configured ceiling.
//   - NextFollowUp is non-nil only while the thread is pending, below the
//     ceiling, and has been sent at least once.
//   - ResponseReceived forces NextFollowUp to nil and the status to
//     responded, permanently excluding the thread from the follow-up scan.
type EmailThread struct {
	ID                 string             `json:"id"`
	CampaignID         string             `json:"campaign_id"`
	CompanyID          string             `json:"company_id"`
	Subject            string             `json:"subject"`
	EmailContent       string             `json:"email_content"`
	SentAt             *time.Time         `json:"sent_at,omitempty"`
	ResponseReceived   bool               `json:"response_received"`
	ConversationStatus ConversationStatus `json:"conversation_status"`
	FollowUpCount      int                `json:"follow_up_count"`
	NextFollowUp       *time.Time         `json:"next_follow_up,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Sender identifies who produced a conversation entry.
type Sender string

const (
	SenderAI       Sender = "ai"
	SenderHuman    Sender = "human"
	SenderProspect Sender = "prospect"
)

// Conversation is an append-only log entry under a thread. Entries are
// never mutated or deleted.
type Conversation struct {
	ID             string    `json:"id"`
	ThreadID       string    `json:"thread_id"`
	Sender         Sender    `json:"sender"`
	MessageContent string    `json:"message_content"`
	Sentiment      string    `json:"sentiment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AccountStatus represents the health of a mailbox credential set.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusError    AccountStatus = "error"
)

// EmailAccount is a mailbox credential set. OAuthTokens holds the
// provider token JSON; Status flips to error on irrecoverable auth
// failure, which blocks all sending until an operator intervenes.
type EmailAccount struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	OAuthTokens []byte        `json:"-"`
	Status      AccountStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DailyMetric is one aggregated counter for one day. Recomputing a day
// overwrites the previous value (upsert semantics, not accumulation).
type DailyMetric struct {
	Day   time.Time `json:"day"`
	Name  string    `json:"name"`
	Value int       `json:"value"`
}
