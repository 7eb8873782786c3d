package store

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Store defines the persistence interface for the outreach system. Both
// backends guarantee row-level atomicity on updates; the thread state
// transitions are single guarded UPDATEs so that two overlapping sweeps
// cannot double-advance a thread.
type Store interface {
	// Companies
	UpsertCompany(ctx context.Context, identityKey string, c model.Company) (*model.Company, bool, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	GetCompanyByEmail(ctx context.Context, email string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter model.CompanyFilter) ([]model.Company, error)
	ListCompaniesByIDs(ctx context.Context, ids []string) ([]model.Company, error)
	ListEnrichableCompanies(ctx context.Context, minContentLen, limit int) ([]model.Company, error)
	UpdateCompanyScrape(ctx context.Context, id, email string, content *model.ScrapedContent, at time.Time) error
	UpdateCompanyEnrichment(ctx context.Context, id string, profile *model.EnrichedProfile, at time.Time) error

	// Email accounts
	CreateAccount(ctx context.Context, email string, tokens []byte) (*model.EmailAccount, error)
	GetActiveAccount(ctx context.Context) (*model.EmailAccount, error)
	GetAccount(ctx context.Context, id string) (*model.EmailAccount, error)
	UpdateAccountTokens(ctx context.Context, id string, tokens []byte) error
	UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus) error

	// Campaigns. Campaign and thread creation is a single transaction:
	// threads without an owning campaign (or vice versa) must not exist.
	CreateCampaignWithThreads(ctx context.Context, campaign model.EmailCampaign, threads []model.EmailThread) error
	GetCampaign(ctx context.Context, id string) (*model.EmailCampaign, error)
	ListCampaigns(ctx context.Context) ([]model.EmailCampaign, error)
	UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error
	CompleteAgedCampaigns(ctx context.Context, olderThan time.Time) (int, error)

	// Threads
	GetThread(ctx context.Context, id string) (*model.EmailThread, error)
	ListUnsentThreads(ctx context.Context, campaignID string) ([]model.EmailThread, error)
	ListDueThreads(ctx context.Context, now time.Time, limit int) ([]model.EmailThread, error)
	MarkThreadSent(ctx context.Context, id string, sentAt, nextFollowUp time.Time) error
	AdvanceThreadFollowUp(ctx context.Context, id string, fromCount int, next *time.Time) (bool, error)
	MarkThreadResponded(ctx context.Context, id string) error
	LatestOpenThreadForCompany(ctx context.Context, companyID string) (*model.EmailThread, error)
	CompleteAgedThreads(ctx context.Context, olderThan time.Time, maxFollowUps int) (int, error)

	// Conversations
	AppendConversation(ctx context.Context, conv model.Conversation) (*model.Conversation, error)
	ListConversations(ctx context.Context, threadID string) ([]model.Conversation, error)

	// Content-addressed cache, keyed by (key, category). Get returns the
	// entry regardless of expiry; lazy expiry is the cache layer's call.
	CacheGet(ctx context.Context, key, category string) (*model.CacheEntry, error)
	CacheSet(ctx context.Context, entry model.CacheEntry) error
	CacheDelete(ctx context.Context, key, category string) error
	CacheSweep(ctx context.Context, now, retentionCutoff time.Time) (int, error)

	// Analytics reads (day boundaries are UTC dates)
	CountCompaniesScrapedOn(ctx context.Context, day time.Time) (int, error)
	CountCompaniesEnrichedOn(ctx context.Context, day time.Time) (int, error)
	CountThreadsSentOn(ctx context.Context, day time.Time) (int, error)
	CountResponsesForThreadsSentOn(ctx context.Context, day time.Time) (int, error)
	UpsertDailyMetric(ctx context.Context, m model.DailyMetric) error
	ListDailyMetrics(ctx context.Context, day time.Time) ([]model.DailyMetric, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
