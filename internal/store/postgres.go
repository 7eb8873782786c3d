package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	identity_key    TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	website         TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	rating          DOUBLE PRECISION NOT NULL DEFAULT 0,
	scraped_content JSONB,
	enriched_data   JSONB,
	scraped_at      TIMESTAMPTZ,
	enriched_at     TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_accounts (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email        TEXT NOT NULL UNIQUE,
	oauth_tokens JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_campaigns (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name          TEXT NOT NULL,
	account_id    TEXT NOT NULL REFERENCES email_accounts(id),
	company_count INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_threads (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	campaign_id         TEXT NOT NULL REFERENCES email_campaigns(id),
	company_id          TEXT NOT NULL REFERENCES companies(id),
	subject             TEXT NOT NULL,
	email_content       TEXT NOT NULL,
	sent_at             TIMESTAMPTZ,
	response_received   BOOLEAN NOT NULL DEFAULT false,
	conversation_status TEXT NOT NULL DEFAULT 'pending',
	follow_up_count     INTEGER NOT NULL DEFAULT 0,
	next_follow_up      TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	thread_id       TEXT NOT NULL REFERENCES email_threads(id),
	sender          TEXT NOT NULL,
	message_content TEXT NOT NULL,
	sentiment       TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT NOT NULL,
	category   TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (key, category)
);

CREATE TABLE IF NOT EXISTS daily_metrics (
	day         TIMESTAMPTZ NOT NULL,
	name        TEXT NOT NULL,
	value       INTEGER NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (day, name)
);

CREATE INDEX IF NOT EXISTS idx_companies_email ON companies(email);
CREATE INDEX IF NOT EXISTS idx_companies_category ON companies(category);
CREATE INDEX IF NOT EXISTS idx_threads_campaign ON email_threads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_threads_company ON email_threads(company_id);
CREATE INDEX IF NOT EXISTS idx_threads_due ON email_threads(conversation_status, next_follow_up);
CREATE INDEX IF NOT EXISTS idx_conversations_thread ON conversations(thread_id);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Companies

const pgCompanyCols = `id, name, website, email, phone, address, category, rating,
	scraped_content, enriched_data, scraped_at, enriched_at, created_at, updated_at`

func (s *PostgresStore) UpsertCompany(ctx context.Context, identityKey string, c model.Company) (*model.Company, bool, error) {
	now := time.Now().UTC()

	var existingID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM companies WHERE identity_key = $1`, identityKey,
	).Scan(&existingID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id := uuid.New().String()
		_, err = s.pool.Exec(ctx,
			`INSERT INTO companies (id, identity_key, name, website, email, phone, address, category, rating, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, identityKey, c.Name, c.Website, c.Email, c.Phone, c.Address, c.Category, c.Rating, now, now,
		)
		if err != nil {
			return nil, false, eris.Wrap(err, "postgres: insert company")
		}
		created, err := s.GetCompany(ctx, id)
		return created, true, err

	case err != nil:
		return nil, false, eris.Wrap(err, "postgres: lookup company identity")

	default:
		_, err = s.pool.Exec(ctx,
			`UPDATE companies SET
				phone = CASE WHEN $1 != '' THEN $1 ELSE phone END,
				address = CASE WHEN $2 != '' THEN $2 ELSE address END,
				website = CASE WHEN $3 != '' THEN $3 ELSE website END,
				category = CASE WHEN $4 != '' THEN $4 ELSE category END,
				rating = CASE WHEN $5 > 0 THEN $5 ELSE rating END,
				updated_at = $6
			 WHERE id = $7`,
			c.Phone, c.Address, c.Website, c.Category, c.Rating, now, existingID,
		)
		if err != nil {
			return nil, false, eris.Wrap(err, "postgres: refresh company")
		}
		updated, err := s.GetCompany(ctx, existingID)
		return updated, false, err
	}
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyCols+` FROM companies WHERE id = $1`, id,
	)
	c, err := scanPGCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("company not found: %s", id)
	}
	return c, err
}

func (s *PostgresStore) GetCompanyByEmail(ctx context.Context, email string) (*model.Company, error) {
	if email == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyCols+` FROM companies WHERE email = $1 LIMIT 1`, email,
	)
	c, err := scanPGCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter model.CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + pgCompanyCols + ` FROM companies WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Category != "" {
		query += ` AND category = ` + arg(filter.Category)
	}
	if filter.EnrichedOnly {
		query += ` AND enriched_data IS NOT NULL`
	}
	if filter.Location != "" {
		query += ` AND address ILIKE ` + arg("%"+filter.Location+"%")
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.MaxCount
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ` + arg(limit)

	return s.queryCompanies(ctx, query, args...)
}

func (s *PostgresStore) ListCompaniesByIDs(ctx context.Context, ids []string) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryCompanies(ctx,
		`SELECT `+pgCompanyCols+` FROM companies WHERE id = ANY($1) ORDER BY created_at ASC`, ids,
	)
}

func (s *PostgresStore) ListEnrichableCompanies(ctx context.Context, minContentLen, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	companies, err := s.queryCompanies(ctx,
		`SELECT `+pgCompanyCols+` FROM companies
		 WHERE scraped_content IS NOT NULL AND enriched_data IS NULL
		 ORDER BY scraped_at ASC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	out := companies[:0]
	for _, c := range companies {
		if c.HasScrapedContent(minContentLen) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *PostgresStore) UpdateCompanyScrape(ctx context.Context, id, email string, content *model.ScrapedContent, at time.Time) error {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scraped content")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET email = CASE WHEN $1 != '' THEN $1 ELSE email END,
			scraped_content = $2, scraped_at = $3, updated_at = now() WHERE id = $4`,
		email, contentJSON, at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company scrape %s", id)
	}
	return checkPGRowsAffected(tag.RowsAffected(), "company", id)
}

func (s *PostgresStore) UpdateCompanyEnrichment(ctx context.Context, id string, profile *model.EnrichedProfile, at time.Time) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET enriched_data = $1, enriched_at = $2, updated_at = now() WHERE id = $3`,
		profileJSON, at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company enrichment %s", id)
	}
	return checkPGRowsAffected(tag.RowsAffected(), "company", id)
}

func (s *PostgresStore) queryCompanies(ctx context.Context, query string, args ...any) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanPGCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

// Email accounts

func (s *PostgresStore) CreateAccount(ctx context.Context, email string, tokens []byte) (*model.EmailAccount, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_accounts (id, email, oauth_tokens, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, email, tokens, string(model.AccountStatusActive), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert account")
	}
	return &model.EmailAccount{
		ID: id, Email: email, OAuthTokens: tokens,
		Status: model.AccountStatusActive, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetActiveAccount(ctx context.Context) (*model.EmailAccount, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, oauth_tokens, status, created_at, updated_at FROM email_accounts
		 WHERE status = $1 ORDER BY created_at ASC LIMIT 1`,
		string(model.AccountStatusActive),
	)
	a, err := scanPGAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.EmailAccount, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, oauth_tokens, status, created_at, updated_at FROM email_accounts WHERE id = $1`, id,
	)
	a, err := scanPGAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("account not found: %s", id)
	}
	return a, err
}

func (s *PostgresStore) UpdateAccountTokens(ctx context.Context, id string, tokens []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_accounts SET oauth_tokens = $1, updated_at = now() WHERE id = $2`,
		tokens, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update account tokens %s", id)
	}
	return checkPGRowsAffected(tag.RowsAffected(), "account", id)
}

func (s *PostgresStore) UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_accounts SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update account status %s", id)
	}
	return checkPGRowsAffected(tag.RowsAffected(), "account", id)
}

// Campaigns

func (s *PostgresStore) CreateCampaignWithThreads(ctx context.Context, campaign model.EmailCampaign, threads []model.EmailThread) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin campaign tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO email_campaigns (id, name, account_id, company_count, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		campaign.ID, campaign.Name, campaign.AccountID, campaign.CompanyCount,
		string(campaign.Status), campaign.CreatedAt.UTC(), campaign.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert campaign")
	}

	for _, t := range threads {
		_, err = tx.Exec(ctx,
			`INSERT INTO email_threads (id, campaign_id, company_id, subject, email_content,
				response_received, conversation_status, follow_up_count, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, false, $6, 0, $7, $8)`,
			t.ID, t.CampaignID, t.CompanyID, t.Subject, t.EmailContent,
			string(t.ConversationStatus), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert thread for company %s", t.CompanyID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit campaign tx")
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.EmailCampaign, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, account_id, company_count, status, created_at, updated_at FROM email_campaigns WHERE id = $1`, id,
	)
	c, err := scanPGCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("campaign not found: %s", id)
	}
	return c, err
}

func (s *PostgresStore) ListCampaigns(ctx context.Context) ([]model.EmailCampaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, account_id, company_count, status, created_at, updated_at
		 FROM email_campaigns ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.EmailCampaign
	for rows.Next() {
		c, err := scanPGCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_campaigns SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign status %s", id)
	}
	return checkPGRowsAffected(tag.RowsAffected(), "campaign", id)
}

func (s *PostgresStore) CompleteAgedCampaigns(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_campaigns SET status = $1, updated_at = now()
		 WHERE status != $1 AND created_at <= $2`,
		string(model.CampaignStatusCompleted), olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: complete aged campaigns")
	}
	return int(tag.RowsAffected()), nil
}

// Threads

const pgThreadCols = `id, campaign_id, company_id, subject, email_content, sent_at,
	response_received, conversation_status, follow_up_count, next_follow_up, created_at, updated_at`

func (s *PostgresStore) GetThread(ctx context.Context, id string) (*model.EmailThread, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgThreadCols+` FROM email_threads WHERE id = $1`, id,
	)
	t, err := scanPGThread(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("thread not found: %s", id)
	}
	return t, err
}

func (s *PostgresStore) ListUnsentThreads(ctx context.Context, campaignID string) ([]model.EmailThread, error) {
	return s.queryThreads(ctx,
		`SELECT `+pgThreadCols+` FROM email_threads
		 WHERE campaign_id = $1 AND conversation_status = $2 AND sent_at IS NULL
		 ORDER BY created_at ASC`,
		campaignID, string(model.ConversationStatusPending),
	)
}

func (s *PostgresStore) ListDueThreads(ctx context.Context, now time.Time, limit int) ([]model.EmailThread, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.queryThreads(ctx,
		`SELECT `+pgThreadCols+` FROM email_threads
		 WHERE conversation_status = $1 AND response_received = false
		   AND sent_at IS NOT NULL AND next_follow_up IS NOT NULL AND next_follow_up <= $2
		 ORDER BY next_follow_up ASC LIMIT $3`,
		string(model.ConversationStatusPending), now.UTC(), limit,
	)
}

func (s *PostgresStore) MarkThreadSent(ctx context.Context, id string, sentAt, nextFollowUp time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_threads SET sent_at = $1, next_follow_up = $2, updated_at = now()
		 WHERE id = $3 AND sent_at IS NULL`,
		sentAt.UTC(), nextFollowUp.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark thread sent %s", id)
	}
	return checkPGRowsAffected(tag.RowsAffected(), "unsent thread", id)
}

func (s *PostgresStore) AdvanceThreadFollowUp(ctx context.Context, id string, fromCount int, next *time.Time) (bool, error) {
	var nextVal any
	if next != nil {
		nextVal = next.UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_threads SET follow_up_count = $1, next_follow_up = $2, updated_at = now()
		 WHERE id = $3 AND follow_up_count = $4 AND conversation_status = $5 AND response_received = false`,
		fromCount+1, nextVal, id, fromCount, string(model.ConversationStatusPending),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: advance thread %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkThreadResponded(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_threads SET response_received = true, conversation_status = $1,
			next_follow_up = NULL, updated_at = now() WHERE id = $2`,
		string(model.ConversationStatusResponded), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark thread responded %s", id)
	}
	return checkPGRowsAffected(tag.RowsAffected(), "thread", id)
}

func (s *PostgresStore) LatestOpenThreadForCompany(ctx context.Context, companyID string) (*model.EmailThread, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgThreadCols+` FROM email_threads
		 WHERE company_id = $1 AND response_received = false
		 ORDER BY created_at DESC LIMIT 1`,
		companyID,
	)
	t, err := scanPGThread(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *PostgresStore) CompleteAgedThreads(ctx context.Context, olderThan time.Time, maxFollowUps int) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_threads SET conversation_status = $1, next_follow_up = NULL, updated_at = now()
		 WHERE conversation_status = $2 AND follow_up_count >= $3 AND created_at <= $4`,
		string(model.ConversationStatusCompleted), string(model.ConversationStatusPending),
		maxFollowUps, olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: complete aged threads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) queryThreads(ctx context.Context, query string, args ...any) ([]model.EmailThread, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list threads")
	}
	defer rows.Close()

	var threads []model.EmailThread
	for rows.Next() {
		t, err := scanPGThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *t)
	}
	return threads, eris.Wrap(rows.Err(), "postgres: list threads iterate")
}

// Conversations

func (s *PostgresStore) AppendConversation(ctx context.Context, conv model.Conversation) (*model.Conversation, error) {
	conv.ID = uuid.New().String()
	conv.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, thread_id, sender, message_content, sentiment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, conv.ThreadID, string(conv.Sender), conv.MessageContent, conv.Sentiment, conv.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert conversation for thread %s", conv.ThreadID)
	}
	return &conv, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, threadID string) ([]model.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, sender, message_content, sentiment, created_at
		 FROM conversations WHERE thread_id = $1 ORDER BY created_at ASC`,
		threadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conversations")
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.ThreadID, &c.Sender, &c.MessageContent, &c.Sentiment, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conversation")
		}
		convs = append(convs, c)
	}
	return convs, eris.Wrap(rows.Err(), "postgres: list conversations iterate")
}

// Cache

var cacheUpsertSQL = db.UpsertSQL("cache_entries",
	[]string{"key", "category", "payload", "expires_at", "created_at"},
	[]string{"key", "category"},
	[]string{"payload", "expires_at"},
)

func (s *PostgresStore) CacheGet(ctx context.Context, key, category string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, category, payload, expires_at, created_at FROM cache_entries
		 WHERE key = $1 AND category = $2`,
		key, category,
	)
	var e model.CacheEntry
	var expires *time.Time
	err := row.Scan(&e.Key, &e.Category, &e.Payload, &expires, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}
	e.ExpiresAt = expires
	return &e, nil
}

func (s *PostgresStore) CacheSet(ctx context.Context, entry model.CacheEntry) error {
	var expires any
	if entry.ExpiresAt != nil {
		expires = entry.ExpiresAt.UTC()
	}
	_, err := s.pool.Exec(ctx, cacheUpsertSQL,
		entry.Key, entry.Category, entry.Payload, expires, entry.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: set cache entry")
}

func (s *PostgresStore) CacheDelete(ctx context.Context, key, category string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE key = $1 AND category = $2`, key, category,
	)
	return eris.Wrap(err, "postgres: delete cache entry")
}

func (s *PostgresStore) CacheSweep(ctx context.Context, now, retentionCutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries
		 WHERE (expires_at IS NOT NULL AND expires_at <= $1) OR created_at <= $2`,
		now.UTC(), retentionCutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: cache sweep")
	}
	return int(tag.RowsAffected()), nil
}

// Analytics

var metricUpsertSQL = db.UpsertSQL("daily_metrics",
	[]string{"day", "name", "value", "computed_at"},
	[]string{"day", "name"},
	[]string{"value", "computed_at"},
)

func (s *PostgresStore) CountCompaniesScrapedOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM companies WHERE scraped_at >= $1 AND scraped_at < $2`, start, end)
}

func (s *PostgresStore) CountCompaniesEnrichedOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM companies WHERE enriched_at >= $1 AND enriched_at < $2`, start, end)
}

func (s *PostgresStore) CountThreadsSentOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM email_threads WHERE sent_at >= $1 AND sent_at < $2`, start, end)
}

func (s *PostgresStore) CountResponsesForThreadsSentOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM email_threads
		 WHERE sent_at >= $1 AND sent_at < $2 AND response_received = true`, start, end)
}

func (s *PostgresStore) UpsertDailyMetric(ctx context.Context, m model.DailyMetric) error {
	start, _ := dayBounds(m.Day)
	_, err := s.pool.Exec(ctx, metricUpsertSQL, start, m.Name, m.Value, time.Now().UTC())
	return eris.Wrapf(err, "postgres: upsert metric %s", m.Name)
}

func (s *PostgresStore) ListDailyMetrics(ctx context.Context, day time.Time) ([]model.DailyMetric, error) {
	start, _ := dayBounds(day)
	rows, err := s.pool.Query(ctx,
		`SELECT day, name, value FROM daily_metrics WHERE day = $1 ORDER BY name ASC`, start,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var metrics []model.DailyMetric
	for rows.Next() {
		var m model.DailyMetric
		if err := rows.Scan(&m.Day, &m.Name, &m.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "postgres: list metrics iterate")
}

func (s *PostgresStore) countRows(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count")
	}
	return n, nil
}

// helpers

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func checkPGRowsAffected(n int64, entity, id string) error {
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanPGCompany(row pgx.Row) (*model.Company, error) {
	var c model.Company
	var scrapedJSON, enrichedJSON []byte
	var scrapedAt, enrichedAt *time.Time

	err := row.Scan(&c.ID, &c.Name, &c.Website, &c.Email, &c.Phone, &c.Address,
		&c.Category, &c.Rating, &scrapedJSON, &enrichedJSON,
		&scrapedAt, &enrichedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan company")
	}

	if len(scrapedJSON) > 0 {
		c.ScrapedContent = &model.ScrapedContent{}
		if err := json.Unmarshal(scrapedJSON, c.ScrapedContent); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scraped content")
		}
	}
	if len(enrichedJSON) > 0 {
		c.EnrichedData = &model.EnrichedProfile{}
		if err := json.Unmarshal(enrichedJSON, c.EnrichedData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal enriched data")
		}
	}
	c.ScrapedAt = scrapedAt
	c.EnrichedAt = enrichedAt
	return &c, nil
}

func scanPGCampaign(row pgx.Row) (*model.EmailCampaign, error) {
	var c model.EmailCampaign
	err := row.Scan(&c.ID, &c.Name, &c.AccountID, &c.CompanyCount, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan campaign")
	}
	return &c, nil
}

func scanPGThread(row pgx.Row) (*model.EmailThread, error) {
	var t model.EmailThread
	var sentAt, nextFollowUp *time.Time

	err := row.Scan(&t.ID, &t.CampaignID, &t.CompanyID, &t.Subject, &t.EmailContent,
		&sentAt, &t.ResponseReceived, &t.ConversationStatus, &t.FollowUpCount,
		&nextFollowUp, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan thread")
	}

	t.SentAt = sentAt
	t.NextFollowUp = nextFollowUp
	return &t, nil
}

func scanPGAccount(row pgx.Row) (*model.EmailAccount, error) {
	var a model.EmailAccount
	err := row.Scan(&a.ID, &a.Email, &a.OAuthTokens, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan account")
	}
	return &a, nil
}
