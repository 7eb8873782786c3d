package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id              TEXT PRIMARY KEY,
	identity_key    TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	website         TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	rating          REAL NOT NULL DEFAULT 0,
	scraped_content TEXT,
	enriched_data   TEXT,
	scraped_at      DATETIME,
	enriched_at     DATETIME,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS email_accounts (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	oauth_tokens TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS email_campaigns (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	account_id    TEXT NOT NULL REFERENCES email_accounts(id),
	company_count INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS email_threads (
	id                  TEXT PRIMARY KEY,
	campaign_id         TEXT NOT NULL REFERENCES email_campaigns(id),
	company_id          TEXT NOT NULL REFERENCES companies(id),
	subject             TEXT NOT NULL,
	email_content       TEXT NOT NULL,
	sent_at             DATETIME,
	response_received   INTEGER NOT NULL DEFAULT 0,
	conversation_status TEXT NOT NULL DEFAULT 'pending',
	follow_up_count     INTEGER NOT NULL DEFAULT 0,
	next_follow_up      DATETIME,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	thread_id       TEXT NOT NULL REFERENCES email_threads(id),
	sender          TEXT NOT NULL,
	message_content TEXT NOT NULL,
	sentiment       TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT NOT NULL,
	category   TEXT NOT NULL,
	payload    BLOB NOT NULL,
	expires_at DATETIME,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (key, category)
);

CREATE TABLE IF NOT EXISTS daily_metrics (
	day         DATETIME NOT NULL,
	name        TEXT NOT NULL,
	value       INTEGER NOT NULL,
	computed_at DATETIME NOT NULL,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Companies

const sqliteCompanyCols = `id, name, website, email, phone, address, category, rating,
	scraped_content, enriched_data, scraped_at, enriched_at, created_at, updated_at`

func (s *SQLiteStore) UpsertCompany(ctx context.Context, identityKey string, c model.Company) (*model.Company, bool, error) {
	now := time.Now().UTC()

	var existingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM companies WHERE identity_key = ?`, identityKey,
	).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		id := uuid.New().String()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO companies (id, identity_key, name, website, email, phone, address, category, rating, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, identityKey, c.Name, c.Website, c.Email, c.Phone, c.Address, c.Category, c.Rating, now, now,
		)
		if err != nil {
			return nil, false, eris.Wrap(err, "sqlite: insert company")
		}
		created, err := s.GetCompany(ctx, id)
		return created, true, err

	case err != nil:
		return nil, false, eris.Wrap(err, "sqlite: lookup company identity")

	default:
		// Volatile fields refresh on re-scrape; email, scraped content and
		// enrichment are owned by their own update paths.
		_, err = s.db.ExecContext(ctx,
			`UPDATE companies SET
				phone = CASE WHEN ? != '' THEN ? ELSE phone END,
				address = CASE WHEN ? != '' THEN ? ELSE address END,
				website = CASE WHEN ? != '' THEN ? ELSE website END,
				category = CASE WHEN ? != '' THEN ? ELSE category END,
				rating = CASE WHEN ? > 0 THEN ? ELSE rating END,
				updated_at = ?
			 WHERE id = ?`,
			c.Phone, c.Phone, c.Address, c.Address, c.Website, c.Website,
			c.Category, c.Category, c.Rating, c.Rating, now, existingID,
		)
		if err != nil {
			return nil, false, eris.Wrap(err, "sqlite: refresh company")
		}
		updated, err := s.GetCompany(ctx, existingID)
		return updated, false, err
	}
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCompanyCols+` FROM companies WHERE id = ?`, id,
	)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("company not found: %s", id)
	}
	return c, err
}

func (s *SQLiteStore) GetCompanyByEmail(ctx context.Context, email string) (*model.Company, error) {
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCompanyCols+` FROM companies WHERE email = ? LIMIT 1`, email,
	)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter model.CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + sqliteCompanyCols + ` FROM companies WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.EnrichedOnly {
		query += ` AND enriched_data IS NOT NULL`
	}
	if filter.Location != "" {
		query += ` AND address LIKE ?`
		args = append(args, "%"+filter.Location+"%")
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.MaxCount
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	return s.queryCompanies(ctx, query, args...)
}

func (s *SQLiteStore) ListCompaniesByIDs(ctx context.Context, ids []string) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + sqliteCompanyCols + ` FROM companies WHERE id IN (?`
	args := []any{ids[0]}
	for _, id := range ids[1:] {
		query += `,?`
		args = append(args, id)
	}
	query += `) ORDER BY created_at ASC`
	return s.queryCompanies(ctx, query, args...)
}

func (s *SQLiteStore) ListEnrichableCompanies(ctx context.Context, minContentLen, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	companies, err := s.queryCompanies(ctx,
		`SELECT `+sqliteCompanyCols+` FROM companies
		 WHERE scraped_content IS NOT NULL AND enriched_data IS NULL
		 ORDER BY scraped_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	// The content-length floor applies to the extracted text, not the
	// serialized JSON, so it is enforced here rather than in SQL.
	out := companies[:0]
	for _, c := range companies {
		if c.HasScrapedContent(minContentLen) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *SQLiteStore) UpdateCompanyScrape(ctx context.Context, id, email string, content *model.ScrapedContent, at time.Time) error {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scraped content")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET email = CASE WHEN ? != '' THEN ? ELSE email END,
			scraped_content = ?, scraped_at = ?, updated_at = ? WHERE id = ?`,
		email, email, string(contentJSON), at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company scrape %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) UpdateCompanyEnrichment(ctx context.Context, id string, profile *model.EnrichedProfile, at time.Time) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET enriched_data = ?, enriched_at = ?, updated_at = ? WHERE id = ?`,
		string(profileJSON), at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company enrichment %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) queryCompanies(ctx context.Context, query string, args ...any) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

// Email accounts

func (s *SQLiteStore) CreateAccount(ctx context.Context, email string, tokens []byte) (*model.EmailAccount, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_accounts (id, email, oauth_tokens, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, string(tokens), string(model.AccountStatusActive), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert account")
	}
	return &model.EmailAccount{
		ID: id, Email: email, OAuthTokens: tokens,
		Status: model.AccountStatusActive, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetActiveAccount(ctx context.Context) (*model.EmailAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, oauth_tokens, status, created_at, updated_at FROM email_accounts
		 WHERE status = ? ORDER BY created_at ASC LIMIT 1`,
		string(model.AccountStatusActive),
	)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*model.EmailAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, oauth_tokens, status, created_at, updated_at FROM email_accounts WHERE id = ?`, id,
	)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("account not found: %s", id)
	}
	return a, err
}

func (s *SQLiteStore) UpdateAccountTokens(ctx context.Context, id string, tokens []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_accounts SET oauth_tokens = ?, updated_at = ? WHERE id = ?`,
		string(tokens), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update account tokens %s", id)
	}
	return checkRowsAffected(res, "account", id)
}

func (s *SQLiteStore) UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_accounts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update account status %s", id)
	}
	return checkRowsAffected(res, "account", id)
}

// Campaigns

func (s *SQLiteStore) CreateCampaignWithThreads(ctx context.Context, campaign model.EmailCampaign, threads []model.EmailThread) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin campaign tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO email_campaigns (id, name, account_id, company_count, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		campaign.ID, campaign.Name, campaign.AccountID, campaign.CompanyCount,
		string(campaign.Status), campaign.CreatedAt.UTC(), campaign.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert campaign")
	}

	for _, t := range threads {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO email_threads (id, campaign_id, company_id, subject, email_content,
				response_received, conversation_status, follow_up_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, 0, ?, ?)`,
			t.ID, t.CampaignID, t.CompanyID, t.Subject, t.EmailContent,
			string(t.ConversationStatus), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert thread for company %s", t.CompanyID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit campaign tx")
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.EmailCampaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, account_id, company_count, status, created_at, updated_at FROM email_campaigns WHERE id = ?`, id,
	)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("campaign not found: %s", id)
	}
	return c, err
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context) ([]model.EmailCampaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, account_id, company_count, status, created_at, updated_at
		 FROM email_campaigns ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.EmailCampaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_campaigns SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign status %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

func (s *SQLiteStore) CompleteAgedCampaigns(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_campaigns SET status = ?, updated_at = ?
		 WHERE status != ? AND created_at <= ?`,
		string(model.CampaignStatusCompleted), time.Now().UTC(),
		string(model.CampaignStatusCompleted), olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: complete aged campaigns")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Threads

const sqliteThreadCols = `id, campaign_id, company_id, subject, email_content, sent_at,
	response_received, conversation_status, follow_up_count, next_follow_up, created_at, updated_at`

func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*model.EmailThread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteThreadCols+` FROM email_threads WHERE id = ?`, id,
	)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("thread not found: %s", id)
	}
	return t, err
}

func (s *SQLiteStore) ListUnsentThreads(ctx context.Context, campaignID string) ([]model.EmailThread, error) {
	return s.queryThreads(ctx,
		`SELECT `+sqliteThreadCols+` FROM email_threads
		 WHERE campaign_id = ? AND conversation_status = ? AND sent_at IS NULL
		 ORDER BY created_at ASC`,
		campaignID, string(model.ConversationStatusPending),
	)
}

func (s *SQLiteStore) ListDueThreads(ctx context.Context, now time.Time, limit int) ([]model.EmailThread, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.queryThreads(ctx,
		`SELECT `+sqliteThreadCols+` FROM email_threads
		 WHERE conversation_status = ? AND response_received = 0
		   AND sent_at IS NOT NULL AND next_follow_up IS NOT NULL AND next_follow_up <= ?
		 ORDER BY next_follow_up ASC LIMIT ?`,
		string(model.ConversationStatusPending), now.UTC(), limit,
	)
}

func (s *SQLiteStore) MarkThreadSent(ctx context.Context, id string, sentAt, nextFollowUp time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_threads SET sent_at = ?, next_follow_up = ?, updated_at = ?
		 WHERE id = ? AND sent_at IS NULL`,
		sentAt.UTC(), nextFollowUp.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark thread sent %s", id)
	}
	return checkRowsAffected(res, "unsent thread", id)
}

func (s *SQLiteStore) AdvanceThreadFollowUp(ctx context.Context, id string, fromCount int, next *time.Time) (bool, error) {
	var nextVal any
	if next != nil {
		nextVal = next.UTC()
	}
	// Guarded single-row update: a concurrent sweep or an intervening
	// reply makes this a no-op rather than a double advance.
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_threads SET follow_up_count = ?, next_follow_up = ?, updated_at = ?
		 WHERE id = ? AND follow_up_count = ? AND conversation_status = ? AND response_received = 0`,
		fromCount+1, nextVal, time.Now().UTC(),
		id, fromCount, string(model.ConversationStatusPending),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: advance thread %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkThreadResponded(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_threads SET response_received = 1, conversation_status = ?,
			next_follow_up = NULL, updated_at = ? WHERE id = ?`,
		string(model.ConversationStatusResponded), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark thread responded %s", id)
	}
	return checkRowsAffected(res, "thread", id)
}

func (s *SQLiteStore) LatestOpenThreadForCompany(ctx context.Context, companyID string) (*model.EmailThread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteThreadCols+` FROM email_threads
		 WHERE company_id = ? AND response_received = 0
		 ORDER BY created_at DESC LIMIT 1`,
		companyID,
	)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStore) CompleteAgedThreads(ctx context.Context, olderThan time.Time, maxFollowUps int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_threads SET conversation_status = ?, next_follow_up = NULL, updated_at = ?
		 WHERE conversation_status = ? AND follow_up_count >= ? AND created_at <= ?`,
		string(model.ConversationStatusCompleted), time.Now().UTC(),
		string(model.ConversationStatusPending), maxFollowUps, olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: complete aged threads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) queryThreads(ctx context.Context, query string, args ...any) ([]model.EmailThread, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list threads")
	}
	defer rows.Close()

	var threads []model.EmailThread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *t)
	}
	return threads, eris.Wrap(rows.Err(), "sqlite: list threads iterate")
}

// Conversations

func (s *SQLiteStore) AppendConversation(ctx context.Context, conv model.Conversation) (*model.Conversation, error) {
	conv.ID = uuid.New().String()
	conv.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, thread_id, sender, message_content, sentiment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.ThreadID, string(conv.Sender), conv.MessageContent, conv.Sentiment, conv.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert conversation for thread %s", conv.ThreadID)
	}
	return &conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, threadID string) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, sender, message_content, sentiment, created_at
		 FROM conversations WHERE thread_id = ? ORDER BY created_at ASC`,
		threadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conversations")
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.ThreadID, &c.Sender, &c.MessageContent, &c.Sentiment, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conversation")
		}
		convs = append(convs, c)
	}
	return convs, eris.Wrap(rows.Err(), "sqlite: list conversations iterate")
}

// Cache

func (s *SQLiteStore) CacheGet(ctx context.Context, key, category string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, category, payload, expires_at, created_at FROM cache_entries
		 WHERE key = ? AND category = ?`,
		key, category,
	)
	var e model.CacheEntry
	var expires sql.NullTime
	err := row.Scan(&e.Key, &e.Category, &e.Payload, &expires, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}
	if expires.Valid {
		t := expires.Time
		e.ExpiresAt = &t
	}
	return &e, nil
}

func (s *SQLiteStore) CacheSet(ctx context.Context, entry model.CacheEntry) error {
	var expires any
	if entry.ExpiresAt != nil {
		expires = entry.ExpiresAt.UTC()
	}
	// created_at is preserved on overwrite so the retention ceiling
	// measures first write, not last refresh.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, category, payload, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key, category) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		entry.Key, entry.Category, entry.Payload, expires, entry.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: set cache entry")
}

func (s *SQLiteStore) CacheDelete(ctx context.Context, key, category string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key = ? AND category = ?`, key, category,
	)
	return eris.Wrap(err, "sqlite: delete cache entry")
}

func (s *SQLiteStore) CacheSweep(ctx context.Context, now, retentionCutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries
		 WHERE (expires_at IS NOT NULL AND expires_at <= ?) OR created_at <= ?`,
		now.UTC(), retentionCutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: cache sweep")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Analytics

func (s *SQLiteStore) CountCompaniesScrapedOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM companies WHERE scraped_at >= ? AND scraped_at < ?`, start, end)
}

func (s *SQLiteStore) CountCompaniesEnrichedOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM companies WHERE enriched_at >= ? AND enriched_at < ?`, start, end)
}

func (s *SQLiteStore) CountThreadsSentOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM email_threads WHERE sent_at >= ? AND sent_at < ?`, start, end)
}

func (s *SQLiteStore) CountResponsesForThreadsSentOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.countRows(ctx,
		`SELECT COUNT(*) FROM email_threads
		 WHERE sent_at >= ? AND sent_at < ? AND response_received = 1`, start, end)
}

func (s *SQLiteStore) UpsertDailyMetric(ctx context.Context, m model.DailyMetric) error {
	start, _ := dayBounds(m.Day)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_metrics (day, name, value, computed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(day, name) DO UPDATE SET value = excluded.value, computed_at = excluded.computed_at`,
		start, m.Name, m.Value, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert metric %s", m.Name)
}

func (s *SQLiteStore) ListDailyMetrics(ctx context.Context, day time.Time) ([]model.DailyMetric, error) {
	start, _ := dayBounds(day)
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, name, value FROM daily_metrics WHERE day = ? ORDER BY name ASC`, start,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var metrics []model.DailyMetric
	for rows.Next() {
		var m model.DailyMetric
		if err := rows.Scan(&m.Day, &m.Name, &m.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "sqlite: list metrics iterate")
}

func (s *SQLiteStore) countRows(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count")
	}
	return n, nil
}

// helpers

// dayBounds returns the UTC [start, end) range for the calendar day
// containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var scrapedJSON, enrichedJSON sql.NullString
	var scrapedAt, enrichedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Name, &c.Website, &c.Email, &c.Phone, &c.Address,
		&c.Category, &c.Rating, &scrapedJSON, &enrichedJSON,
		&scrapedAt, &enrichedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan company")
	}

	if scrapedJSON.Valid {
		c.ScrapedContent = &model.ScrapedContent{}
		if err := json.Unmarshal([]byte(scrapedJSON.String), c.ScrapedContent); err != nil {
			return nil, eris.Wrap(err, "unmarshal scraped content")
		}
	}
	if enrichedJSON.Valid {
		c.EnrichedData = &model.EnrichedProfile{}
		if err := json.Unmarshal([]byte(enrichedJSON.String), c.EnrichedData); err != nil {
			return nil, eris.Wrap(err, "unmarshal enriched data")
		}
	}
	if scrapedAt.Valid {
		t := scrapedAt.Time
		c.ScrapedAt = &t
	}
	if enrichedAt.Valid {
		t := enrichedAt.Time
		c.EnrichedAt = &t
	}
	return &c, nil
}

func scanCampaign(row scannable) (*model.EmailCampaign, error) {
	var c model.EmailCampaign
	err := row.Scan(&c.ID, &c.Name, &c.AccountID, &c.CompanyCount, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan campaign")
	}
	return &c, nil
}

func scanThread(row scannable) (*model.EmailThread, error) {
	var t model.EmailThread
	var sentAt, nextFollowUp sql.NullTime

	err := row.Scan(&t.ID, &t.CampaignID, &t.CompanyID, &t.Subject, &t.EmailContent,
		&sentAt, &t.ResponseReceived, &t.ConversationStatus, &t.FollowUpCount,
		&nextFollowUp, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan thread")
	}

	if sentAt.Valid {
		v := sentAt.Time
		t.SentAt = &v
	}
	if nextFollowUp.Valid {
		v := nextFollowUp.Time
		t.NextFollowUp = &v
	}
	return &t, nil
}

func scanAccount(row scannable) (*model.EmailAccount, error) {
	var a model.EmailAccount
	var tokens string
	err := row.Scan(&a.ID, &a.Email, &tokens, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan account")
	}
	a.OAuthTokens = []byte(tokens)
	return &a, nil
}
