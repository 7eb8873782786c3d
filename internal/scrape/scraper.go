// Package scrape discovers businesses through directory search and
// extracts contact emails and page content from their websites.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/dedupe"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/serp"
)

// Scraper runs the discovery pipeline: directory search, dedupe,
// company upsert, then website email and content extraction.
type Scraper struct {
	store  store.Store
	cache  *cache.Cache
	dedupe *dedupe.Checker
	search serp.Client
	costs  *cost.Tracker
	http   *http.Client
	cfg    config.ScrapeConfig
	log    *zap.Logger
}

func New(st store.Store, c *cache.Cache, search serp.Client, costs *cost.Tracker, cfg config.ScrapeConfig) *Scraper {
	return &Scraper{
		store:  st,
		cache:  c,
		dedupe: dedupe.NewChecker(c),
		search: search,
		costs:  costs,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		cfg: cfg,
		log: zap.L().Named("scrape"),
	}
}

// Run discovers businesses for one query and location, stores the new
// ones, and scrapes their websites. Per-item failures are reported
// through the summary; only discovery itself aborts the run.
func (s *Scraper) Run(ctx context.Context, query, location string) (*model.Summary, error) {
	listings, err := s.discover(ctx, query, location)
	if err != nil {
		return nil, err
	}
	s.log.Info("discovery complete",
		zap.String("query", query),
		zap.String("location", location),
		zap.Int("listings", len(listings)))

	summary := &model.Summary{}

	// Dedupe serially before fanning out so duplicate listings within
	// the same batch collapse too.
	type task struct {
		listing  model.Listing
		identity string
	}
	var tasks []task
	seen := make(map[string]bool)
	for _, l := range listings {
		if l.Name == "" {
			summary.RecordSkip()
			continue
		}
		identity := dedupe.Identity(l.Name, l.Address)
		if seen[identity] || s.dedupe.Lookup(ctx, identity) != "" {
			summary.RecordSkip()
			continue
		}
		seen[identity] = true
		tasks = append(tasks, task{listing: l, identity: identity})
	}

	pacer := resilience.NewPacer(time.Duration(s.cfg.PacingMS) * time.Millisecond)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, t := range tasks {
		g.Go(func() error {
			itemID, err := s.processListing(gctx, pacer, t.listing, t.identity)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.RecordFailure(itemID, err)
				return nil
			}
			summary.RecordSuccess()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "scrape: run aborted")
	}

	s.log.Info("scrape complete", zap.String("summary", summary.String()))
	return summary, nil
}

// discover returns the directory listings for a query, serving repeats
// of the same search from cache instead of re-querying the API.
func (s *Scraper) discover(ctx context.Context, query, location string) ([]model.Listing, error) {
	key := cache.DirectoryKey(query, location)

	var listings []model.Listing
	if s.cache.GetJSON(ctx, key, cache.CategoryDirectory, &listings) {
		s.log.Debug("directory cache hit", zap.String("query", query))
		return listings, nil
	}

	results, err := s.search.SearchLocal(ctx, query, location)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: directory search")
	}
	s.costs.RecordSearch()

	listings = make([]model.Listing, 0, len(results))
	for _, r := range results {
		listings = append(listings, model.Listing{
			Name:     r.Title,
			Address:  r.Address,
			Phone:    r.Phone,
			Website:  r.Website,
			Rating:   r.Rating,
			Category: r.Category,
			Source:   "serp",
		})
	}
	s.cache.SetJSON(ctx, key, cache.CategoryDirectory, listings, cache.DirectoryTTL)

	return listings, nil
}

// processListing upserts one company and scrapes its website. Returns
// the item ID used in failure reporting, which is the company ID once
// the record exists.
func (s *Scraper) processListing(ctx context.Context, pacer *resilience.Pacer, l model.Listing, identity string) (string, error) {
	company, created, err := s.store.UpsertCompany(ctx, identity, model.Company{
		Name:     l.Name,
		Website:  l.Website,
		Phone:    l.Phone,
		Address:  l.Address,
		Category: l.Category,
		Rating:   l.Rating,
	})
	if err != nil {
		return l.Name, eris.Wrapf(err, "scrape: upsert %s", l.Name)
	}
	s.dedupe.Remember(ctx, identity, company.ID)
	s.log.Debug("company stored",
		zap.String("company_id", company.ID),
		zap.String("name", company.Name),
		zap.Bool("created", created))

	// A listing without a website is still a valid company record; it
	// just cannot be scraped or emailed.
	if l.Website == "" {
		return company.ID, nil
	}

	if err := pacer.Wait(ctx); err != nil {
		return company.ID, err
	}
	site, err := s.extractSite(ctx, l.Website)
	if err != nil {
		return company.ID, err
	}

	now := time.Now().UTC()
	content := &model.ScrapedContent{
		Text:      site.Text,
		SourceURL: site.SourceURL,
		PageTitle: site.Title,
		FetchedAt: now,
	}
	if err := s.store.UpdateCompanyScrape(ctx, company.ID, site.Email, content, now); err != nil {
		return company.ID, eris.Wrapf(err, "scrape: save content for %s", company.ID)
	}
	return company.ID, nil
}

// siteResult is the cached outcome of one website extraction. An empty
// email is a valid cached result: re-fetching a site that publishes no
// address within the TTL is wasted work.
type siteResult struct {
	Email     string `json:"email"`
	Text      string `json:"text"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
}

func (s *Scraper) extractSite(ctx context.Context, website string) (*siteResult, error) {
	key := cache.EmailKey(website)

	var res siteResult
	if s.cache.GetJSON(ctx, key, cache.CategoryEmail, &res) {
		s.log.Debug("extraction cache hit", zap.String("website", website))
		return &res, nil
	}

	pageURL := normalizeURL(website)
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	ext, err := Extract(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	res = siteResult{
		Email:     ext.Email,
		Text:      ext.Text,
		Title:     ext.Title,
		SourceURL: pageURL,
	}
	s.cache.SetJSON(ctx, key, cache.CategoryEmail, res, cache.EmailTTL)
	return &res, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: create request for %s", pageURL)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OutreachBot/1.0)")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: fetch %s", pageURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(
				fmt.Errorf("scrape: fetch %s: status %d", pageURL, resp.StatusCode),
				resp.StatusCode)
		}
		return "", eris.Errorf("scrape: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	maxBytes := s.cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)))
	if err != nil {
		return "", eris.Wrapf(err, "scrape: read %s", pageURL)
	}
	return string(data), nil
}

// normalizeURL defaults bare hostnames to https.
func normalizeURL(website string) string {
	if strings.HasPrefix(website, "http://") || strings.HasPrefix(website, "https://") {
		return website
	}
	return "https://" + website
}
