// Package enrich derives structured company profiles from scraped
// website content using the Anthropic API.
package enrich

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// ErrMalformedEnrichment marks a model response that could not be
// parsed into a profile. Permanent for the item; retrying the same
// content buys nothing.
var ErrMalformedEnrichment = eris.New("enrich: malformed enrichment response")

// maxContentChars bounds how much scraped text goes into one prompt.
const maxContentChars = 12000

const systemPrompt = `You are a B2B research analyst. Given the text of a company's website, produce a JSON object describing the company. Respond with ONLY the JSON object, no prose, using exactly these keys:
{"industry": string, "company_size": string, "services": [string], "pain_points": [string], "key_personnel": [string], "summary": string}
Use empty strings or empty arrays for anything the text does not support. Do not invent facts.`

// Config holds the enrichment settings.
type Config struct {
	Model         string
	MaxTokens     int64
	Concurrency   int
	BatchLimit    int
	MinContentLen int
}

// Enricher runs batch profile enrichment over companies that have
// scraped content but no profile yet.
type Enricher struct {
	store store.Store
	cache *cache.Cache
	llm   anthropic.Client
	costs *cost.Tracker
	cfg   Config
	log   *zap.Logger
}

func New(st store.Store, c *cache.Cache, llm anthropic.Client, costs *cost.Tracker, cfg Config) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Enricher{
		store: st,
		cache: c,
		llm:   llm,
		costs: costs,
		cfg:   cfg,
		log:   zap.L().Named("enrich"),
	}
}

// Run enriches the next batch of eligible companies. Per-item failures
// go into the summary; the batch itself only fails when it cannot load
// its candidates.
func (e *Enricher) Run(ctx context.Context) (*model.Summary, error) {
	companies, err := e.store.ListEnrichableCompanies(ctx, e.cfg.MinContentLen, e.cfg.BatchLimit)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: list candidates")
	}
	e.log.Info("enrichment batch", zap.Int("candidates", len(companies)))

	summary := &model.Summary{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, c := range companies {
		g.Go(func() error {
			err := e.enrichOne(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.RecordFailure(c.ID, err)
				return nil
			}
			summary.RecordSuccess()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "enrich: run aborted")
	}

	spend := e.costs.Snapshot()
	e.log.Info("enrichment complete",
		zap.String("summary", summary.String()),
		zap.Float64("spend_usd", spend.EnrichmentUSD),
		zap.Int("model_calls", spend.ModelCalls))
	return summary, nil
}

func (e *Enricher) enrichOne(ctx context.Context, c model.Company) error {
	if !c.HasScrapedContent(e.cfg.MinContentLen) {
		return eris.Errorf("enrich: company %s has insufficient content", c.ID)
	}

	var key string
	if u := c.ScrapedContent.SourceURL; u != "" {
		key = cache.EnrichmentKey(u)
	}

	var profile model.EnrichedProfile
	if key != "" && e.cache.GetJSON(ctx, key, cache.CategoryEnrichment, &profile) {
		e.log.Debug("enrichment cache hit", zap.String("company_id", c.ID))
		return e.save(ctx, c.ID, &profile)
	}

	resp, err := e.complete(ctx, c)
	if err != nil {
		return eris.Wrapf(err, "enrich: model call for %s", c.ID)
	}
	e.costs.RecordClaude(resp.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	parsed, err := ParseProfile(resp.Text())
	if err != nil {
		return err
	}

	if key != "" {
		e.cache.SetJSON(ctx, key, cache.CategoryEnrichment, parsed, cache.EnrichmentTTL)
	}
	return e.save(ctx, c.ID, parsed)
}

func (e *Enricher) complete(ctx context.Context, c model.Company) (*anthropic.MessageResponse, error) {
	content := c.ScrapedContent.Text
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	var b strings.Builder
	b.WriteString("Company name: " + c.Name + "\n")
	if c.Category != "" {
		b.WriteString("Directory category: " + c.Category + "\n")
	}
	if c.ScrapedContent.SourceURL != "" {
		b.WriteString("Website: " + c.ScrapedContent.SourceURL + "\n")
	}
	b.WriteString("\nWebsite text:\n" + content)

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", "create_message")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			System:    systemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
		})
	})
}

func (e *Enricher) save(ctx context.Context, companyID string, profile *model.EnrichedProfile) error {
	if err := e.store.UpdateCompanyEnrichment(ctx, companyID, profile, time.Now().UTC()); err != nil {
		return eris.Wrapf(err, "enrich: save profile for %s", companyID)
	}
	return nil
}

// ParseProfile extracts the JSON profile from a model response,
// tolerating markdown fences and surrounding prose.
func ParseProfile(text string) (*model.EnrichedProfile, error) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedEnrichment
	}
	text = text[start : end+1]

	var profile model.EnrichedProfile
	if err := json.Unmarshal([]byte(text), &profile); err != nil {
		return nil, ErrMalformedEnrichment
	}
	return &profile, nil
}
