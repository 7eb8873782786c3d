package enrich

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/dedupe"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

const goodProfile = `{"industry":"Plumbing","company_size":"11-50","services":["drain repair"],"pain_points":["seasonal demand"],"key_personnel":["Pat Owner"],"summary":"Local plumbing contractor."}`

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Model:   req.Model,
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.text}},
		Usage:   anthropic.TokenUsage{InputTokens: 500, OutputTokens: 200},
	}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestEnricher(t *testing.T, llm anthropic.Client) (*Enricher, store.Store, *cost.Tracker) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	costs := cost.NewTracker(cost.NewCalculator(cost.DefaultRates()))
	e := New(st, cache.New(st), llm, costs, Config{
		Model:         "claude-haiku-4-5-20251001",
		Concurrency:   2,
		BatchLimit:    10,
		MinContentLen: 100,
	})
	return e, st, costs
}

func seedScraped(t *testing.T, st store.Store, name, url, text string) *model.Company {
	t.Helper()
	ctx := context.Background()

	c, _, err := st.UpsertCompany(ctx, dedupe.Identity(name, "Austin, TX"), model.Company{
		Name:    name,
		Address: "Austin, TX",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.UpdateCompanyScrape(ctx, c.ID, "", &model.ScrapedContent{
		Text:      text,
		SourceURL: url,
		FetchedAt: now,
	}, now))
	return c
}

func longText(seed string) string {
	return strings.Repeat(seed+" ", 20)
}

func TestRun_EnrichesEligibleCompany(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{text: goodProfile}
	e, st, costs := newTestEnricher(t, llm)
	c := seedScraped(t, st, "Acme Plumbing", "https://acmeplumbing.com", longText("full service plumbing"))

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, llm.callCount())

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EnrichedData)
	assert.Equal(t, "Plumbing", got.EnrichedData.Industry)
	assert.Equal(t, []string{"drain repair"}, got.EnrichedData.Services)
	assert.NotNil(t, got.EnrichedAt)

	spend := costs.Snapshot()
	assert.Equal(t, 1, spend.ModelCalls)
	assert.Greater(t, spend.EnrichmentUSD, 0.0)
}

func TestRun_SharedWebsiteServedFromCache(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{text: goodProfile}
	e, st, _ := newTestEnricher(t, llm)

	// Same site, but the second company carries a later scrape whose
	// text has drifted. The profile is keyed by URL, so the drift must
	// not trigger a second paid call.
	seedScraped(t, st, "Branch One", "https://franchise.com", longText("spring promotion copy"))
	seedScraped(t, st, "Branch Two", "https://franchise.com", longText("summer promotion copy"))

	// Concurrency 1 so the second item sees the first item's cache write.
	e.cfg.Concurrency = 1

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, llm.callCount(), "same website must be served from cache")
}

func TestRun_SameContentDifferentSitesCallsModelTwice(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{text: goodProfile}
	e, st, _ := newTestEnricher(t, llm)

	text := longText("identical boilerplate copy across unrelated sites")
	seedScraped(t, st, "Alpha Co", "https://alpha.example", text)
	seedScraped(t, st, "Beta Co", "https://beta.example", text)

	e.cfg.Concurrency = 1

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, llm.callCount(), "distinct websites never share a cache entry")
}

func TestRun_MalformedResponseFailsItem(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{text: "I could not find any information."}
	e, st, _ := newTestEnricher(t, llm)
	c := seedScraped(t, st, "Opaque LLC", "https://opaque.example", longText("nothing useful here at all"))

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Reason, "malformed")

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.EnrichedData)
}

func TestRun_SecondRunHasNothingToDo(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{text: goodProfile}
	e, st, _ := newTestEnricher(t, llm)
	seedScraped(t, st, "Acme Plumbing", "https://acmeplumbing.com", longText("full service plumbing"))

	_, err := e.Run(ctx)
	require.NoError(t, err)

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed, "enriched companies are not re-selected")
	assert.Equal(t, 1, llm.callCount())
}

func TestRun_ShortContentNotSelected(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{text: goodProfile}
	e, st, _ := newTestEnricher(t, llm)
	seedScraped(t, st, "Thin Site Co", "https://thinsite.example", "too short")

	summary, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, llm.callCount())
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"bare json", goodProfile, false},
		{"json fence", "```json\n" + goodProfile + "\n```", false},
		{"plain fence", "```\n" + goodProfile + "\n```", false},
		{"surrounding prose", "Here is the profile:\n" + goodProfile + "\nLet me know!", false},
		{"no json", "no structured data found", true},
		{"broken json", `{"industry": "Plumbing",`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := ParseProfile(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedEnrichment)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Plumbing", profile.Industry)
		})
	}
}
