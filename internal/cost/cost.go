// Package cost tracks API spend for a pipeline run. Enrichment is the
// dominant cost; directory search is a flat per-query charge.
package cost

import "sync"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Serp      SerpRate             `yaml:"serp" mapstructure:"serp"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// SerpRate holds directory search API pricing.
type SerpRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Serp: SerpRate{PerQuery: 0.003},
	}
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one model call. Unknown models price at
// zero rather than failing the pipeline.
func (c *Calculator) Claude(model string, inputTokens, outputTokens int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// SerpQuery returns the flat cost per directory search query.
func (c *Calculator) SerpQuery() float64 {
	return c.rates.Serp.PerQuery
}

// Tracker accumulates spend across one run. Safe for concurrent use by
// worker goroutines.
type Tracker struct {
	mu sync.Mutex

	calc *Calculator

	enrichmentUSD float64
	searchUSD     float64
	inputTokens   int
	outputTokens  int
	modelCalls    int
	searchQueries int
}

func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc}
}

// RecordClaude adds one model call's usage.
func (t *Tracker) RecordClaude(model string, inputTokens, outputTokens int) {
	usd := t.calc.Claude(model, inputTokens, outputTokens)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enrichmentUSD += usd
	t.inputTokens += inputTokens
	t.outputTokens += outputTokens
	t.modelCalls++
}

// RecordSearch adds one directory search query.
func (t *Tracker) RecordSearch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.searchUSD += t.calc.SerpQuery()
	t.searchQueries++
}

// Summary is a point-in-time snapshot of accumulated spend.
type Summary struct {
	EnrichmentUSD float64
	SearchUSD     float64
	TotalUSD      float64
	InputTokens   int
	OutputTokens  int
	ModelCalls    int
	SearchQueries int
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		EnrichmentUSD: t.enrichmentUSD,
		SearchUSD:     t.searchUSD,
		TotalUSD:      t.enrichmentUSD + t.searchUSD,
		InputTokens:   t.inputTokens,
		OutputTokens:  t.outputTokens,
		ModelCalls:    t.modelCalls,
		SearchQueries: t.searchQueries,
	}
}
