package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		Serp: SerpRate{PerQuery: 0.003},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int
		output int
		want   float64
	}{
		{"haiku round numbers", "haiku", 1_000_000, 100_000, 0.80 + 0.40},
		{"sonnet round numbers", "sonnet", 1_000_000, 1_000_000, 3.00 + 15.00},
		{"zero usage", "haiku", 0, 0, 0},
		{"unknown model prices at zero", "gpt-9", 1_000_000, 1_000_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Claude(tt.model, tt.input, tt.output)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSerpQuery(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.InDelta(t, 0.003, calc.SerpQuery(), 1e-9)
}

func TestTracker_Accumulates(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(NewCalculator(testRates()))

	tracker.RecordClaude("haiku", 1_000_000, 100_000)
	tracker.RecordClaude("haiku", 500_000, 50_000)
	tracker.RecordSearch()
	tracker.RecordSearch()

	s := tracker.Snapshot()
	assert.InDelta(t, 1.20+0.60, s.EnrichmentUSD, 1e-9)
	assert.InDelta(t, 0.006, s.SearchUSD, 1e-9)
	assert.InDelta(t, s.EnrichmentUSD+s.SearchUSD, s.TotalUSD, 1e-9)
	assert.Equal(t, 1_500_000, s.InputTokens)
	assert.Equal(t, 150_000, s.OutputTokens)
	assert.Equal(t, 2, s.ModelCalls)
	assert.Equal(t, 2, s.SearchQueries)
}

func TestTracker_ConcurrentRecording(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(NewCalculator(testRates()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.RecordClaude("haiku", 1000, 100)
			tracker.RecordSearch()
		}()
	}
	wg.Wait()

	s := tracker.Snapshot()
	assert.Equal(t, 50, s.ModelCalls)
	assert.Equal(t, 50, s.SearchQueries)
	assert.Equal(t, 50_000, s.InputTokens)
}

func TestDefaultRates_HaveAnthropicModels(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.NotEmpty(t, rates.Anthropic)
	assert.Positive(t, rates.Serp.PerQuery)
}
