package model

import "fmt"

// maxFailureReasons bounds the per-item failure list carried in a batch
// summary so a large failing batch cannot balloon the response.
const maxFailureReasons = 25

// ItemFailure records why a single item in a batch failed.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// Summary is the structured result of a batch operation. Batch operations
// report partial failure through the summary instead of returning an
// error; only fatal configuration problems abort a batch.
type Summary struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped,omitempty"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// RecordSuccess counts one successfully processed item.
func (s *Summary) RecordSuccess() {
	s.Processed++
	s.Succeeded++
}

// RecordSkip counts one item that was intentionally not processed.
func (s *Summary) RecordSkip() {
	s.Processed++
	s.Skipped++
}

// RecordFailure counts one failed item and retains its reason, up to the
// bounded list size.
func (s *Summary) RecordFailure(itemID string, err error) {
	s.Processed++
	s.Failed++
	if len(s.Failures) < maxFailureReasons {
		s.Failures = append(s.Failures, ItemFailure{ItemID: itemID, Reason: err.Error()})
	}
}

// String renders a one-line human-readable summary.
func (s *Summary) String() string {
	return fmt.Sprintf("processed=%d succeeded=%d failed=%d skipped=%d",
		s.Processed, s.Succeeded, s.Failed, s.Skipped)
}
