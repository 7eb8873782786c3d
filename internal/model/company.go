package model

import "time"

// Company represents a business discovered through directory scraping.
// Companies are upserted by their dedupe identity (normalized name +
// location) and are never deleted outside bulk administrative action.
type Company struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Website  string  `json:"website,omitempty"`
	Email    string  `json:"email,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Address  string  `json:"address,omitempty"`
	Category string  `json:"category,omitempty"`
	Rating   float64 `json:"rating,omitempty"`

	ScrapedContent *ScrapedContent  `json:"scraped_content,omitempty"`
	EnrichedData   *EnrichedProfile `json:"enriched_data,omitempty"`

	ScrapedAt  *time.Time `json:"scraped_at,omitempty"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasScrapedContent reports whether the company has website content of at
// least minLen runes. Enrichment must never run on empty or trivial input.
func (c *Company) HasScrapedContent(minLen int) bool {
	return c.ScrapedContent != nil && len([]rune(c.ScrapedContent.Text)) >= minLen
}

// ScrapedContent is the raw extracted text from a company website plus
// fetch metadata.
type ScrapedContent struct {
	Text      string    `json:"text"`
	SourceURL string    `json:"source_url"`
	PageTitle string    `json:"page_title,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// EnrichedProfile is the structured company profile derived by the
// language model from scraped website content.
type EnrichedProfile struct {
	Industry     string   `json:"industry,omitempty"`
	CompanySize  string   `json:"company_size,omitempty"`
	Services     []string `json:"services,omitempty"`
	PainPoints   []string `json:"pain_points,omitempty"`
	KeyPersonnel []string `json:"key_personnel,omitempty"`
	Summary      string   `json:"summary,omitempty"`
}

// Listing is a single raw result from a business directory source. The
// source may return duplicates, partial records, or nothing at all.
type Listing struct {
	Name     string  `json:"name"`
	Address  string  `json:"address,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Website  string  `json:"website,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Category string  `json:"category,omitempty"`
	Source   string  `json:"source,omitempty"`
}

// CompanyFilter selects companies for campaign targeting.
type CompanyFilter struct {
	Category     string `json:"category,omitempty"`
	EnrichedOnly bool   `json:"enriched_only,omitempty"`
	Location     string `json:"location,omitempty"` // substring match on address
	MaxCount     int    `json:"max_count,omitempty"`
}
