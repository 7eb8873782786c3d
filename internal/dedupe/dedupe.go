// Package dedupe computes stable business identities so the same
// company surfacing across directory pages, sources, or scrape runs
// collapses to one record.
package dedupe

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/outreach-cli/internal/cache"
)

var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Identity returns the dedupe key for a business: diacritics folded,
// lowercased, all non-alphanumerics removed, name and location joined.
// "Café Brûlée" in "Austin, TX" and "cafe brulee" in "austin tx" map to
// the same identity.
func Identity(name, location string) string {
	return normalize(name) + "|" + normalize(location)
}

func normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Checker answers "have we recorded this business recently" using the
// cache as a rolling index. The companies table stays authoritative;
// the index only short-circuits repeat work inside the dedupe window.
type Checker struct {
	cache *cache.Cache
}

func NewChecker(c *cache.Cache) *Checker {
	return &Checker{cache: c}
}

type indexEntry struct {
	CompanyID string `json:"company_id"`
}

// Lookup returns the company ID recorded for the identity within the
// dedupe window, or "" if unseen.
func (c *Checker) Lookup(ctx context.Context, identity string) string {
	var e indexEntry
	if !c.cache.GetJSON(ctx, cache.BusinessKey(identity), cache.CategoryBusiness, &e) {
		return ""
	}
	return e.CompanyID
}

// Remember records the identity against its company ID, restarting the
// dedupe window.
func (c *Checker) Remember(ctx context.Context, identity, companyID string) {
	c.cache.SetJSON(ctx, cache.BusinessKey(identity), cache.CategoryBusiness,
		indexEntry{CompanyID: companyID}, cache.BusinessTTL)
}
