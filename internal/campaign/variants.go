package campaign

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MaxFollowUps is the system-wide follow-up ceiling. Applied uniformly
// by the scheduler, the aging sweep, and the store guard.
const MaxFollowUps = 6

// Variant is one follow-up message template. Prefix is prepended to the
// thread subject; Body is a template rendered with the company values.
type Variant struct {
	Prefix string `yaml:"prefix"`
	Body   string `yaml:"body"`
}

// Variants is the ordered escalating list of follow-up messages. The
// variant for follow-up n is Messages[n-1]; past the end the last one
// is reused.
type Variants struct {
	Messages []Variant `yaml:"follow_ups"`
}

// DefaultVariants returns the compiled-in follow-up sequence.
func DefaultVariants() Variants {
	return Variants{Messages: []Variant{
		{
			Prefix: "Re:",
			Body: "Hi {{contact_name}},\n\nJust circling back on my note below in case it got buried. " +
				"Would love to hear how {{company_name}} is handling {{company_services}} these days.\n\nBest,",
		},
		{
			Prefix: "Re:",
			Body: "Hi {{contact_name}},\n\nI know things get busy in {{company_industry}}. " +
				"If now is a bad time, happy to reconnect next quarter. Otherwise, a quick reply either way would be appreciated.\n\nBest,",
		},
		{
			Prefix: "Following up:",
			Body: "Hi {{contact_name}},\n\nFollowing up one more time. If this is not a priority for " +
				"{{company_name}} right now, no problem at all.\n\nBest,",
		},
		{
			Prefix: "Final follow-up:",
			Body: "Hi {{contact_name}},\n\nThis will be my last note. If anything changes around " +
				"{{company_services}}, my door is always open.\n\nBest,",
		},
	}}
}

// LoadVariants reads a follow-up variants file. An empty path or a
// missing file falls back to the compiled defaults; a present but
// unparseable file is an error.
func LoadVariants(path string) (Variants, error) {
	if path == "" {
		return DefaultVariants(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultVariants(), nil
		}
		return Variants{}, eris.Wrapf(err, "campaign: read variants %s", path)
	}

	var v Variants
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Variants{}, eris.Wrapf(err, "campaign: parse variants %s", path)
	}
	if len(v.Messages) == 0 {
		return Variants{}, eris.Errorf("campaign: variants file %s has no follow_ups", path)
	}
	return v, nil
}

// ForCount returns the variant for the nth follow-up (1-based). Indexes
// past the end reuse the last variant.
func (v Variants) ForCount(n int) Variant {
	if len(v.Messages) == 0 {
		return Variant{Prefix: "Re:"}
	}
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(v.Messages) {
		idx = len(v.Messages) - 1
	}
	return v.Messages[idx]
}

// prefixFamily lists every subject prefix the scheduler may apply.
// PrefixSubject strips these before applying a new one so subjects
// never compound ("Re: Re: ...").
var prefixFamily = []string{"Re:", "Following up:", "Final follow-up:"}

// PrefixSubject applies a follow-up prefix to a subject, replacing any
// existing prefix from the same family.
func PrefixSubject(subject, prefix string) string {
	base := strings.TrimSpace(subject)
	for stripped := true; stripped; {
		stripped = false
		for _, p := range prefixFamily {
			if strings.HasPrefix(base, p) {
				base = strings.TrimSpace(strings.TrimPrefix(base, p))
				stripped = true
			}
		}
	}
	if prefix == "" {
		return base
	}
	return prefix + " " + base
}
