package campaign

import (
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Neutral fallbacks used when a company field is absent, so a template
// never renders an empty hole.
const (
	fallbackCompany  = "your company"
	fallbackContact  = "there"
	fallbackIndustry = "your industry"
	fallbackServices = "your services"
)

// Values holds the substitution fields available to outreach templates.
type Values struct {
	CompanyName string
	Industry    string
	Services    string
	ContactName string
}

// ValuesFor derives template values from a company record, preferring
// enriched profile fields and falling back to neutral phrasing.
func ValuesFor(c *model.Company) Values {
	v := Values{
		CompanyName: fallbackCompany,
		Industry:    fallbackIndustry,
		Services:    fallbackServices,
		ContactName: fallbackContact,
	}
	if c == nil {
		return v
	}
	if c.Name != "" {
		v.CompanyName = c.Name
	}
	if p := c.EnrichedData; p != nil {
		if p.Industry != "" {
			v.Industry = p.Industry
		}
		if len(p.Services) > 0 {
			v.Services = strings.Join(p.Services, ", ")
		}
		if len(p.KeyPersonnel) > 0 {
			v.ContactName = p.KeyPersonnel[0]
		}
	}
	return v
}

// Render substitutes {{placeholder}} tokens in a template. Unknown
// tokens are left in place so a typo is visible rather than silently
// dropped.
func Render(text string, v Values) string {
	r := strings.NewReplacer(
		"{{company_name}}", v.CompanyName,
		"{{company_industry}}", v.Industry,
		"{{company_services}}", v.Services,
		"{{contact_name}}", v.ContactName,
	)
	return r.Replace(text)
}
