package scrape

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// junk addresses that show up in page templates but never reach a human.
var ignoredEmailPrefixes = []string{
	"noreply@", "no-reply@", "donotreply@",
	"example@", "user@", "email@", "name@",
}

// Extraction holds what the extractor pulled from one page.
type Extraction struct {
	Email string
	Text  string
	Title string
}

// Extract parses an HTML document and pulls the page title, the visible
// text, and the best contact email. mailto: links win over addresses
// found in body text.
func Extract(body io.Reader) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}

	doc.Find("script, style, noscript, svg, iframe").Remove()

	ext := &Extraction{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  collapseWhitespace(doc.Find("body").Text()),
	}

	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.ToLower(strings.TrimSpace(addr))
		if usableEmail(addr) {
			ext.Email = addr
			return false
		}
		return true
	})

	if ext.Email == "" {
		for _, match := range emailPattern.FindAllString(ext.Text, 10) {
			addr := strings.ToLower(match)
			if usableEmail(addr) {
				ext.Email = addr
				break
			}
		}
	}

	return ext, nil
}

func usableEmail(addr string) bool {
	if !emailPattern.MatchString(addr) {
		return false
	}
	for _, prefix := range ignoredEmailPrefixes {
		if strings.HasPrefix(addr, prefix) {
			return false
		}
	}
	// Image filenames pattern-match the email regex (logo@2x.png).
	for _, suffix := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"} {
		if strings.HasSuffix(addr, suffix) {
			return false
		}
	}
	return true
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
