package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_MailtoWins(t *testing.T) {
	html := `<html><head><title>Acme Plumbing</title></head><body>
		<p>Reach us at info@acme-text.com</p>
		<a href="mailto:owner@acme.com?subject=hi">Email us</a>
	</body></html>`

	ext, err := Extract(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "owner@acme.com", ext.Email)
	assert.Equal(t, "Acme Plumbing", ext.Title)
}

func TestExtract_FallsBackToBodyText(t *testing.T) {
	html := `<html><body><p>Contact: Sales@Acme.COM for quotes.</p></body></html>`

	ext, err := Extract(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.com", ext.Email)
}

func TestExtract_SkipsJunkAddresses(t *testing.T) {
	html := `<html><body>
		<a href="mailto:noreply@acme.com">automated</a>
		<img src="logo@2x.png">
		<p>Write to hello@acme.com today. Not to noreply@acme.com.</p>
	</body></html>`

	ext, err := Extract(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "hello@acme.com", ext.Email)
}

func TestExtract_NoEmail(t *testing.T) {
	html := `<html><body><p>Call us instead.</p></body></html>`

	ext, err := Extract(strings.NewReader(html))
	require.NoError(t, err)
	assert.Empty(t, ext.Email)
	assert.Equal(t, "Call us instead.", ext.Text)
}

func TestExtract_StripsScriptsAndCollapsesWhitespace(t *testing.T) {
	html := `<html><body>
		<script>var secret = "code@nowhere.io";</script>
		<style>.x { color: red }</style>
		<h1>Acme</h1>
		<p>Plumbing   and
		heating.</p>
	</body></html>`

	ext, err := Extract(strings.NewReader(html))
	require.NoError(t, err)
	assert.Empty(t, ext.Email)
	assert.Equal(t, "Acme Plumbing and heating.", ext.Text)
}
