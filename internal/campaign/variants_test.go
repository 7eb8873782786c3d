package campaign

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForCount_ClampsToLastVariant(t *testing.T) {
	v := DefaultVariants()
	last := v.Messages[len(v.Messages)-1]

	assert.Equal(t, v.Messages[0], v.ForCount(1))
	assert.Equal(t, last, v.ForCount(len(v.Messages)))
	assert.Equal(t, last, v.ForCount(len(v.Messages)+5))
	assert.Equal(t, v.Messages[0], v.ForCount(0))
}

func TestPrefixSubject_NeverCompounds(t *testing.T) {
	subject := "Quick question"

	s := PrefixSubject(subject, "Re:")
	assert.Equal(t, "Re: Quick question", s)

	s = PrefixSubject(s, "Re:")
	assert.Equal(t, "Re: Quick question", s)

	s = PrefixSubject(s, "Following up:")
	assert.Equal(t, "Following up: Quick question", s)

	s = PrefixSubject(s, "Final follow-up:")
	assert.Equal(t, "Final follow-up: Quick question", s)
}

func TestPrefixSubject_StripsStackedPrefixes(t *testing.T) {
	got := PrefixSubject("Re: Re: Following up: Quick question", "Re:")
	assert.Equal(t, "Re: Quick question", got)
}

func TestLoadVariants_MissingFileUsesDefaults(t *testing.T) {
	v, err := LoadVariants(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultVariants(), v)

	v, err = LoadVariants("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVariants(), v)
}

func TestLoadVariants_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "followups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`follow_ups:
  - prefix: "Re:"
    body: "Checking in with {{company_name}}."
  - prefix: "Final follow-up:"
    body: "Last note for {{company_name}}."
`), 0o644))

	v, err := LoadVariants(path)
	require.NoError(t, err)
	require.Len(t, v.Messages, 2)
	assert.Equal(t, "Re:", v.Messages[0].Prefix)
	assert.Contains(t, v.Messages[1].Body, "Last note")
}

func TestLoadVariants_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "followups.yaml")
	require.NoError(t, os.WriteFile(path, []byte("follow_ups: {not a list"), 0o644))

	_, err := LoadVariants(path)
	assert.Error(t, err)
}

func TestLoadVariants_EmptyListRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "followups.yaml")
	require.NoError(t, os.WriteFile(path, []byte("follow_ups: []\n"), 0o644))

	_, err := LoadVariants(path)
	assert.Error(t, err)
}
