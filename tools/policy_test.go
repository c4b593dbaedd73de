package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/notewright/config"
)

func TestNewPolicyRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultToolPolicy()
	cfg.AllowedDomains = nil
	_, err := NewPolicy(cfg)
	assert.Error(t, err)

	cfg = config.DefaultToolPolicy()
	cfg.FetchMaxBytes = 0
	_, err = NewPolicy(cfg)
	assert.Error(t, err)

	cfg = config.DefaultToolPolicy()
	cfg.NotesDir = " "
	_, err = NewPolicy(cfg)
	assert.Error(t, err)
}

func TestHostAllowed(t *testing.T) {
	exact := newTestPolicy(t, func(c *config.ToolPolicy) {
		c.AllowedDomains = []string{"example.com", "docs.rs"}
	})
	withSubdomains := newTestPolicy(t, func(c *config.ToolPolicy) {
		c.AllowedDomains = []string{"example.com", "docs.rs"}
		c.AllowSubdomains = true
	})

	tests := []struct {
		host      string
		exact     bool
		subdomain bool
	}{
		{"example.com", true, true},
		{"EXAMPLE.com.", true, true},
		{"www.example.com", false, true},
		{"a.b.docs.rs", false, true},
		{"badexample.com", false, false},
		{"example.com.evil.net", false, false},
		{"evil.example", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.exact, exact.HostAllowed(tt.host))
			assert.Equal(t, tt.subdomain, withSubdomains.HostAllowed(tt.host))
		})
	}
}

func TestCheckURL(t *testing.T) {
	p := newTestPolicy(t, nil)

	u, err := p.CheckURL("https://example.com/page?q=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Hostname())

	_, err = p.CheckURL("ftp://example.com/file")
	requireKind(t, err, PolicyBlocked)
	assert.Contains(t, err.Error(), "scheme `ftp`")

	_, err = p.CheckURL("http://evil.example/x")
	requireKind(t, err, PolicyBlocked)
	assert.Contains(t, err.Error(), "url host `evil.example` is not in allowlist")

	_, err = p.CheckURL("not a url")
	requireKind(t, err, InvalidArgs)

	_, err = p.CheckURL("http://%zz")
	requireKind(t, err, InvalidArgs)
}

func TestContentTypeAllowed(t *testing.T) {
	p := newTestPolicy(t, nil)

	mt, ok := p.ContentTypeAllowed("text/html; charset=utf-8")
	assert.True(t, ok)
	assert.Equal(t, "text/html", mt)

	_, ok = p.ContentTypeAllowed("Application/JSON")
	assert.True(t, ok)

	mt, ok = p.ContentTypeAllowed("image/png")
	assert.False(t, ok)
	assert.Equal(t, "image/png", mt)

	_, ok = p.ContentTypeAllowed("")
	assert.False(t, ok)
}

func TestNoteFileName(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Hello World!", "hello-world.md"},
		{"  --A_b--  ", "a_b.md"},
		{"Rust Notes 2024", "rust-notes-2024.md"},
		{"../../etc/passwd", "etc-passwd.md"},
		{"Ünïcode Title", "n-code-title.md"},
		{"???", ""},
		{"", ""},
		{strings.Repeat("ab", 60), strings.Repeat("ab", 40) + ".md"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, NoteFileName(tt.title))
		})
	}
}

func TestNotePathStaysInRoot(t *testing.T) {
	p := newTestPolicy(t, nil)

	path, err := p.NotePath("../../Escape Attempt")
	require.NoError(t, err)
	assert.Equal(t, p.NotesDir(), path[:len(p.NotesDir())])
	assert.True(t, strings.HasSuffix(path, "escape-attempt.md"))

	_, err = p.NotePath("!!!")
	requireKind(t, err, InvalidArgs)
}

func TestPolicyCheckSearchHasNoRules(t *testing.T) {
	p := newTestPolicy(t, nil)
	assert.NoError(t, p.Check(SearchNotesArgs{Query: "anything", Limit: 1}))
}
