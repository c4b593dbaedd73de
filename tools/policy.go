// Tool policy.
//
// Information Hiding:
// - Allowlist representation (exact set or reversed-label trie) hidden
// - Note filename normalization and containment rules hidden
// - Content type matching hidden

package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/richinex/notewright/config"
	"github.com/richinex/notewright/internal/dsa"
)

const maxNoteStemBytes = 80

// Policy evaluates per-tool side-effect rules. It is immutable after
// construction and safe for concurrent use.
type Policy struct {
	hosts           *dsa.DomainTrie
	allowSubdomains bool
	contentTypes    map[string]struct{}
	maxBytes        int64
	followRedirects bool
	maxRedirects    int
	notesDir        string
	allowOverwrite  bool
}

// NewPolicy builds a policy from configuration.
func NewPolicy(cfg config.ToolPolicy) (*Policy, error) {
	if len(cfg.AllowedDomains) == 0 {
		return nil, errors.New("fetch_url allowlist must not be empty")
	}
	if cfg.FetchMaxBytes <= 0 {
		return nil, errors.New("fetch_url byte cap must be greater than 0")
	}
	if strings.TrimSpace(cfg.NotesDir) == "" {
		return nil, errors.New("notes directory must be set")
	}
	notesDir, err := filepath.Abs(cfg.NotesDir)
	if err != nil {
		return nil, fmt.Errorf("resolve notes directory: %w", err)
	}

	types := cfg.FetchContentTypes
	if len(types) == 0 {
		types = config.DefaultContentTypes
	}
	contentTypes := make(map[string]struct{}, len(types))
	for _, t := range types {
		contentTypes[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	return &Policy{
		hosts:           dsa.NewDomainTrie(cfg.AllowedDomains...),
		allowSubdomains: cfg.AllowSubdomains,
		contentTypes:    contentTypes,
		maxBytes:        cfg.FetchMaxBytes,
		followRedirects: cfg.FollowRedirects,
		maxRedirects:    cfg.MaxRedirects,
		notesDir:        notesDir,
		allowOverwrite:  cfg.AllowOverwrite,
	}, nil
}

// NotesDir returns the absolute notes root.
func (p *Policy) NotesDir() string { return p.notesDir }

// Check applies the policy rules for args. search_notes has none.
func (p *Policy) Check(args Args) error {
	switch a := args.(type) {
	case FetchURLArgs:
		_, err := p.CheckURL(a.URL)
		return err
	case SaveNoteArgs:
		path, err := p.NotePath(a.Title)
		if err != nil {
			return err
		}
		_, err = p.CheckNoteTarget(path)
		return err
	}
	return nil
}

// CheckURL parses raw and verifies its scheme and host. A URL that cannot
// be parsed or has no host is InvalidArgs. A disallowed scheme or host is
// PolicyBlocked.
func (p *Policy) CheckURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalidArgs(FetchURLName, fmt.Sprintf("invalid url `%s`: %v", raw, err))
	}
	host := u.Hostname()
	if host == "" {
		return nil, invalidArgs(FetchURLName, fmt.Sprintf("url `%s` must include a host", raw))
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, policyBlocked(FetchURLName, fmt.Sprintf("url scheme `%s` is not allowed", u.Scheme))
	}
	if !p.HostAllowed(host) {
		return nil, policyBlocked(FetchURLName, fmt.Sprintf("url host `%s` is not in allowlist", strings.ToLower(host)))
	}
	return u, nil
}

// HostAllowed reports whether host passes the allowlist. Only exact
// members pass unless subdomain matching was enabled.
func (p *Policy) HostAllowed(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if p.allowSubdomains {
		_, ok := p.hosts.MatchSuffix(host)
		return ok
	}
	return p.hosts.Contains(host)
}

// ContentTypeAllowed parses a Content-Type header value and reports the
// media type and whether it is accepted.
func (p *Policy) ContentTypeAllowed(header string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType == "" {
		return "", false
	}
	_, ok := p.contentTypes[mediaType]
	return mediaType, ok
}

// NoteFileName normalizes a title into a safe markdown filename. Lowercase
// ASCII letters, digits, '-' and '_' are kept; every other run of
// characters collapses to a single '-'. It returns "" when nothing usable
// is left.
func NoteFileName(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	stem := strings.Trim(b.String(), "-")
	if len(stem) > maxNoteStemBytes {
		stem = strings.TrimRight(stem[:maxNoteStemBytes], "-")
	}
	if stem == "" {
		return ""
	}
	return stem + ".md"
}

// NotePath resolves the on-disk path for a note title and verifies it
// stays inside the notes root.
func (p *Policy) NotePath(title string) (string, error) {
	name := NoteFileName(title)
	if name == "" {
		return "", invalidArgs(SaveNoteName, "title is empty after normalization")
	}
	path := filepath.Join(p.notesDir, name)
	rel, err := filepath.Rel(p.notesDir, path)
	if err != nil || rel != name || strings.HasPrefix(rel, "..") {
		return "", policyBlocked(SaveNoteName, fmt.Sprintf("note path `%s` escapes the notes directory", name))
	}
	return path, nil
}

// CheckNoteTarget inspects an existing file at path. It reports whether a
// regular file already exists there.
func (p *Policy) CheckNoteTarget(path string) (bool, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, executionFailure(SaveNoteName, fmt.Errorf("inspect %s: %w", filepath.Base(path), err))
	}
	name := filepath.Base(path)
	if info.Mode()&fs.ModeSymlink != 0 {
		return true, policyBlocked(SaveNoteName, fmt.Sprintf("note `%s` is a symlink", name))
	}
	if !info.Mode().IsRegular() {
		return true, policyBlocked(SaveNoteName, fmt.Sprintf("note `%s` is not a regular file", name))
	}
	if !p.allowOverwrite {
		return true, policyBlocked(SaveNoteName, fmt.Sprintf("note `%s` already exists and overwrite is disabled", name))
	}
	return true, nil
}
