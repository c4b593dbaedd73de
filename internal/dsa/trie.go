// Package dsa provides data structures used by the tool policy.
// Uses go-radix for compressed prefix tree (radix tree).
package dsa

import (
	"strings"

	"github.com/armon/go-radix"
)

// DomainTrie indexes domain names by their labels in reverse order so that
// suffix questions about hosts become prefix lookups in a radix tree.
//
//	example.com      → "com.example."
//	docs.example.com → "com.example.docs."
//
// The trailing separator keeps "example.com" from matching "badexample.com".
//
// Time Complexity: O(k) per lookup where k is host length.
type DomainTrie struct {
	tree *radix.Tree
}

// NewDomainTrie creates a trie holding the given domains.
func NewDomainTrie(domains ...string) *DomainTrie {
	t := &DomainTrie{tree: radix.New()}
	for _, d := range domains {
		t.Insert(d)
	}
	return t
}

// Insert adds a domain. Empty names are ignored.
func (t *DomainTrie) Insert(domain string) {
	key := reverseLabels(domain)
	if key == "" {
		return
	}
	t.tree.Insert(key, domain)
}

// Contains reports whether host is exactly one of the inserted domains.
func (t *DomainTrie) Contains(host string) bool {
	key := reverseLabels(host)
	if key == "" {
		return false
	}
	_, found := t.tree.Get(key)
	return found
}

// MatchSuffix returns the longest inserted domain that equals host or is a
// parent domain of it.
func (t *DomainTrie) MatchSuffix(host string) (string, bool) {
	key := reverseLabels(host)
	if key == "" {
		return "", false
	}
	_, val, found := t.tree.LongestPrefix(key)
	if !found {
		return "", false
	}
	domain, ok := val.(string)
	return domain, ok
}

// Len returns the number of domains in the trie.
func (t *DomainTrie) Len() int {
	return t.tree.Len()
}

// Domains returns the inserted domains ordered by their reversed labels.
func (t *DomainTrie) Domains() []string {
	var out []string
	t.tree.Walk(func(_ string, v interface{}) bool {
		if d, ok := v.(string); ok {
			out = append(out, d)
		}
		return false
	})
	return out
}

func reverseLabels(domain string) string {
	domain = strings.Trim(strings.ToLower(domain), ".")
	if domain == "" {
		return ""
	}
	labels := strings.Split(domain, ".")
	var b strings.Builder
	b.Grow(len(domain) + 1)
	for i := len(labels) - 1; i >= 0; i-- {
		b.WriteString(labels[i])
		b.WriteByte('.')
	}
	return b.String()
}
