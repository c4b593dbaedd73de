// search_notes tool.
//
// Information Hiding:
// - Directory traversal and file filtering hidden
// - Scoring and ordering rules hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxNoteFileBytes = 1024 * 1024
	snippetRadius    = 60
)

// SearchNotesTool ranks local notes by how often they mention a query.
type SearchNotesTool struct {
	root string
}

// NewSearchNotesTool creates a search tool over the notes root.
func NewSearchNotesTool(root string) *SearchNotesTool {
	return &SearchNotesTool{root: root}
}

// Metadata returns the tool metadata.
func (t *SearchNotesTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        SearchNotesName,
		Description: "Search local markdown and text notes for a query. Returns matching files ranked by number of case-insensitive occurrences.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "Text to search for", Required: true},
			{Name: "limit", ParamType: "integer", Description: "Maximum number of results (1-255)", Required: true, Minimum: intPtr(1), Maximum: intPtr(255)},
		},
	}
}

// NoteMatch is one ranked search hit.
type NoteMatch struct {
	File    string `json:"file"`
	Score   int    `json:"score"`
	Snippet string `json:"snippet"`
}

type searchNotesOutput struct {
	Query   string      `json:"query"`
	Limit   uint8       `json:"limit"`
	Results []NoteMatch `json:"results"`
}

// Execute runs the search.
func (t *SearchNotesTool) Execute(ctx context.Context, args Args) (json.RawMessage, error) {
	a, ok := args.(SearchNotesArgs)
	if !ok {
		return nil, fmt.Errorf("search_notes: unexpected args %T", args)
	}
	results, err := SearchNotes(ctx, t.root, a.Query, int(a.Limit))
	if err != nil {
		return nil, err
	}
	return json.Marshal(searchNotesOutput{Query: a.Query, Limit: a.Limit, Results: results})
}

// SearchNotes scores every regular .md and .txt file under root by the
// number of case-insensitive occurrences of query, drops files with no
// match and returns at most limit results ordered by score descending,
// then filename ascending. A missing root yields no results.
func SearchNotes(ctx context.Context, root, query string, limit int) ([]NoteMatch, error) {
	results := []NoteMatch{}
	needle := strings.ToLower(query)
	if needle == "" || limit <= 0 {
		return results, nil
	}

	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return results, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat notes root: %w", err)
	}
	if !info.IsDir() {
		return results, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return nil
		}
		if !d.Type().IsRegular() || !isNoteFile(d.Name()) {
			return nil
		}

		content, err := readCapped(path, maxNoteFileBytes)
		if err != nil {
			return nil
		}
		lower := strings.ToLower(content)
		score := strings.Count(lower, needle)
		if score == 0 {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		results = append(results, NoteMatch{
			File:    filepath.ToSlash(rel),
			Score:   score,
			Snippet: snippet(content, lower, needle),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk notes: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].File < results[j].File
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func isNoteFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".txt"
}

func readCapped(path string, max int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, max))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// snippet returns a single-line excerpt around the first match. lower must
// be strings.ToLower(content).
func snippet(content, lower, needle string) string {
	idx := strings.Index(lower, needle)
	if idx < 0 || len(lower) != len(content) {
		// Lowercasing changed byte offsets; fall back to the file head.
		idx = 0
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}
	return strings.Join(strings.Fields(content[start:end]), " ")
}
