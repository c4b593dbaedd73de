// save_note tool.
//
// Information Hiding:
// - Filename normalization delegated to Policy
// - Create-exclusive vs replace-by-rename write strategy hidden
// - Content checksum computation hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// SaveNoteTool writes a markdown note under the notes root.
type SaveNoteTool struct {
	policy *Policy
}

// NewSaveNoteTool creates a save tool bound to policy.
func NewSaveNoteTool(policy *Policy) *SaveNoteTool {
	return &SaveNoteTool{policy: policy}
}

// Metadata returns the tool metadata.
func (t *SaveNoteTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        SaveNoteName,
		Description: "Save a markdown note. The title becomes a safe lowercase filename ending in .md. Existing notes are not overwritten unless enabled by configuration.",
		Parameters: []ToolParameter{
			{Name: "title", ParamType: "string", Description: "Note title, used to derive the filename", Required: true},
			{Name: "body", ParamType: "string", Description: "Markdown content of the note", Required: true},
		},
	}
}

type saveNoteOutput struct {
	Title       string `json:"title"`
	File        string `json:"file"`
	Bytes       int    `json:"bytes"`
	Checksum    string `json:"checksum"`
	Overwritten bool   `json:"overwritten"`
}

// Execute writes the note.
func (t *SaveNoteTool) Execute(ctx context.Context, args Args) (json.RawMessage, error) {
	a, ok := args.(SaveNoteArgs)
	if !ok {
		return nil, fmt.Errorf("save_note: unexpected args %T", args)
	}

	path, err := t.policy.NotePath(a.Title)
	if err != nil {
		return nil, err
	}
	existed, err := t.policy.CheckNoteTarget(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.policy.NotesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create notes directory: %w", err)
	}

	if !existed {
		err = createExclusive(path, a.Body)
		if errors.Is(err, fs.ErrExist) {
			// Lost a race with another writer; re-apply the policy to the new file.
			if existed, err = t.policy.CheckNoteTarget(path); err != nil {
				return nil, err
			}
			err = replaceFile(path, a.Body)
		}
	} else {
		err = replaceFile(path, a.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("write note: %w", err)
	}

	return json.Marshal(saveNoteOutput{
		Title:       a.Title,
		File:        filepath.Base(path),
		Bytes:       len(a.Body),
		Checksum:    fmt.Sprintf("%016x", xxhash.Sum64String(a.Body)),
		Overwritten: existed,
	})
}

func createExclusive(path, body string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// replaceFile writes body to a sibling temp file and renames it over path,
// so readers never observe a partially written note.
func replaceFile(path, body string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".note-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
