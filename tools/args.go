package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/richinex/notewright/internal/strictjson"
)

// Args is the parsed argument set of one tool call. The concrete type is
// one of SearchNotesArgs, FetchURLArgs or SaveNoteArgs.
type Args interface {
	ToolName() string
}

// SearchNotesArgs are the arguments of search_notes.
type SearchNotesArgs struct {
	Query string `json:"query"`
	Limit uint8  `json:"limit"`
}

// FetchURLArgs are the arguments of fetch_url.
type FetchURLArgs struct {
	URL string `json:"url"`
}

// SaveNoteArgs are the arguments of save_note.
type SaveNoteArgs struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (SearchNotesArgs) ToolName() string { return SearchNotesName }
func (FetchURLArgs) ToolName() string    { return FetchURLName }
func (SaveNoteArgs) ToolName() string    { return SaveNoteName }

// Wire shapes use pointers so a missing field can be told apart from a zero value.
type searchNotesWire struct {
	Query *string `json:"query"`
	Limit *uint8  `json:"limit"`
}

type fetchURLWire struct {
	URL *string `json:"url"`
}

type saveNoteWire struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

// ParseArgs strictly decodes raw into the argument type of the named tool.
// Field names must match exactly, case included, and appear once. Unknown
// fields, trailing data, missing fields, type mismatches and out-of-range
// values all fail with an InvalidArgs error.
func ParseArgs(name string, raw json.RawMessage) (Args, error) {
	switch name {
	case SearchNotesName:
		var w searchNotesWire
		if err := decodeStrict(raw, &w, "query", "limit"); err != nil {
			return nil, invalidArgs(name, err.Error())
		}
		if w.Query == nil {
			return nil, invalidArgs(name, "missing field `query`")
		}
		if w.Limit == nil {
			return nil, invalidArgs(name, "missing field `limit`")
		}
		if strings.TrimSpace(*w.Query) == "" {
			return nil, invalidArgs(name, "query must not be empty")
		}
		if *w.Limit == 0 {
			return nil, invalidArgs(name, "limit must be between 1 and 255")
		}
		return SearchNotesArgs{Query: *w.Query, Limit: *w.Limit}, nil

	case FetchURLName:
		var w fetchURLWire
		if err := decodeStrict(raw, &w, "url"); err != nil {
			return nil, invalidArgs(name, err.Error())
		}
		if w.URL == nil {
			return nil, invalidArgs(name, "missing field `url`")
		}
		if strings.TrimSpace(*w.URL) == "" {
			return nil, invalidArgs(name, "url must not be empty")
		}
		return FetchURLArgs{URL: strings.TrimSpace(*w.URL)}, nil

	case SaveNoteName:
		var w saveNoteWire
		if err := decodeStrict(raw, &w, "title", "body"); err != nil {
			return nil, invalidArgs(name, err.Error())
		}
		if w.Title == nil {
			return nil, invalidArgs(name, "missing field `title`")
		}
		if w.Body == nil {
			return nil, invalidArgs(name, "missing field `body`")
		}
		return SaveNoteArgs{Title: *w.Title, Body: *w.Body}, nil
	}
	return nil, unknownTool(name)
}

// decodeStrict decodes raw into v, accepting only the exact field names in
// fields, each at most once.
func decodeStrict(raw json.RawMessage, v any, fields ...string) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("arguments must be a JSON object")
	}
	if err := strictjson.CheckFields(raw, fields...); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid arguments: trailing data after JSON object")
	}
	return nil
}
