package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/notewright/answerformat"
	"github.com/richinex/notewright/config"
	"github.com/richinex/notewright/fault"
	"github.com/richinex/notewright/llm"
	"github.com/richinex/notewright/logging"
	"github.com/richinex/notewright/storage"
	"github.com/richinex/notewright/tools"
)

// scriptedModel answers each call with the next scripted completion.
type scriptedModel struct {
	mu        sync.Mutex
	script    []llm.Completion
	errs      map[int]error
	histories [][]llm.ChatMessage
}

func (m *scriptedModel) Complete(_ context.Context, history []llm.ChatMessage, _ []llm.ToolDefinition) (llm.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.histories)
	m.histories = append(m.histories, append([]llm.ChatMessage(nil), history...))
	if err, ok := m.errs[n]; ok {
		return llm.Completion{}, err
	}
	if n >= len(m.script) {
		return llm.Completion{}, errors.New("script exhausted")
	}
	return m.script[n], nil
}

func text(s string) llm.Completion {
	return llm.Completion{Kind: llm.FinalText, Text: s}
}

func toolCall(id, name, args string) llm.Completion {
	return llm.Completion{Kind: llm.ToolCalls, ToolCalls: []llm.ToolCall{
		{ID: id, Name: name, Arguments: json.RawMessage(args)},
	}}
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	policy := config.DefaultToolPolicy()
	policy.NotesDir = t.TempDir()
	return config.Settings{
		Limits:      config.DefaultLimits(),
		Tools:       policy,
		JournalPath: filepath.Join(t.TempDir(), "journal.db"),
	}
}

func newTestApp(t *testing.T, settings config.Settings, model *scriptedModel) *App {
	t.Helper()
	app, err := NewAppWithModel(settings, model, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestChatPrintsAnswerAndJournals(t *testing.T) {
	settings := testSettings(t)
	require.NoError(t, os.WriteFile(filepath.Join(settings.Tools.NotesDir, "ideas.md"), []byte("retry with backoff\n"), 0o644))

	model := &scriptedModel{script: []llm.Completion{
		toolCall("c1", tools.SearchNotesName, `{"query":"retry","limit":5}`),
		text("Found one note about retries."),
	}}
	app := newTestApp(t, settings, model)

	var out bytes.Buffer
	err := Chat(context.Background(), app.Runner(TransportCLI), "what about retry?", ChatOptions{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Found one note about retries.\n", out.String())

	records, err := app.Journal.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TransportCLI, records[0].Transport)
	assert.Equal(t, storage.StatusSuccess, records[0].Status)
	assert.Equal(t, []string{tools.SearchNotesName}, records[0].ToolsUsed)
}

func TestChatJSON(t *testing.T) {
	model := &scriptedModel{script: []llm.Completion{text(`{"ok":true}`)}}
	app := newTestApp(t, testSettings(t), model)

	var out bytes.Buffer
	opts := ChatOptions{JSON: true, Format: answerformat.JSONObject}
	require.NoError(t, Chat(context.Background(), app.Runner(TransportCLI), "json please", opts, &out))

	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, `{"ok":true}`, body["final_text"])
	assert.NotEmpty(t, body["turn_id"])
	assert.Contains(t, body, "trace")
	assert.Contains(t, body, "tool_calls")
	assert.NotContains(t, body, "History")
}

func TestChatFailureIsReturnedAndJournaled(t *testing.T) {
	model := &scriptedModel{script: []llm.Completion{
		toolCall("c1", tools.FetchURLName, `{"url":"https://evil.example/"}`),
	}}
	app := newTestApp(t, testSettings(t), model)

	var out bytes.Buffer
	err := Chat(context.Background(), app.Runner(TransportCLI), "fetch evil", ChatOptions{}, &out)
	require.Error(t, err)
	assert.Equal(t, fault.Policy, fault.CategoryOf(err))
	assert.Equal(t, 3, ExitCode(err))
	assert.Empty(t, out.String())

	records, err := app.Journal.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storage.StatusFailure, records[0].Status)
	assert.Equal(t, "policy", records[0].Category)
}

func TestPrintError(t *testing.T) {
	err := fault.Validationf("input is empty")

	var buf bytes.Buffer
	PrintError(&buf, err, false)
	assert.Equal(t, "error [validation]: input is empty\n", buf.String())

	buf.Reset()
	PrintError(&buf, err, true)
	assert.JSONEq(t, `{"error":{"category":"validation","reason":"input is empty"}}`, buf.String())

	buf.Reset()
	PrintError(&buf, fmt.Errorf("load config: %w", errors.New("bad")), false)
	assert.Equal(t, "error [internal]: load config: bad\n", buf.String())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(fault.Validationf("x")))
	assert.Equal(t, 3, ExitCode(fault.Policyf("x")))
	assert.Equal(t, 4, ExitCode(fault.Upstreamf("x")))
	assert.Equal(t, 1, ExitCode(errors.New("x")))
}

func TestREPLCarriesHistoryAndResets(t *testing.T) {
	model := &scriptedModel{
		script: []llm.Completion{text("one"), text("two"), {}, text("three")},
		errs:   map[int]error{2: fault.Upstreamf("model call failed: status 503")},
	}
	app := newTestApp(t, testSettings(t), model)

	in := strings.NewReader("first\nsecond\n\nthird\n/reset\nfourth\nexit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, REPL(context.Background(), app.Runner(TransportREPL), in, &out, false))

	require.Len(t, model.histories, 4)
	assert.Len(t, model.histories[0], 2, "system + user")
	assert.Len(t, model.histories[1], 4, "previous exchange carried over")
	assert.Len(t, model.histories[2], 6)
	assert.Len(t, model.histories[3], 2, "history cleared by /reset")

	s := out.String()
	assert.Contains(t, s, "one")
	assert.Contains(t, s, "two")
	assert.Contains(t, s, "error [upstream]: model call failed: status 503")
	assert.Contains(t, s, "history cleared")
	assert.Contains(t, s, "three")
}

func TestREPLEndsOnEOF(t *testing.T) {
	app := newTestApp(t, testSettings(t), &scriptedModel{})
	var out bytes.Buffer
	require.NoError(t, REPL(context.Background(), app.Runner(TransportREPL), strings.NewReader(""), &out, false))
}

func TestEvalRunsSuiteInScratchNotesDir(t *testing.T) {
	casesPath := filepath.Join(t.TempDir(), "cases.yaml")
	require.NoError(t, os.WriteFile(casesPath, []byte(`
target_pass_rate: 1.0
cases:
  - id: save
    prompt: Save a note titled Eval Note.
    required_tools: [save_note]
    answer_must_contain: [saved]
  - id: greet
    prompt: Say hello.
    answer_must_contain: [hello]
`), 0o644))

	model := &scriptedModel{script: []llm.Completion{
		toolCall("c1", tools.SaveNoteName, `{"title":"Eval Note","body":"hi"}`),
		text("Note saved."),
		text("Hello!"),
	}}

	var notesDir string
	build := func(s config.Settings) (*App, error) {
		notesDir = s.Tools.NotesDir
		return NewAppWithModel(s, model, logging.Discard())
	}

	var out bytes.Buffer
	err := Eval(context.Background(), testSettings(t), casesPath, build, &out)
	require.NoError(t, err, out.String())

	assert.Contains(t, out.String(), "[PASS] save")
	assert.Contains(t, out.String(), "[PASS] greet")
	assert.Contains(t, out.String(), "Summary: 2 passed, 0 failed, pass rate 100.0% (target 100.0%)")

	require.NotEmpty(t, notesDir)
	_, statErr := os.Stat(notesDir)
	assert.True(t, os.IsNotExist(statErr), "scratch notes dir must be removed")
}

func TestEvalFailsBelowTarget(t *testing.T) {
	casesPath := filepath.Join(t.TempDir(), "cases.yaml")
	require.NoError(t, os.WriteFile(casesPath, []byte("cases: [{id: a, prompt: hi, answer_must_contain: [bye]}]\n"), 0o644))

	model := &scriptedModel{script: []llm.Completion{text("hello")}}
	build := func(s config.Settings) (*App, error) {
		return NewAppWithModel(s, model, logging.Discard())
	}

	var out bytes.Buffer
	err := Eval(context.Background(), testSettings(t), casesPath, build, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below target")
	assert.Contains(t, out.String(), "[FAIL] a")
}

func TestListTools(t *testing.T) {
	policy, err := tools.NewPolicy(config.DefaultToolPolicy())
	require.NoError(t, err)
	registry, err := tools.NewDefaultRegistry(policy, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	ListTools(&out, registry, true)
	s := out.String()

	search := strings.Index(s, "  search_notes\n")
	fetch := strings.Index(s, "  fetch_url\n")
	save := strings.Index(s, "  save_note\n")
	require.True(t, search >= 0 && fetch >= 0 && save >= 0, s)
	assert.Less(t, search, fetch)
	assert.Less(t, fetch, save)
	assert.Contains(t, s, "query*: string")
}

func TestHistory(t *testing.T) {
	err := History(context.Background(), nil, 10, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CategoryOf(err))

	journal, err := storage.NewJournalInMemory()
	require.NoError(t, err)
	defer journal.Close()

	var out bytes.Buffer
	require.NoError(t, History(context.Background(), journal, 10, &out))
	assert.Equal(t, "no turns recorded\n", out.String())

	require.NoError(t, journal.Record(context.Background(), storage.TurnRecord{
		TurnID: "turn-1", Transport: "cli", Status: storage.StatusFailure,
		Category: "policy", Reason: "url host `evil.example` is not in allowlist",
		ToolsUsed: []string{}, CreatedAt: time.Now(),
	}))
	out.Reset()
	require.NoError(t, History(context.Background(), journal, 10, &out))
	assert.Contains(t, out.String(), "failure [policy]")
	assert.Contains(t, out.String(), "turn-1")
	assert.Contains(t, out.String(), "evil.example")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	model := &scriptedModel{script: []llm.Completion{text("hi")}}
	app := newTestApp(t, testSettings(t), model)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveListener(ctx, app, ln, "test") }()

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()
	resp, err := client.Post("http://"+ln.Addr().String()+"/chat", "application/json", strings.NewReader(`{"message":"hello"}`))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi", body["final_text"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	records, err := app.Journal.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "http", records[0].Transport)
}
