// Package storage provides the SQLite turn journal.
//
// Information Hiding:
// - SQLite connection management hidden behind Journal
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/fault"
)

// Turn outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// TurnRecord is one journaled turn. Inputs and answers are not stored.
type TurnRecord struct {
	TurnID     string    `json:"turn_id"`
	Transport  string    `json:"transport"`
	Status     string    `json:"status"`
	Category   string    `json:"category,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Steps      uint32    `json:"steps"`
	ToolCalls  uint32    `json:"tool_calls"`
	ToolsUsed  []string  `json:"tools_used"`
	LatencyMs  uint64    `json:"latency_ms"`
	InputChars int       `json:"input_chars"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTurnRecord builds a record from a turn outcome and its error.
func NewTurnRecord(transport string, out agent.Outcome, err error) TurnRecord {
	rec := TurnRecord{
		TurnID:     out.TurnID,
		Transport:  transport,
		Status:     StatusSuccess,
		Steps:      out.Trace.Steps,
		ToolCalls:  out.Trace.ToolCallsTotal,
		ToolsUsed:  out.Trace.ToolsUsed,
		LatencyMs:  out.Trace.TurnLatencyMs,
		InputChars: out.Trace.InputChars,
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		rec.Status = StatusFailure
		rec.Category = fault.CategoryOf(err).String()
		rec.Reason = fault.Reason(err)
	}
	return rec
}

// Journal stores turn records in SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates a journal database at the given path.
// Creates parent directories if they don't exist.
func OpenJournal(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	return newJournal(db)
}

// NewJournalInMemory creates an in-memory journal (useful for testing).
func NewJournalInMemory() (*Journal, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newJournal(db)
}

func newJournal(db *sql.DB) (*Journal, error) {
	j := &Journal{db: db}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			turn_id TEXT NOT NULL UNIQUE,
			transport TEXT NOT NULL,
			status TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			steps INTEGER NOT NULL,
			tool_calls INTEGER NOT NULL,
			tools_used TEXT NOT NULL,
			latency_ms INTEGER NOT NULL,
			input_chars INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_turns_created
		ON turns(created_at DESC);
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record appends a turn record.
func (j *Journal) Record(ctx context.Context, rec TurnRecord) error {
	if rec.TurnID == "" {
		return errors.New("turn record has no turn id")
	}
	tools := rec.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("failed to encode tools: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO turns (turn_id, transport, status, category, reason, steps,
			tool_calls, tools_used, latency_ms, input_chars, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TurnID, rec.Transport, rec.Status, rec.Category, rec.Reason, rec.Steps,
		rec.ToolCalls, string(toolsJSON), rec.LatencyMs, rec.InputChars, created.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT turn_id, transport, status, category, reason, steps, tool_calls,
			tools_used, latency_ms, input_chars, created_at
		FROM turns
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	records := []TurnRecord{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			rec       TurnRecord
			toolsJSON string
			createdMs int64
		)
		if err := rows.Scan(&rec.TurnID, &rec.Transport, &rec.Status, &rec.Category, &rec.Reason,
			&rec.Steps, &rec.ToolCalls, &toolsJSON, &rec.LatencyMs, &rec.InputChars, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(toolsJSON), &rec.ToolsUsed); err != nil {
			return nil, fmt.Errorf("failed to decode tools for turn %s: %w", rec.TurnID, err)
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return records, nil
}

// CountByStatus returns how many turns ended in each status.
func (j *Journal) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM turns GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count turns: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}
