// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package audit keeps a local SQLite log of dispatched tool calls.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"localagent/internal/tools"
)

const schema = `
CREATE TABLE IF NOT EXISTS tool_calls (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id      TEXT NOT NULL DEFAULT '',
	tool_name    TEXT NOT NULL,
	arguments    TEXT NOT NULL DEFAULT '{}',
	path         TEXT NOT NULL DEFAULT '',
	ok           INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	output_bytes INTEGER NOT NULL DEFAULT 0,
	duration_ns  INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at);
`

// maxArgumentsLen bounds the stored argument JSON; write-file content can be large.
const maxArgumentsLen = 2048

// Entry is one recorded tool call.
type Entry struct {
	ID          int64
	CallID      string
	ToolName    string
	Arguments   string
	Path        string
	OK          bool
	Error       string
	OutputBytes int
	Duration    time.Duration
	CreatedAt   time.Time
}

// Store wraps the audit database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the SQLite database at path and applies the schema. Creates file if missing.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open audit db %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores e and returns its row ID. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if e.Arguments == "" {
		e.Arguments = "{}"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (call_id, tool_name, arguments, path, ok, error, output_bytes, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CallID, e.ToolName, e.Arguments, e.Path, e.OK, e.Error, e.OutputBytes, int64(e.Duration), e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordToolCall implements tools.Recorder.
func (s *Store) RecordToolCall(ctx context.Context, req tools.FunctionCallRequest, result *tools.Result) error {
	_, err := s.Record(ctx, Entry{
		CallID:      req.ID,
		ToolName:    req.ToolName,
		Arguments:   encodeArguments(req.Arguments),
		Path:        result.Path,
		OK:          result.OK,
		Error:       result.Error,
		OutputBytes: len(result.Output),
		Duration:    result.Duration,
	})
	return err
}

func encodeArguments(args map[string]interface{}) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	if len(raw) > maxArgumentsLen {
		return string(raw[:maxArgumentsLen]) + "..."
	}
	return string(raw)
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, call_id, tool_name, arguments, path, ok, error, output_bytes, duration_ns, created_at
		 FROM tool_calls ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			durationNs int64
			createdNs  int64
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.ToolName, &e.Arguments, &e.Path, &e.OK, &e.Error, &e.OutputBytes, &durationNs, &createdNs); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationNs)
		e.CreatedAt = time.Unix(0, createdNs)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded calls and how many of them failed.
func (s *Store) Count(ctx context.Context) (total, failed int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END), 0) FROM tool_calls`,
	).Scan(&total, &failed)
	return total, failed, err
}

var _ tools.Recorder = (*Store)(nil)
