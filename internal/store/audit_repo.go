package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dirconsole/internal/core"
)

// InsertAuditEntry appends one entry to the audit log. Entries are never
// updated or deleted.
func (s *Store) InsertAuditEntry(ctx context.Context, e *core.AuditEntry) error {
	if e.ID == "" {
		e.ID = core.NewID()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	var details any
	if e.Details != nil {
		encoded, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(encoded)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, at, action, actor, target, details, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.At), string(e.Action), e.Actor,
		nullableString(e.Target), details, boolToInt(e.Success), nullableString(e.Error))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns entries newest first.
func (s *Store) ListAuditEntries(ctx context.Context, limit, offset int) ([]*core.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, action, actor, target, details, success, error
		FROM audit_logs
		ORDER BY at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	var entries []*core.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanAuditEntry(rows *sql.Rows) (*core.AuditEntry, error) {
	var (
		id      string
		at      string
		action  string
		actor   string
		target  sql.NullString
		details sql.NullString
		success int
		errMsg  sql.NullString
	)
	if err := rows.Scan(&id, &at, &action, &actor, &target, &details, &success, &errMsg); err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	entry := &core.AuditEntry{
		ID:      id,
		At:      mustParseTime(at),
		Action:  core.AuditAction(action),
		Actor:   actor,
		Success: success != 0,
	}
	if target.Valid {
		entry.Target = &target.String
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
			return nil, fmt.Errorf("decode audit details: %w", err)
		}
	}
	if errMsg.Valid {
		entry.Error = &errMsg.String
	}
	return entry, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
