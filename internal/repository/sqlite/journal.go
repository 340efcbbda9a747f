// Package sqlite persists the notification stream so dashboards and indexers
// can replay it after a restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository"
	"lc_escrow/internal/repository/sqlite/migrations"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const DefaultListLimit = 100

type Journal struct {
	db *sql.DB
}

// Open opens the journal database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append stores event under its sequence number. Appending the same
// sequence or event id twice returns repository.ErrDuplicate.
func (j *Journal) Append(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Sequence == 0 {
		return fmt.Errorf("append event %s: sequence is required", event.ID)
	}
	attributes, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO events (sequence, id, type, attributes, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		int64(event.Sequence), event.ID, string(event.Type), string(attributes), event.OccurredAt.UTC().UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: event %d", repository.ErrDuplicate, event.Sequence)
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListAfter returns up to limit events with a sequence greater than sequence,
// oldest first.
func (j *Journal) ListAfter(ctx context.Context, sequence uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT sequence, id, type, attributes, occurred_at FROM events WHERE sequence > ? ORDER BY sequence LIMIT ?`,
		int64(sequence), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			seq        int64
			event      domain.Event
			eventType  string
			attributes string
			occurredAt int64
		)
		if err := rows.Scan(&seq, &event.ID, &eventType, &attributes, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attributes), &event.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of event %d: %w", seq, err)
		}
		event.Sequence = uint64(seq)
		event.Type = domain.EventType(eventType)
		event.OccurredAt = time.UnixMilli(occurredAt).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSequence is the highest stored sequence, or zero for an empty journal.
func (j *Journal) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last sequence: %w", err)
	}
	return uint64(seq.Int64), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ repository.EventJournal = (*Journal)(nil)
