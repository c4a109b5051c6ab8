// Package memory provides the append-only long-term memory store. Entries
// are never updated in place; the current view of a key is the value written
// last, derived by replaying entries in insertion order.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SourceAgent marks entries written by the coaching engine's memory tool.
const SourceAgent = "agent"

// Entry is one append-only memory record.
type Entry struct {
	ID        int64     `json:"-"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists memory entries in the shared SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database connection. The memory_entries table is
// created by the storage migrations.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &Store{db: db}, nil
}

// Add appends a memory entry for the user, creating the user row on first
// contact.
func (s *Store) Add(ctx context.Context, externalID, key, value, reason string) error {
	userID, err := s.ensureUser(ctx, externalID)
	if err != nil {
		return err
	}

	var reasonVal any
	if reason != "" {
		reasonVal = reason
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (user_id, memory_key, memory_value, reason, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, key, value, reasonVal, SourceAgent, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("adding memory entry: %w", err)
	}
	return nil
}

// Snapshot collapses the user's entries into a key-value view where the
// last-written value for each key wins. An unknown user yields an empty map.
func (s *Store) Snapshot(ctx context.Context, externalID string) (map[string]string, error) {
	userID, ok, err := s.lookupUser(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]string{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT memory_key, memory_value FROM memory_entries WHERE user_id = ? ORDER BY id ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading memory entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning memory entry: %w", err)
		}
		snapshot[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory entries: %w", err)
	}

	return snapshot, nil
}

// Recent returns the user's newest entries, most recent first. An unknown
// user yields an empty slice.
func (s *Store) Recent(ctx context.Context, externalID string, limit int) ([]Entry, error) {
	userID, ok, err := s.lookupUser(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Entry{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, memory_key, memory_value, reason, source, created_at
		 FROM memory_entries WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading memory entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry  Entry
			reason sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Key, &entry.Value, &reason, &entry.Source, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory entry: %w", err)
		}
		entry.Reason = reason.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory entries: %w", err)
	}

	return entries, nil
}

func (s *Store) ensureUser(ctx context.Context, externalID string) (int64, error) {
	userID, ok, err := s.lookupUser(ctx, externalID)
	if err != nil {
		return 0, err
	}
	if ok {
		return userID, nil
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO users (external_id, created_at, updated_at) VALUES (?, ?, ?)",
		externalID, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting user id: %w", err)
	}
	return id, nil
}

func (s *Store) lookupUser(ctx context.Context, externalID string) (int64, bool, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM users WHERE external_id = ?", externalID,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up user: %w", err)
	}
	return userID, true, nil
}
