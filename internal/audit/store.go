// Package audit provides persistent command completion tracking.
// Records are append-only and indexed by timestamp and command name
// for efficient aggregation queries.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record represents one successfully completed command invocation.
type Record struct {
	ID          string
	Timestamp   time.Time
	Command     string
	UserID      string
	CommunityID string
	ChannelID   string
}

// Store is an append-only SQLite store for command completions. All
// public methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store at the given database path. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_completions (
		id           TEXT PRIMARY KEY,
		timestamp    TEXT NOT NULL,
		command      TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		community_id TEXT,
		channel_id   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_completions_timestamp ON command_completions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_completions_command ON command_completions(command);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordCompletion persists one completion with a generated UUIDv7 ID.
// The context is used for cancellation only.
func (s *Store) RecordCompletion(ctx context.Context, commandName, userID, communityID, channelID string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate completion ID: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO command_completions
			(id, timestamp, command, user_id, community_id, channel_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(),
		time.Now().UTC().Format(time.RFC3339),
		commandName,
		userID,
		communityID,
		channelID,
	)
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

// CountByCommand returns per-command completion counts for records
// within [start, end).
func (s *Store) CountByCommand(start, end time.Time) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT command, COUNT(*)
		 FROM command_completions
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY command
		 ORDER BY COUNT(*) DESC`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query completions by command: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var command string
		var count int
		if err := rows.Scan(&command, &count); err != nil {
			return nil, fmt.Errorf("scan completions by command: %w", err)
		}
		result[command] = count
	}
	return result, rows.Err()
}

// Total returns the total number of recorded completions.
func (s *Store) Total() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM command_completions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return n, nil
}

// Recent returns the most recent completions, newest first, capped at
// limit.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, command, user_id, community_id, channel_id
		 FROM command_completions
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent completions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.Command, &rec.UserID, &rec.CommunityID, &rec.ChannelID); err != nil {
			return nil, fmt.Errorf("scan recent completion: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Timestamp = parsed
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
