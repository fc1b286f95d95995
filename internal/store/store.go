// Package store provides PostgreSQL-backed persistence for user reputation
// scores and the moderated-message ledger. The ledger's composite primary
// key on (message_id, channel_id) is what guarantees a message is scored at
// most once; no locking is involved.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// DefaultAlertThreshold is the score at or below which a user becomes an
// alert candidate.
const DefaultAlertThreshold = -5

// Store manages user scores and the moderation ledger in PostgreSQL.
type Store struct {
	db        *sql.DB
	threshold int
}

// RankedUser is one leaderboard row.
type RankedUser struct {
	DisplayName string
	Score       int
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string, threshold int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return New(db, threshold), nil
}

// New creates a Store on an existing database handle.
func New(db *sql.DB, threshold int) *Store {
	return &Store{db: db, threshold: threshold}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetUserScore returns the user's current score, or 0 if the user has never
// been scored.
func (s *Store) GetUserScore(ctx context.Context, userID string) (int, error) {
	const query = `SELECT score FROM users WHERE id = $1`

	var score int
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: get score: %w", err)
	}
	return score, nil
}

// UpsertUserScore atomically adds delta to the user's score, inserting the
// row on first sight. The display name is overwritten to the latest value.
// A single round trip returns the new score, so concurrent dispatch cycles
// touching the same user never lose an update. The second return reports
// whether the new score sits at or below the alert threshold.
func (s *Store) UpsertUserScore(ctx context.Context, userID, displayName string, delta int) (int, bool, error) {
	const query = `
		INSERT INTO users (id, username, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, score = users.score + EXCLUDED.score
		RETURNING score`

	var newScore int
	if err := s.db.QueryRowContext(ctx, query, userID, displayName, delta).Scan(&newScore); err != nil {
		return 0, false, fmt.Errorf("store: upsert score: %w", err)
	}
	return newScore, newScore <= s.threshold, nil
}

// IsMessageModerated reports whether the message is already in the ledger.
func (s *Store) IsMessageModerated(ctx context.Context, messageID, channelID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM moderated_messages
			WHERE message_id = $1 AND channel_id = $2
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, messageID, channelID).Scan(&exists); err != nil {
		return false, fmt.Errorf("store: ledger lookup: %w", err)
	}
	return exists, nil
}

// MarkMessageModerated records the message in the ledger. A duplicate mark
// is a benign race between overlapping dispatch cycles and is treated as
// success.
func (s *Store) MarkMessageModerated(ctx context.Context, messageID, channelID string) error {
	const query = `
		INSERT INTO moderated_messages (message_id, channel_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, channel_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, messageID, channelID); err != nil {
		return fmt.Errorf("store: ledger mark: %w", err)
	}
	return nil
}

// TopUsers returns up to limit users ordered by score descending.
func (s *Store) TopUsers(ctx context.Context, limit int) ([]RankedUser, error) {
	const query = `SELECT username, score FROM users ORDER BY score DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: top users: %w", err)
	}
	defer rows.Close()

	var users []RankedUser
	for rows.Next() {
		var u RankedUser
		if err := rows.Scan(&u.DisplayName, &u.Score); err != nil {
			return nil, fmt.Errorf("store: top users scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: top users rows: %w", err)
	}
	return users, nil
}

// ModerationStats returns the total number of moderated messages and the
// number of distinct channels moderated.
func (s *Store) ModerationStats(ctx context.Context) (total int, channels int, err error) {
	const query = `
		SELECT COUNT(*), COUNT(DISTINCT channel_id)
		FROM moderated_messages`

	if err := s.db.QueryRowContext(ctx, query).Scan(&total, &channels); err != nil {
		return 0, 0, fmt.Errorf("store: stats: %w", err)
	}
	return total, channels, nil
}
