// Package users persists the identity of message senders so that reporting
// collaborators can resolve user ids to names.
package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/whisper/chat-moderation/internal/protocol"
)

// Store manages sender identities in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert records the sender's current identity. Calling it repeatedly with
// the same data is harmless.
func (s *Store) Upsert(ctx context.Context, sender protocol.Sender) error {
	if sender.ID == 0 {
		return fmt.Errorf("users: upsert: missing user id")
	}

	const query = `
		INSERT INTO users (user_id, username, first_name, last_name, is_bot, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			username   = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			is_bot     = EXCLUDED.is_bot,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		sender.ID,
		sender.Username,
		sender.FirstName,
		sender.LastName,
		sender.IsBot,
	)
	if err != nil {
		return fmt.Errorf("users: upsert %d: %w", sender.ID, err)
	}
	return nil
}
