package settings

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists raw per-chat settings rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a settings store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load returns every stored key/value pair for a chat. A chat with no rows
// yields an empty map.
func (s *Store) Load(ctx context.Context, chatID int64) (map[string]string, error) {
	const query = `SELECT key, value FROM group_settings WHERE chat_id = $1`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("settings: scan: %w", err)
		}
		raw[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: rows: %w", err)
	}
	return raw, nil
}

// Save upserts one key/value pair for a chat.
func (s *Store) Save(ctx context.Context, chatID int64, key, value string) error {
	const query = `
		INSERT INTO group_settings (chat_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (chat_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.db.ExecContext(ctx, query, chatID, key, value); err != nil {
		return fmt.Errorf("settings: save %s: %w", key, err)
	}
	return nil
}
