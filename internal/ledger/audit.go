package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHistoryLimit applies when History is called with limit <= 0.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps a single History page.
	MaxHistoryLimit = 500
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertEntry appends one audit row through db, which is a transaction for
// every count-affecting entry.
func insertEntry(ctx context.Context, db execer, at time.Time, chatID, userID int64, entryType string, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", entryType, err)
	}

	const query = `
		INSERT INTO audit_log (event_id, created_at, chat_id, user_id, type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := db.ExecContext(ctx, query, uuid.NewString(), at, chatID, userID, entryType, data); err != nil {
		return fmt.Errorf("insert %s entry: %w", entryType, err)
	}
	return nil
}

// AuditTrail is the read side of the audit log plus the non-transactional
// SCANNED path.
type AuditTrail struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditTrail creates an AuditTrail backed by the given database handle.
func NewAuditTrail(db *sql.DB) *AuditTrail {
	return &AuditTrail{db: db, now: time.Now}
}

// AppendScan records that a message was analysed. It does not touch the
// strike count and runs outside any transaction.
func (a *AuditTrail) AppendScan(ctx context.Context, chatID, userID int64, payload map[string]interface{}) error {
	if err := insertEntry(ctx, a.db, a.now().UTC(), chatID, userID, EntryScanned, payload); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// History returns the newest entries for a user in a chat, newest first.
func (a *AuditTrail) History(ctx context.Context, chatID, userID int64, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	const query = `
		SELECT id, event_id, created_at, chat_id, user_id, type, payload
		FROM audit_log
		WHERE chat_id = $1 AND user_id = $2
		ORDER BY id DESC
		LIMIT $3`

	rows, err := a.db.QueryContext(ctx, query, chatID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			eventID string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &eventID, &e.CreatedAt, &e.ChatID, &e.UserID, &e.Type, &payload); err != nil {
			return nil, fmt.Errorf("audit: history scan: %w", err)
		}
		if e.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("audit: history: entry %d: %w", e.ID, err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("audit: history: entry %d payload: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: history rows: %w", err)
	}
	return entries, nil
}

// TotalToday counts the violations recorded in a chat since midnight UTC.
func (a *AuditTrail) TotalToday(ctx context.Context, chatID int64) (int, error) {
	now := a.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	const query = `
		SELECT COUNT(*)
		FROM audit_log
		WHERE chat_id = $1
		  AND type = $2
		  AND created_at >= $3`

	var count int
	if err := a.db.QueryRowContext(ctx, query, chatID, EntryViolation, midnight).Scan(&count); err != nil {
		return 0, fmt.Errorf("audit: total today: %w", err)
	}
	return count, nil
}
