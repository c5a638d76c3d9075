package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/whisper/chat-moderation/internal/metrics"
)

// Ledger manages strike counts in PostgreSQL. Concurrent operations on the
// same (chat, user) are serialized by row locks; operations on different
// pairs never contend.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedger creates a Ledger backed by the given database handle.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

const day = 24 * time.Hour

// RecordViolation increments the count by one, stamps the violation time and
// appends the STRIKE and VIOLATION entries, all in one transaction. It
// returns the post-increment count.
func (l *Ledger) RecordViolation(ctx context.Context, chatID, userID int64, v Violation) (int, error) {
	now := l.now().UTC()

	var count int
	err := l.withTx(ctx, "record violation", func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO strikes (chat_id, user_id, count, last_timestamp)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (chat_id, user_id)
			DO UPDATE SET count = strikes.count + 1, last_timestamp = EXCLUDED.last_timestamp
			RETURNING count`

		if err := tx.QueryRowContext(ctx, upsert, chatID, userID, now).Scan(&count); err != nil {
			return fmt.Errorf("increment: %w", err)
		}

		strike := v.payload()
		strike["new_count"] = count
		if err := insertEntry(ctx, tx, now, chatID, userID, EntryStrike, strike); err != nil {
			return err
		}
		return insertEntry(ctx, tx, now, chatID, userID, EntryViolation, v.payload())
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddStrikes adds amount strikes on behalf of an admin.
func (l *Ledger) AddStrikes(ctx context.Context, chatID, userID int64, amount int, actor Actor) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: add %d", ErrInvalidAmount, amount)
	}
	return l.adjust(ctx, chatID, userID, EntryManualAdd, actor, func(old int) int { return old + amount })
}

// RemoveStrikes removes up to amount strikes; the count stops at zero.
func (l *Ledger) RemoveStrikes(ctx context.Context, chatID, userID int64, amount int, actor Actor) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: remove %d", ErrInvalidAmount, amount)
	}
	return l.adjust(ctx, chatID, userID, EntryManualRemove, actor, func(old int) int {
		return removeClamped(old, amount)
	})
}

// removeClamped subtracts amount from count without going below zero.
func removeClamped(count, amount int) int {
	if amount >= count {
		return 0
	}
	return count - amount
}

// SetStrikes overwrites the count.
func (l *Ledger) SetStrikes(ctx context.Context, chatID, userID int64, count int, actor Actor) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("%w: set %d", ErrInvalidAmount, count)
	}
	return l.adjust(ctx, chatID, userID, EntryManualSet, actor, func(int) int { return count })
}

// adjust applies a manual change under a row lock. It never modifies
// last_timestamp.
func (l *Ledger) adjust(ctx context.Context, chatID, userID int64, entryType string, actor Actor, next func(old int) int) (int, error) {
	now := l.now().UTC()

	var count int
	err := l.withTx(ctx, "adjust strikes", func(tx *sql.Tx) error {
		old, err := lockRecord(ctx, tx, chatID, userID, true)
		if err != nil {
			return err
		}
		count = next(old.Count)

		const update = `UPDATE strikes SET count = $3 WHERE chat_id = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, update, chatID, userID, count); err != nil {
			return fmt.Errorf("update count: %w", err)
		}

		return insertEntry(ctx, tx, now, chatID, userID, entryType, map[string]interface{}{
			"old_count": old.Count,
			"new_count": count,
			"delta":     count - old.Count,
			"actor":     actor,
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Reset zeroes the count. It writes no audit entry and is idempotent.
func (l *Ledger) Reset(ctx context.Context, chatID, userID int64) error {
	const query = `UPDATE strikes SET count = 0 WHERE chat_id = $1 AND user_id = $2`
	if _, err := l.db.ExecContext(ctx, query, chatID, userID); err != nil {
		metrics.LedgerFailures.Inc()
		return fmt.Errorf("ledger: reset: %w", err)
	}
	return nil
}

// GetStrikes returns the current record. Unknown pairs yield a zero count.
func (l *Ledger) GetStrikes(ctx context.Context, chatID, userID int64) (Record, error) {
	const query = `
		SELECT count, last_timestamp, last_forgiven_at
		FROM strikes
		WHERE chat_id = $1 AND user_id = $2`

	rec := Record{ChatID: chatID, UserID: userID}
	var last, forgiven sql.NullTime
	err := l.db.QueryRowContext(ctx, query, chatID, userID).Scan(&rec.Count, &last, &forgiven)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("ledger: get strikes: %w", err)
	}
	rec.LastTimestamp = nullTime(last)
	rec.LastForgivenAt = nullTime(forgiven)
	return rec, nil
}

// ApplyExpiration zeroes the count when the last violation is older than
// days. It reports whether strikes were expired; days <= 0 disables it.
func (l *Ledger) ApplyExpiration(ctx context.Context, chatID, userID int64, days int) (bool, error) {
	if days <= 0 {
		return false, nil
	}
	now := l.now().UTC()
	window := time.Duration(days) * day

	expired := false
	err := l.withTx(ctx, "apply expiration", func(tx *sql.Tx) error {
		rec, err := lockRecord(ctx, tx, chatID, userID, false)
		if err != nil || rec.Count == 0 || rec.LastTimestamp == nil {
			return err
		}
		if now.Sub(*rec.LastTimestamp) <= window {
			return nil
		}

		const update = `UPDATE strikes SET count = 0 WHERE chat_id = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, update, chatID, userID); err != nil {
			return fmt.Errorf("expire: %w", err)
		}
		if err := insertEntry(ctx, tx, now, chatID, userID, EntryExpired, map[string]interface{}{
			"old_count":       rec.Count,
			"new_count":       0,
			"expiration_days": days,
			"last_timestamp":  rec.LastTimestamp.Format(time.RFC3339),
		}); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// ApplyGoodBehaviorForgiveness removes one strike when more than days have
// passed since both the last violation and the last forgiveness. At most one
// strike is removed per interval however many messages arrive. It reports
// whether a strike was forgiven; days <= 0 disables it.
func (l *Ledger) ApplyGoodBehaviorForgiveness(ctx context.Context, chatID, userID int64, days int) (bool, error) {
	if days <= 0 {
		return false, nil
	}
	now := l.now().UTC()
	window := time.Duration(days) * day

	forgiven := false
	err := l.withTx(ctx, "apply forgiveness", func(tx *sql.Tx) error {
		rec, err := lockRecord(ctx, tx, chatID, userID, false)
		if err != nil || rec.Count == 0 || rec.LastTimestamp == nil {
			return err
		}
		since := *rec.LastTimestamp
		if rec.LastForgivenAt != nil && rec.LastForgivenAt.After(since) {
			since = *rec.LastForgivenAt
		}
		if now.Sub(since) <= window {
			return nil
		}

		const update = `
			UPDATE strikes SET count = count - 1, last_forgiven_at = $3
			WHERE chat_id = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, update, chatID, userID, now); err != nil {
			return fmt.Errorf("forgive: %w", err)
		}
		if err := insertEntry(ctx, tx, now, chatID, userID, EntryManualRemove, map[string]interface{}{
			"old_count":          rec.Count,
			"new_count":          rec.Count - 1,
			"delta":              -1,
			"actor":              Actor{Name: ActorGoodBehavior},
			"good_behavior_days": days,
		}); err != nil {
			return err
		}
		forgiven = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return forgiven, nil
}

// RecordPenalty appends the PENALTY entry and, when p.ResetStrikes is set,
// zeroes the count in the same transaction.
func (l *Ledger) RecordPenalty(ctx context.Context, chatID, userID int64, p Penalty) error {
	now := l.now().UTC()
	return l.withTx(ctx, "record penalty", func(tx *sql.Tx) error {
		if err := insertEntry(ctx, tx, now, chatID, userID, EntryPenalty, p.payload()); err != nil {
			return err
		}
		if !p.ResetStrikes {
			return nil
		}
		const reset = `UPDATE strikes SET count = 0 WHERE chat_id = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, reset, chatID, userID); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		return nil
	})
}

// lockRecord reads a row with FOR UPDATE. With create set, a missing row is
// inserted first so the lock always has something to hold.
func lockRecord(ctx context.Context, tx *sql.Tx, chatID, userID int64, create bool) (Record, error) {
	if create {
		const insert = `
			INSERT INTO strikes (chat_id, user_id, count)
			VALUES ($1, $2, 0)
			ON CONFLICT (chat_id, user_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, insert, chatID, userID); err != nil {
			return Record{}, fmt.Errorf("ensure row: %w", err)
		}
	}

	const query = `
		SELECT count, last_timestamp, last_forgiven_at
		FROM strikes
		WHERE chat_id = $1 AND user_id = $2
		FOR UPDATE`

	rec := Record{ChatID: chatID, UserID: userID}
	var last, forgiven sql.NullTime
	err := tx.QueryRowContext(ctx, query, chatID, userID).Scan(&rec.Count, &last, &forgiven)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("lock row: %w", err)
	}
	rec.LastTimestamp = nullTime(last)
	rec.LastForgivenAt = nullTime(forgiven)
	return rec, nil
}

// withTx runs fn in a transaction, rolling back on any error.
func (l *Ledger) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.LedgerFailures.Inc()
		return fmt.Errorf("ledger: %s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[ledger] %s: rollback: %v", op, rbErr)
		}
		metrics.LedgerFailures.Inc()
		return fmt.Errorf("ledger: %s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		metrics.LedgerFailures.Inc()
		return fmt.Errorf("ledger: %s: commit: %w", op, err)
	}
	return nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
