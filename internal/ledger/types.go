// Package ledger is the authoritative per-(chat, user) strike counter and the
// append-only audit trail that documents it. Every count-changing operation
// writes its audit entry in the same PostgreSQL transaction, so a strike is
// never recorded without its trail and vice versa.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Audit entry types.
const (
	EntryScanned      = "SCANNED"
	EntryViolation    = "VIOLATION"
	EntryStrike       = "STRIKE"
	EntryPenalty      = "PENALTY"
	EntryExpired      = "EXPIRED"
	EntryManualAdd    = "MANUAL-STRIKE-ADD"
	EntryManualRemove = "MANUAL-STRIKE-REMOVE"
	EntryManualSet    = "MANUAL-STRIKE-SET"
)

// Actors recorded on automatic entries. Manual adjustments carry the
// admin's identity instead.
const (
	ActorAutoModerator = "AUTO_MODERATOR"
	ActorGoodBehavior  = "GOOD_BEHAVIOR"
)

// ErrInvalidAmount is returned for non-positive deltas and negative counts.
var ErrInvalidAmount = errors.New("ledger: invalid amount")

// Record is the strike state of one (chat, user) pair. A pair that never
// violated has Count 0 and a nil LastTimestamp.
type Record struct {
	ChatID         int64
	UserID         int64
	Count          int
	LastTimestamp  *time.Time // last violation; never moved by forgiveness
	LastForgivenAt *time.Time
}

// Actor identifies who made a manual adjustment.
type Actor struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// Violation is the payload of an automatic violation.
type Violation struct {
	MessageID      int64
	Type           string // SPAM or PROFANITY
	SpamScore      float64
	ProfanityScore float64
	ProfanityType  string
	Excerpt        string
}

func (v Violation) payload() map[string]interface{} {
	return map[string]interface{}{
		"message_id":      v.MessageID,
		"violation_type":  v.Type,
		"spam_score":      v.SpamScore,
		"profanity_score": v.ProfanityScore,
		"profanity_type":  v.ProfanityType,
		"excerpt":         v.Excerpt,
	}
}

// Penalty documents one penalty execution.
type Penalty struct {
	MessageID     int64
	Action        string
	Severity      string
	StrikeCount   int
	ViolationType string
	Executed      bool
	Error         string
	// ResetStrikes zeroes the count in the same transaction (KICK and BAN).
	ResetStrikes bool
}

func (p Penalty) payload() map[string]interface{} {
	m := map[string]interface{}{
		"message_id":     p.MessageID,
		"action":         p.Action,
		"severity":       p.Severity,
		"strike_count":   p.StrikeCount,
		"violation_type": p.ViolationType,
		"executed_by":    ActorAutoModerator,
		"success":        p.Executed,
		"strikes_reset":  p.ResetStrikes,
	}
	if p.Error != "" {
		m["error"] = p.Error
	}
	return m
}

// Entry is one row of the audit trail.
type Entry struct {
	ID        int64
	EventID   uuid.UUID
	CreatedAt time.Time
	ChatID    int64
	UserID    int64
	Type      string
	Payload   map[string]interface{}
}
