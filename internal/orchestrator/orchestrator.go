// Package orchestrator runs the per-message moderation pipeline: identity
// upsert, settings resolution, lazy strike expiration and forgiveness, the
// whitelist gate, classification, the SCANNED audit entry and, for
// violations, deletion, strike recording, escalation and penalty execution.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/whisper/chat-moderation/internal/ledger"
	"github.com/whisper/chat-moderation/internal/metrics"
	"github.com/whisper/chat-moderation/internal/moderation"
	"github.com/whisper/chat-moderation/internal/penalty"
	"github.com/whisper/chat-moderation/internal/protocol"
	"github.com/whisper/chat-moderation/internal/settings"
	"github.com/whisper/chat-moderation/internal/transport"
)

// ExcerptRunes caps the message excerpt stored in audit entries.
const ExcerptRunes = 150

// ErrWarningThrottled marks an ALERT whose warning was not posted because the
// chat hit its warning rate limit. The strike itself still counts.
var ErrWarningThrottled = errors.New("orchestrator: warning throttled")

// SettingsResolver supplies a fresh settings snapshot per message.
type SettingsResolver interface {
	GetGroupSettings(ctx context.Context, chatID int64) (settings.GroupSettings, error)
}

// Classifier produces a normalised verdict and never fails.
type Classifier interface {
	Classify(ctx context.Context, text string, whitelist []string) moderation.ClassificationResult
}

// AdminLookup returns a chat's current (possibly cached) admin ids.
type AdminLookup interface {
	ChatAdmins(ctx context.Context, chatID int64) ([]int64, error)
}

// StrikeLedger is the transactional strike store.
type StrikeLedger interface {
	ApplyExpiration(ctx context.Context, chatID, userID int64, days int) (bool, error)
	ApplyGoodBehaviorForgiveness(ctx context.Context, chatID, userID int64, days int) (bool, error)
	RecordViolation(ctx context.Context, chatID, userID int64, v ledger.Violation) (int, error)
	RecordPenalty(ctx context.Context, chatID, userID int64, p ledger.Penalty) error
}

// ScanRecorder appends SCANNED entries.
type ScanRecorder interface {
	AppendScan(ctx context.Context, chatID, userID int64, payload map[string]interface{}) error
}

// IdentityStore persists sender identities.
type IdentityStore interface {
	Upsert(ctx context.Context, sender protocol.Sender) error
}

// EventPublisher announces executed penalties.
type EventPublisher interface {
	PublishPenalty(chatID int64, data []byte) error
}

// WarningLimiter throttles warning messages per chat.
type WarningLimiter interface {
	AllowWarning(ctx context.Context, chatID int64) bool
}

// Deps are the collaborators of an Orchestrator. Events and Warnings may be
// nil.
type Deps struct {
	Users      IdentityStore
	Settings   SettingsResolver
	Admins     AdminLookup
	Classifier Classifier
	Ledger     StrikeLedger
	Audit      ScanRecorder
	Transport  transport.Transport
	Events     EventPublisher
	Warnings   WarningLimiter
}

// State is where a message's processing ended.
type State string

const (
	StateReceived       State = "received"
	StateIgnored        State = "ignored"
	StateExempted       State = "exempted"
	StateBelowThreshold State = "below_threshold"
	StateEscalated      State = "escalated"
	StateExecuted       State = "executed"
)

// Outcome summarises what happened to one message.
type Outcome struct {
	State          State
	Classification moderation.ClassificationResult
	ViolationType  string
	StrikeCount    int
	Decision       penalty.Decision
}

// Orchestrator coordinates moderation of inbound messages. It is safe for
// concurrent use; it keeps no per-message state between calls.
type Orchestrator struct {
	deps  Deps
	now   func() time.Time
	after func(d time.Duration, f func())
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps: deps,
		now:  time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Process decodes and moderates one raw inbound update. Errors and panics are
// logged and the message is dropped.
func (o *Orchestrator) Process(ctx context.Context, data []byte) {
	start := o.now()
	metrics.InFlight.Inc()
	defer func() {
		metrics.InFlight.Dec()
		metrics.HandleLatency.Observe(time.Since(start).Seconds())
	}()

	msg, err := protocol.ParseInbound(data)
	if err != nil {
		log.Printf("[moderator] dropping update: %v", err)
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		return
	}

	out, err := o.Handle(ctx, msg)
	if err != nil {
		log.Printf("[moderator] FAILED chat=%d user=%d msg=%d state=%s: %v",
			msg.ChatID, msg.From.ID, msg.MessageID, out.State, err)
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.MessagesTotal.WithLabelValues(outcomeLabel(out.State)).Inc()
}

func outcomeLabel(s State) string {
	switch s {
	case StateIgnored:
		return "ignored"
	case StateExempted:
		return "exempted"
	case StateBelowThreshold:
		return "clean"
	default:
		return "actioned"
	}
}

// Handle moderates one message. Transport and scan-audit failures are logged
// and skipped; settings and ledger failures abort the message and are
// returned. A panic anywhere in the pipeline is returned as an error.
func (o *Orchestrator) Handle(ctx context.Context, msg protocol.InboundMessage) (out Outcome, err error) {
	out.State = StateReceived
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator: panic: %v", r)
		}
	}()

	chatID, userID := msg.ChatID, msg.From.ID

	if err := o.deps.Users.Upsert(ctx, msg.From); err != nil {
		log.Printf("[moderator] chat=%d user=%d: identity upsert: %v", chatID, userID, err)
	}

	text := msg.Content()
	if !msg.IsGroupChat() || strings.TrimSpace(text) == "" {
		out.State = StateIgnored
		return out, nil
	}

	s, err := o.deps.Settings.GetGroupSettings(ctx, chatID)
	if err != nil {
		return out, fmt.Errorf("orchestrator: settings: %w", err)
	}

	if _, err := o.deps.Ledger.ApplyExpiration(ctx, chatID, userID, s.StrikeExpirationDays); err != nil {
		return out, err
	}
	if _, err := o.deps.Ledger.ApplyGoodBehaviorForgiveness(ctx, chatID, userID, s.GoodBehaviorDays); err != nil {
		return out, err
	}

	admins, err := o.deps.Admins.ChatAdmins(ctx, chatID)
	if err != nil {
		log.Printf("[moderator] chat=%d: admin lookup failed, assuming none: %v", chatID, err)
		admins = nil
	}
	if moderation.IsExempt(userID, text, s, admins) {
		out.State = StateExempted
		return out, nil
	}

	result := o.deps.Classifier.Classify(ctx, text, s.WhitelistedKeywords)
	result.IsSpam = result.SpamAt(s.SpamThreshold)
	out.Classification = result

	excerpt, length := Excerpt(text)
	if err := o.deps.Audit.AppendScan(ctx, chatID, userID, map[string]interface{}{
		"message_id":      msg.MessageID,
		"excerpt":         excerpt,
		"length":          length,
		"is_spam":         result.IsSpam,
		"spam_score":      result.SpamScore,
		"has_profanity":   result.HasProfanity,
		"profanity_score": result.ProfanityScore,
		"profanity_type":  result.ProfanityType,
	}); err != nil {
		log.Printf("[moderator] chat=%d user=%d: scan audit: %v", chatID, userID, err)
	}

	violationType, violating := result.Evaluate(s.SpamThreshold, s.ProfanityThreshold, s.ProfanityEnabled)
	if !violating {
		out.State = StateBelowThreshold
		return out, nil
	}
	out.ViolationType = violationType

	if err := o.deps.Transport.DeleteMessage(ctx, chatID, msg.MessageID); err != nil {
		log.Printf("[moderator] chat=%d msg=%d: delete failed: %v", chatID, msg.MessageID, err)
	}

	count, err := o.deps.Ledger.RecordViolation(ctx, chatID, userID, ledger.Violation{
		MessageID:      msg.MessageID,
		Type:           violationType,
		SpamScore:      result.SpamScore,
		ProfanityScore: result.ProfanityScore,
		ProfanityType:  result.ProfanityType,
		Excerpt:        excerpt,
	})
	if err != nil {
		return out, err
	}
	out.StrikeCount = count
	metrics.ViolationsTotal.WithLabelValues(violationType).Inc()

	decision := penalty.Escalate(count, s)
	out.Decision = decision
	out.State = StateEscalated
	log.Printf("[moderator] FLAGGED chat=%d user=%d msg=%d type=%s strikes=%d action=%s",
		chatID, userID, msg.MessageID, violationType, count, decision.Action)

	if decision.Action == penalty.None {
		return out, nil
	}

	execErr := o.execute(ctx, msg, s, decision, violationType)
	p := ledger.Penalty{
		MessageID:     msg.MessageID,
		Action:        decision.Action.String(),
		Severity:      decision.Action.Severity(),
		StrikeCount:   count,
		ViolationType: violationType,
		Executed:      execErr == nil,
		ResetStrikes:  decision.Action.ResetsLedger(),
	}
	if execErr != nil {
		p.Error = execErr.Error()
		log.Printf("[moderator] chat=%d user=%d: %s failed: %v", chatID, userID, decision.Action, execErr)
	}
	if err := o.deps.Ledger.RecordPenalty(ctx, chatID, userID, p); err != nil {
		return out, err
	}
	metrics.PenaltiesTotal.WithLabelValues(p.Action).Inc()
	out.State = StateExecuted

	o.publish(msg, p)
	return out, nil
}

// execute performs the chosen action through the transport.
func (o *Orchestrator) execute(ctx context.Context, msg protocol.InboundMessage, s settings.GroupSettings, d penalty.Decision, violationType string) error {
	chatID, userID := msg.ChatID, msg.From.ID
	switch d.Action {
	case penalty.Alert:
		return o.warn(ctx, msg, s, d.StrikeCount, violationType)
	case penalty.Mute:
		return o.deps.Transport.MuteUser(ctx, chatID, userID, s.MuteDurationMinutes)
	case penalty.Kick:
		return o.deps.Transport.KickUser(ctx, chatID, userID)
	case penalty.Ban:
		return o.deps.Transport.BanUser(ctx, chatID, userID)
	default:
		return fmt.Errorf("orchestrator: no executor for %s", d.Action)
	}
}

// warn sends the chat's warning and schedules its removal.
func (o *Orchestrator) warn(ctx context.Context, msg protocol.InboundMessage, s settings.GroupSettings, strikes int, violationType string) error {
	if o.deps.Warnings != nil && !o.deps.Warnings.AllowWarning(ctx, msg.ChatID) {
		return ErrWarningThrottled
	}
	text := RenderWarning(s.WarningMessage, msg.From.DisplayName(), strikes, violationType)
	id, err := o.deps.Transport.SendMessage(ctx, msg.ChatID, text, transport.SendOptions{})
	if err != nil {
		return err
	}
	if s.WarningMessageDeleteSeconds > 0 && id != 0 {
		chatID := msg.ChatID
		o.after(time.Duration(s.WarningMessageDeleteSeconds)*time.Second, func() {
			if err := o.deps.Transport.DeleteMessage(context.Background(), chatID, id); err != nil {
				log.Printf("[moderator] chat=%d msg=%d: warning cleanup failed: %v", chatID, id, err)
			}
		})
	}
	return nil
}

func (o *Orchestrator) publish(msg protocol.InboundMessage, p ledger.Penalty) {
	if o.deps.Events == nil {
		return
	}
	data, err := json.Marshal(protocol.PenaltyEvent{
		ChatID:        msg.ChatID,
		UserID:        msg.From.ID,
		MessageID:     msg.MessageID,
		Action:        p.Action,
		Severity:      p.Severity,
		StrikeCount:   p.StrikeCount,
		ViolationType: p.ViolationType,
		Executed:      p.Executed,
		Ts:            o.now().Unix(),
	})
	if err != nil {
		log.Printf("[moderator] marshal penalty event: %v", err)
		return
	}
	if err := o.deps.Events.PublishPenalty(msg.ChatID, data); err != nil {
		log.Printf("[moderator] chat=%d: publish penalty event: %v", msg.ChatID, err)
	}
}

// RenderWarning fills the {user}, {strikes} and {reason} placeholders.
func RenderWarning(template, user string, strikes int, violationType string) string {
	return strings.NewReplacer(
		"{user}", user,
		"{strikes}", strconv.Itoa(strikes),
		"{reason}", strings.ToLower(violationType),
	).Replace(template)
}

// Excerpt returns the first ExcerptRunes characters of text and the full
// length in characters.
func Excerpt(text string) (string, int) {
	runes := []rune(text)
	if len(runes) <= ExcerptRunes {
		return text, len(runes)
	}
	return string(runes[:ExcerptRunes]), len(runes)
}
