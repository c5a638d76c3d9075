// Package protocol defines the JSON payloads exchanged over NATS between the
// moderator, the chat-platform bridge and the classifier service. Inbound
// updates follow an envelope format with a type discriminator; request/reply
// payloads are plain structs.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Inbound update types
// ---------------------------------------------------------------------------

// Bridge -> Moderator update types.
const (
	TypeMessage       = "message"
	TypeEditedMessage = "edited_message"
)

// Chat types as reported by the chat platform.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// ---------------------------------------------------------------------------
// Envelope: initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// Sender identifies the author of an inbound message.
type Sender struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// DisplayName returns the best human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch {
	case s.Username != "":
		return "@" + s.Username
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	default:
		return fmt.Sprintf("user %d", s.ID)
	}
}

// InboundMessage is a chat message forwarded by the bridge for moderation.
type InboundMessage struct {
	Type      string `json:"type"`
	ChatID    int64  `json:"chat_id"`
	ChatType  string `json:"chat_type"`
	ChatTitle string `json:"chat_title,omitempty"`
	MessageID int64  `json:"message_id"`
	From      Sender `json:"from"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Date      int64  `json:"date"` // unix seconds
}

// IsGroupChat reports whether the message came from a group or channel.
func (m InboundMessage) IsGroupChat() bool {
	switch m.ChatType {
	case ChatGroup, ChatSupergroup, ChatChannel:
		return true
	}
	return false
}

// Content returns the moderated text: the message text, or the media caption
// when there is no text.
func (m InboundMessage) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// ParseInbound decodes an inbound update. Unknown update types and messages
// without chat or sender ids are rejected.
func ParseInbound(data []byte) (InboundMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return InboundMessage{}, fmt.Errorf("protocol: failed to parse update: %w", err)
	}

	switch env.Type {
	case TypeMessage, TypeEditedMessage:
	default:
		return InboundMessage{}, fmt.Errorf("protocol: unknown update type: %q", env.Type)
	}

	var m InboundMessage
	if err := json.Unmarshal(env.Raw, &m); err != nil {
		return InboundMessage{}, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	if m.ChatID == 0 || m.From.ID == 0 {
		return InboundMessage{}, fmt.Errorf("protocol: %q update missing chat_id or from.id", env.Type)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Classifier request/reply
// ---------------------------------------------------------------------------

// SpamRequest asks the classifier service for a spam verdict.
type SpamRequest struct {
	Text      string   `json:"text"`
	Whitelist []string `json:"whitelist,omitempty"`
}

// SpamReply is the classifier's spam verdict. Pointer fields let the caller
// tell a missing value from a zero one.
type SpamReply struct {
	Score  *float64 `json:"score"`
	IsSpam *bool    `json:"is_spam"`
	Error  string   `json:"error,omitempty"`
}

// ProfanityRequest asks the classifier service for a profanity verdict.
type ProfanityRequest struct {
	Text string `json:"text"`
}

// ProfanityReply is the classifier's profanity verdict.
type ProfanityReply struct {
	HasProfanity *bool    `json:"has_profanity"`
	Severity     *float64 `json:"severity"`
	Type         string   `json:"type"`
	Error        string   `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Transport request/reply
// ---------------------------------------------------------------------------

// Transport command actions.
const (
	ActionDeleteMessage = "delete_message"
	ActionMuteUser      = "mute_user"
	ActionKickUser      = "kick_user"
	ActionBanUser       = "ban_user"
	ActionSendMessage   = "send_message"
	ActionGetChatAdmins = "get_chat_admins"
)

// TransportCommand asks the chat-platform bridge to perform one action.
type TransportCommand struct {
	Action              string `json:"action"`
	ChatID              int64  `json:"chat_id"`
	UserID              int64  `json:"user_id,omitempty"`
	MessageID           int64  `json:"message_id,omitempty"`
	DurationMinutes     int    `json:"duration_minutes,omitempty"`
	Text                string `json:"text,omitempty"`
	ReplyTo             int64  `json:"reply_to,omitempty"`
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

// TransportReply is the bridge's answer to a TransportCommand.
type TransportReply struct {
	OK        bool    `json:"ok"`
	MessageID int64   `json:"message_id,omitempty"`
	AdminIDs  []int64 `json:"admin_ids,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// PenaltyEvent is published after the moderator executes a penalty so that
// notification collaborators can react.
type PenaltyEvent struct {
	ChatID        int64  `json:"chat_id"`
	UserID        int64  `json:"user_id"`
	MessageID     int64  `json:"message_id"`
	Action        string `json:"action"`
	Severity      string `json:"severity"`
	StrikeCount   int    `json:"strike_count"`
	ViolationType string `json:"violation_type"`
	Executed      bool   `json:"executed"`
	Ts            int64  `json:"ts"`
}
