// Package transport is the moderator's view of the chat platform. The actual
// platform API lives in a separate bridge service; this package sends it
// commands over NATS request/reply on transport.<action>.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/whisper/chat-moderation/internal/messaging"
	"github.com/whisper/chat-moderation/internal/metrics"
	"github.com/whisper/chat-moderation/internal/protocol"
)

// DefaultTimeout bounds each command when none is configured.
const DefaultTimeout = 5 * time.Second

// ErrNoResponder is returned when no bridge is listening.
var ErrNoResponder = errors.New("transport: no bridge responding")

// SendOptions tune an outgoing chat message.
type SendOptions struct {
	ReplyTo             int64
	ParseMode           string
	DisableNotification bool
}

// Transport executes actions on the chat platform. Every call may fail
// independently of the others.
type Transport interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	MuteUser(ctx context.Context, chatID, userID int64, durationMinutes int) error
	KickUser(ctx context.Context, chatID, userID int64) error
	BanUser(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error)
	GetChatAdmins(ctx context.Context, chatID int64) ([]int64, error)
}

// Requester performs one request/reply round trip.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// NATS implements Transport over NATS request/reply.
type NATS struct {
	requester Requester
	timeout   time.Duration
}

// NewNATS creates a NATS transport. A non-positive timeout uses
// DefaultTimeout.
func NewNATS(requester Requester, timeout time.Duration) *NATS {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NATS{requester: requester, timeout: timeout}
}

// DeleteMessage removes a message from a chat.
func (n *NATS) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := n.do(ctx, protocol.TransportCommand{
		Action:    protocol.ActionDeleteMessage,
		ChatID:    chatID,
		MessageID: messageID,
	})
	return err
}

// MuteUser restricts a user from sending messages for durationMinutes.
func (n *NATS) MuteUser(ctx context.Context, chatID, userID int64, durationMinutes int) error {
	_, err := n.do(ctx, protocol.TransportCommand{
		Action:          protocol.ActionMuteUser,
		ChatID:          chatID,
		UserID:          userID,
		DurationMinutes: durationMinutes,
	})
	return err
}

// KickUser removes a user from a chat; they may rejoin.
func (n *NATS) KickUser(ctx context.Context, chatID, userID int64) error {
	_, err := n.do(ctx, protocol.TransportCommand{
		Action: protocol.ActionKickUser,
		ChatID: chatID,
		UserID: userID,
	})
	return err
}

// BanUser removes a user from a chat permanently.
func (n *NATS) BanUser(ctx context.Context, chatID, userID int64) error {
	_, err := n.do(ctx, protocol.TransportCommand{
		Action: protocol.ActionBanUser,
		ChatID: chatID,
		UserID: userID,
	})
	return err
}

// SendMessage posts text to a chat and returns the new message id.
func (n *NATS) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error) {
	reply, err := n.do(ctx, protocol.TransportCommand{
		Action:              protocol.ActionSendMessage,
		ChatID:              chatID,
		Text:                text,
		ReplyTo:             opts.ReplyTo,
		ParseMode:           opts.ParseMode,
		DisableNotification: opts.DisableNotification,
	})
	if err != nil {
		return 0, err
	}
	return reply.MessageID, nil
}

// GetChatAdmins returns the administrators of a chat.
func (n *NATS) GetChatAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	reply, err := n.do(ctx, protocol.TransportCommand{
		Action: protocol.ActionGetChatAdmins,
		ChatID: chatID,
	})
	if err != nil {
		return nil, err
	}
	return reply.AdminIDs, nil
}

func (n *NATS) do(ctx context.Context, cmd protocol.TransportCommand) (protocol.TransportReply, error) {
	reply, err := n.roundTrip(ctx, cmd)
	if err != nil {
		metrics.TransportFailures.WithLabelValues(cmd.Action).Inc()
	}
	return reply, err
}

func (n *NATS) roundTrip(ctx context.Context, cmd protocol.TransportCommand) (protocol.TransportReply, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	data, err := json.Marshal(cmd)
	if err != nil {
		return protocol.TransportReply{}, fmt.Errorf("transport: %s: marshal: %w", cmd.Action, err)
	}

	resp, err := n.requester.Request(ctx, messaging.SubjectTransport+"."+cmd.Action, data)
	if errors.Is(err, messaging.ErrNoResponders) {
		return protocol.TransportReply{}, fmt.Errorf("%w: %s", ErrNoResponder, cmd.Action)
	}
	if err != nil {
		return protocol.TransportReply{}, fmt.Errorf("transport: %s: %w", cmd.Action, err)
	}

	var reply protocol.TransportReply
	if err := json.Unmarshal(resp, &reply); err != nil {
		return protocol.TransportReply{}, fmt.Errorf("transport: %s: decode reply: %w", cmd.Action, err)
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = "rejected"
		}
		return protocol.TransportReply{}, fmt.Errorf("transport: %s: %s", cmd.Action, msg)
	}
	return reply, nil
}
