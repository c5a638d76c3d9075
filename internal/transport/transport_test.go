package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/chat-moderation/internal/messaging"
	"github.com/whisper/chat-moderation/internal/protocol"
)

// bridgeStub records the last command and answers with a canned reply.
type bridgeStub struct {
	subject  string
	command  protocol.TransportCommand
	reply    string
	err      error
	deadline bool
}

func (b *bridgeStub) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	b.subject = subject
	_, b.deadline = ctx.Deadline()
	if err := json.Unmarshal(data, &b.command); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	return []byte(b.reply), nil
}

func TestNATS_Commands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func(n *NATS) error
		action string
		check  func(t *testing.T, cmd protocol.TransportCommand)
	}{
		{
			name:   "delete",
			call:   func(n *NATS) error { return n.DeleteMessage(ctx, -1, 55) },
			action: protocol.ActionDeleteMessage,
			check: func(t *testing.T, cmd protocol.TransportCommand) {
				assert.Equal(t, int64(55), cmd.MessageID)
			},
		},
		{
			name:   "mute",
			call:   func(n *NATS) error { return n.MuteUser(ctx, -1, 7, 60) },
			action: protocol.ActionMuteUser,
			check: func(t *testing.T, cmd protocol.TransportCommand) {
				assert.Equal(t, int64(7), cmd.UserID)
				assert.Equal(t, 60, cmd.DurationMinutes)
			},
		},
		{
			name:   "kick",
			call:   func(n *NATS) error { return n.KickUser(ctx, -1, 7) },
			action: protocol.ActionKickUser,
			check: func(t *testing.T, cmd protocol.TransportCommand) {
				assert.Equal(t, int64(7), cmd.UserID)
			},
		},
		{
			name:   "ban",
			call:   func(n *NATS) error { return n.BanUser(ctx, -1, 7) },
			action: protocol.ActionBanUser,
			check: func(t *testing.T, cmd protocol.TransportCommand) {
				assert.Equal(t, int64(7), cmd.UserID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &bridgeStub{reply: `{"ok":true}`}
			require.NoError(t, tt.call(NewNATS(stub, time.Second)))
			assert.Equal(t, messaging.SubjectTransport+"."+tt.action, stub.subject)
			assert.Equal(t, tt.action, stub.command.Action)
			assert.Equal(t, int64(-1), stub.command.ChatID)
			assert.True(t, stub.deadline, "command must carry a deadline")
			tt.check(t, stub.command)
		})
	}
}

func TestNATS_SendMessage(t *testing.T) {
	stub := &bridgeStub{reply: `{"ok":true,"message_id":901}`}
	id, err := NewNATS(stub, 0).SendMessage(context.Background(), -1, "hi", SendOptions{ReplyTo: 5, ParseMode: "HTML"})
	require.NoError(t, err)
	assert.Equal(t, int64(901), id)
	assert.Equal(t, "hi", stub.command.Text)
	assert.Equal(t, int64(5), stub.command.ReplyTo)
	assert.Equal(t, "HTML", stub.command.ParseMode)
}

func TestNATS_GetChatAdmins(t *testing.T) {
	stub := &bridgeStub{reply: `{"ok":true,"admin_ids":[1,2,3]}`}
	ids, err := NewNATS(stub, 0).GetChatAdmins(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestNATS_Failures(t *testing.T) {
	tests := []struct {
		name  string
		stub  *bridgeStub
		match func(t *testing.T, err error)
	}{
		{"bridge rejects", &bridgeStub{reply: `{"ok":false,"error":"not enough rights"}`}, func(t *testing.T, err error) {
			assert.Contains(t, err.Error(), "not enough rights")
		}},
		{"rejected without reason", &bridgeStub{reply: `{"ok":false}`}, func(t *testing.T, err error) {
			assert.Contains(t, err.Error(), "rejected")
		}},
		{"garbled reply", &bridgeStub{reply: `<html>`}, func(t *testing.T, err error) {
			assert.Contains(t, err.Error(), "decode reply")
		}},
		{"no bridge", &bridgeStub{err: messaging.ErrNoResponders}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrNoResponder)
		}},
		{"timeout", &bridgeStub{err: context.DeadlineExceeded}, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, context.DeadlineExceeded))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewNATS(tt.stub, time.Second).KickUser(context.Background(), -1, 2)
			require.Error(t, err)
			tt.match(t, err)
		})
	}
}
