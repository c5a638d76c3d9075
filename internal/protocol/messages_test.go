package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid group message
// ---------------------------------------------------------------------------

func TestParseInbound_GroupMessage(t *testing.T) {
	input := []byte(`{"type":"message","chat_id":-1001,"chat_type":"supergroup","message_id":77,
		"from":{"id":42,"username":"alice"},"text":"hello there","date":1700000000}`)

	m, err := ParseInbound(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ChatID != -1001 {
		t.Errorf("expected chat_id -1001, got %d", m.ChatID)
	}
	if m.MessageID != 77 {
		t.Errorf("expected message_id 77, got %d", m.MessageID)
	}
	if m.From.ID != 42 || m.From.Username != "alice" {
		t.Errorf("unexpected sender %+v", m.From)
	}
	if !m.IsGroupChat() {
		t.Error("expected IsGroupChat() = true for supergroup")
	}
	if m.Content() != "hello there" {
		t.Errorf("expected content %q, got %q", "hello there", m.Content())
	}
}

func TestParseInbound_EditedMessageUsesCaption(t *testing.T) {
	input := []byte(`{"type":"edited_message","chat_id":5,"chat_type":"group","message_id":1,
		"from":{"id":9},"caption":"photo caption"}`)

	m, err := ParseInbound(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Content() != "photo caption" {
		t.Errorf("expected caption fallback, got %q", m.Content())
	}
}

// ---------------------------------------------------------------------------
// Test: Rejections
// ---------------------------------------------------------------------------

func TestParseInbound_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"invalid json", `{not json`, "failed to parse update"},
		{"missing type", `{"chat_id":1}`, "missing or empty"},
		{"unknown type", `{"type":"poll","chat_id":1}`, "unknown update type"},
		{"wrong field type", `{"type":"message","chat_id":"abc"}`, "failed to decode"},
		{"missing sender", `{"type":"message","chat_id":1,"text":"x"}`, "missing chat_id or from.id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInbound([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestIsGroupChat(t *testing.T) {
	tests := []struct {
		chatType string
		want     bool
	}{
		{ChatPrivate, false},
		{ChatGroup, true},
		{ChatSupergroup, true},
		{ChatChannel, true},
		{"", false},
	}
	for _, tt := range tests {
		m := InboundMessage{ChatType: tt.chatType}
		if got := m.IsGroupChat(); got != tt.want {
			t.Errorf("IsGroupChat(%q) = %v, want %v", tt.chatType, got, tt.want)
		}
	}
}

func TestSenderDisplayName(t *testing.T) {
	tests := []struct {
		sender Sender
		want   string
	}{
		{Sender{ID: 1, Username: "bob", FirstName: "Bob"}, "@bob"},
		{Sender{ID: 1, FirstName: "Ann", LastName: "Lee"}, "Ann Lee"},
		{Sender{ID: 1, FirstName: "Ann"}, "Ann"},
		{Sender{ID: 7}, "user 7"},
	}
	for _, tt := range tests {
		if got := tt.sender.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.sender, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Reply payloads distinguish missing fields from zero values
// ---------------------------------------------------------------------------

func TestSpamReply_MissingScore(t *testing.T) {
	var r SpamReply
	if err := json.Unmarshal([]byte(`{"is_spam":false}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Score != nil {
		t.Errorf("expected nil score, got %v", *r.Score)
	}

	if err := json.Unmarshal([]byte(`{"score":0,"is_spam":false}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Score == nil || *r.Score != 0 {
		t.Errorf("expected explicit zero score, got %v", r.Score)
	}
}

func TestTransportCommand_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(TransportCommand{Action: ActionKickUser, ChatID: 3, UserID: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["action"] != ActionKickUser {
		t.Errorf("expected action %q, got %v", ActionKickUser, m["action"])
	}
	for _, key := range []string{"message_id", "text", "duration_minutes"} {
		if _, ok := m[key]; ok {
			t.Errorf("expected %q to be omitted", key)
		}
	}
}
