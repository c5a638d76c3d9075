package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/whisper/chat-moderation/internal/messaging"
)

// scriptedRequester answers each subject with a canned payload.
type scriptedRequester struct {
	mu       sync.Mutex
	replies  map[string]string
	err      error
	requests map[string][]byte
}

func (s *scriptedRequester) Request(_ context.Context, subject string, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests == nil {
		s.requests = make(map[string][]byte)
	}
	s.requests[subject] = data
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.replies[subject]), nil
}

func TestRemote_AnalyzeSpam(t *testing.T) {
	req := &scriptedRequester{replies: map[string]string{
		messaging.SubjectClassifySpam: `{"score":0.91,"is_spam":true}`,
	}}
	got, err := NewRemote(req).AnalyzeSpam(context.Background(), "hi", []string{"promo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 0.91 || !got.IsSpam {
		t.Errorf("unexpected verdict %+v", got)
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(req.requests[messaging.SubjectClassifySpam], &sent); err != nil {
		t.Fatalf("request is not JSON: %v", err)
	}
	if sent["text"] != "hi" {
		t.Errorf("request text = %v, want hi", sent["text"])
	}
}

func TestRemote_AnalyzeProfanity(t *testing.T) {
	req := &scriptedRequester{replies: map[string]string{
		messaging.SubjectClassifyProfanity: `{"has_profanity":true,"severity":0.7,"type":"insult"}`,
	}}
	got, err := NewRemote(req).AnalyzeProfanity(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.HasProfanity || got.Severity != 0.7 || got.Type != ProfanityInsult {
		t.Errorf("unexpected verdict %+v", got)
	}
}

func TestRemote_MalformedReplies(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		reply   string
	}{
		{"spam missing score", messaging.SubjectClassifySpam, `{"is_spam":true}`},
		{"spam score is a string", messaging.SubjectClassifySpam, `{"score":"high"}`},
		{"spam not json", messaging.SubjectClassifySpam, `nope`},
		{"spam upstream error", messaging.SubjectClassifySpam, `{"score":0,"error":"model unavailable"}`},
		{"profanity missing severity", messaging.SubjectClassifyProfanity, `{"has_profanity":true}`},
		{"profanity flag is a number", messaging.SubjectClassifyProfanity, `{"has_profanity":1,"severity":0.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRemote(&scriptedRequester{replies: map[string]string{tt.subject: tt.reply}})
			var err error
			if tt.subject == messaging.SubjectClassifySpam {
				_, err = r.AnalyzeSpam(context.Background(), "x", nil)
			} else {
				_, err = r.AnalyzeProfanity(context.Background(), "x")
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestRemote_RequestError(t *testing.T) {
	r := NewRemote(&scriptedRequester{err: messaging.ErrNoResponders})
	_, err := r.AnalyzeSpam(context.Background(), "x", nil)
	if !errors.Is(err, messaging.ErrNoResponders) {
		t.Errorf("expected ErrNoResponders in chain, got %v", err)
	}
}

// TestRemote_ThroughAdapter verifies that a broken classifier service
// degrades to the clean verdict.
func TestRemote_ThroughAdapter(t *testing.T) {
	r := NewRemote(&scriptedRequester{replies: map[string]string{
		messaging.SubjectClassifySpam:      `{"score":"oops"}`,
		messaging.SubjectClassifyProfanity: `{}`,
	}})
	assertClean(t, NewAdapter(r, 0).Classify(context.Background(), "text", nil))
}
