package moderation

import (
	"context"
	"strings"
	"testing"
)

func TestHeuristic_Profanity(t *testing.T) {
	h := NewHeuristic()
	ctx := context.Background()

	tests := []struct {
		name     string
		input    string
		has      bool
		category string
	}{
		{"insult", "you are an idiot", true, ProfanityInsult},
		{"upper case", "YOU MORON", true, ProfanityInsult},
		{"punctuation around word", "...idiot!!", true, ProfanityInsult},
		{"leetspeak", "what an 1d10t", true, ProfanityInsult},
		{"symbol substitution", "total @$$hole", true, ProfanityInsult},
		{"hate wins over insult", "stupid nazi", true, ProfanityHate},
		{"substring is not a match", "scunthorpe classic assessment", false, ProfanityNone},
		{"clean", "good morning everyone", false, ProfanityNone},
		{"empty", "", false, ProfanityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.AnalyzeProfanity(ctx, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.HasProfanity != tt.has {
				t.Errorf("AnalyzeProfanity(%q).HasProfanity = %v, want %v", tt.input, got.HasProfanity, tt.has)
			}
			if got.Type != tt.category {
				t.Errorf("AnalyzeProfanity(%q).Type = %q, want %q", tt.input, got.Type, tt.category)
			}
			if tt.has && got.Severity <= 0 {
				t.Errorf("AnalyzeProfanity(%q).Severity = %v, want > 0", tt.input, got.Severity)
			}
		})
	}
}

func TestHeuristic_Spam(t *testing.T) {
	h := NewHeuristic()

	got, err := h.AnalyzeSpam(context.Background(), "free coins at https://scam.xyz/now", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsSpam || got.Score < heuristicSpamCutoff {
		t.Errorf("expected spam verdict, got %+v", got)
	}

	got, err = h.AnalyzeSpam(context.Background(), "see you tomorrow", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsSpam || got.Score != 0 {
		t.Errorf("expected clean verdict, got %+v", got)
	}
}

func TestHeuristic_CancelledContext(t *testing.T) {
	h := NewHeuristic()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.AnalyzeSpam(ctx, "hello", nil); err == nil {
		t.Error("expected error from AnalyzeSpam on cancelled context")
	}
	if _, err := h.AnalyzeProfanity(ctx, "hello"); err == nil {
		t.Error("expected error from AnalyzeProfanity on cancelled context")
	}
}

// TestNewHeuristicWithTerms_EmptyAndWhitespace verifies that blank entries
// are ignored and the remaining words are flagged as general profanity.
func TestNewHeuristicWithTerms_EmptyAndWhitespace(t *testing.T) {
	h := NewHeuristicWithTerms([]string{"", "  ", " Blorp "})
	if len(h.terms) != 1 {
		t.Fatalf("expected 1 term, got %d", len(h.terms))
	}

	got, err := h.AnalyzeProfanity(context.Background(), "what a blorp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.HasProfanity || got.Type != ProfanityGeneral || got.Severity != 1 {
		t.Errorf("unexpected verdict %+v", got)
	}

	got, _ = h.AnalyzeProfanity(context.Background(), "you idiot")
	if got.HasProfanity {
		t.Error("custom term list should not include the defaults")
	}
}

func TestNormalizeLeet(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"h3ll0", "hello"},
		{"@$$", "ass"},
		{"1d10t", "idiot"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeLeet(tt.input); got != tt.want {
			t.Errorf("normalizeLeet(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTokenizePlain(t *testing.T) {
	got := tokenizePlain("hello, world! it's me")
	want := []string{"hello", "world", "it", "s", "me"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("tokenizePlain() = %v, want %v", got, want)
	}
}

func TestTokenizeLeet(t *testing.T) {
	got := tokenizeLeet("you @$$, stop!")
	want := []string{"you", "@$$", "stop!"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("tokenizeLeet() = %v, want %v", got, want)
	}
}

func BenchmarkHeuristic_LongMessage(b *testing.B) {
	h := NewHeuristic()
	msg := strings.Repeat("the quick brown fox jumps over the lazy dog ", 80)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = h.AnalyzeProfanity(ctx, msg)
		_, _ = h.AnalyzeSpam(ctx, msg, nil)
	}
}
