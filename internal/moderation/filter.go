// Package moderation holds the per-message moderation primitives: the
// whitelist gate, the classification adapter that normalises an external
// classifier's verdict, and two classifier implementations (a heuristic one
// for local use and a NATS client for the classifier service).
package moderation

import (
	"context"
	"strings"
	"unicode"
)

// profaneTerm is one entry of the heuristic profanity list.
type profaneTerm struct {
	category string
	severity float64
}

// defaultProfanity is a deliberately small list; production deployments use
// the remote classifier.
var defaultProfanity = map[string]profaneTerm{
	"idiot":    {ProfanityInsult, 0.75},
	"moron":    {ProfanityInsult, 0.75},
	"stupid":   {ProfanityInsult, 0.6},
	"loser":    {ProfanityInsult, 0.6},
	"bitch":    {ProfanityInsult, 0.85},
	"asshole":  {ProfanityInsult, 0.85},
	"shit":     {ProfanityGeneral, 0.8},
	"fuck":     {ProfanityGeneral, 0.9},
	"fucking":  {ProfanityGeneral, 0.9},
	"damn":     {ProfanityGeneral, 0.4},
	"porn":     {ProfanitySexual, 0.9},
	"nudes":    {ProfanitySexual, 0.9},
	"nazi":     {ProfanityHate, 1.0},
	"retarded": {ProfanityHate, 0.95},
}

// leetReplacer maps common character substitutions back to letters.
var leetReplacer = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
	"!", "i",
)

// Heuristic is a dependency-free Classifier built from regex spam checks and
// a leetspeak-aware word list. It is safe for concurrent use.
type Heuristic struct {
	terms map[string]profaneTerm
}

// NewHeuristic returns a Heuristic using the built-in word list.
func NewHeuristic() *Heuristic {
	return &Heuristic{terms: defaultProfanity}
}

// NewHeuristicWithTerms returns a Heuristic that flags only the given words,
// each as ProfanityGeneral with severity 1. Blank entries are ignored.
func NewHeuristicWithTerms(words []string) *Heuristic {
	terms := make(map[string]profaneTerm, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		terms[w] = profaneTerm{category: ProfanityGeneral, severity: 1}
	}
	return &Heuristic{terms: terms}
}

// AnalyzeSpam implements Classifier.
func (h *Heuristic) AnalyzeSpam(ctx context.Context, text string, whitelist []string) (SpamAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return SpamAnalysis{}, err
	}
	score, _ := scoreSpam(text, whitelist)
	return SpamAnalysis{Score: score, IsSpam: score >= heuristicSpamCutoff}, nil
}

// AnalyzeProfanity implements Classifier. The worst matching term decides
// both severity and type.
func (h *Heuristic) AnalyzeProfanity(ctx context.Context, text string) (ProfanityAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return ProfanityAnalysis{}, err
	}

	var worst profaneTerm
	found := false
	check := func(token string) {
		if t, ok := h.terms[token]; ok && (!found || t.severity > worst.severity) {
			worst = t
			found = true
		}
	}

	lower := strings.ToLower(text)
	for _, tok := range tokenizePlain(lower) {
		check(tok)
	}
	for _, tok := range tokenizeLeet(lower) {
		check(normalizeLeet(tok))
	}

	if !found {
		return ProfanityAnalysis{Type: ProfanityNone}, nil
	}
	return ProfanityAnalysis{HasProfanity: true, Severity: worst.severity, Type: worst.category}, nil
}

// normalizeLeet rewrites leetspeak substitutions to plain letters.
func normalizeLeet(s string) string {
	return leetReplacer.Replace(s)
}

// tokenizePlain splits on anything that is not a letter or digit.
func tokenizePlain(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits on whitespace and common punctuation but keeps the
// symbols used as letter substitutes inside tokens.
func tokenizeLeet(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '@', '$', '!':
			return false
		}
		return true
	})
}
