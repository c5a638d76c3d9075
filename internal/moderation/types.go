package moderation

import "context"

// Profanity categories reported by classifiers. Any other value coming from
// upstream is folded into ProfanityGeneral (or ProfanityNone when the
// classifier reported no profanity).
const (
	ProfanityNone    = "none"
	ProfanityGeneral = "general"
	ProfanityInsult  = "insult"
	ProfanitySexual  = "sexual"
	ProfanityHate    = "hate"
)

// SpamAnalysis is a classifier's raw spam verdict.
type SpamAnalysis struct {
	Score  float64
	IsSpam bool
}

// ProfanityAnalysis is a classifier's raw profanity verdict. Severity is the
// classifier's confidence in [0,1].
type ProfanityAnalysis struct {
	HasProfanity bool
	Severity     float64
	Type         string
}

// Classifier is the external text classifier. Implementations may block on
// I/O and must honour ctx cancellation.
type Classifier interface {
	AnalyzeSpam(ctx context.Context, text string, whitelist []string) (SpamAnalysis, error)
	AnalyzeProfanity(ctx context.Context, text string) (ProfanityAnalysis, error)
}

// ClassificationResult is the normalised verdict for one message. Scores are
// always within [0,1] and ProfanityType is always one of the Profanity*
// constants. IsSpam leaves the Adapter as the classifier's own flag; callers
// holding chat settings rederive it with SpamAt. The zero value is not valid;
// use Clean().
type ClassificationResult struct {
	IsSpam         bool    `json:"is_spam"`
	SpamScore      float64 `json:"spam_score"`
	HasProfanity   bool    `json:"has_profanity"`
	ProfanityScore float64 `json:"profanity_score"`
	ProfanityType  string  `json:"profanity_type"`
}

// Clean returns the fail-safe, non-violating result.
func Clean() ClassificationResult {
	return ClassificationResult{ProfanityType: ProfanityNone}
}

// Violation types recorded in the audit trail.
const (
	ViolationSpam      = "SPAM"
	ViolationProfanity = "PROFANITY"
)

// SpamAt reports whether the spam score meets threshold. A zero score never
// does, so the clean verdict stays non-violating under any threshold.
func (r ClassificationResult) SpamAt(threshold float64) bool {
	return r.SpamScore > 0 && r.SpamScore >= threshold
}

// ProfaneAt is SpamAt for the profanity score.
func (r ClassificationResult) ProfaneAt(threshold float64) bool {
	return r.ProfanityScore > 0 && r.ProfanityScore >= threshold
}

// Evaluate applies a chat's thresholds. It reports whether the message is a
// violation and, if so, which kind; spam wins when both conditions hold.
func (r ClassificationResult) Evaluate(spamThreshold, profanityThreshold float64, profanityEnabled bool) (string, bool) {
	if r.SpamAt(spamThreshold) {
		return ViolationSpam, true
	}
	if profanityEnabled && r.ProfaneAt(profanityThreshold) {
		return ViolationProfanity, true
	}
	return "", false
}
