package moderation

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/whisper/chat-moderation/internal/metrics"
)

const (
	// MaxClassifierInputBytes caps the text sent to the classifier.
	MaxClassifierInputBytes = 4096

	// DefaultClassifierTimeout bounds each classifier call.
	DefaultClassifierTimeout = 10 * time.Second
)

// Adapter wraps a Classifier and guarantees a well-formed result: it never
// returns an error, and any failure, timeout or malformed upstream value
// degrades to the clean verdict for that analysis only.
type Adapter struct {
	classifier Classifier
	timeout    time.Duration
}

// NewAdapter creates an Adapter. A non-positive timeout uses
// DefaultClassifierTimeout.
func NewAdapter(classifier Classifier, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}
	return &Adapter{classifier: classifier, timeout: timeout}
}

// Classify runs the spam and profanity analyses concurrently and merges them.
// Blank text short-circuits to Clean() without calling the classifier.
func (a *Adapter) Classify(ctx context.Context, text string, whitelist []string) ClassificationResult {
	if strings.TrimSpace(text) == "" {
		return Clean()
	}
	text = truncate(text, MaxClassifierInputBytes)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	spamCh := make(chan spamOutcome, 1)
	profCh := make(chan profanityOutcome, 1)
	go func() {
		var out spamOutcome
		out.err = guard(func() error {
			var err error
			out.analysis, err = a.classifier.AnalyzeSpam(ctx, text, whitelist)
			return err
		})
		spamCh <- out
	}()
	go func() {
		var out profanityOutcome
		out.err = guard(func() error {
			var err error
			out.analysis, err = a.classifier.AnalyzeProfanity(ctx, text)
			return err
		})
		profCh <- out
	}()

	// A classifier that ignores ctx must not hold the message past the
	// deadline; its late answer lands in the buffered channel and is dropped.
	var (
		spamRes spamOutcome
		profRes profanityOutcome
	)
	spamIn, profIn := spamCh, profCh
	for spamIn != nil || profIn != nil {
		select {
		case spamRes = <-spamIn:
			spamIn = nil
		case profRes = <-profIn:
			profIn = nil
		case <-ctx.Done():
			// Keep any answer that is already waiting.
			if spamIn != nil {
				select {
				case spamRes = <-spamIn:
				default:
					spamRes.err = fmt.Errorf("spam analysis: %w", ctx.Err())
				}
			}
			if profIn != nil {
				select {
				case profRes = <-profIn:
				default:
					profRes.err = fmt.Errorf("profanity analysis: %w", ctx.Err())
				}
			}
			spamIn, profIn = nil, nil
		}
	}
	spam, spamErr := spamRes.analysis, spamRes.err
	profanity, profErr := profRes.analysis, profRes.err

	result := Clean()

	if spamErr == nil {
		spamErr = checkScore(spam.Score)
	}
	if spamErr != nil {
		log.Printf("[classifier] spam analysis unavailable, using clean verdict: %v", spamErr)
		metrics.ClassifierFailures.WithLabelValues("spam").Inc()
	} else {
		result.SpamScore = clamp(spam.Score)
		result.IsSpam = spam.IsSpam
	}

	if profErr == nil {
		profErr = checkScore(profanity.Severity)
	}
	if profErr != nil {
		log.Printf("[classifier] profanity analysis unavailable, using clean verdict: %v", profErr)
		metrics.ClassifierFailures.WithLabelValues("profanity").Inc()
	} else {
		result.HasProfanity = profanity.HasProfanity
		result.ProfanityScore = clamp(profanity.Severity)
		result.ProfanityType = normalizeProfanityType(profanity.HasProfanity, profanity.Type)
	}

	return result
}

type spamOutcome struct {
	analysis SpamAnalysis
	err      error
}

type profanityOutcome struct {
	analysis ProfanityAnalysis
	err      error
}

// guard converts a classifier panic into an error so one analysis cannot take
// the other (or the caller) down with it.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return fn()
}

// checkScore rejects values that cannot be clamped meaningfully.
func checkScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("malformed score %v", score)
	}
	return nil
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func normalizeProfanityType(has bool, t string) string {
	if !has {
		return ProfanityNone
	}
	switch t = strings.ToLower(strings.TrimSpace(t)); t {
	case ProfanityGeneral, ProfanityInsult, ProfanitySexual, ProfanityHate:
		return t
	default:
		return ProfanityGeneral
	}
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
