package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Compiled regex patterns for spam detection.
// These are compiled once at package init and reused for every call,
// making them safe and efficient for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs, t.me invite links and
	// common TLD patterns. The bare-domain variant requires a trailing "/" to
	// avoid false positives on version strings like "v2.0" or "3.14".
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|t\.me/\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches phone numbers such as +1-555-123-4567,
	// (555) 123-4567 or 555.123.4567, anchored to whitespace boundaries.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// spamCheck pairs a detection function with the score it contributes.
type spamCheck struct {
	name   string
	weight float64
	match  func(string) bool
}

// spamChecks are all evaluated; the spam score is the capped sum of the
// weights that matched.
var spamChecks = []spamCheck{
	{name: "url", weight: 0.9, match: func(text string) bool {
		return urlPattern.MatchString(text)
	}},
	{name: "phone", weight: 0.6, match: func(text string) bool {
		return phonePattern.MatchString(text)
	}},
	{name: "char_flood", weight: 0.5, match: hasCharFlood},
	{name: "word_flood", weight: 0.6, match: hasWordFlood},
}

// heuristicSpamCutoff is the score at which the heuristic flags IsSpam.
const heuristicSpamCutoff = 0.5

// hasCharFlood returns true if text contains 5 or more consecutive identical
// characters. Go's regexp package (RE2) does not support backreferences, so
// this is implemented as a simple linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if unicode.IsSpace(r) {
			count = 1
			prev = -1
			continue
		}
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood returns true if the same word appears 3 or more times
// consecutively (case-insensitive).
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.Fields(text)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}

// scoreSpam removes whitelisted keywords from text, then sums the weights of
// every matching check. It returns the capped score and the matched check
// names.
func scoreSpam(text string, whitelist []string) (float64, []string) {
	lower := strings.ToLower(text)
	for _, kw := range whitelist {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lower = strings.ReplaceAll(lower, kw, " ")
		}
	}

	var (
		score   float64
		matched []string
	)
	for _, sc := range spamChecks {
		if sc.match(lower) {
			score += sc.weight
			matched = append(matched, sc.name)
		}
	}
	return clamp(score), matched
}
