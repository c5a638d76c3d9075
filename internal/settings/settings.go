// Package settings resolves the per-chat moderation configuration. A chat's
// settings are stored as key/value rows; Resolve turns those rows into an
// immutable GroupSettings snapshot, falling back to the documented default
// for any key that is missing or malformed.
package settings

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
)

// Setting keys as persisted in group_settings.key.
const (
	KeyAlertLevel                  = "alert_level"
	KeyMuteLevel                   = "mute_level"
	KeyKickLevel                   = "kick_level"
	KeyBanLevel                    = "ban_level"
	KeySpamThreshold               = "spam_threshold"
	KeyProfanityThreshold          = "profanity_threshold"
	KeyProfanityEnabled            = "profanity_enabled"
	KeyMuteDurationMinutes         = "mute_duration_minutes"
	KeyWarningMessage              = "warning_message"
	KeyWarningMessageDeleteSeconds = "warning_message_delete_seconds"
	KeyModeratorIDs                = "moderator_ids"
	KeyWhitelistedKeywords         = "whitelisted_keywords"
	KeyKeywordWhitelistBypass      = "keyword_whitelist_bypass"
	KeyStrikeExpirationDays        = "strike_expiration_days"
	KeyGoodBehaviorDays            = "good_behavior_days"
)

// DefaultWarningMessage is sent on ALERT unless a chat overrides it.
// Placeholders: {user}, {strikes}, {reason}.
const DefaultWarningMessage = "{user}, your message was removed ({reason}). Strikes: {strikes}."

var (
	// ErrUnknownKey is returned by Validate for keys outside the known set.
	ErrUnknownKey = errors.New("settings: unknown key")

	// ErrInvalidValue is returned by Validate when a value does not parse or
	// is out of range for its key.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// GroupSettings is the configuration snapshot for one chat. It is resolved
// once per message and must be treated as read-only; the slices it holds are
// never shared with the store.
type GroupSettings struct {
	ChatID int64

	// Penalty levels. 0 disables the action.
	AlertLevel int
	MuteLevel  int
	KickLevel  int
	BanLevel   int

	SpamThreshold      float64
	ProfanityThreshold float64
	ProfanityEnabled   bool

	MuteDurationMinutes         int
	WarningMessage              string
	WarningMessageDeleteSeconds int

	ModeratorIDs           []int64  // sorted
	WhitelistedKeywords    []string // lower-cased
	KeywordWhitelistBypass bool

	// 0 disables expiration / forgiveness.
	StrikeExpirationDays int
	GoodBehaviorDays     int
}

// Defaults returns the settings applied to a chat with no stored overrides.
func Defaults(chatID int64) GroupSettings {
	return GroupSettings{
		ChatID:                      chatID,
		AlertLevel:                  1,
		MuteLevel:                   2,
		KickLevel:                   3,
		BanLevel:                    5,
		SpamThreshold:               0.85,
		ProfanityThreshold:          0.7,
		ProfanityEnabled:            true,
		MuteDurationMinutes:         60,
		WarningMessage:              DefaultWarningMessage,
		WarningMessageDeleteSeconds: 60,
		StrikeExpirationDays:        30,
		GoodBehaviorDays:            7,
	}
}

// IsModerator reports whether userID is a configured moderator of the chat.
func (s GroupSettings) IsModerator(userID int64) bool {
	i := sort.Search(len(s.ModeratorIDs), func(i int) bool { return s.ModeratorIDs[i] >= userID })
	return i < len(s.ModeratorIDs) && s.ModeratorIDs[i] == userID
}

// Resolve builds a snapshot from raw key/value rows. Unknown keys are ignored
// and malformed values keep the default for that field.
func Resolve(chatID int64, raw map[string]string) GroupSettings {
	s := Defaults(chatID)
	for key, value := range raw {
		if err := s.apply(key, value); err != nil {
			if errors.Is(err, ErrUnknownKey) {
				continue
			}
			log.Printf("[settings] chat=%d %v, keeping default", chatID, err)
		}
	}
	return s
}

// Validate checks a single key/value pair without applying it.
func Validate(key, value string) error {
	s := Defaults(0)
	return s.apply(key, value)
}

func (s *GroupSettings) apply(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case KeyAlertLevel:
		s.AlertLevel, err = parseNonNegative(key, value, s.AlertLevel)
	case KeyMuteLevel:
		s.MuteLevel, err = parseNonNegative(key, value, s.MuteLevel)
	case KeyKickLevel:
		s.KickLevel, err = parseNonNegative(key, value, s.KickLevel)
	case KeyBanLevel:
		s.BanLevel, err = parseNonNegative(key, value, s.BanLevel)
	case KeySpamThreshold:
		s.SpamThreshold, err = parseThreshold(key, value, s.SpamThreshold)
	case KeyProfanityThreshold:
		s.ProfanityThreshold, err = parseThreshold(key, value, s.ProfanityThreshold)
	case KeyProfanityEnabled:
		s.ProfanityEnabled, err = parseBool(key, value, s.ProfanityEnabled)
	case KeyMuteDurationMinutes:
		s.MuteDurationMinutes, err = parseNonNegative(key, value, s.MuteDurationMinutes)
	case KeyWarningMessage:
		if value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidValue, key)
		}
		s.WarningMessage = value
	case KeyWarningMessageDeleteSeconds:
		s.WarningMessageDeleteSeconds, err = parseNonNegative(key, value, s.WarningMessageDeleteSeconds)
	case KeyModeratorIDs:
		s.ModeratorIDs, err = parseIDs(key, value, s.ModeratorIDs)
	case KeyWhitelistedKeywords:
		s.WhitelistedKeywords = parseKeywords(value)
	case KeyKeywordWhitelistBypass:
		s.KeywordWhitelistBypass, err = parseBool(key, value, s.KeywordWhitelistBypass)
	case KeyStrikeExpirationDays:
		s.StrikeExpirationDays, err = parseNonNegative(key, value, s.StrikeExpirationDays)
	case KeyGoodBehaviorDays:
		s.GoodBehaviorDays, err = parseNonNegative(key, value, s.GoodBehaviorDays)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return err
}

func parseNonNegative(key, value string, def int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return def, fmt.Errorf("%w: %s=%q is not a non-negative integer", ErrInvalidValue, key, value)
	}
	return n, nil
}

// parseThreshold accepts scores in (0,1]. A zero threshold would flag the
// clean verdict.
func parseThreshold(key, value string, def float64) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	// NaN fails both comparisons.
	if err != nil || !(f > 0 && f <= 1) {
		return def, fmt.Errorf("%w: %s=%q is not within (0,1]", ErrInvalidValue, key, value)
	}
	return f, nil
}

func parseBool(key, value string, def bool) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidValue, key, value)
	}
	return b, nil
}

func parseIDs(key, value string, def []int64) ([]int64, error) {
	ids := []int64{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return def, fmt.Errorf("%w: %s contains %q", ErrInvalidValue, key, part)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseKeywords(value string) []string {
	seen := make(map[string]struct{})
	keywords := []string{}
	for _, part := range strings.Split(value, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}
	return keywords
}
