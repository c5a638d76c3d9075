package moderation

import (
	"strings"

	"github.com/whisper/chat-moderation/internal/settings"
)

// IsExempt decides whether a message skips moderation. Chat admins and
// configured moderators are always exempt; anyone else is exempt only when
// keyword bypass is enabled and the text contains a whitelisted keyword
// (case-insensitive). The caller supplies a current admin list.
func IsExempt(userID int64, text string, s settings.GroupSettings, chatAdminIDs []int64) bool {
	for _, id := range chatAdminIDs {
		if id == userID {
			return true
		}
	}
	if s.IsModerator(userID) {
		return true
	}
	if !s.KeywordWhitelistBypass || len(s.WhitelistedKeywords) == 0 {
		return false
	}
	return containsKeyword(text, s.WhitelistedKeywords)
}

// containsKeyword reports whether text contains any keyword. Keywords are
// compared lower-cased.
func containsKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
