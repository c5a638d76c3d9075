// Package penalty maps a strike count and a chat's thresholds to the single
// most severe applicable action. It is a pure function with no state.
package penalty

import (
	"github.com/whisper/chat-moderation/internal/settings"
)

// Action is an escalation outcome. Values are ordered by severity.
type Action int

const (
	None Action = iota
	Alert
	Mute
	Kick
	Ban
)

func (a Action) String() string {
	switch a {
	case Alert:
		return "ALERT"
	case Mute:
		return "MUTE"
	case Kick:
		return "KICK"
	case Ban:
		return "BAN"
	default:
		return "NONE"
	}
}

// Severity is the audit tag for an executed action.
func (a Action) Severity() string {
	switch a {
	case Alert:
		return "WARNING"
	case Mute:
		return "LOW"
	case Kick:
		return "MEDIUM"
	case Ban:
		return "HIGH"
	default:
		return ""
	}
}

// ResetsLedger reports whether executing the action zeroes the user's strikes.
func (a Action) ResetsLedger() bool {
	return a == Kick || a == Ban
}

// Decision is the chosen action and the count that triggered it.
type Decision struct {
	Action      Action
	StrikeCount int
	Level       int // threshold of the chosen action; 0 for None
}

// rule pairs an action with its configured threshold.
type rule struct {
	action Action
	level  int
}

// rules lists actions from most to least destructive so that equal levels
// resolve to the harsher action.
func rules(s settings.GroupSettings) [4]rule {
	return [4]rule{
		{Ban, s.BanLevel},
		{Kick, s.KickLevel},
		{Mute, s.MuteLevel},
		{Alert, s.AlertLevel},
	}
}

// Escalate picks the enabled action with the highest level not above count.
// Ties go to the more destructive action.
func Escalate(count int, s settings.GroupSettings) Decision {
	best := Decision{Action: None, StrikeCount: count}
	for _, r := range rules(s) {
		if r.level <= 0 || r.level > count {
			continue
		}
		if r.level > best.Level {
			best.Action = r.action
			best.Level = r.level
		}
	}
	return best
}
