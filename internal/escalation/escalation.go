// Package escalation maps an active warning count onto the punishment ladder.
package escalation

import (
	"fmt"
	"sort"
)

type Action int

const (
	ActionNone Action = iota
	ActionMute
	ActionKick
	ActionBan
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionMute:
		return "mute"
	case ActionKick:
		return "kick"
	case ActionBan:
		return "ban"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(text []byte) error {
	switch v := string(text); v {
	case "none":
		*a = ActionNone
	case "mute":
		*a = ActionMute
	case "kick":
		*a = ActionKick
	case "ban":
		*a = ActionBan
	default:
		return fmt.Errorf("invalid action: %q (must be none, mute, kick, ban)", v)
	}
	return nil
}

// Thresholds holds the warning count at which each rung activates. Zero
// disables a rung.
type Thresholds struct {
	Mute int `json:"mute"`
	Kick int `json:"kick"`
	Ban  int `json:"ban"`
}

// Preview describes the next rung a user would reach.
type Preview struct {
	Action    Action `json:"action"`
	Remaining int    `json:"remaining"`
}

type Decision struct {
	Action Action   `json:"action"`
	Next   *Preview `json:"next,omitempty"`
}

type rung struct {
	action    Action
	threshold int
}

// Decide checks rungs from most to least severe so that a count past several
// thresholds at once lands on the harshest one. When no rung is reached the
// decision carries the closest configured rung above the count.
func Decide(active int, t Thresholds) Decision {
	bySeverity := []rung{
		{ActionBan, t.Ban},
		{ActionKick, t.Kick},
		{ActionMute, t.Mute},
	}
	for _, r := range bySeverity {
		if r.threshold > 0 && active >= r.threshold {
			return Decision{Action: r.action}
		}
	}

	var upcoming []rung
	for _, r := range bySeverity {
		if r.threshold > active {
			upcoming = append(upcoming, r)
		}
	}
	if len(upcoming) == 0 {
		return Decision{Action: ActionNone}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].threshold < upcoming[j].threshold
	})
	next := upcoming[0]
	return Decision{
		Action: ActionNone,
		Next:   &Preview{Action: next.action, Remaining: next.threshold - active},
	}
}
