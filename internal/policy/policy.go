// Package policy evaluates self-service modification rules: whether a
// customer may still reschedule or cancel given how close the appointment is.
package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Mode int

const (
	// ModeNoCutoff allows modification any time before the appointment.
	ModeNoCutoff Mode = iota
	// ModeCutoff requires at least Hours between now and the start.
	ModeCutoff
	// ModeDisabled rejects all self-service modification.
	ModeDisabled
)

// Rule is one configured policy (reschedule or cancel).
type Rule struct {
	Mode  Mode
	Hours int
}

// ParseRule accepts the settings vocabulary used by the admin UI: "none"
// disables the action, "0" or "any" means no cutoff, and "12h"/"24"-style
// values set an hour cutoff. The zero default is a 24-hour cutoff.
func ParseRule(raw string) Rule {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "none", "disabled", "off":
		return Rule{Mode: ModeDisabled}
	case "", "default":
		return Rule{Mode: ModeCutoff, Hours: 24}
	case "0", "any", "always":
		return Rule{Mode: ModeNoCutoff}
	}
	v = strings.TrimSuffix(v, "h")
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		if n == 0 {
			return Rule{Mode: ModeNoCutoff}
		}
		return Rule{Mode: ModeCutoff, Hours: n}
	}
	return Rule{Mode: ModeCutoff, Hours: 24}
}

// Violation explains a rejected modification attempt. The Reason is shown to
// the customer as-is.
type Violation struct {
	Action string
	Reason string
}

func (v *Violation) Error() string {
	return v.Action + " not allowed: " + v.Reason
}

// Allow reports whether an appointment starting at start may still be
// modified at now. The cutoff comparison is inclusive: exactly N hours of
// notice is enough.
func (r Rule) Allow(action string, start, now time.Time) error {
	switch r.Mode {
	case ModeDisabled:
		return &Violation{Action: action, Reason: "online " + action + " is not permitted for this booking"}
	case ModeNoCutoff:
		if !start.After(now) {
			return &Violation{Action: action, Reason: "the appointment has already started"}
		}
		return nil
	}
	if !start.After(now) {
		return &Violation{Action: action, Reason: "the appointment has already started"}
	}
	if start.Sub(now) < time.Duration(r.Hours)*time.Hour {
		return &Violation{
			Action: action,
			Reason: fmt.Sprintf("requires at least %d hours notice", r.Hours),
		}
	}
	return nil
}
