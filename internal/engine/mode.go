// Package engine fuses sensor samples into a bounded affect state, owns the
// operating-mode state machine, and forwards threshold crossings to the
// analysis gate.
package engine

// Mode is the user-facing operating mode.
type Mode string

const (
	ModeActive  Mode = "active"
	ModePaused  Mode = "paused"
	ModeSnoozed Mode = "snoozed"
	ModeDnd     Mode = "dnd"
)

// StatusError is the presentation-only overlay shown while a sensor is
// failing. It is never stored as the mode.
const StatusError = "error"

// ParseMode maps a config string to a Mode, defaulting to active.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeActive, ModePaused, ModeSnoozed, ModeDnd:
		return Mode(s)
	default:
		return ModeActive
	}
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeActive, ModePaused, ModeSnoozed, ModeDnd:
		return true
	}
	return false
}

// next returns the successor in the quick-cycle. Paused is not part of the
// cycle; cycling out of pause lands on active.
func (m Mode) next() Mode {
	switch m {
	case ModeActive:
		return ModeSnoozed
	case ModeSnoozed:
		return ModeDnd
	case ModeDnd:
		return ModeActive
	default:
		return ModeActive
	}
}
