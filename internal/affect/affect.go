// Package affect maintains the smoothed, bounded estimate of the user's
// state across five dimensions: arousal, energy, focus, mood, overload.
package affect

import "math"

// Dimension names the five tracked scalars.
type Dimension string

const (
	Arousal  Dimension = "arousal"
	Energy   Dimension = "energy"
	Focus    Dimension = "focus"
	Mood     Dimension = "mood"
	Overload Dimension = "overload"
)

// Dimensions lists every tracked dimension in a stable order.
var Dimensions = []Dimension{Arousal, Energy, Focus, Mood, Overload}

// State is a snapshot of all five dimensions. Fields are always in [0,100].
type State struct {
	Arousal  float64 `json:"arousal"`
	Energy   float64 `json:"energy"`
	Focus    float64 `json:"focus"`
	Mood     float64 `json:"mood"`
	Overload float64 `json:"overload"`
}

// Config controls smoothing behavior.
type Config struct {
	Alpha        float64 // weight of the newest raw sample, (0,1]
	RestingValue float64 // decay target when no sample arrives
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{Alpha: 0.2, RestingValue: 50}
}

// Tracker owns the smoothed state. It is not safe for concurrent use; the
// engine serializes access under its own lock.
type Tracker struct {
	cfg   Config
	state State
}

// NewTracker starts every dimension at the resting midpoint.
func NewTracker(cfg Config) *Tracker {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultConfig().Alpha
	}
	if cfg.RestingValue < 0 || cfg.RestingValue > 100 {
		cfg.RestingValue = DefaultConfig().RestingValue
	}
	mid := cfg.RestingValue
	return &Tracker{
		cfg: cfg,
		state: State{
			Arousal:  mid,
			Energy:   mid,
			Focus:    mid,
			Mood:     mid,
			Overload: mid,
		},
	}
}

// State returns the current snapshot by value.
func (t *Tracker) State() State {
	return t.state
}

// Observe smooths a fresh raw sample into one dimension.
func (t *Tracker) Observe(dim Dimension, raw float64) {
	old := t.get(dim)
	t.set(dim, clamp(t.cfg.Alpha*clamp(raw)+(1-t.cfg.Alpha)*old))
}

// Decay moves one dimension toward the resting value. Called on ticks where
// the dimension received no new sample, so transient spikes fade instead of
// freezing at their last level.
func (t *Tracker) Decay(dim Dimension) {
	old := t.get(dim)
	t.set(dim, clamp(t.cfg.Alpha*t.cfg.RestingValue+(1-t.cfg.Alpha)*old))
}

func (t *Tracker) get(dim Dimension) float64 {
	switch dim {
	case Arousal:
		return t.state.Arousal
	case Energy:
		return t.state.Energy
	case Focus:
		return t.state.Focus
	case Mood:
		return t.state.Mood
	case Overload:
		return t.state.Overload
	}
	return t.cfg.RestingValue
}

func (t *Tracker) set(dim Dimension, v float64) {
	switch dim {
	case Arousal:
		t.state.Arousal = v
	case Energy:
		t.state.Energy = v
	case Focus:
		t.state.Focus = v
	case Mood:
		t.state.Mood = v
	case Overload:
		t.state.Overload = v
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}
