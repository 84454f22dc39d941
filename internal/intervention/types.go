// Package intervention delivers spoken/visual nudges to the user and
// correlates subsequent feedback with the most recent delivery.
package intervention

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrMissingMessage = errors.New("intervention requires a type and a message")
)

// FeedbackKind is the user's rating of an intervention.
type FeedbackKind string

const (
	FeedbackHelpful   FeedbackKind = "helpful"
	FeedbackUnhelpful FeedbackKind = "unhelpful"
)

// Valid reports whether the kind is one of the closed set.
func (k FeedbackKind) Valid() bool {
	return k == FeedbackHelpful || k == FeedbackUnhelpful
}

// Record captures one delivered intervention. A single slot holds the last
// record; it is superseded by the next delivery and consulted by feedback
// correlation while the feedback window holds.
type Record struct {
	ID             string
	Type           string
	Message        string
	DeliveredAt    time.Time
	ModeAtDelivery string
}

// Speaker is the voice output collaborator. Failures are logged by the
// implementation, never raised to the orchestrator.
type Speaker interface {
	Speak(text string, blocking bool)
}

// FlashStatus is the closed set of visual nudge styles.
type FlashStatus string

const (
	FlashActive FlashStatus = "active"
	FlashError  FlashStatus = "error"
)

// Flasher is the visual output collaborator (tray icon flash or similar).
type Flasher interface {
	Flash(status FlashStatus, duration time.Duration, count int)
}
