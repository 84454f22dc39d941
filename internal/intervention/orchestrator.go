package intervention

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/bus"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/config"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/eventlog"
)

// Orchestrator handles intervention delivery, the cooldown between
// proactive deliveries, and feedback correlation against the last
// delivered intervention.
type Orchestrator struct {
	cfg      config.InterventionConfig
	speaker  Speaker
	flasher  Flasher
	events   *eventlog.Store
	eventBus *bus.EventBus
	logger   zerolog.Logger

	modeFunc func() string

	mu             sync.Mutex
	last           *Record
	lastDeliveryAt time.Time

	now func() time.Time
}

// NewOrchestrator creates an orchestrator. speaker, flasher, events and
// eventBus may be nil; delivery then degrades to logging only.
func NewOrchestrator(cfg config.InterventionConfig, speaker Speaker, flasher Flasher, events *eventlog.Store, eventBus *bus.EventBus, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		speaker:  speaker,
		flasher:  flasher,
		events:   events,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "intervention").Logger(),
		modeFunc: func() string { return "" },
		now:      time.Now,
	}
}

// SetModeFunc installs the callback used to stamp the mode at delivery time.
func (o *Orchestrator) SetModeFunc(fn func() string) {
	if fn != nil {
		o.modeFunc = fn
	}
}

// ProvideIntervention delivers a proactive intervention unless the cooldown
// since the previous delivery still holds. Returns true when delivered.
func (o *Orchestrator) ProvideIntervention(interventionType, message string) bool {
	if interventionType == "" || message == "" {
		o.logger.Warn().Err(ErrMissingMessage).
			Str("type", interventionType).
			Msg("dropping malformed intervention")
		return false
	}

	// Resolved before the lock: the mode callback reaches into the engine
	// and may cascade into event log writes on a snooze expiry.
	mode := o.modeFunc()

	o.mu.Lock()
	now := o.now()
	if !o.lastDeliveryAt.IsZero() && now.Sub(o.lastDeliveryAt) < o.cfg.MinTimeBetween {
		remaining := o.cfg.MinTimeBetween - now.Sub(o.lastDeliveryAt)
		o.mu.Unlock()
		o.logger.Debug().
			Str("type", interventionType).
			Dur("cooldown_remaining", remaining).
			Msg("intervention suppressed by cooldown")
		o.record(eventlog.KindInterventionSuppressed, bus.EventTypeInterventionSuppressed, map[string]any{
			"type":   interventionType,
			"reason": "cooldown",
		})
		return false
	}

	rec := &Record{
		ID:             uuid.NewString(),
		Type:           interventionType,
		Message:        message,
		DeliveredAt:    now,
		ModeAtDelivery: mode,
	}
	o.last = rec
	o.lastDeliveryAt = now
	o.mu.Unlock()

	o.deliver(rec)
	return true
}

// DeliverSuggestion delivers an analysis-produced suggestion. Suggestions
// share the cooldown and feedback slot with direct interventions.
func (o *Orchestrator) DeliverSuggestion(suggestionType, message string) {
	o.ProvideIntervention(suggestionType, message)
}

// NotifyModeChange announces a mode transition by voice. Announcements
// bypass the cooldown and do not occupy the feedback slot.
func (o *Orchestrator) NotifyModeChange(newMode, custom string) {
	text := custom
	if text == "" {
		switch newMode {
		case "active":
			text = "Co-regulation active."
		case "paused":
			text = "Paused. Say the word when you want me back."
		case "snoozed":
			text = "Snoozing. I'll check back in later."
		case "dnd":
			text = "Do not disturb. Watching quietly."
		default:
			text = "Mode changed to " + newMode + "."
		}
	}
	o.logger.Info().Str("mode", newMode).Msg("announcing mode change")
	if o.speaker != nil {
		o.speaker.Speak(text, false)
	}
}

// RegisterFeedback correlates user feedback with the last delivered
// intervention if it falls inside the feedback window. The record is not
// cleared; repeated feedback within the window re-associates with the same
// delivery. Feedback outside the window is still recorded, unassociated.
func (o *Orchestrator) RegisterFeedback(kind FeedbackKind) {
	if !kind.Valid() {
		o.logger.Warn().Str("kind", string(kind)).Msg("ignoring unknown feedback kind")
		return
	}

	o.mu.Lock()
	now := o.now()
	var associated *Record
	if o.last != nil && now.Sub(o.last.DeliveredAt) <= o.cfg.FeedbackWindow {
		associated = o.last
	}
	o.mu.Unlock()

	payload := map[string]any{"feedback": string(kind)}
	if associated != nil {
		payload["intervention_id"] = associated.ID
		payload["intervention_type"] = associated.Type
		o.logger.Info().
			Str("feedback", string(kind)).
			Str("intervention_id", associated.ID).
			Str("intervention_type", associated.Type).
			Msg("feedback associated with intervention")
	} else {
		o.logger.Info().Str("feedback", string(kind)).Msg("feedback with no recent intervention")
	}
	o.record(eventlog.KindUserFeedback, bus.EventTypeUserFeedback, payload)
}

// LastRecord returns a copy of the most recent delivery, if any.
func (o *Orchestrator) LastRecord() (Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Record{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) deliver(rec *Record) {
	o.logger.Info().
		Str("id", rec.ID).
		Str("type", rec.Type).
		Str("mode", rec.ModeAtDelivery).
		Msg("delivering intervention")

	if o.speaker != nil {
		o.speaker.Speak(rec.Message, false)
	}
	if o.flasher != nil {
		o.flasher.Flash(FlashActive, o.cfg.DefaultDuration, 3)
	}

	o.record(eventlog.KindInterventionStart, bus.EventTypeInterventionStart, map[string]any{
		"id":      rec.ID,
		"type":    rec.Type,
		"message": rec.Message,
		"mode":    rec.ModeAtDelivery,
	})
}

func (o *Orchestrator) record(kind eventlog.EventKind, eventType bus.EventType, payload map[string]any) {
	if o.events != nil {
		o.events.Append(kind, payload)
	}
	if o.eventBus != nil {
		o.eventBus.Publish(bus.Event{Type: eventType, Data: payload})
	}
}
