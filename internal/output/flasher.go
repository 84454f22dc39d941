package output

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/bus"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/intervention"
)

// BusFlasher forwards visual nudges onto the event bus, where the tray
// adapter renders them. The core never draws anything itself.
type BusFlasher struct {
	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewBusFlasher wires a flasher to the event bus. eventBus may be nil; the
// flash then only logs.
func NewBusFlasher(eventBus *bus.EventBus, logger zerolog.Logger) *BusFlasher {
	return &BusFlasher{
		eventBus: eventBus,
		logger:   logger.With().Str("component", "flasher").Logger(),
	}
}

// Flash publishes one visual nudge.
func (f *BusFlasher) Flash(status intervention.FlashStatus, duration time.Duration, count int) {
	f.logger.Debug().
		Str("status", string(status)).
		Dur("duration", duration).
		Int("count", count).
		Msg("Flash requested")
	if f.eventBus == nil {
		return
	}
	f.eventBus.Publish(bus.Event{Type: bus.EventTypeUIFlash, Data: map[string]any{
		"status":   string(status),
		"duration": duration.String(),
		"count":    count,
	}})
}
