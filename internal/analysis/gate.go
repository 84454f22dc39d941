package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/bus"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/eventlog"
)

// Analyzer is the reasoning service surface the gate depends on.
type Analyzer interface {
	Analyze(ctx context.Context, req *Request) (*Response, error)
}

// Deliverer receives suggestions that passed the gate.
type Deliverer interface {
	DeliverSuggestion(suggestionType, message string)
}

// StateSink receives state estimations from successful analyses.
type StateSink interface {
	ApplyStateEstimation(est map[string]float64)
}

// Gate is the entry point between threshold crossings and the reasoning
// service. It debounces, applies the circuit breaker, runs the call off the
// tick thread, and forwards the suggestion only when interventions are
// allowed in the current mode.
type Gate struct {
	breaker  *CircuitBreaker
	analyzer Analyzer
	delivery Deliverer
	states   StateSink
	events   *eventlog.Store
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewGate wires the gate. delivery, states, events and eventBus may be nil
// in tests.
func NewGate(breaker *CircuitBreaker, analyzer Analyzer, delivery Deliverer, states StateSink,
	events *eventlog.Store, eventBus *bus.EventBus, logger zerolog.Logger) *Gate {
	return &Gate{
		breaker:  breaker,
		analyzer: analyzer,
		delivery: delivery,
		states:   states,
		events:   events,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "analysis-gate").Logger(),
	}
}

// Breaker exposes the circuit breaker for status surfaces.
func (g *Gate) Breaker() *CircuitBreaker {
	return g.breaker
}

// Trigger handles a threshold crossing. Returns whether a service call was
// dispatched. Never blocks the caller on the service and never surfaces
// service errors: those are consumed by the breaker.
//
// allowIntervention is false in dnd mode: the analysis still runs for
// telemetry, but the suggestion is not delivered.
func (g *Gate) Trigger(ctx context.Context, reason string, allowIntervention bool, reqCtx RequestContext) bool {
	now := time.Now()

	if !g.breaker.ShouldCall(now) {
		g.logger.Debug().Str("reason", reason).Msg("Analysis call suppressed by debounce or open breaker")
		return false
	}

	g.mu.Lock()
	if g.inFlight {
		g.mu.Unlock()
		g.logger.Debug().Str("reason", reason).Msg("Analysis call already in flight, skipping")
		return false
	}
	g.inFlight = true
	g.mu.Unlock()

	g.breaker.MarkAttempt(now)

	if g.events != nil {
		g.events.Append(eventlog.KindAnalysisTriggered, map[string]any{
			"reason":             reason,
			"allow_intervention": allowIntervention,
		})
	}
	if g.eventBus != nil {
		g.eventBus.Publish(bus.Event{
			Type: bus.EventTypeAnalysisTriggered,
			Data: map[string]any{"reason": reason},
		})
	}

	go g.runCall(ctx, reason, allowIntervention, reqCtx)
	return true
}

// runCall executes the service call on its own goroutine.
func (g *Gate) runCall(ctx context.Context, reason string, allowIntervention bool, reqCtx RequestContext) {
	defer func() {
		g.mu.Lock()
		g.inFlight = false
		g.mu.Unlock()
	}()

	resp, err := g.analyzer.Analyze(ctx, &Request{Reason: reason, Context: reqCtx})
	g.breaker.RecordResult(err == nil, time.Now())

	if err != nil {
		g.logger.Warn().Err(err).Str("reason", reason).
			Int("consecutive_failures", g.breaker.ConsecutiveFailures()).
			Msg("Analysis call failed")
		if g.eventBus != nil {
			g.eventBus.Publish(bus.Event{
				Type: bus.EventTypeAnalysisFailed,
				Data: map[string]any{"reason": reason, "error": err.Error()},
			})
		}
		return
	}

	if resp.StateEstimation != nil && g.states != nil {
		g.states.ApplyStateEstimation(resp.StateEstimation)
	}

	suggested := resp.Suggestion != nil
	if g.events != nil {
		payload := map[string]any{
			"reason":             reason,
			"allow_intervention": allowIntervention,
			"has_suggestion":     suggested,
		}
		if suggested {
			payload["suggestion_type"] = resp.Suggestion.Type
		}
		g.events.Append(eventlog.KindAnalysisResult, payload)
	}
	if g.eventBus != nil {
		g.eventBus.Publish(bus.Event{
			Type: bus.EventTypeAnalysisCompleted,
			Data: map[string]any{"reason": reason, "has_suggestion": suggested},
		})
	}

	if !suggested {
		return
	}
	if !allowIntervention {
		g.logger.Info().Str("reason", reason).Str("suggestion_type", resp.Suggestion.Type).
			Msg("Suggestion withheld, interventions not allowed in current mode")
		return
	}
	if g.delivery != nil {
		g.delivery.DeliverSuggestion(resp.Suggestion.Type, resp.Suggestion.Message)
	}
}
