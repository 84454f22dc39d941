package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/affect"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/analysis"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/bus"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/config"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/eventlog"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/sensors"
)

// Trigger reasons, ordered by default precedence.
const (
	TriggerHighArousal       = "high_sexual_arousal"
	TriggerHighAudioLevel    = "high_audio_level"
	TriggerHighVideoActivity = "high_video_activity"
)

var defaultPrecedence = []string{TriggerHighArousal, TriggerHighAudioLevel, TriggerHighVideoActivity}

// TriggerDispatcher receives threshold crossings. The analysis gate
// implements it; tests substitute a stub.
type TriggerDispatcher interface {
	Trigger(ctx context.Context, reason string, allowIntervention bool, reqCtx analysis.RequestContext) bool
}

// FaceMetrics is the latest face picture, guarded by the engine mutex.
type FaceMetrics struct {
	FaceDetected  bool
	FaceCount     int
	FaceLocations [][4]int
	VideoActivity float64
}

// Engine is the state fusion engine. Sensors push raw samples in through
// ProcessVideoData/ProcessAudioData; Update ticks the smoothing, threshold
// detection and trigger dispatch. One mutex guards all shared state and is
// never held across calls into collaborators.
type Engine struct {
	cfg      *config.Config
	gate     TriggerDispatcher
	events   *eventlog.Store
	eventBus *bus.EventBus
	logger   zerolog.Logger

	onModeChange func(old, new Mode)

	mu           sync.Mutex
	tracker      *affect.Tracker
	mode         Mode
	previousMode Mode
	snoozeUntil  time.Time
	sensorError  bool
	sensorDetail string
	face         FaceMetrics
	lastVideo    sensors.FrameMetrics
	videoFresh   bool
	lastAudio    sensors.AudioMetrics
	audioFresh   bool
	activeWindow string

	now func() time.Time
}

// NewEngine builds the engine in the configured default mode. gate, events
// and eventBus may be nil in tests.
func NewEngine(cfg *config.Config, gate TriggerDispatcher, events *eventlog.Store, eventBus *bus.EventBus, logger zerolog.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		gate:     gate,
		events:   events,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "engine").Logger(),
		tracker: affect.NewTracker(affect.Config{
			Alpha:        cfg.Affect.Alpha,
			RestingValue: cfg.Affect.RestingValue,
		}),
		mode: ParseMode(cfg.App.DefaultMode),
		now:  time.Now,
	}
	if e.mode == ModeSnoozed {
		e.snoozeUntil = e.now().Add(cfg.App.SnoozeDuration)
	}
	return e
}

// SetModeChangeHandler registers the listener invoked on every effective
// mode transition. Called outside the engine lock.
func (e *Engine) SetModeChangeHandler(fn func(old, new Mode)) {
	e.onModeChange = fn
}

// SetTriggerDispatcher wires the analysis gate after construction, which
// breaks the engine/gate wiring circle. Call before the tick loop starts.
func (e *Engine) SetTriggerDispatcher(gate TriggerDispatcher) {
	e.gate = gate
}

// ProcessVideoData accepts the latest frame metrics. Nil samples are
// ignored. Never blocks beyond the engine mutex.
func (e *Engine) ProcessVideoData(m *sensors.FrameMetrics) {
	if m == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastVideo = *m
	e.videoFresh = true
	e.face = FaceMetrics{
		FaceDetected:  m.FaceDetected,
		FaceCount:     m.FaceCount,
		FaceLocations: m.FaceLocations,
		VideoActivity: m.VideoActivity,
	}
}

// ProcessAudioData accepts the latest audio chunk metrics. Nil samples are
// ignored.
func (e *Engine) ProcessAudioData(m *sensors.AudioMetrics) {
	if m == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAudio = *m
	e.audioFresh = true
}

// SetActiveWindow records the focused window title for analysis context.
func (e *Engine) SetActiveWindow(title string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeWindow = title
}

// Update is the single authoritative tick: smoothing, decay, threshold
// crossing detection and trigger dispatch. A panic inside the tick is
// recovered and logged so the loop survives.
func (e *Engine) Update(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("recovered from panic in update tick")
		}
	}()

	mode := e.GetMode() // observes snooze expiry

	reason, allowIntervention, reqCtx, ok := e.fuse(mode)
	if !ok || e.gate == nil {
		return
	}
	e.gate.Trigger(ctx, reason, allowIntervention, reqCtx)
}

// fuse runs the locked part of the tick: smoothing, decay and threshold
// detection. The deferred unlock keeps the mutex released even when a tick
// panics.
func (e *Engine) fuse(mode Mode) (reason string, allowIntervention bool, reqCtx analysis.RequestContext, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mode == ModePaused {
		// Paused drops pending samples without folding them in.
		e.videoFresh = false
		e.audioFresh = false
		return "", false, analysis.RequestContext{}, false
	}

	videoFresh, audioFresh := e.videoFresh, e.audioFresh
	video, audio := e.lastVideo, e.lastAudio
	e.videoFresh = false
	e.audioFresh = false

	if videoFresh {
		e.tracker.Observe(affect.Arousal, video.ArousalSignal)
		e.tracker.Observe(affect.Overload, math.Min(100, video.VideoActivity*2))
		if video.FaceDetected {
			e.tracker.Observe(affect.Focus, 80)
		} else {
			e.tracker.Observe(affect.Focus, 20)
		}
	} else {
		e.tracker.Decay(affect.Arousal)
		e.tracker.Decay(affect.Overload)
		e.tracker.Decay(affect.Focus)
	}
	if audioFresh {
		e.tracker.Observe(affect.Energy, math.Min(100, audio.RMS*100))
	} else {
		e.tracker.Decay(affect.Energy)
	}
	// Mood has no direct sensor; it drifts to resting unless an analysis
	// estimation moves it.
	e.tracker.Decay(affect.Mood)

	crossed := map[string]bool{}
	if videoFresh && video.ArousalSignal >= e.cfg.Triggers.ArousalHigh {
		crossed[TriggerHighArousal] = true
	}
	if audioFresh && audio.RMS >= e.cfg.Triggers.AudioLevelHigh {
		crossed[TriggerHighAudioLevel] = true
	}
	if videoFresh && video.VideoActivity >= e.cfg.Triggers.VideoActivityHigh {
		crossed[TriggerHighVideoActivity] = true
	}

	reqCtx = analysis.RequestContext{
		AffectState:   stateMap(e.tracker.State()),
		AudioRMS:      audio.RMS,
		VideoActivity: video.VideoActivity,
		ActiveWindow:  e.activeWindow,
		Mode:          string(mode),
	}
	reason = e.resolveReason(crossed)
	return reason, mode != ModeDnd, reqCtx, reason != ""
}

// resolveReason picks the highest-precedence crossed trigger.
func (e *Engine) resolveReason(crossed map[string]bool) string {
	precedence := e.cfg.Triggers.Precedence
	if len(precedence) == 0 {
		precedence = defaultPrecedence
	}
	for _, reason := range precedence {
		if crossed[reason] {
			return reason
		}
	}
	return ""
}

// GetMode returns the current mode, auto-restoring active when a snooze
// deadline has passed. The restore goes through SetMode so the listener
// fires.
func (e *Engine) GetMode() Mode {
	e.mu.Lock()
	mode := e.mode
	expired := mode == ModeSnoozed && !e.snoozeUntil.IsZero() && !e.now().Before(e.snoozeUntil)
	e.mu.Unlock()

	if expired {
		e.logger.Info().Msg("snooze expired, returning to active")
		e.SetMode(ModeActive)
		return ModeActive
	}
	return mode
}

// SetMode transitions to the given mode. Invalid modes and same-mode sets
// are silent no-ops. This is the only path that invokes the mode change
// listener.
func (e *Engine) SetMode(newMode Mode) {
	if !newMode.Valid() {
		e.logger.Warn().Str("mode", string(newMode)).Msg("ignoring unknown mode")
		return
	}

	e.mu.Lock()
	old := e.mode
	if old == newMode {
		e.mu.Unlock()
		return
	}
	e.mode = newMode
	switch newMode {
	case ModeSnoozed:
		e.snoozeUntil = e.now().Add(e.cfg.App.SnoozeDuration)
	case ModeActive, ModeDnd:
		e.snoozeUntil = time.Time{}
	}
	// Entering paused keeps an armed snooze deadline so resume can honor it.
	e.mu.Unlock()

	e.logger.Info().Str("from", string(old)).Str("to", string(newMode)).Msg("mode changed")
	if e.events != nil {
		e.events.Append(eventlog.KindModeChange, map[string]any{
			"from": string(old),
			"to":   string(newMode),
		})
	}
	if e.eventBus != nil {
		e.eventBus.Publish(bus.Event{Type: bus.EventTypeModeChanged, Data: map[string]any{
			"from": string(old),
			"to":   string(newMode),
		}})
	}
	if e.onModeChange != nil {
		e.onModeChange(old, newMode)
	}
}

// CycleMode advances through the quick-cycle active, snoozed, dnd.
func (e *Engine) CycleMode() {
	e.SetMode(e.GetMode().next())
}

// TogglePauseResume pauses from any mode, remembering it, and resumes back
// to the remembered mode. A snooze that expired while paused resumes to
// active instead.
func (e *Engine) TogglePauseResume() {
	e.mu.Lock()
	if e.mode != ModePaused {
		e.previousMode = e.mode
		e.mu.Unlock()
		e.SetMode(ModePaused)
		return
	}

	target := e.previousMode
	if !target.Valid() || target == ModePaused {
		target = ModeActive
	}
	if target == ModeSnoozed && (e.snoozeUntil.IsZero() || !e.now().Before(e.snoozeUntil)) {
		target = ModeActive
	}
	e.mu.Unlock()
	e.SetMode(target)
}

// SetSensorError flips the sensor-error overlay. Transitions are reported
// once each way.
func (e *Engine) SetSensorError(hasError bool, detail string) {
	e.mu.Lock()
	changed := e.sensorError != hasError
	e.sensorError = hasError
	e.sensorDetail = detail
	e.mu.Unlock()

	if !changed {
		return
	}
	if hasError {
		e.logger.Warn().Str("detail", detail).Msg("sensor error, status overlay set")
		if e.events != nil {
			e.events.Append(eventlog.KindSensorError, map[string]any{"detail": detail})
		}
		if e.eventBus != nil {
			e.eventBus.Publish(bus.Event{Type: bus.EventTypeSensorError, Data: map[string]any{"detail": detail}})
		}
		return
	}
	e.logger.Info().Msg("sensors recovered, status overlay cleared")
	if e.events != nil {
		e.events.Append(eventlog.KindSensorRecovered, nil)
	}
	if e.eventBus != nil {
		e.eventBus.Publish(bus.Event{Type: bus.EventTypeSensorRecovered})
	}
}

// HasSensorError reports whether the overlay is set.
func (e *Engine) HasSensorError() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sensorError
}

// EffectiveStatus is the presentation string: "error" while a sensor is
// failing, otherwise the mode.
func (e *Engine) EffectiveStatus() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sensorError {
		return StatusError
	}
	return string(e.mode)
}

// IsFaceDetected reports the latest face presence.
func (e *Engine) IsFaceDetected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.face.FaceDetected
}

// FaceState returns the latest face picture.
func (e *Engine) FaceState() FaceMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.face
}

// AffectState returns a consistent snapshot of the smoothed state.
func (e *Engine) AffectState() affect.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.State()
}

// ApplyStateEstimation folds an analysis state estimation into the affect
// state through the same smoothing path as sensor samples. Unknown keys
// are ignored.
func (e *Engine) ApplyStateEstimation(est map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dim := range affect.Dimensions {
		if v, ok := est[string(dim)]; ok {
			e.tracker.Observe(dim, v)
		}
	}
}

func stateMap(s affect.State) map[string]float64 {
	return map[string]float64{
		string(affect.Arousal):  s.Arousal,
		string(affect.Energy):   s.Energy,
		string(affect.Focus):    s.Focus,
		string(affect.Mood):     s.Mood,
		string(affect.Overload): s.Overload,
	}
}
