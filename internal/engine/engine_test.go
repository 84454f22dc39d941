package engine

import (
	"context"
	"testing"
	"time"

	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/analysis"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/config"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/sensors"
	"github.com/rs/zerolog"
)

type capturedTrigger struct {
	reason            string
	allowIntervention bool
	reqCtx            analysis.RequestContext
}

type stubDispatcher struct {
	triggers []capturedTrigger
}

func (s *stubDispatcher) Trigger(ctx context.Context, reason string, allowIntervention bool, reqCtx analysis.RequestContext) bool {
	s.triggers = append(s.triggers, capturedTrigger{reason, allowIntervention, reqCtx})
	return true
}

func testEngine(t *testing.T) (*Engine, *stubDispatcher) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.App.SnoozeDuration = time.Hour
	dispatcher := &stubDispatcher{}
	e := NewEngine(cfg, dispatcher, nil, nil, zerolog.Nop())
	return e, dispatcher
}

func TestDefaultModeActive(t *testing.T) {
	e, _ := testEngine(t)
	if got := e.GetMode(); got != ModeActive {
		t.Fatalf("initial mode = %s, want active", got)
	}
}

func TestSetModeFiresListenerOnce(t *testing.T) {
	e, _ := testEngine(t)

	var calls [][2]Mode
	e.SetModeChangeHandler(func(old, newMode Mode) {
		calls = append(calls, [2]Mode{old, newMode})
	})

	e.SetMode(ModeDnd)
	e.SetMode(ModeDnd) // same-mode set is silent
	e.SetMode("bogus") // invalid is silent

	if len(calls) != 1 {
		t.Fatalf("listener fired %d times, want 1", len(calls))
	}
	if calls[0] != [2]Mode{ModeActive, ModeDnd} {
		t.Fatalf("listener saw %v", calls[0])
	}
}

func TestCycleMode(t *testing.T) {
	e, _ := testEngine(t)

	want := []Mode{ModeSnoozed, ModeDnd, ModeActive, ModeSnoozed}
	for i, w := range want {
		e.CycleMode()
		if got := e.GetMode(); got != w {
			t.Fatalf("cycle %d: mode = %s, want %s", i, got, w)
		}
	}
}

func TestCycleModeFromPausedLandsActive(t *testing.T) {
	e, _ := testEngine(t)
	e.SetMode(ModePaused)
	e.CycleMode()
	if got := e.GetMode(); got != ModeActive {
		t.Fatalf("mode = %s, want active", got)
	}
}

func TestTogglePauseResumeRestoresPriorMode(t *testing.T) {
	e, _ := testEngine(t)

	e.SetMode(ModeDnd)
	e.TogglePauseResume()
	if got := e.GetMode(); got != ModePaused {
		t.Fatalf("mode = %s, want paused", got)
	}
	e.TogglePauseResume()
	if got := e.GetMode(); got != ModeDnd {
		t.Fatalf("mode = %s, want dnd restored", got)
	}
}

func TestSnoozeExpiryRestoresActive(t *testing.T) {
	e, _ := testEngine(t)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	e.SetMode(ModeSnoozed)

	var transitions [][2]Mode
	e.SetModeChangeHandler(func(old, newMode Mode) {
		transitions = append(transitions, [2]Mode{old, newMode})
	})

	e.now = func() time.Time { return base.Add(30 * time.Minute) }
	if got := e.GetMode(); got != ModeSnoozed {
		t.Fatalf("mode = %s before deadline, want snoozed", got)
	}

	e.now = func() time.Time { return base.Add(61 * time.Minute) }
	if got := e.GetMode(); got != ModeActive {
		t.Fatalf("mode = %s after deadline, want active", got)
	}
	if len(transitions) != 1 || transitions[0] != [2]Mode{ModeSnoozed, ModeActive} {
		t.Fatalf("transitions = %v, want one snoozed->active", transitions)
	}
}

func TestSnoozeExpiredWhilePausedResumesActive(t *testing.T) {
	e, _ := testEngine(t)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	e.SetMode(ModeSnoozed)
	e.TogglePauseResume()

	e.now = func() time.Time { return base.Add(2 * time.Hour) }
	e.TogglePauseResume()
	if got := e.GetMode(); got != ModeActive {
		t.Fatalf("mode = %s, want active after snooze expired during pause", got)
	}
}

func TestUpdateDispatchesTriggerWithPrecedence(t *testing.T) {
	e, dispatcher := testEngine(t)

	// Both audio and video cross; arousal crosses too and must win.
	e.ProcessVideoData(&sensors.FrameMetrics{
		VideoActivity: 90,
		ArousalSignal: 95,
	})
	e.ProcessAudioData(&sensors.AudioMetrics{RMS: 0.9})
	e.Update(context.Background())

	if len(dispatcher.triggers) != 1 {
		t.Fatalf("dispatched %d triggers, want 1", len(dispatcher.triggers))
	}
	got := dispatcher.triggers[0]
	if got.reason != TriggerHighArousal {
		t.Fatalf("reason = %s, want %s", got.reason, TriggerHighArousal)
	}
	if !got.allowIntervention {
		t.Fatal("allowIntervention = false in active mode")
	}
	if got.reqCtx.Mode != "active" {
		t.Fatalf("request mode = %s", got.reqCtx.Mode)
	}
}

func TestUpdateCustomPrecedence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Triggers.Precedence = []string{TriggerHighVideoActivity, TriggerHighAudioLevel, TriggerHighArousal}
	dispatcher := &stubDispatcher{}
	e := NewEngine(cfg, dispatcher, nil, nil, zerolog.Nop())

	e.ProcessVideoData(&sensors.FrameMetrics{VideoActivity: 90, ArousalSignal: 95})
	e.Update(context.Background())

	if len(dispatcher.triggers) != 1 || dispatcher.triggers[0].reason != TriggerHighVideoActivity {
		t.Fatalf("triggers = %v, want one %s", dispatcher.triggers, TriggerHighVideoActivity)
	}
}

func TestUpdateInDndStillTriggersWithoutIntervention(t *testing.T) {
	e, dispatcher := testEngine(t)
	e.SetMode(ModeDnd)

	e.ProcessAudioData(&sensors.AudioMetrics{RMS: 0.9})
	e.Update(context.Background())

	if len(dispatcher.triggers) != 1 {
		t.Fatalf("dispatched %d triggers, want 1", len(dispatcher.triggers))
	}
	if dispatcher.triggers[0].allowIntervention {
		t.Fatal("allowIntervention = true in dnd")
	}
}

func TestUpdateInPausedSkipsFusionAndTriggers(t *testing.T) {
	e, dispatcher := testEngine(t)
	e.SetMode(ModePaused)

	e.ProcessAudioData(&sensors.AudioMetrics{RMS: 0.95})
	e.Update(context.Background())

	if len(dispatcher.triggers) != 0 {
		t.Fatalf("triggers dispatched while paused: %v", dispatcher.triggers)
	}
	if got := e.AffectState().Energy; got != 50 {
		t.Fatalf("energy = %v, sample folded in while paused", got)
	}

	// The dropped sample does not leak into the next active tick.
	e.SetMode(ModeActive)
	e.Update(context.Background())
	if len(dispatcher.triggers) != 0 {
		t.Fatalf("stale sample triggered after resume: %v", dispatcher.triggers)
	}
}

func TestUpdateSmoothsAndDecays(t *testing.T) {
	e, _ := testEngine(t)

	e.ProcessVideoData(&sensors.FrameMetrics{ArousalSignal: 100, FaceDetected: true})
	e.Update(context.Background())

	after := e.AffectState()
	if after.Arousal <= 50 {
		t.Fatalf("arousal = %v after a high sample, want > 50", after.Arousal)
	}

	// No further samples: the spike fades toward resting.
	for i := 0; i < 100; i++ {
		e.Update(context.Background())
	}
	decayed := e.AffectState()
	if decayed.Arousal > after.Arousal {
		t.Fatalf("arousal rose without input: %v -> %v", after.Arousal, decayed.Arousal)
	}
	if decayed.Arousal < 49 || decayed.Arousal > 51 {
		t.Fatalf("arousal = %v after decay, want near 50", decayed.Arousal)
	}
}

func TestUpdateNoCrossingNoTrigger(t *testing.T) {
	e, dispatcher := testEngine(t)

	e.ProcessVideoData(&sensors.FrameMetrics{VideoActivity: 1, ArousalSignal: 10})
	e.ProcessAudioData(&sensors.AudioMetrics{RMS: 0.1})
	e.Update(context.Background())

	if len(dispatcher.triggers) != 0 {
		t.Fatalf("triggers below thresholds: %v", dispatcher.triggers)
	}
}

func TestStaleSampleDoesNotRetrigger(t *testing.T) {
	e, dispatcher := testEngine(t)

	e.ProcessAudioData(&sensors.AudioMetrics{RMS: 0.9})
	e.Update(context.Background())
	e.Update(context.Background())

	if len(dispatcher.triggers) != 1 {
		t.Fatalf("dispatched %d triggers, want 1 (fresh sample only)", len(dispatcher.triggers))
	}
}

func TestNilSamplesIgnored(t *testing.T) {
	e, dispatcher := testEngine(t)
	e.ProcessVideoData(nil)
	e.ProcessAudioData(nil)
	e.Update(context.Background())

	if len(dispatcher.triggers) != 0 {
		t.Fatalf("nil samples produced triggers: %v", dispatcher.triggers)
	}
}

func TestSensorErrorOverlay(t *testing.T) {
	e, _ := testEngine(t)

	if got := e.EffectiveStatus(); got != "active" {
		t.Fatalf("status = %s, want active", got)
	}

	e.SetSensorError(true, "camera gone")
	if got := e.EffectiveStatus(); got != StatusError {
		t.Fatalf("status = %s, want error", got)
	}
	if got := e.GetMode(); got != ModeActive {
		t.Fatalf("mode = %s, overlay must not change the mode", got)
	}

	e.SetSensorError(false, "")
	if got := e.EffectiveStatus(); got != "active" {
		t.Fatalf("status = %s after recovery, want active", got)
	}
}

func TestFaceState(t *testing.T) {
	e, _ := testEngine(t)
	e.ProcessVideoData(&sensors.FrameMetrics{
		FaceDetected:  true,
		FaceCount:     1,
		FaceLocations: [][4]int{{10, 20, 30, 40}},
		VideoActivity: 4,
	})

	if !e.IsFaceDetected() {
		t.Fatal("IsFaceDetected = false")
	}
	face := e.FaceState()
	if face.FaceCount != 1 || face.VideoActivity != 4 {
		t.Fatalf("face = %+v", face)
	}
}

func TestApplyStateEstimation(t *testing.T) {
	e, _ := testEngine(t)

	e.ApplyStateEstimation(map[string]float64{
		"mood":    100,
		"unknown": 12,
	})

	s := e.AffectState()
	if s.Mood <= 50 {
		t.Fatalf("mood = %v, estimation not applied", s.Mood)
	}
	if s.Arousal != 50 {
		t.Fatalf("arousal = %v, moved by an unknown key", s.Arousal)
	}
}

func TestUpdateRecoversFromPanic(t *testing.T) {
	e := &Engine{logger: zerolog.Nop(), now: time.Now}
	// A nil config would panic inside the tick; the recover keeps it contained.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped Update: %v", r)
		}
	}()
	e.Update(context.Background())
}
