package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/config"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/engine"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/intervention"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/sampling"
)

type silentSpeaker struct{}

func (silentSpeaker) Speak(text string, blocking bool) {}

type silentFlasher struct{}

func (silentFlasher) Flash(status intervention.FlashStatus, duration time.Duration, count int) {}

func TestInterveneCommandRecordsEntryID(t *testing.T) {
	orch := intervention.NewOrchestrator(config.InterventionConfig{
		MinTimeBetween:  5 * time.Minute,
		FeedbackWindow:  15 * time.Second,
		DefaultDuration: 10 * time.Second,
	}, silentSpeaker{}, silentFlasher{}, nil, nil, zerolog.Nop())

	a := &App{
		logger:       zerolog.Nop(),
		library:      intervention.NewLibrary(),
		orchestrator: orch,
	}

	a.readCommands(context.Background(), strings.NewReader("intervene phys_box_breathing\n"))

	rec, ok := orch.LastRecord()
	if !ok {
		t.Fatal("no delivery recorded for intervene command")
	}
	if rec.Type != "phys_box_breathing" {
		t.Fatalf("record type = %q, want the library entry id phys_box_breathing", rec.Type)
	}
}

func TestDetectGateOnlyThrottlesWhileActive(t *testing.T) {
	cfg := config.DefaultConfig()
	eng := engine.NewEngine(cfg, nil, nil, nil, zerolog.Nop())
	policy := sampling.NewPolicy(sampling.Config{
		WakeThreshold:     5.0,
		FaceCheckInterval: 3,
	})
	gate := activeDetectGate(eng, policy)

	eng.SetMode(engine.ModeSnoozed)
	for i := 0; i < 6; i++ {
		if !gate(false, 0) {
			t.Fatalf("frame %d suppressed outside active mode", i)
		}
	}

	// The skip counter was not advanced while snoozed: back in active mode
	// the interval starts from scratch, so the first two quiet frames skip
	// and the third runs.
	eng.SetMode(engine.ModeActive)
	got := []bool{gate(false, 0), gate(false, 0), gate(false, 0)}
	want := []bool{false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active frames = %v, want %v", got, want)
		}
	}
}
