package main

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/analysis"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/bus"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/config"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/engine"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/eventlog"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/intervention"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/logging"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/output"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/sampling"
	"github.com/IAMCANADIAN-cyber/ASDGPT-sub001/internal/sensors"
)

func main() {
	syslog, err := logging.New(nil)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	mainLog := syslog.Component("main")
	mainLog.Info().Msg("========================================")
	mainLog.Info().Msg("Co-regulator starting...")
	mainLog.Info().Msg("========================================")

	cfg, err := config.Load()
	if err != nil {
		mainLog.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}
	for _, fixed := range cfg.Normalize() {
		mainLog.Warn().Str("field", fixed).Msg("Config value out of range, reset to default")
	}
	mainLog.Info().
		Str("defaultMode", cfg.App.DefaultMode).
		Dur("tickInterval", cfg.App.TickInterval).
		Str("analysisURL", cfg.Analysis.ServiceURL).
		Msg("Configuration loaded")

	app := newApp(cfg, syslog.Zerolog())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		mainLog.Error().Err(err).Msg("Startup failed")
		os.Exit(1)
	}

	go app.readCommands(ctx, os.Stdin)

	app.Run(ctx)
	app.Shutdown()

	mainLog.Info().Msg("Application exited normally")
}

// App wires the core components and owns the tick loop.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	eventBus     *bus.EventBus
	events       *eventlog.Store
	engine       *engine.Engine
	gate         *analysis.Gate
	orchestrator *intervention.Orchestrator
	library      *intervention.Library
	policy       *sampling.Policy
	health       *sensors.Health
	workers      *sensors.Workers
	videoQueue   *sensors.Queue[*sensors.FrameMetrics]
	audioQueue   *sensors.Queue[*sensors.AudioMetrics]
	videoSource  *sensors.WSVideoSource
	audioSource  *sensors.WSAudioSource
	windows      sensors.WindowSource

	shutdownOnce sync.Once
}

func newApp(cfg *config.Config, zlogger zerolog.Logger) *App {
	eventBus := bus.NewEventBus()

	events, err := eventlog.Open(cfg.EventLog.DatabaseFile, zlogger)
	if err != nil {
		zlogger.Warn().Err(err).Msg("Event log unavailable, continuing without persistence")
	}

	eng := engine.NewEngine(cfg, nil, events, eventBus, zlogger)

	speaker := output.NewSystemSpeaker(zlogger)
	flasher := output.NewBusFlasher(eventBus, zlogger)
	orchestrator := intervention.NewOrchestrator(cfg.Intervention, speaker, flasher, events, eventBus, zlogger)
	orchestrator.SetModeFunc(func() string { return string(eng.GetMode()) })
	eng.SetModeChangeHandler(func(old, newMode engine.Mode) {
		orchestrator.NotifyModeChange(string(newMode), "")
	})

	breaker := analysis.NewCircuitBreaker(analysis.BreakerConfig{
		CallInterval: cfg.Analysis.CallInterval,
		MaxFailures:  cfg.Analysis.MaxFailures,
		Cooldown:     cfg.Analysis.Cooldown,
	})
	client := analysis.NewClient(&analysis.ClientConfig{
		ServiceURL: cfg.Analysis.ServiceURL,
		Timeout:    cfg.Analysis.Timeout,
	}, zlogger)
	gate := analysis.NewGate(breaker, client, orchestrator, eng, events, eventBus, zlogger)
	eng.SetTriggerDispatcher(gate)

	policy := sampling.NewPolicy(sampling.Config{
		EcoEnabled:        cfg.Sampling.EcoEnabled,
		ActiveDelay:       cfg.Sampling.ActiveDelay,
		EcoDelay:          cfg.Sampling.EcoDelay,
		IdleDelay:         cfg.Sampling.IdleDelay,
		WakeThreshold:     cfg.Sampling.WakeThreshold,
		FaceCheckInterval: cfg.Sampling.FaceCheckInterval,
	})

	health := sensors.NewHealth()
	health.SetChangeHandler(func(unhealthy bool, detail string) {
		eng.SetSensorError(unhealthy, detail)
	})

	videoSource := sensors.NewWSVideoSource(cfg.Sensors.VideoSidecarURL, zlogger)
	audioSource := sensors.NewWSAudioSource(cfg.Sensors.AudioSidecarURL, zlogger)
	videoQueue := sensors.NewQueue[*sensors.FrameMetrics](cfg.Sensors.VideoQueueSize)
	audioQueue := sensors.NewQueue[*sensors.AudioMetrics](cfg.Sensors.AudioQueueSize)

	workers := sensors.NewWorkers(sensors.WorkerConfig{
		Video:      videoSource,
		Audio:      audioSource,
		VideoQueue: videoQueue,
		AudioQueue: audioQueue,
		VideoDelay: func() time.Duration {
			return policy.PollDelay(eng.GetMode() == engine.ModeActive, eng.IsFaceDetected())
		},
		AudioDelay:   cfg.Sensors.AudioPollDelay,
		ShouldDetect: activeDetectGate(eng, policy),
		Health:       health,
		JoinLimit:    cfg.App.ShutdownJoinLimit,
	}, zlogger)

	return &App{
		cfg:          cfg,
		logger:       zlogger.With().Str("component", "app").Logger(),
		eventBus:     eventBus,
		events:       events,
		engine:       eng,
		gate:         gate,
		orchestrator: orchestrator,
		library:      intervention.NewLibrary(),
		policy:       policy,
		health:       health,
		workers:      workers,
		videoQueue:   videoQueue,
		audioQueue:   audioQueue,
		videoSource:  videoSource,
		audioSource:  audioSource,
		windows:      sensors.NewCommandWindowSource(2 * time.Second),
	}
}

// activeDetectGate throttles the face-detection pass only while the engine
// is in the active mode. In every other mode the sidecar's face fields pass
// through untouched and the policy's skip counter is left alone, so the
// cadence picks up where it left off on resume.
func activeDetectGate(eng *engine.Engine, policy *sampling.Policy) func(faceDetected bool, activity float64) bool {
	return func(faceDetected bool, activity float64) bool {
		if eng.GetMode() != engine.ModeActive {
			return true
		}
		return policy.ShouldRunFaceDetection(faceDetected, activity)
	}
}

// Start connects the sidecars and launches the sensor workers.
func (a *App) Start(ctx context.Context) error {
	if err := a.videoSource.Connect(ctx); err != nil {
		return err
	}
	if err := a.audioSource.Connect(ctx); err != nil {
		return err
	}
	if err := a.workers.Start(); err != nil {
		return err
	}

	// Sampling cadence follows config edits without a restart.
	config.Watch(func(updated *config.Config) {
		updated.Normalize()
		a.policy.UpdateConfig(sampling.Config{
			EcoEnabled:        updated.Sampling.EcoEnabled,
			ActiveDelay:       updated.Sampling.ActiveDelay,
			EcoDelay:          updated.Sampling.EcoDelay,
			IdleDelay:         updated.Sampling.IdleDelay,
			WakeThreshold:     updated.Sampling.WakeThreshold,
			FaceCheckInterval: updated.Sampling.FaceCheckInterval,
		})
		a.logger.Info().Msg("Sampling config reloaded")
	})

	a.logger.Info().Str("mode", string(a.engine.GetMode())).Msg("Co-regulator started")
	return nil
}

// Run drives the tick loop until the context is cancelled.
func (a *App) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.App.TickInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, m := range a.videoQueue.Drain() {
			a.engine.ProcessVideoData(m)
		}
		for _, m := range a.audioQueue.Drain() {
			a.engine.ProcessAudioData(m)
		}
		a.engine.Update(ctx)

		tick++
		if a.cfg.App.SensorCheckTicks > 0 && tick%a.cfg.App.SensorCheckTicks == 0 {
			go a.refreshActiveWindow()
		}
	}
}

// refreshActiveWindow polls the focused window title off the tick thread.
func (a *App) refreshActiveWindow() {
	title, err := a.windows.ActiveWindow()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Active window lookup failed")
		return
	}
	a.engine.SetActiveWindow(title)
}

// readCommands is the minimal control surface: one command per line on
// stdin. The hotkey daemon feeds this pipe in a desktop deployment.
func (a *App) readCommands(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "cycle":
			a.OnCycleMode()
		case "pause", "resume":
			a.OnPauseResume()
		case "helpful":
			a.OnFeedbackHelpful()
		case "unhelpful":
			a.OnFeedbackUnhelpful()
		case "intervene":
			if len(fields) < 2 {
				a.logger.Warn().Msg("intervene requires an intervention id")
				continue
			}
			entry, ok := a.library.Get(fields[1])
			if !ok {
				a.logger.Warn().Str("id", fields[1]).Msg("Unknown intervention id")
				continue
			}
			a.orchestrator.ProvideIntervention(entry.ID, entry.Message)
		case "status":
			state := a.engine.AffectState()
			a.logger.Info().
				Str("status", a.engine.EffectiveStatus()).
				Float64("arousal", state.Arousal).
				Float64("energy", state.Energy).
				Float64("focus", state.Focus).
				Float64("mood", state.Mood).
				Float64("overload", state.Overload).
				Bool("breakerOpen", a.gate.Breaker().IsOpen()).
				Msg("Status")
		default:
			a.logger.Warn().Str("command", fields[0]).Msg("Unknown command")
		}
	}
}

// Hotkey entry points, one per bound action. The stdin command reader and
// the hotkey adapter both land here.

func (a *App) OnCycleMode() { a.engine.CycleMode() }

func (a *App) OnPauseResume() { a.engine.TogglePauseResume() }

func (a *App) OnFeedbackHelpful() {
	a.orchestrator.RegisterFeedback(intervention.FeedbackHelpful)
}

func (a *App) OnFeedbackUnhelpful() {
	a.orchestrator.RegisterFeedback(intervention.FeedbackUnhelpful)
}

// Shutdown stops the workers and flushes the event log. Safe to call more
// than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.logger.Info().Msg("Shutting down")
		if a.events != nil {
			a.events.Append(eventlog.KindShutdown, nil)
		}
		a.eventBus.PublishSync(bus.Event{Type: bus.EventTypeShutdown})
		a.workers.Stop()
		if a.events != nil {
			if err := a.events.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("Event log close failed")
			}
		}
		a.logger.Info().Msg("Shutdown complete")
	})
}
