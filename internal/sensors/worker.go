package sensors

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WorkerConfig wires the sensor workers to their collaborators.
type WorkerConfig struct {
	Video VideoSource
	Audio AudioSource

	VideoQueue *Queue[*FrameMetrics]
	AudioQueue *Queue[*AudioMetrics]

	// VideoDelay is consulted before every video poll; the sampling policy
	// provides it so cadence adapts to mode and face presence.
	VideoDelay func() time.Duration
	AudioDelay time.Duration

	// ShouldDetect decides per frame whether face-detection results are
	// kept. On a skipped frame the face fields are blanked while the
	// activity measurement passes through untouched.
	ShouldDetect func(faceDetected bool, activity float64) bool

	Health *Health

	// JoinLimit bounds how long Stop waits for workers to exit.
	JoinLimit time.Duration
}

// Workers runs one polling goroutine per sensor source and pushes samples
// into the bounded queues. Producers never block on a full queue.
type Workers struct {
	cfg    WorkerConfig
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewWorkers creates the worker set.
func NewWorkers(cfg WorkerConfig, logger zerolog.Logger) *Workers {
	if cfg.AudioDelay <= 0 {
		cfg.AudioDelay = 100 * time.Millisecond
	}
	if cfg.JoinLimit <= 0 {
		cfg.JoinLimit = 3 * time.Second
	}
	return &Workers{
		cfg:    cfg,
		logger: logger.With().Str("component", "sensors").Logger(),
		stop:   make(chan struct{}),
	}
}

// Start launches the polling goroutines.
func (w *Workers) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	if w.cfg.Video != nil {
		w.wg.Add(1)
		go w.videoLoop()
	}
	if w.cfg.Audio != nil {
		w.wg.Add(1)
		go w.audioLoop()
	}

	w.logger.Info().Msg("Sensor workers started")
	return nil
}

// Stop signals the workers and waits up to JoinLimit for them to exit.
// A worker stuck in a slow adapter call is abandoned with a warning so
// shutdown never hangs. Stop is idempotent.
func (w *Workers) Stop() {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stop)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info().Msg("Sensor workers stopped")
	case <-time.After(w.cfg.JoinLimit):
		w.logger.Warn().Dur("limit", w.cfg.JoinLimit).Msg("Sensor workers did not exit in time, proceeding with shutdown")
	}

	if w.cfg.Video != nil {
		if err := w.cfg.Video.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to close video source")
		}
	}
	if w.cfg.Audio != nil {
		if err := w.cfg.Audio.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to close audio source")
		}
	}
}

func (w *Workers) videoLoop() {
	defer w.wg.Done()

	for {
		delay := 200 * time.Millisecond
		if w.cfg.VideoDelay != nil {
			delay = w.cfg.VideoDelay()
		}

		select {
		case <-w.stop:
			return
		case <-time.After(delay):
		}

		metrics, err := w.cfg.Video.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrNoSample) {
				continue
			}
			if w.cfg.Health != nil {
				w.cfg.Health.ReportError("video", err)
			}
			continue
		}
		if w.cfg.Health != nil {
			w.cfg.Health.ReportOK("video")
		}
		if metrics == nil {
			continue
		}
		if w.cfg.ShouldDetect != nil && !w.cfg.ShouldDetect(metrics.FaceDetected, metrics.VideoActivity) {
			metrics.FaceDetected = false
			metrics.FaceCount = 0
			metrics.FaceLocations = nil
		}
		if !w.cfg.VideoQueue.Push(metrics) {
			w.logger.Debug().Msg("Video queue full, sample dropped")
		}
	}
}

func (w *Workers) audioLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.AudioDelay)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		metrics, err := w.cfg.Audio.ReadChunk()
		if err != nil {
			if errors.Is(err, ErrNoSample) {
				continue
			}
			if w.cfg.Health != nil {
				w.cfg.Health.ReportError("audio", err)
			}
			continue
		}
		if w.cfg.Health != nil {
			w.cfg.Health.ReportOK("audio")
		}
		if metrics == nil {
			continue
		}
		if !w.cfg.AudioQueue.Push(metrics) {
			w.logger.Debug().Msg("Audio queue full, sample dropped")
		}
	}
}
