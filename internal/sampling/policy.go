// Package sampling implements the adaptive video sampling policy ("eco
// mode"): how long to wait before the next frame, and whether the expensive
// face-detection pass should run on a given frame.
package sampling

import (
	"sync"
	"time"
)

// Config holds sampling policy configuration.
type Config struct {
	EcoEnabled        bool          // eco delay applies when no face is visible
	ActiveDelay       time.Duration // delay while a face is detected
	EcoDelay          time.Duration // delay with no face and eco enabled
	IdleDelay         time.Duration // delay whenever mode is not active
	WakeThreshold     float64       // activity level that forces detection
	FaceCheckInterval int           // run detection every Nth skipped frame
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		EcoEnabled:        true,
		ActiveDelay:       50 * time.Millisecond,
		EcoDelay:          1 * time.Second,
		IdleDelay:         200 * time.Millisecond,
		WakeThreshold:     5.0,
		FaceCheckInterval: 5,
	}
}

// Policy decides per-frame sampling behavior. Safe for concurrent use: the
// video worker consults it while the tick thread may update config.
type Policy struct {
	mu      sync.Mutex
	cfg     Config
	counter int // frames skipped since last face-detection run
}

// NewPolicy creates a policy with the given configuration.
func NewPolicy(cfg Config) *Policy {
	if cfg.FaceCheckInterval <= 0 {
		cfg.FaceCheckInterval = DefaultConfig().FaceCheckInterval
	}
	return &Policy{cfg: cfg}
}

// UpdateConfig swaps in new thresholds; the skip counter is preserved.
func (p *Policy) UpdateConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.FaceCheckInterval <= 0 {
		cfg.FaceCheckInterval = DefaultConfig().FaceCheckInterval
	}
	p.cfg = cfg
}

// PollDelay returns the delay before the next video sample.
// Outside active mode there is nothing to monitor, so a fixed idle delay
// applies. In active mode a visible face means fast sampling; with no face
// the eco delay applies only when eco mode is enabled.
func (p *Policy) PollDelay(modeActive, faceDetected bool) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !modeActive {
		return p.cfg.IdleDelay
	}
	if faceDetected {
		return p.cfg.ActiveDelay
	}
	if p.cfg.EcoEnabled {
		return p.cfg.EcoDelay
	}
	return p.cfg.ActiveDelay
}

// ShouldRunFaceDetection reports whether the face-detection pass should run
// for the current frame.
//
// A detected face must be reconfirmed every frame so its departure is
// noticed promptly. Rising activity above the wake threshold also forces a
// run: motion may mean a face is about to reappear. Otherwise frames are
// skipped and detection runs only on every FaceCheckInterval-th skip.
// Frame-difference activity is computed by the caller unconditionally; it
// is cheap and feeds the wake check.
func (p *Policy) ShouldRunFaceDetection(faceDetected bool, activity float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if faceDetected {
		p.counter = 0
		return true
	}
	if activity > p.cfg.WakeThreshold {
		p.counter = 0
		return true
	}

	p.counter++
	return p.counter%p.cfg.FaceCheckInterval == 0
}

// Reset clears the skip counter.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter = 0
}
