// Package sensors defines the adapter contracts the core consumes, the
// bounded sample queues between adapters and the fusion engine, and the
// worker goroutines that poll adapters.
package sensors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrSourceClosed   = errors.New("sensor source closed")
	ErrNoSample       = errors.New("no sample available")
	ErrNotConnected   = errors.New("sensor not connected")
	ErrAlreadyStarted = errors.New("sensor workers already started")
)

// FrameMetrics is the per-frame summary produced by the video adapter. The
// raw pixel buffer stays on the adapter side; the core only sees metrics.
type FrameMetrics struct {
	FaceDetected  bool      `json:"face_detected"`
	FaceCount     int       `json:"face_count"`
	FaceLocations [][4]int  `json:"face_locations"` // x, y, w, h
	VideoActivity float64   `json:"video_activity"` // frame-difference magnitude
	ArousalSignal float64   `json:"arousal_signal"` // specialized classifier output, 0-100
	Timestamp     time.Time `json:"timestamp"`
}

// AudioMetrics is the per-chunk summary produced by the audio adapter.
type AudioMetrics struct {
	RMS       float64   `json:"rms"`
	Pitch     float64   `json:"pitch"`
	Timestamp time.Time `json:"timestamp"`
}

// VideoSource produces the latest frame metrics on demand. Implementations
// enforce their own capture timeouts.
type VideoSource interface {
	ReadFrame() (*FrameMetrics, error)
	Close() error
}

// AudioSource produces the latest audio metrics on demand.
type AudioSource interface {
	ReadChunk() (*AudioMetrics, error)
	Close() error
}

// WindowSource returns the sanitized active-window title. Redaction happens
// upstream; the core never sees raw titles.
type WindowSource interface {
	ActiveWindow() (string, error)
}
