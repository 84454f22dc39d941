package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// wsMetricsMessage is pushed by the capture sidecar for every processed
// frame. The raw pixel buffer never crosses this socket.
type wsMetricsMessage struct {
	Type          string   `json:"type"` // "metrics" or "error"
	FaceDetected  bool     `json:"face_detected"`
	FaceCount     int      `json:"face_count"`
	FaceLocations [][4]int `json:"face_locations"`
	VideoActivity float64  `json:"video_activity"`
	ArousalSignal float64  `json:"arousal_signal"`
	Timestamp     string   `json:"timestamp"`
	Message       string   `json:"message,omitempty"`
}

// WSVideoSource is a VideoSource backed by a WebSocket connection to the
// frame-capture sidecar. The sidecar does capture and face detection; this
// client holds the most recent metrics and serves them to ReadFrame.
type WSVideoSource struct {
	url    string
	logger zerolog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	latest    *FrameMetrics
	lastErr   error

	cancel context.CancelFunc
	closed bool
}

// NewWSVideoSource creates a client for the sidecar at url (ws:// or wss://).
func NewWSVideoSource(url string, logger zerolog.Logger) *WSVideoSource {
	return &WSVideoSource{
		url:    url,
		logger: logger.With().Str("component", "video-ws").Logger(),
	}
}

// Connect establishes the connection and keeps it alive with reconnection.
func (s *WSVideoSource) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.connectLoop(ctx)
	return nil
}

// ReadFrame returns the most recent metrics received from the sidecar.
// A metrics sample is served once: repeated reads between pushes report
// ErrNoSample so the engine treats them as "no new sample".
func (s *WSVideoSource) ReadFrame() (*FrameMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}
	if !s.connected {
		if s.lastErr != nil {
			return nil, fmt.Errorf("video sidecar unavailable: %w", s.lastErr)
		}
		return nil, ErrNotConnected
	}
	if s.latest == nil {
		return nil, ErrNoSample
	}
	m := s.latest
	s.latest = nil
	return m, nil
}

// IsConnected returns connection status.
func (s *WSVideoSource) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Close tears down the connection. Safe to call more than once.
func (s *WSVideoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	return nil
}

// connectLoop maintains the WebSocket connection with backoff reconnection.
func (s *WSVideoSource) connectLoop(ctx context.Context) {
	backoff := 3 * time.Second
	maxBackoff := 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.runConnection(ctx); err != nil {
			s.mu.Lock()
			s.connected = false
			s.lastErr = err
			s.mu.Unlock()
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Video sidecar connection lost, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		backoff = 3 * time.Second
	}
}

// runConnection dials and consumes messages until the connection drops.
func (s *WSVideoSource) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().Str("url", s.url).Msg("Connected to video sidecar")

	defer func() {
		conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg wsMetricsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Malformed sidecar message, skipping")
			continue
		}

		switch msg.Type {
		case "metrics":
			ts, _ := time.Parse(time.RFC3339, msg.Timestamp)
			if ts.IsZero() {
				ts = time.Now()
			}
			s.mu.Lock()
			s.latest = &FrameMetrics{
				FaceDetected:  msg.FaceDetected,
				FaceCount:     msg.FaceCount,
				FaceLocations: msg.FaceLocations,
				VideoActivity: msg.VideoActivity,
				ArousalSignal: msg.ArousalSignal,
				Timestamp:     ts,
			}
			s.mu.Unlock()
		case "error":
			s.logger.Warn().Str("message", msg.Message).Msg("Video sidecar reported error")
		default:
			// Unknown message types are ignored for forward compatibility.
		}
	}
}
