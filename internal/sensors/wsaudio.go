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

// wsAudioMessage is pushed by the capture sidecar for every processed
// audio chunk.
type wsAudioMessage struct {
	Type      string  `json:"type"` // "metrics" or "error"
	RMS       float64 `json:"rms"`
	Pitch     float64 `json:"pitch"`
	Timestamp string  `json:"timestamp"`
	Message   string  `json:"message,omitempty"`
}

// WSAudioSource is an AudioSource backed by a WebSocket connection to the
// audio-capture sidecar. Raw audio stays on the sidecar; only per-chunk
// metrics cross the socket.
type WSAudioSource struct {
	url    string
	logger zerolog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	latest    *AudioMetrics
	lastErr   error

	cancel context.CancelFunc
	closed bool
}

// NewWSAudioSource creates a client for the sidecar at url.
func NewWSAudioSource(url string, logger zerolog.Logger) *WSAudioSource {
	return &WSAudioSource{
		url:    url,
		logger: logger.With().Str("component", "audio-ws").Logger(),
	}
}

// Connect establishes the connection and keeps it alive with reconnection.
func (s *WSAudioSource) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.connectLoop(ctx)
	return nil
}

// ReadChunk returns the most recent metrics, served once per push.
func (s *WSAudioSource) ReadChunk() (*AudioMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}
	if !s.connected {
		if s.lastErr != nil {
			return nil, fmt.Errorf("audio sidecar unavailable: %w", s.lastErr)
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
func (s *WSAudioSource) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Close tears down the connection. Safe to call more than once.
func (s *WSAudioSource) Close() error {
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

func (s *WSAudioSource) connectLoop(ctx context.Context) {
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
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Audio sidecar connection lost, reconnecting")

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

func (s *WSAudioSource) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().Str("url", s.url).Msg("Connected to audio sidecar")

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

		var msg wsAudioMessage
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
			s.latest = &AudioMetrics{
				RMS:       msg.RMS,
				Pitch:     msg.Pitch,
				Timestamp: ts,
			}
			s.mu.Unlock()
		case "error":
			s.logger.Warn().Str("message", msg.Message).Msg("Audio sidecar reported error")
		default:
		}
	}
}
