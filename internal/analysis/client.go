package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrServiceUnavailable = errors.New("reasoning service unavailable")
	ErrEmptyResponse      = errors.New("reasoning service returned no analysis")
)

// Request is sent to the reasoning service on a threshold crossing.
type Request struct {
	Reason  string         `json:"reason"`
	Context RequestContext `json:"context"`
}

// RequestContext carries the recent sensor picture alongside the trigger.
type RequestContext struct {
	AffectState   map[string]float64 `json:"affect_state,omitempty"`
	AudioRMS      float64            `json:"audio_rms,omitempty"`
	VideoActivity float64            `json:"video_activity,omitempty"`
	ActiveWindow  string             `json:"active_window,omitempty"`
	Mode          string             `json:"mode"`
}

// Suggestion is the actionable part of a service response.
type Suggestion struct {
	Type    string `json:"suggestion_type"`
	Message string `json:"suggestion_text"`
}

// Response is the full reasoning service reply. StateEstimation, when
// present, is folded back into the affect state by the engine.
type Response struct {
	Suggestion      *Suggestion        `json:"suggestion,omitempty"`
	StateEstimation map[string]float64 `json:"state_estimation,omitempty"`
}

// ClientConfig configures the reasoning service client.
type ClientConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServiceURL: "http://localhost:8090/analyze",
		Timeout:    10 * time.Second,
	}
}

// Client talks HTTP JSON to the reasoning service.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a reasoning service client.
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "analysis-client").Logger(),
	}
}

// Analyze sends the request and decodes the response.
func (c *Client) Analyze(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ServiceURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analysis request failed: %d - %s", resp.StatusCode, string(msg))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	if out.Suggestion == nil && out.StateEstimation == nil {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug().Str("reason", req.Reason).Msg("Analysis response received")
	return &out, nil
}
