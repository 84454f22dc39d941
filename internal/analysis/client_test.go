package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "high_audio_level", req.Reason)
		assert.Equal(t, "active", req.Context.Mode)

		json.NewEncoder(w).Encode(Response{
			Suggestion: &Suggestion{
				Type:    "sensory",
				Message: "Put on your headphones.",
			},
			StateEstimation: map[string]float64{"overload": 72},
		})
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{ServiceURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	resp, err := client.Analyze(context.Background(), &Request{
		Reason:  "high_audio_level",
		Context: RequestContext{Mode: "active", AudioRMS: 0.8},
	})

	require.NoError(t, err)
	require.NotNil(t, resp.Suggestion)
	assert.Equal(t, "sensory", resp.Suggestion.Type)
	assert.Equal(t, "Put on your headphones.", resp.Suggestion.Message)
	assert.Equal(t, 72.0, resp.StateEstimation["overload"])
}

func TestClientAnalyzeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{ServiceURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	_, err := client.Analyze(context.Background(), &Request{Reason: "high_video_activity"})
	assert.Error(t, err)
}

func TestClientAnalyzeUnreachable(t *testing.T) {
	client := NewClient(&ClientConfig{ServiceURL: "http://127.0.0.1:1", Timeout: time.Second}, zerolog.Nop())
	_, err := client.Analyze(context.Background(), &Request{Reason: "high_audio_level"})
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
}

func TestClientAnalyzeEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{ServiceURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	_, err := client.Analyze(context.Background(), &Request{Reason: "high_audio_level"})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}
