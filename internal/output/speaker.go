// Package output holds the thin delivery adapters: system speech and the
// visual nudge channel. Failures here are logged, never surfaced to the
// orchestrator.
package output

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SystemSpeaker speaks through the platform speech command: say on macOS,
// spd-say or espeak on Linux. When no command is available it degrades to
// logging the text.
type SystemSpeaker struct {
	logger  zerolog.Logger
	rate    int
	timeout time.Duration

	mu      sync.Mutex // serializes utterances
	command string
}

// NewSystemSpeaker probes for a speech command and returns the speaker.
func NewSystemSpeaker(logger zerolog.Logger) *SystemSpeaker {
	s := &SystemSpeaker{
		logger:  logger.With().Str("component", "speaker").Logger(),
		rate:    175,
		timeout: 30 * time.Second,
		command: probeSpeechCommand(),
	}
	if s.command == "" {
		s.logger.Warn().Msg("No speech command found, speech degrades to log output")
	} else {
		s.logger.Info().Str("command", s.command).Msg("Speech command selected")
	}
	return s
}

func probeSpeechCommand() string {
	var candidates []string
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	} else {
		candidates = []string{"spd-say", "espeak"}
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c); err == nil {
			return c
		}
	}
	return ""
}

// Speak voices the text. With blocking false the utterance runs on its own
// goroutine so the caller never waits on audio.
func (s *SystemSpeaker) Speak(text string, blocking bool) {
	if text == "" {
		return
	}
	if blocking {
		s.speak(text)
		return
	}
	go s.speak(text)
}

func (s *SystemSpeaker) speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.command == "" {
		s.logger.Info().Str("text", text).Msg("Speech (no audio backend)")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch s.command {
	case "say":
		cmd = exec.CommandContext(ctx, "say", "-r", fmt.Sprintf("%d", s.rate), text)
	case "spd-say":
		cmd = exec.CommandContext(ctx, "spd-say", "--wait", text)
	default:
		cmd = exec.CommandContext(ctx, s.command, text)
	}

	s.logger.Debug().Int("textLen", len(text)).Msg("Speaking")
	if err := cmd.Run(); err != nil {
		s.logger.Warn().Err(err).Msg("Speech command failed")
	}
}
