package sensors

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// CommandWindowSource reads the focused window title through the platform
// tool (osascript on macOS, xdotool on X11). Absence of the tool is not an
// error; the title is simply unavailable.
type CommandWindowSource struct {
	timeout time.Duration
}

// NewCommandWindowSource creates a window source with a per-call timeout.
func NewCommandWindowSource(timeout time.Duration) *CommandWindowSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &CommandWindowSource{timeout: timeout}
}

// ActiveWindow returns the focused window title, or "" when it cannot be
// determined.
func (s *CommandWindowSource) ActiveWindow() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "osascript", "-e",
			`tell application "System Events" to get name of first application process whose frontmost is true`)
	case "linux":
		if _, err := exec.LookPath("xdotool"); err != nil {
			return "", nil
		}
		cmd = exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowname")
	default:
		return "", nil
	}

	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
