package daemon

import (
	"log/slog"

	"github.com/ankittk/missioncontrol/internal/config"
)

// StartOptions configures the daemon. Config carries everything loaded from config.yaml
// and the environment; CLI flags are applied onto it before StartForeground.
type StartOptions struct {
	Home    string
	Config  config.Config
	EnvFile string       // passed to the background child so it sees the same environment
	Logger  *slog.Logger // defaults to NewLogger(Config.Log, os.Stderr)
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
