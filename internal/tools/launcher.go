package tools

import (
	"context"
	"log/slog"
)

// Intent describes a platform action a tool wants performed. It mirrors
// the shape of a mobile platform intent: an action identifier plus
// loosely typed extras.
type Intent struct {
	// Action identifies the platform capability to invoke.
	Action string
	// Data is an optional primary payload (e.g. a tel: URI).
	Data string
	// Extras carries action-specific parameters.
	Extras map[string]any
}

// Platform action identifiers for the built-in tools.
const (
	ActionSetAlarm = "action.set_alarm"
	ActionDial     = "action.dial"
)

// Launcher performs the real-world side effect behind a tool. The
// registry and tools never touch the platform directly; implementations
// live at the edge (device bridge, desktop shell, test double).
type Launcher interface {
	Launch(ctx context.Context, intent Intent) error
}

// LogLauncher records intents to the log without performing them. It is
// the default when no platform bridge is configured, and keeps the
// orchestration path fully exercisable in development.
type LogLauncher struct {
	Logger *slog.Logger
}

// Launch logs the intent and reports success.
func (l LogLauncher) Launch(ctx context.Context, intent Intent) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "platform intent",
		"action", intent.Action,
		"data", intent.Data,
		"extras", intent.Extras,
	)
	return nil
}
