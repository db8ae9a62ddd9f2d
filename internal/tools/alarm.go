package tools

import (
	"context"
	"fmt"
)

// NewAlarmTool returns the set_alarm tool. It validates the requested
// time and hands the side effect to the launcher.
func NewAlarmTool(launcher Launcher) *Tool {
	return &Tool{
		Name:        "set_alarm",
		Description: "Set an alarm on the device. Specify the time (hour and minutes) and an optional message/label for the alarm.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"hour": map[string]any{
					"type":        "integer",
					"description": "The hour for the alarm (0-23, 24-hour format)",
					"minimum":     0,
					"maximum":     23,
				},
				"minutes": map[string]any{
					"type":        "integer",
					"description": "The minutes for the alarm (0-59)",
					"minimum":     0,
					"maximum":     59,
				},
				"message": map[string]any{
					"type":        "string",
					"description": "Optional message/label for the alarm (e.g., 'Wake up', 'Meeting reminder')",
				},
			},
			"required": []string{"hour", "minutes"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			hour, hourOK := intArg(args, "hour")
			minutes, minOK := intArg(args, "minutes")
			if !hourOK || !minOK {
				return "", fmt.Errorf("both hour and minutes parameters are required")
			}
			if hour < 0 || hour > 23 {
				return "", fmt.Errorf("hour must be between 0 and 23")
			}
			if minutes < 0 || minutes > 59 {
				return "", fmt.Errorf("minutes must be between 0 and 59")
			}
			message, _ := args["message"].(string)
			if message == "" {
				message = "Alarm"
			}

			err := launcher.Launch(ctx, Intent{
				Action: ActionSetAlarm,
				Extras: map[string]any{
					"hour":    hour,
					"minutes": minutes,
					"message": message,
				},
			})
			if err != nil {
				return "", fmt.Errorf("failed to set alarm: %w", err)
			}

			return fmt.Sprintf("Alarm set for %s (%02d:%02d) with message: '%s'",
				FormatClock12(hour, minutes), hour, minutes, message), nil
		},
	}
}

// FormatClock12 renders an hour/minute pair in 12-hour notation, e.g.
// 7,0 → "7:00 AM" and 0,5 → "12:05 AM".
func FormatClock12(hour, minutes int) string {
	amPm := "AM"
	if hour >= 12 {
		amPm = "PM"
	}
	displayHour := hour % 12
	if displayHour == 0 {
		displayHour = 12
	}
	return fmt.Sprintf("%d:%02d %s", displayHour, minutes, amPm)
}

// intArg reads an integer argument. JSON numbers decode as float64, so
// both representations are accepted.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
