package tools

import (
	"context"
	"fmt"
	"regexp"
)

// nonDialable matches every character that is not a digit or a leading
// country-code plus sign.
var nonDialable = regexp.MustCompile(`[^0-9+]`)

// NewPhoneCallTool returns the make_call tool. It opens the platform
// dialer with a pre-filled number; the user still places the call.
func NewPhoneCallTool(launcher Launcher) *Tool {
	return &Tool{
		Name:        "make_call",
		Description: "Open the phone dialer with a pre-filled phone number. The user can review and confirm the call.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"phone_number": map[string]any{
					"type":        "string",
					"description": "The phone number to dial (e.g., '1234567890', '+1-555-123-4567'). Can include country code and formatting.",
				},
			},
			"required": []string{"phone_number"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			phoneNumber, _ := args["phone_number"].(string)
			if phoneNumber == "" {
				return "", fmt.Errorf("phone number parameter is required")
			}

			cleaned := nonDialable.ReplaceAllString(phoneNumber, "")
			if cleaned == "" {
				return "", fmt.Errorf("invalid phone number format")
			}

			err := launcher.Launch(ctx, Intent{
				Action: ActionDial,
				Data:   "tel:" + cleaned,
			})
			if err != nil {
				return "", fmt.Errorf("failed to open dialer: %w", err)
			}

			return fmt.Sprintf("Opening dialer with phone number: %s", phoneNumber), nil
		},
	}
}
