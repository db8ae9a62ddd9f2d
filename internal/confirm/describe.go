package confirm

import (
	"fmt"

	"github.com/cactuslabs/cactus/internal/llm"
	"github.com/cactuslabs/cactus/internal/tools"
)

// Describe renders a human-readable one-liner for a tool call, used as
// the confirmation prompt. Unrecognized tool names get a generic
// rendering — never a hard failure, since the prompt must always show
// something the user can decide on.
func Describe(call llm.ToolCall) string {
	args, err := call.ParseArguments()
	if err != nil {
		return genericDescription(call.Function.Name)
	}

	switch call.Function.Name {
	case "set_alarm":
		hour, hourOK := intArg(args, "hour")
		minutes, minOK := intArg(args, "minutes")
		if !hourOK || !minOK {
			return genericDescription(call.Function.Name)
		}
		return fmt.Sprintf("Set an alarm for %s", tools.FormatClock12(hour, minutes))
	case "make_call":
		number, _ := args["phone_number"].(string)
		if number == "" {
			return genericDescription(call.Function.Name)
		}
		return fmt.Sprintf("Call %s", number)
	default:
		return genericDescription(call.Function.Name)
	}
}

func genericDescription(name string) string {
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("Run the '%s' tool", name)
}

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
