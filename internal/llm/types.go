// Package llm implements the client for the chat-completions endpoint.
package llm

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message in the conversation history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// Roles used in the completions protocol.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a tool call requested by the model. Arguments
// arrive as a JSON-encoded string and must be parsed before dispatch.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments as the raw
// JSON string the wire format uses.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParseArguments decodes the JSON-encoded arguments string. An empty
// string decodes to an empty map.
func (tc ToolCall) ParseArguments() (map[string]any, error) {
	args := map[string]any{}
	raw := strings.TrimSpace(tc.Function.Arguments)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// Outcome is the decoded result of one completion call: either a final
// text answer or a batch of requested tool calls.
type Outcome struct {
	// Assistant is the raw assistant turn exactly as the endpoint
	// returned it. When it carries tool calls, this message must be
	// replayed verbatim in the follow-up request that submits the
	// tool results.
	Assistant Message
}

// HasToolCalls reports whether the model requested tool execution.
func (o Outcome) HasToolCalls() bool {
	return len(o.Assistant.ToolCalls) > 0
}

// Text returns the final answer text. May be empty, which callers
// treat as "no content to show" rather than an error.
func (o Outcome) Text() string {
	return o.Assistant.Content
}
