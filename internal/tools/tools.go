// Package tools defines the local actions the model may request and
// the registry that dispatches them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Result is the outcome of one tool execution. Exactly one of Output
// and Error is meaningful, selected by Success.
type Result struct {
	ToolCallID string `json:"tool_call_id"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Content returns the text folded into the conversation history for
// this result: the output on success, the error text on failure.
func (r Result) Content() string {
	if r.Success {
		return r.Output
	}
	return r.Error
}

// Registry holds available tools. It is pure dispatch: side effects
// belong to the tool handlers and the Launcher behind them.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates a registry with the built-in tools wired to the
// given launcher.
func NewRegistry(launcher Launcher) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	r.Register(NewAlarmTool(launcher))
	r.Register(NewPhoneCallTool(launcher))
	return r
}

// Register adds a tool to the registry. Re-registering a name replaces
// the previous tool without disturbing schema order.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name. Returns nil if not found.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tool schemas in registration order, in the wire
// format the completions endpoint expects.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with JSON-encoded arguments. Failures of
// every kind — unknown name, malformed arguments, handler errors — are
// reported in the Result; Execute never panics or returns an error to
// the caller.
func (r *Registry) Execute(ctx context.Context, callID, name, argsJSON string) Result {
	tool := r.tools[name]
	if tool == nil {
		return Result{ToolCallID: callID, Error: fmt.Sprintf("Unknown tool: %s", name)}
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return Result{ToolCallID: callID, Error: fmt.Sprintf("invalid arguments: %v", err)}
		}
	}

	output, err := tool.Handler(ctx, args)
	if err != nil {
		return Result{ToolCallID: callID, Error: err.Error()}
	}
	return Result{ToolCallID: callID, Success: true, Output: output}
}
