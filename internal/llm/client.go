package llm

import "context"

// Client is the interface the orchestrator uses to reach the
// completion endpoint.
type Client interface {
	// Complete sends the message history and tool schemas and returns
	// the decoded outcome. Blank-content messages are excluded from
	// the request; the endpoint is stateless, so the full history is
	// sent on every call.
	Complete(ctx context.Context, history []Message, tools []map[string]any) (*Outcome, error)
}
