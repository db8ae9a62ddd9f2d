package llm

import "fmt"

// TransportError wraps connection-level failures (dial, TLS, timeout).
// These are never retried automatically; the orchestrator surfaces them
// as a chat message and ends the turn.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response the client could not use: a non-2xx
// status (body captured as diagnostic text) or a body missing expected
// fields (no choices, no message).
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "completion protocol: " + e.Message
}
