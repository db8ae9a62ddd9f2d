// Package confirm stages tool-call batches while they await the user's
// explicit approval. It holds no knowledge of what the tools do — it
// only parks state between the model's request and the human decision,
// and renders a one-line description of what is being asked.
package confirm

import (
	"errors"

	"github.com/cactuslabs/cactus/internal/llm"
)

// ErrNoPendingConfirmation is returned by Resolve when nothing is
// staged. The UI should make this unreachable by disabling the
// confirm/reject controls once a decision has been delivered.
var ErrNoPendingConfirmation = errors.New("no pending confirmation")

// Pending retains everything needed to resume the turn after the user
// decides: the history snapshot at the time of the call, the assistant
// turn that carried the tool calls (replayed verbatim on confirm), and
// the full call batch.
type Pending struct {
	History   []llm.Message
	Assistant llm.Message
	Calls     []llm.ToolCall
}

// Gate holds at most one Pending at a time. It is owned by the
// orchestrator's worker goroutine and is not safe for concurrent use.
type Gate struct {
	pending *Pending
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{}
}

// Present stages a tool-call batch and returns the confirmation prompt
// shown to the user. Only the first call in the batch is described —
// the rest of the batch is retained and executes on confirm. (Rendering
// policy lives here so the execution path never depends on it.)
func (g *Gate) Present(history []llm.Message, assistant llm.Message) string {
	snapshot := make([]llm.Message, len(history))
	copy(snapshot, history)

	g.pending = &Pending{
		History:   snapshot,
		Assistant: assistant,
		Calls:     assistant.ToolCalls,
	}
	return Describe(assistant.ToolCalls[0])
}

// Waiting reports whether a batch is staged.
func (g *Gate) Waiting() bool {
	return g.pending != nil
}

// Resolve returns and clears the staged batch. The confirmed flag is
// the user's decision; the gate clears the state either way, so a
// rejected batch — including calls never shown to the user — is
// discarded in full. Returns ErrNoPendingConfirmation if nothing is
// staged.
func (g *Gate) Resolve(confirmed bool) (*Pending, error) {
	if g.pending == nil {
		return nil, ErrNoPendingConfirmation
	}
	p := g.pending
	g.pending = nil
	_ = confirmed // the decision is acted on by the caller; the gate only stages/unstages
	return p, nil
}
