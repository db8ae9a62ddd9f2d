// Package chat implements the conversation orchestrator: the state
// machine that drives the exchange with the completion endpoint, stages
// tool calls behind the confirmation gate, executes confirmed batches,
// and folds results back into the history until a final answer lands.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cactuslabs/cactus/internal/confirm"
	"github.com/cactuslabs/cactus/internal/events"
	"github.com/cactuslabs/cactus/internal/llm"
	"github.com/cactuslabs/cactus/internal/store"
	"github.com/cactuslabs/cactus/internal/tools"
)

// emptyToolOutput replaces a blank tool output so the protocol never
// carries an empty tool message.
const emptyToolOutput = "Tool execution completed with no output."

// rejectionNotice is shown and persisted when the user declines a tool
// batch.
const rejectionNotice = "Okay, I won't do that."

// State identifies where the orchestrator is in a turn.
type State int32

const (
	// StateIdle means no turn is in flight; a new user message starts one.
	StateIdle State = iota
	// StateAwaitingCompletion means a completion request is in flight.
	StateAwaitingCompletion
	// StateAwaitingConfirmation means a tool batch is staged, waiting
	// for the user's confirm/reject decision.
	StateAwaitingConfirmation
	// StateToolsExecuting means a confirmed batch is running.
	StateToolsExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateToolsExecuting:
		return "tools_executing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Persister is the slice of the session store the orchestrator needs.
// Writes are fire-and-forget: failures are logged, never fatal to the
// conversation.
type Persister interface {
	CreateSession(title string) (string, error)
	InsertMessage(sessionID, role, content string, isUser bool, toolCallID string, ts time.Time) (string, error)
	UpdateSessionTitle(id, title string) error
	MessagesForSession(id string) ([]store.Message, error)
}

// ToolRunner is the slice of the tool registry the orchestrator needs.
type ToolRunner interface {
	List() []map[string]any
	Execute(ctx context.Context, callID, name, argsJSON string) tools.Result
}

// Orchestrator owns the in-memory conversation history and the pending
// tool-call state. All mutation happens on a single worker goroutine;
// the foreground only submits intents and reads the published events.
type Orchestrator struct {
	logger   *slog.Logger
	client   llm.Client
	registry ToolRunner
	gate     *confirm.Gate
	persist  Persister
	bus      *events.Bus

	// Worker-owned state. Never touched outside the loop goroutine.
	sessionID string
	history   []llm.Message

	state   atomic.Int32
	intents chan intent
	done    chan struct{}
}

type intentKind int

const (
	intentSend intentKind = iota
	intentDecision
	intentAttach
)

type intent struct {
	kind      intentKind
	text      string
	confirmed bool
	sessionID string
}

// New creates an orchestrator. persist and bus may be nil; both degrade
// to no-ops (useful in tests and one-shot CLI runs).
func New(logger *slog.Logger, client llm.Client, registry ToolRunner, persist Persister, bus *events.Bus) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger:   logger,
		client:   client,
		registry: registry,
		gate:     confirm.NewGate(),
		persist:  persist,
		bus:      bus,
		intents:  make(chan intent, 16),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine. The worker exits when ctx is
// cancelled; Done is closed at that point.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.loop(ctx)
}

// Done is closed once the worker has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// State returns the current orchestration state. Safe from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// AwaitingConfirmation reports whether a tool batch is staged. The UI
// uses this to disable the send path until the user decides.
func (o *Orchestrator) AwaitingConfirmation() bool {
	return o.State() == StateAwaitingConfirmation
}

// SessionID returns the active session id ("" before the first turn).
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// SendText submits a user message intent.
func (o *Orchestrator) SendText(text string) {
	o.intents <- intent{kind: intentSend, text: text}
}

// Confirm approves the pending tool batch.
func (o *Orchestrator) Confirm() {
	o.intents <- intent{kind: intentDecision, confirmed: true}
}

// Reject declines the pending tool batch.
func (o *Orchestrator) Reject() {
	o.intents <- intent{kind: intentDecision, confirmed: false}
}

// AttachSession switches the orchestrator to an existing session,
// reloading its visible history from the store. Submitting this while
// a turn is in flight is ignored, like any other out-of-state intent.
func (o *Orchestrator) AttachSession(sessionID string) {
	o.intents <- intent{kind: intentAttach, sessionID: sessionID}
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-o.intents:
			switch in.kind {
			case intentSend:
				o.handleSend(ctx, in.text)
			case intentDecision:
				o.handleDecision(ctx, in.confirmed)
			case intentAttach:
				o.handleAttach(in.sessionID)
			}
		}
	}
}

// handleSend runs one full turn: append the user message, call the
// endpoint, and either deliver the answer or park a tool batch at the
// confirmation gate.
func (o *Orchestrator) handleSend(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if o.State() != StateIdle {
		// No new turn may start while one is in flight; the UI is
		// expected to disable sends, this is the backstop.
		o.logger.Warn("dropping user message, turn in flight", "state", o.State().String())
		return
	}

	started := time.Now()
	o.ensureSession()
	o.appendVisible(llm.Message{Role: llm.RoleUser, Content: text}, true)
	o.refreshTitle()

	o.setState(StateAwaitingCompletion)
	o.publish(events.KindTypingStart, nil)

	out, err := o.client.Complete(ctx, o.history, o.registry.List())
	o.publish(events.KindTypingStop, nil)
	if err != nil {
		o.failTurn(err)
		return
	}

	o.handleOutcome(ctx, out, "", started)
}

// handleOutcome routes a completion outcome: a final answer ends the
// turn, a tool batch goes to the confirmation gate. toolFallback is the
// newline-joined tool output from this turn's executed batch, used when
// the post-execution answer comes back blank — the user must see
// something confirming completion.
func (o *Orchestrator) handleOutcome(ctx context.Context, out *llm.Outcome, toolFallback string, started time.Time) {
	if out.HasToolCalls() {
		prompt := o.gate.Present(o.history, out.Assistant)
		o.setState(StateAwaitingConfirmation)
		o.publish(events.KindConfirmRequest, map[string]any{
			"prompt":     prompt,
			"tool":       out.Assistant.ToolCalls[0].Function.Name,
			"call_count": len(out.Assistant.ToolCalls),
		})
		return
	}

	text := strings.TrimSpace(out.Text())
	if text == "" {
		text = toolFallback
	}
	if text != "" {
		o.appendVisible(llm.Message{Role: llm.RoleAssistant, Content: text}, false)
	}
	o.setState(StateIdle)
	o.publish(events.KindTurnComplete, map[string]any{
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
}

// handleDecision resolves the pending confirmation. With nothing
// staged (stray double-click, UI race) nothing happens at all: no
// history mutation, no display output.
func (o *Orchestrator) handleDecision(ctx context.Context, confirmed bool) {
	pending, err := o.gate.Resolve(confirmed)
	if err != nil {
		if errors.Is(err, confirm.ErrNoPendingConfirmation) {
			o.logger.Debug("decision with no pending confirmation", "confirmed", confirmed)
			return
		}
		o.logger.Error("resolve confirmation", "error", err)
		return
	}

	if !confirmed {
		o.appendVisible(llm.Message{Role: llm.RoleAssistant, Content: rejectionNotice}, false)
		o.setState(StateIdle)
		o.publish(events.KindTurnComplete, nil)
		return
	}

	o.executeBatch(ctx, pending)
}

// executeBatch runs every call in the confirmed batch strictly in
// order, folding each result into the history before the next begins,
// then issues the follow-up completion call.
func (o *Orchestrator) executeBatch(ctx context.Context, pending *confirm.Pending) {
	started := time.Now()
	o.setState(StateToolsExecuting)

	// Resume from the snapshot taken when the batch was staged. The
	// tool-call-issuing assistant turn must be present verbatim before
	// any tool result is submitted.
	o.history = append(pending.History, pending.Assistant)

	outputs := make([]string, 0, len(pending.Calls))
	for _, call := range pending.Calls {
		o.publish(events.KindToolStart, map[string]any{
			"tool":    call.Function.Name,
			"call_id": call.ID,
		})

		result := o.registry.Execute(ctx, call.ID, call.Function.Name, call.Function.Arguments)
		content := strings.TrimSpace(result.Content())
		if content == "" {
			content = emptyToolOutput
		}
		o.history = append(o.history, llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
		outputs = append(outputs, content)

		o.publish(events.KindToolDone, map[string]any{
			"tool":    call.Function.Name,
			"call_id": call.ID,
			"ok":      result.Success,
		})
		if !result.Success {
			o.logger.Warn("tool failed", "tool", call.Function.Name, "error", result.Error)
		}
	}

	o.setState(StateAwaitingCompletion)
	o.publish(events.KindTypingStart, nil)

	out, err := o.client.Complete(ctx, o.history, o.registry.List())
	o.publish(events.KindTypingStop, nil)
	if err != nil {
		o.failTurn(err)
		return
	}

	o.handleOutcome(ctx, out, strings.Join(outputs, "\n"), started)
}

// failTurn terminates the turn on a network/protocol error: the error
// becomes one assistant chat message, persisted like any answer, and
// the orchestrator returns to idle. Pending state, if any, is already
// resolved by this point; nothing is retried.
func (o *Orchestrator) failTurn(err error) {
	o.logger.Error("completion call failed", "error", err)
	o.appendVisible(llm.Message{
		Role:    llm.RoleAssistant,
		Content: fmt.Sprintf("Error: %v", err),
	}, false)
	o.setState(StateIdle)
	o.publish(events.KindTurnComplete, nil)
}

// appendVisible appends a message to the protocol history, persists it,
// and announces it to the display. Persistence failures are logged and
// otherwise ignored — the conversation does not block on the store.
func (o *Orchestrator) appendVisible(msg llm.Message, isUser bool) {
	o.history = append(o.history, msg)

	if o.persist != nil && o.sessionID != "" {
		if _, err := o.persist.InsertMessage(o.sessionID, msg.Role, msg.Content, isUser, msg.ToolCallID, time.Now().UTC()); err != nil {
			o.logger.Error("persist message", "error", err)
		}
	}
	o.publish(events.KindMessage, map[string]any{
		"role":    msg.Role,
		"content": msg.Content,
	})
}

// ensureSession lazily creates the backing session row before the
// first message is persisted.
func (o *Orchestrator) ensureSession() {
	if o.sessionID != "" || o.persist == nil {
		return
	}
	id, err := o.persist.CreateSession(DefaultTitle)
	if err != nil {
		o.logger.Error("create session", "error", err)
		return
	}
	o.sessionID = id
}

// refreshTitle recomputes the session title from the history and
// pushes it to the store. Pure recomputation, not incremental.
func (o *Orchestrator) refreshTitle() {
	if o.persist == nil || o.sessionID == "" {
		return
	}
	title := DeriveTitle(o.history)
	if err := o.persist.UpdateSessionTitle(o.sessionID, title); err != nil {
		o.logger.Error("update session title", "error", err)
		return
	}
	o.publish(events.KindSessionTitled, map[string]any{"title": title})
}

// handleAttach switches to an existing session and reloads its visible
// history. Ignored while a turn is in flight.
func (o *Orchestrator) handleAttach(sessionID string) {
	if o.State() != StateIdle {
		o.logger.Warn("dropping session attach, turn in flight", "state", o.State().String())
		return
	}
	if o.persist == nil {
		o.sessionID = sessionID
		o.history = nil
		return
	}

	msgs, err := o.persist.MessagesForSession(sessionID)
	if err != nil {
		o.logger.Error("load session", "session", sessionID, "error", err)
		return
	}
	o.sessionID = sessionID
	o.history = o.history[:0]
	for _, m := range msgs {
		o.history = append(o.history, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
}

func (o *Orchestrator) publish(kind string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if o.sessionID != "" {
		data["session_id"] = o.sessionID
	}
	o.bus.Publish(events.Event{
		Source: events.SourceChat,
		Kind:   kind,
		Data:   data,
	})
}
