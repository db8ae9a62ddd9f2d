// Package events provides a publish/subscribe event bus carrying the
// conversation's display and observability events. Events flow from the
// orchestrator to subscribers (the websocket gateway, the CLI chat loop,
// a future metrics collector). The bus is nil-safe: calling Publish on a
// nil *Bus is a no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceChat identifies events from the conversation orchestrator.
	SourceChat = "chat"
	// SourceStore identifies events from the session store.
	SourceStore = "store"
	// SourceGateway identifies events from the websocket gateway.
	SourceGateway = "gateway"
)

// Kind constants describe the type of event within a source.
const (
	// KindMessage signals a message was appended to the visible
	// transcript. Data: session_id, role, content, message_id.
	KindMessage = "message"
	// KindTypingStart signals the transient "working" marker should be
	// shown. Data: session_id.
	KindTypingStart = "typing_start"
	// KindTypingStop signals the transient "working" marker should be
	// removed. Data: session_id.
	KindTypingStop = "typing_stop"
	// KindConfirmRequest signals a tool batch is awaiting confirmation.
	// Data: session_id, prompt, tool, call_count.
	KindConfirmRequest = "confirm_request"
	// KindToolStart signals a confirmed tool has begun executing.
	// Data: session_id, tool, call_id.
	KindToolStart = "tool_start"
	// KindToolDone signals a tool execution completed.
	// Data: session_id, tool, call_id, ok.
	KindToolDone = "tool_done"
	// KindTurnComplete signals the end of a conversation turn.
	// Data: session_id, elapsed_ms.
	KindTurnComplete = "turn_complete"
	// KindSessionTitled signals a session title was derived.
	// Data: session_id, title.
	KindSessionTitled = "session_titled"
)

// Event represents a single event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// websocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers. Safe to
// call on a nil receiver (returns 0).
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
