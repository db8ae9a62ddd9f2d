package web

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cactuslabs/cactus/internal/chat"
	"github.com/cactuslabs/cactus/internal/events"
	"github.com/cactuslabs/cactus/internal/llm"
	"github.com/cactuslabs/cactus/internal/tools"
)

// cannedClient returns outcomes in order, then repeats the last one.
type cannedClient struct {
	outcomes []*llm.Outcome
	next     int
}

func (c *cannedClient) Complete(context.Context, []llm.Message, []map[string]any) (*llm.Outcome, error) {
	out := c.outcomes[c.next]
	if c.next < len(c.outcomes)-1 {
		c.next++
	}
	return out, nil
}

type noopRunner struct{}

func (noopRunner) List() []map[string]any { return nil }
func (noopRunner) Execute(_ context.Context, callID, _, _ string) tools.Result {
	return tools.Result{ToolCallID: callID, Success: true, Output: "ok"}
}

func dialGateway(t *testing.T, client llm.Client) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.New()
	orch := chat.New(logger, client, noopRunner{}, nil, bus)
	orch.Start(ctx)

	srv := NewServer("127.0.0.1", 0, orch, nil, bus, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil consumes frames until one of the given kind arrives.
func readUntil(t *testing.T, conn *websocket.Conn, kind string) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %q frame: %v", kind, err)
		}
		if ev.Kind == kind {
			return ev
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, frame clientFrame) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestGatewayRoundTrip(t *testing.T) {
	client := &cannedClient{outcomes: []*llm.Outcome{
		{Assistant: llm.Message{Role: llm.RoleAssistant, Content: "hello from the agent"}},
	}}
	conn := dialGateway(t, client)

	send(t, conn, clientFrame{Type: "send", Text: "hi"})

	ev := readUntil(t, conn, events.KindMessage)
	if ev.Data["role"] != llm.RoleUser {
		t.Errorf("first message role = %v, want user echo", ev.Data["role"])
	}
	for {
		ev = readUntil(t, conn, events.KindMessage)
		if ev.Data["role"] == llm.RoleAssistant {
			break
		}
	}
	if ev.Data["content"] != "hello from the agent" {
		t.Errorf("assistant content = %v", ev.Data["content"])
	}
	readUntil(t, conn, events.KindTurnComplete)
}

func TestGatewayBlocksSendDuringConfirmation(t *testing.T) {
	client := &cannedClient{outcomes: []*llm.Outcome{
		{Assistant: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "c1", Type: "function", Function: llm.FunctionCall{
					Name: "set_alarm", Arguments: `{"hour": 7, "minutes": 0}`,
				}},
			},
		}},
		{Assistant: llm.Message{Role: llm.RoleAssistant, Content: "done"}},
	}}
	conn := dialGateway(t, client)

	send(t, conn, clientFrame{Type: "send", Text: "alarm at 7"})
	readUntil(t, conn, events.KindConfirmRequest)

	send(t, conn, clientFrame{Type: "send", Text: "something else"})
	ev := readUntil(t, conn, "confirmation_pending")
	if ev.Source != events.SourceGateway {
		t.Errorf("notice source = %q, want gateway", ev.Source)
	}

	send(t, conn, clientFrame{Type: "reject"})
	readUntil(t, conn, events.KindTurnComplete)
}

func TestGatewayUnknownFrame(t *testing.T) {
	client := &cannedClient{outcomes: []*llm.Outcome{
		{Assistant: llm.Message{Role: llm.RoleAssistant, Content: "unused"}},
	}}
	conn := dialGateway(t, client)

	send(t, conn, clientFrame{Type: "bogus"})
	ev := readUntil(t, conn, "unknown_frame")
	if msg, _ := ev.Data["message"].(string); !strings.Contains(msg, "bogus") {
		t.Errorf("notice message = %v", ev.Data["message"])
	}
}
