package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cactuslabs/cactus/internal/events"
)

const (
	// gatewayWriteWait bounds a single websocket write.
	gatewayWriteWait = 10 * time.Second
	// gatewayEventBuffer is the per-connection event queue. A client
	// that falls this far behind misses events rather than blocking
	// the publishers.
	gatewayEventBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// clientFrame is one inbound message from the chat UI.
type clientFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// wsConn serializes writes to a websocket connection. gorilla/websocket
// permits at most one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(gatewayWriteWait))
	return c.conn.WriteJSON(v)
}

// handleWebSocket upgrades the connection and bridges it to the
// orchestrator: inbound frames become intents, bus events stream back
// out as display updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil || s.bus == nil {
		http.Error(w, "chat gateway not configured", http.StatusServiceUnavailable)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	sub := s.bus.Subscribe(gatewayEventBuffer)
	defer s.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			if err := conn.writeJSON(ev); err != nil {
				return
			}
		}
	}()

	s.logger.Info("chat client connected", "remote", r.RemoteAddr)
	for {
		var frame clientFrame
		if err := raw.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			break
		}
		s.dispatchFrame(conn, frame)
	}

	s.logger.Info("chat client disconnected", "remote", r.RemoteAddr)
}

// dispatchFrame routes one client frame. Sends arriving while a tool
// confirmation is pending are refused here so the staged batch is the
// only thing the user can act on.
func (s *Server) dispatchFrame(conn *wsConn, frame clientFrame) {
	switch frame.Type {
	case "send":
		if s.orch.AwaitingConfirmation() {
			s.writeNotice(conn, "confirmation_pending", "Confirm or reject the pending action first.")
			return
		}
		s.orch.SendText(frame.Text)
	case "confirm":
		s.orch.Confirm()
	case "reject":
		s.orch.Reject()
	case "attach":
		s.orch.AttachSession(frame.SessionID)
	default:
		s.writeNotice(conn, "unknown_frame", "Unrecognized frame type: "+frame.Type)
	}
}

func (s *Server) writeNotice(conn *wsConn, kind, message string) {
	err := conn.writeJSON(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceGateway,
		Kind:      kind,
		Data:      map[string]any{"message": message},
	})
	if err != nil {
		s.logger.Debug("websocket notice failed", "error", err)
	}
}
