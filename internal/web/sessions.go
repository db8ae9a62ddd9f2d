package web

import (
	"bytes"
	"database/sql"
	"errors"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/cactuslabs/cactus/internal/llm"
	"github.com/cactuslabs/cactus/internal/store"
)

// transcriptView is the template context for the transcript page.
type transcriptView struct {
	Session  *store.Session
	Messages []transcriptMessage
}

// transcriptMessage is a display-friendly wrapper around a persisted
// message. Assistant content is rendered as markdown; everything else
// is shown verbatim.
type transcriptMessage struct {
	Role      string
	IsUser    bool
	Content   string
	HTML      template.HTML
	Timestamp string
}

var transcriptTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Session.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.msg { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 0.5rem; }
.user { background: #e8f4e8; }
.assistant { background: #f4f4f4; }
.meta { color: #777; font-size: 0.8rem; margin-bottom: 0.25rem; }
</style></head>
<body>
<h1>{{.Session.Title}}</h1>
<p class="meta">{{.Session.MessageCount}} messages, started {{.Session.CreatedAt.Format "2006-01-02 15:04"}}</p>
{{range .Messages}}
<div class="msg {{if .IsUser}}user{{else}}assistant{{end}}">
<div class="meta">{{.Role}} &middot; {{.Timestamp}}</div>
{{if .HTML}}{{.HTML}}{{else}}<p>{{.Content}}</p>{{end}}
</div>
{{end}}
</body></html>
`))

func (s *Server) handleSessionList(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	sessions, err := s.store.AllSessions()
	if err != nil {
		s.logger.Error("session list failed", "error", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"sessions": sessions}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	sess, err := s.store.GetSession(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("session load failed", "id", id, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	msgs, err := s.store.MessagesForSession(id)
	if err != nil {
		s.logger.Error("message load failed", "id", id, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"session": sess, "messages": msgs}, s.logger)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	if _, err := s.store.GetSession(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("session load failed", "id", id, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	if err := s.store.DeleteSession(id); err != nil {
		s.logger.Error("session delete failed", "id", id, "error", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTranscript renders a session as an HTML page. Assistant
// messages pass through the markdown renderer; user content never does.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session store not configured", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	sess, err := s.store.GetSession(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("session load failed", "id", id, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	msgs, err := s.store.MessagesForSession(id)
	if err != nil {
		s.logger.Error("message load failed", "id", id, "error", err)
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}

	view := transcriptView{Session: sess}
	for _, m := range msgs {
		row := transcriptMessage{
			Role:      m.Role,
			IsUser:    m.IsUser,
			Content:   m.Content,
			Timestamp: m.Timestamp.Format("15:04:05"),
		}
		if m.Role == llm.RoleAssistant {
			if html, err := renderMarkdown(m.Content); err == nil {
				row.HTML = html
			} else {
				s.logger.Debug("markdown render failed", "error", err)
			}
		}
		view.Messages = append(view.Messages, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := transcriptTmpl.Execute(w, view); err != nil {
		s.logger.Error("transcript render failed", "id", id, "error", err)
	}
}

// renderMarkdown converts assistant markdown to an HTML fragment.
func renderMarkdown(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
