package chat

import (
	"strings"

	"github.com/cactuslabs/cactus/internal/llm"
)

// DefaultTitle is used while a session has no user message to derive
// a title from.
const DefaultTitle = "New Chat"

// titleMaxRunes bounds the derived title length before truncation.
const titleMaxRunes = 30

// DeriveTitle computes a session title from the conversation history:
// the first non-blank user message, truncated to 30 characters with an
// ellipsis when longer. A history without such a message yields
// DefaultTitle.
func DeriveTitle(history []llm.Message) string {
	for _, m := range history {
		if m.Role != llm.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "…"
		}
		return text
	}
	return DefaultTitle
}
