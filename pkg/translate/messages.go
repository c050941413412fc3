// Package translate converts between the wire chat protocols and the single
// flat prompt a browser chat page accepts, and shapes replies back into
// wire responses.
package translate

import (
	"strings"
)

// Roles as they appear on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. Content is either a plain string
// or the OpenAI multi-part form `[{"type":"text","text":...}]`.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Text returns the message content as plain text. Multi-part content keeps
// only text parts, joined by blank lines.
func (m Message) Text() string {
	return ContentText(m.Content)
}

// ContentText flattens a wire content value to plain text.
func ContentText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		var parts []string
		for _, item := range c {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := part["type"].(string); t != "" && t != "text" {
				continue
			}
			if text, ok := part["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n\n")
	default:
		return ""
	}
}

// LastUserText returns the content of the final user turn, or empty.
func LastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Text()
		}
	}
	return ""
}

// Unseen returns the suffix of msgs that follows the last turn whose text
// matches lastAssistant, scanning from the end. When no turn matches, the
// whole transcript is returned.
func Unseen(msgs []Message, lastAssistant string) []Message {
	if lastAssistant == "" {
		return msgs
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant && strings.TrimSpace(msgs[i].Text()) == strings.TrimSpace(lastAssistant) {
			return msgs[i+1:]
		}
	}
	return msgs
}
