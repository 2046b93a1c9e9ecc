package policy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iago/studyhub-back/internal/domain"
)

const (
	DocumentInputBudget = 50000
	ChatContextBudget   = 30000
	ChatHistoryWindow   = 10
)

// TruncateRunes keeps the first limit characters of value. The cut never
// splits a multi-byte character.
func TruncateRunes(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(value) <= limit {
		return value
	}
	count := 0
	for index := range value {
		if count == limit {
			return value[:index]
		}
		count++
	}
	return value
}

// RecentMessages returns the last window messages, preserving order.
func RecentMessages(messages []domain.ChatMessage, window int) []domain.ChatMessage {
	if window <= 0 || len(messages) <= window {
		return messages
	}
	return messages[len(messages)-window:]
}

func ValidateRole(role domain.ChatRole) error {
	switch role {
	case domain.ChatRoleUser, domain.ChatRoleAssistant:
		return nil
	default:
		return domain.InvalidInput(fmt.Sprintf("unsupported message role %q", role))
	}
}

// RequireText rejects empty or invalid UTF-8 input for the named field.
func RequireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.InvalidInput(field + " is required")
	}
	if !utf8.ValidString(value) {
		return domain.InvalidInput(field + " must be valid UTF-8")
	}
	return nil
}
