package llm

import (
	"errors"
	"fmt"
	"strings"
)

const (
	gemmaBOS        = "<bos>"
	gemmaStartTurn  = "<start_of_turn>"
	gemmaEndTurn    = "<end_of_turn>\n"
	gemmaModelRole  = "model"
	gemmaUserRole   = "user"
	assistantRole   = "assistant"
	systemRole      = "system"
	generationStart = gemmaStartTurn + gemmaModelRole + "\n"
)

var (
	// ErrSystemRoleUnsupported is returned when a message uses the system role, which Gemma has no turn for.
	ErrSystemRoleUnsupported = errors.New("system role not supported")
	// ErrUnknownRole is returned for any role other than user, model or assistant.
	ErrUnknownRole = errors.New("unknown message role")
)

// RenderGemma flattens messages into the Gemma instruction-tuned chat format.
// "assistant" is written as the model turn. Contents are trimmed of surrounding whitespace.
func RenderGemma(messages []Message, addGenerationPrompt bool) (string, error) {
	var b strings.Builder
	b.WriteString(gemmaBOS)
	for i, m := range messages {
		role := m.Role
		switch role {
		case gemmaUserRole, gemmaModelRole:
		case assistantRole:
			role = gemmaModelRole
		case systemRole:
			return "", fmt.Errorf("message %d: %w", i, ErrSystemRoleUnsupported)
		default:
			return "", fmt.Errorf("message %d: %w: %q", i, ErrUnknownRole, m.Role)
		}
		b.WriteString(gemmaStartTurn)
		b.WriteString(role)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString(gemmaEndTurn)
	}
	if addGenerationPrompt {
		b.WriteString(generationStart)
	}
	return b.String(), nil
}
