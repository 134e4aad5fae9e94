package chat

import (
	"strings"

	"github.com/edgeveda/core/internal/domain"
)

// instructionTemplate formats history into a single instruction/assistant
// turn with BOS/EOS markers, the common format for base instruction-tuned
// models without explicit role tags.
type instructionTemplate struct{}

func (instructionTemplate) ID() string { return "instruction" }

func (instructionTemplate) Format(messages []domain.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString("<s>")
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem, domain.RoleSummary:
			sb.WriteString("[INST] <<SYS>>\n")
			sb.WriteString(m.Content)
			sb.WriteString("\n<</SYS>>\n")
		case domain.RoleUser:
			sb.WriteString("[INST] ")
			sb.WriteString(m.Content)
			sb.WriteString(" [/INST]")
		case domain.RoleAssistant:
			sb.WriteString(" ")
			sb.WriteString(m.Content)
			sb.WriteString("</s><s>")
		}
	}
	return sb.String()
}

// roleTaggedTemplate formats history with explicit role tags, the common
// format for chat-tuned models.
type roleTaggedTemplate struct{}

func (roleTaggedTemplate) ID() string { return "role_tagged" }

func (roleTaggedTemplate) Format(messages []domain.ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString("<|")
		sb.WriteString(m.Role.String())
		sb.WriteString("|>\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("<|assistant|>\n")
	return sb.String()
}

var templates = map[string]domain.ChatTemplate{
	"instruction": instructionTemplate{},
	"role_tagged": roleTaggedTemplate{},
}

// TemplateByID looks up a registered ChatTemplate, defaulting to
// "role_tagged" for an unknown or empty id.
func TemplateByID(id string) domain.ChatTemplate {
	if t, ok := templates[id]; ok {
		return t
	}
	return templates["role_tagged"]
}
