package providers

import (
	"errors"
	"fmt"
	"strings"
)

// Role tags a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultUserMessage is substituted when a conversation holds only system
// messages, since every vendor requires at least one user turn.
const DefaultUserMessage = "Hello"

var (
	// ErrEmptyPrompt is returned for an empty text prompt or message list
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrInvalidRole is returned for a message role outside system/user/assistant
	ErrInvalidRole = errors.New("invalid message role")

	// ErrTextPromptRequired is returned when image or audio mode gets a conversation
	ErrTextPromptRequired = errors.New("mode requires a plain text prompt")
)

// Message is a single role-tagged turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is either a plain text string or an ordered list of messages.
// Exactly one of the two forms is set.
type Prompt struct {
	text     string
	messages []Message
}

// TextPrompt builds a plain text prompt.
func TextPrompt(text string) Prompt {
	return Prompt{text: text}
}

// MessagePrompt builds a conversation prompt. The slice is copied.
func MessagePrompt(messages ...Message) Prompt {
	out := make([]Message, len(messages))
	copy(out, messages)
	return Prompt{messages: out}
}

// IsText reports whether the prompt is in plain text form.
func (p Prompt) IsText() bool {
	return p.messages == nil
}

// PlainText returns the text form. For a conversation it returns the content
// of the last user message.
func (p Prompt) PlainText() string {
	if p.IsText() {
		return p.text
	}
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].Role == RoleUser {
			return p.messages[i].Content
		}
	}
	return ""
}

// Messages returns a copy of the conversation, or nil for a text prompt.
func (p Prompt) Messages() []Message {
	if p.messages == nil {
		return nil
	}
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Validate checks that the prompt is usable for the given mode.
func (p Prompt) Validate(mode Mode) error {
	if p.IsText() {
		if strings.TrimSpace(p.text) == "" {
			return ErrEmptyPrompt
		}
		return nil
	}
	if mode != ModeText {
		return fmt.Errorf("%w: %s", ErrTextPromptRequired, mode)
	}
	if len(p.messages) == 0 {
		return ErrEmptyPrompt
	}
	for i, m := range p.messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w %q at message %d", ErrInvalidRole, m.Role, i)
		}
	}
	return nil
}

// Conversation is a prompt after system extraction.
type Conversation struct {
	System   string
	Messages []Message
}

// Conversation separates system messages from the rest. System contents are
// joined with a blank line. If nothing but system messages remain, a single
// DefaultUserMessage turn is substituted. A text prompt becomes one user turn.
func (p Prompt) Conversation() Conversation {
	if p.IsText() {
		return Conversation{Messages: []Message{{Role: RoleUser, Content: p.text}}}
	}

	var system []string
	rest := make([]Message, 0, len(p.messages))
	for _, m := range p.messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	if len(rest) == 0 {
		rest = append(rest, Message{Role: RoleUser, Content: DefaultUserMessage})
	}
	return Conversation{
		System:   strings.Join(system, "\n\n"),
		Messages: rest,
	}
}
