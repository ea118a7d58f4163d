// Package session provides durable conversation history for chat sessions.
// A session's history is a bounded, ordered transcript stored as a single
// value under one key, so every persist overwrites the previous copy.
package session

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message typed by the person at the keyboard.
	RoleUser Role = "user"
	// RoleAssistant marks a generated reply.
	RoleAssistant Role = "assistant"
	// RoleSystem marks an instruction message.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one entry of a conversation transcript.
// Messages are values and are never modified after creation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage returns a message authored by the user.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns a message authored by the assistant.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage returns a system instruction.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

const (
	// DefaultHistoryKey is the storage key a session's transcript lives under.
	DefaultHistoryKey = "conversationHistory"
	// DefaultMaxHistory is the retention cap applied after every turn.
	DefaultMaxHistory = 20
)
