// Package relay implements the chat session actor: a single-writer state
// machine that owns one conversation, its attached connections and the
// calls out to the generation backend.
package relay

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates wire events.
type EventType string

const (
	// EventConnected acknowledges an attach (actor to client).
	EventConnected EventType = "connected"
	// EventChat carries a user utterance (client to actor).
	EventChat EventType = "chat"
	// EventTyping toggles the generation-in-progress indicator.
	EventTyping EventType = "typing"
	// EventMessage carries an assistant reply.
	EventMessage EventType = "message"
	// EventError reports malformed input or a failed turn.
	EventError EventType = "error"
)

// User-visible texts.
const (
	WelcomeText     = "Welcome! I'm your AI assistant. How can I help you today?"
	ParseErrorText  = "Failed to process your message. Please try again."
	TurnErrorText   = "Sorry, I encountered an error generating a response."
	RateLimitedText = "You're sending messages too quickly. Please wait a moment."
)

// Event is one JSON object on the wire. Only the fields relevant to Type
// are populated.
type Event struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message,omitempty"`
	Content  string    `json:"content,omitempty"`
	IsTyping *bool     `json:"isTyping,omitempty"`
}

// Connected builds a connected event.
func Connected(text string) Event {
	return Event{Type: EventConnected, Message: text}
}

// Typing builds a typing event.
func Typing(on bool) Event {
	return Event{Type: EventTyping, IsTyping: &on}
}

// Reply builds a message event.
func Reply(content string) Event {
	return Event{Type: EventMessage, Content: content}
}

// Error builds an error event.
func Error(text string) Event {
	return Event{Type: EventError, Message: text}
}

// Chat builds a chat event, as sent by clients.
func Chat(content string) Event {
	return Event{Type: EventChat, Content: content}
}

// TypingState reports the isTyping flag, false when absent.
func (e Event) TypingState() bool {
	return e.IsTyping != nil && *e.IsTyping
}

// DecodeEvent parses one wire frame.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
