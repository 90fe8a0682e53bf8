package model

import (
	"encoding/json"
	"fmt"
)

// StreamEvent is one frame of a chat stream. The relay produces a sequence
// of these; the transport layer encodes them as SSE data frames. Exactly
// one terminal event (DoneEvent or ErrorEvent) closes every stream.
type StreamEvent interface {
	// Terminal reports whether this event ends the stream.
	Terminal() bool
}

// ConversationIDEvent carries the resolved or newly created conversation
// id. It is always the first frame of a stream.
type ConversationIDEvent struct {
	ID string
}

// TokenEvent carries one incremental text fragment from the provider.
type TokenEvent struct {
	Content string
}

// DoneEvent signals successful completion.
type DoneEvent struct{}

// ErrorEvent signals failure after the stream has opened.
type ErrorEvent struct {
	Message string
}

func (ConversationIDEvent) Terminal() bool { return false }
func (TokenEvent) Terminal() bool          { return false }
func (DoneEvent) Terminal() bool           { return true }
func (ErrorEvent) Terminal() bool          { return true }

// EncodeFrame renders the JSON payload of a stream event for the wire.
func EncodeFrame(ev StreamEvent) ([]byte, error) {
	switch e := ev.(type) {
	case ConversationIDEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{"conversation_id", e.ID})
	case TokenEvent:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{"token", e.Content})
	case DoneEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{"done"})
	case ErrorEvent:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{"error", e.Message})
	default:
		return nil, fmt.Errorf("unknown stream event type %T", ev)
	}
}
