// Package chatclient implements a client-side chat session against the
// coach chat relay: it submits messages, decodes the event stream, and
// maintains the local message list.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/fitstack/coach-chat/internal/model"
)

// ErrStreaming is returned when Send is called while a stream is open.
// A session allows one in-flight submission at a time.
var ErrStreaming = fmt.Errorf("a message is already streaming")

// defaultErrorNotice is appended as a synthetic assistant message when
// the relay reports a failure and no localized text was supplied.
const defaultErrorNotice = "Sorry, the assistant is unavailable right now. Please try again."

// Message is one rendered turn of the session.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session holds the client-side state of one conversation.
type Session struct {
	client      *http.Client
	baseURL     string
	token       string
	errorNotice string

	mu             sync.Mutex
	conversationID string
	messages       []Message
	buffer         strings.Builder
	streaming      bool
}

// Option customizes a session.
type Option func(*Session)

// WithErrorNotice sets the text shown in place of a failed reply, so
// callers can localize it for their users.
func WithErrorNotice(text string) Option {
	return func(s *Session) { s.errorNotice = text }
}

// New creates a session against baseURL authenticating with the given
// bearer token. httpClient may be nil to use http.DefaultClient.
func New(baseURL, token string, httpClient *http.Client, opts ...Option) *Session {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	s := &Session{
		client:      httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		errorNotice: defaultErrorNotice,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConversationID returns the conversation id learned from the relay, or
// "" before the first successful submission.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Streaming reports whether a submission is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Messages returns a copy of the permanent message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Partial returns the currently streaming assistant text, if any.
func (s *Session) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}

// Send submits a message and consumes the relay's event stream until the
// terminal frame. The user message is appended optimistically before the
// request is made. Blocks until the stream ends.
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrStreaming
	}
	s.streaming = true
	s.messages = append(s.messages, Message{Role: "user", Content: text})
	convID := s.conversationID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.buffer.Reset()
		s.mu.Unlock()
	}()

	body, err := json.Marshal(model.ChatRequest{
		Message:        text,
		ConversationID: convID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat request failed: %s", resp.Status)
	}

	return s.consume(bufio.NewScanner(resp.Body))
}

// frame mirrors the wire shape of all stream event types.
type frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// consume reads SSE lines until a terminal frame or EOF. Malformed
// frames are skipped; a single bad frame must not drop the stream.
func (s *Session) consume(scanner *bufio.Scanner) error {
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var f frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			continue
		}

		switch f.Type {
		case "conversation_id":
			s.mu.Lock()
			s.conversationID = f.ID
			s.mu.Unlock()

		case "token":
			s.mu.Lock()
			s.buffer.WriteString(f.Content)
			s.mu.Unlock()

		case "done":
			s.mu.Lock()
			s.messages = append(s.messages, Message{Role: "assistant", Content: s.buffer.String()})
			s.buffer.Reset()
			s.mu.Unlock()
			return nil

		case "error":
			s.mu.Lock()
			s.messages = append(s.messages, Message{Role: "assistant", Content: s.errorNotice})
			s.buffer.Reset()
			s.mu.Unlock()
			return fmt.Errorf("assistant error: %s", f.Message)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without terminal frame")
}
