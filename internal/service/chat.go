package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitstack/coach-chat/internal/events"
	"github.com/fitstack/coach-chat/internal/llm"
	"github.com/fitstack/coach-chat/internal/model"
	"github.com/fitstack/coach-chat/internal/prompt"
	"github.com/fitstack/coach-chat/internal/store"
	"github.com/fitstack/coach-chat/pkg/logger"
	"github.com/fitstack/coach-chat/pkg/metrics"
)

// ErrEmptyMessage rejects empty or whitespace-only message bodies.
var ErrEmptyMessage = errors.New("message cannot be empty")

// ChatOptions tunes the relay.
type ChatOptions struct {
	// HistoryLimit caps how many recent messages enter the prompt. A hard
	// cutoff for cost control; older messages are dropped, not summarized.
	HistoryLimit int

	// StreamTimeout bounds one provider streaming call. A timeout surfaces
	// as the error terminal event.
	StreamTimeout time.Duration

	// MaxTokens is passed through to the provider.
	MaxTokens int
}

// ChatService orchestrates the relay: conversation resolution, message
// persistence, prompt assembly, and provider streaming.
type ChatService struct {
	store     *store.Store
	llmClient llm.Client
	publisher *events.Publisher
	opts      ChatOptions
	logger    *logger.Logger
}

// NewChatService creates a new chat service. The LLM client is injected,
// constructed once at startup.
func NewChatService(st *store.Store, llmClient llm.Client, pub *events.Publisher, opts ChatOptions, log *logger.Logger) *ChatService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 120 * time.Second
	}
	return &ChatService{
		store:     st,
		llmClient: llmClient,
		publisher: pub,
		opts:      opts,
		logger:    log,
	}
}

// Prepare runs every step that must happen before any output is written:
// validation, conversation resolution (creating one when no id is
// supplied), and durable persistence of the inbound user message. Errors
// here become a plain HTTP error response, never a stream frame.
func (s *ChatService) Prepare(ctx context.Context, userID string, req *model.ChatRequest) (*model.Conversation, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	var conv *model.Conversation
	if req.ConversationID != "" {
		// The id is client-controlled input; re-verify ownership.
		existing, err := s.store.GetConversation(ctx, userID, req.ConversationID)
		if err != nil {
			return nil, err
		}
		conv = existing
	} else {
		now := time.Now().UTC()
		conv = &model.Conversation{
			ID:        uuid.Must(uuid.NewV7()).String(),
			UserID:    userID,
			Title:     DeriveTitle(req.Message),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
		metrics.ConversationsTotal.Inc()
	}

	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.MessageRoleUser,
		Content:        req.Message,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	metrics.MessagesTotal.WithLabelValues(string(model.MessageRoleUser)).Inc()
	s.publisher.MessagePersisted(ctx, userID, userMsg)

	return conv, nil
}

// Run produces the event stream for a prepared conversation: the
// conversation_id frame, zero or more token frames, and exactly one
// terminal frame. The channel closes after the terminal frame, or without
// one only when the caller's context is cancelled.
func (s *ChatService) Run(ctx context.Context, role model.Role, conv *model.Conversation) <-chan model.StreamEvent {
	ch := make(chan model.StreamEvent)

	go func() {
		defer close(ch)

		send := func(ev model.StreamEvent) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- ev:
				return true
			}
		}

		fail := func(msg string) {
			send(model.ErrorEvent{Message: msg})
		}

		if !send(model.ConversationIDEvent{ID: conv.ID}) {
			return
		}

		// The inbound message was persisted in Prepare, so this read
		// includes it exactly once.
		history, err := s.store.RecentMessages(ctx, conv.ID, s.opts.HistoryLimit)
		if err != nil {
			s.logger.Error("failed to load history", zap.Error(err))
			fail("failed to load conversation history")
			return
		}

		exercises, err := s.gatherExercises(ctx, role, conv.UserID)
		if err != nil {
			s.logger.Error("failed to load exercise catalog", zap.Error(err))
			fail("failed to load exercise catalog")
			return
		}

		chatMessages := make([]llm.ChatMessage, 0, len(history)+1)
		chatMessages = append(chatMessages, llm.ChatMessage{
			Role:    string(model.MessageRoleSystem),
			Content: prompt.Build(role, exercises),
		})
		for _, msg := range history {
			chatMessages = append(chatMessages, llm.ChatMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}

		streamCtx, cancel := context.WithTimeout(ctx, s.opts.StreamTimeout)
		defer cancel()

		start := time.Now()
		resp, err := s.llmClient.CompleteStream(streamCtx, &llm.CompletionRequest{
			Messages:  chatMessages,
			MaxTokens: s.opts.MaxTokens,
		}, func(token string, index int) error {
			if !send(model.TokenEvent{Content: token}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				// Client went away mid-stream; nothing to tell it, and the
				// partial reply is deliberately not persisted.
				s.logger.Info("chat stream aborted by client",
					zap.String("conversation_id", conv.ID))
				return
			}
			metrics.RecordLLMStream(s.llmClient.Name(), "error", time.Since(start).Seconds(), 0, 0)
			s.logger.Error("provider stream failed", zap.Error(err),
				zap.String("conversation_id", conv.ID))
			fail("assistant is unavailable: " + err.Error())
			return
		}

		assistantMsg := &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			Role:           model.MessageRoleAssistant,
			Content:        resp.Content,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
			// The reply already reached the client; losing the write is a
			// known gap, surfaced only in logs.
			s.logger.Error("failed to persist assistant message", zap.Error(err),
				zap.String("conversation_id", conv.ID))
		} else {
			metrics.MessagesTotal.WithLabelValues(string(model.MessageRoleAssistant)).Inc()
			s.publisher.MessagePersisted(ctx, conv.UserID, assistantMsg)
		}

		metrics.RecordLLMStream(s.llmClient.Name(), "success",
			time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

		send(model.DoneEvent{})
	}()

	return ch
}

// gatherExercises queries the catalog fresh on every request: a trainer's
// own exercises, or the union of exercises in a client's assigned plans.
func (s *ChatService) gatherExercises(ctx context.Context, role model.Role, userID string) ([]model.Exercise, error) {
	switch role {
	case model.RoleTrainer:
		return s.store.ExercisesByTrainer(ctx, userID)
	default:
		return s.store.ExercisesForClient(ctx, userID)
	}
}
