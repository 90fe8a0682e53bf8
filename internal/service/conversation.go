// Package service provides business logic for the coach chat service.
package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/fitstack/coach-chat/internal/model"
	"github.com/fitstack/coach-chat/internal/store"
	"github.com/fitstack/coach-chat/pkg/logger"
)

// titleMaxRunes bounds conversation titles derived from the first message.
const titleMaxRunes = 50

// titleEllipsis marks a truncated title.
const titleEllipsis = "…"

// ConversationService handles conversation read and delete operations.
type ConversationService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st *store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, logger: log}
}

// List retrieves the caller's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, userID string) (*model.ListConversationsResponse, error) {
	conversations, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.ListConversationsResponse{
		Conversations: conversations,
		Total:         len(conversations),
	}, nil
}

// Get retrieves a conversation with its messages in creation order.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.ConversationDetail, error) {
	conv, err := s.store.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return &model.ConversationDetail{
		Conversation: *conv,
		Messages:     messages,
	}, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	return s.store.DeleteConversation(ctx, userID, conversationID)
}

// DeriveTitle builds a conversation title from its first message:
// whitespace-trimmed, truncated to titleMaxRunes with an ellipsis marker
// when truncated.
func DeriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}

	runes := []rune(title)
	return string(runes[:titleMaxRunes]) + titleEllipsis
}
