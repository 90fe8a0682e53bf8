package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/fitstack/coach-chat/internal/middleware"
	"github.com/fitstack/coach-chat/internal/model"
	"github.com/fitstack/coach-chat/internal/service"
	"github.com/fitstack/coach-chat/internal/store"
	"github.com/fitstack/coach-chat/pkg/logger"
	"github.com/fitstack/coach-chat/pkg/metrics"
)

// ChatHandler handles the AI chat relay endpoint.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// Chat handles POST /api/v1/chat. Failures before the stream opens are
// plain HTTP errors; after headers are committed, failures become the
// error terminal frame.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	role := middleware.GetRole(ctx)
	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), userID)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.service.Prepare(ctx, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		default:
			log.Error("failed to prepare chat", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start chat")
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// Frames are forwarded as the producer yields them; the model
	// response is never buffered whole before the first write.
	for ev := range h.service.Run(ctx, role, conv) {
		if err := sendFrame(w, flusher, ev); err != nil {
			log.Warn("failed to write stream frame", zap.Error(err))
			return
		}
	}
}

func sendFrame(w http.ResponseWriter, flusher http.Flusher, ev model.StreamEvent) error {
	data, err := model.EncodeFrame(ev)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
