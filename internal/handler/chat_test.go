package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fitstack/coach-chat/internal/handler"
	"github.com/fitstack/coach-chat/internal/llm"
	"github.com/fitstack/coach-chat/internal/middleware"
	"github.com/fitstack/coach-chat/internal/model"
	"github.com/fitstack/coach-chat/internal/service"
	"github.com/fitstack/coach-chat/internal/store"
	"github.com/fitstack/coach-chat/pkg/logger"
)

const testSecret = "test-secret"

// fakeLLM streams fixed tokens, optionally failing mid-iteration.
type fakeLLM struct {
	tokens    []string
	failAfter int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: strings.Join(f.tokens, "")}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	var content string
	for i, token := range f.tokens {
		if f.failAfter >= 0 && i == f.failAfter {
			return nil, errors.New("provider exploded")
		}
		if err := callback(token, i); err != nil {
			return nil, err
		}
		content += token
	}
	return &llm.CompletionResponse{Content: content}, nil
}

type testEnv struct {
	router *chi.Mux
	store  *store.Store
}

func newTestEnv(t *testing.T, client llm.Client) *testEnv {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := logger.NewNop()
	conversationSvc := service.NewConversationService(st, log)
	chatSvc := service.NewChatService(st, client, nil, service.ChatOptions{}, log)

	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	chatHandler := handler.NewChatHandler(chatSvc, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(testSecret))
		r.Post("/chat", chatHandler.Chat)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Get("/{id}", conversationHandler.Get)
			r.Delete("/{id}", conversationHandler.Delete)
		})
	})

	return &testEnv{router: r, store: st}
}

func signToken(t *testing.T, userID string, role model.Role) string {
	t.Helper()

	claims := &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(role),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type frame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Content string `json:"content"`
	Message string `json:"message"`
}

func parseFrames(t *testing.T, body string) []frame {
	t.Helper()

	var frames []frame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			t.Fatalf("malformed frame %q: %v", line, err)
		}
		frames = append(frames, f)
	}
	return frames
}

func TestChatRequiresAuth(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{tokens: []string{"x"}, failAfter: -1})

	w := env.do(t, http.MethodPost, "/api/v1/chat", "", model.ChatRequest{Message: "hi"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{tokens: []string{"x"}, failAfter: -1})
	token := signToken(t, "trainer-1", model.RoleTrainer)

	w := env.do(t, http.MethodPost, "/api/v1/chat", token, model.ChatRequest{Message: "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatNewConversationScenario(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{tokens: []string{"Dřep ", "je ", "základ."}, failAfter: -1})
	token := signToken(t, "trainer-1", model.RoleTrainer)

	w := env.do(t, http.MethodPost, "/api/v1/chat", token, model.ChatRequest{Message: "Jak cvičit dřep?"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream content type, got %q", ct)
	}

	frames := parseFrames(t, w.Body.String())
	if len(frames) < 2 {
		t.Fatalf("expected at least id + terminal frames, got %d", len(frames))
	}
	if frames[0].Type != "conversation_id" || frames[0].ID == "" {
		t.Fatalf("expected conversation_id first, got %+v", frames[0])
	}
	if frames[len(frames)-1].Type != "done" {
		t.Fatalf("expected done last, got %+v", frames[len(frames)-1])
	}

	var streamed string
	terminals := 0
	for _, f := range frames {
		switch f.Type {
		case "token":
			streamed += f.Content
		case "done", "error":
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal frame, got %d", terminals)
	}
	if streamed != "Dřep je základ." {
		t.Fatalf("unexpected streamed text %q", streamed)
	}

	// The created conversation is listed with the message-derived title.
	lw := env.do(t, http.MethodGet, "/api/v1/conversations", token, nil)
	if lw.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", lw.Code)
	}
	var list model.ListConversationsResponse
	if err := json.Unmarshal(lw.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(list.Conversations))
	}
	if !strings.HasPrefix("Jak cvičit dřep?", list.Conversations[0].Title) {
		t.Fatalf("title %q is not a prefix of the first message", list.Conversations[0].Title)
	}

	// And fetchable by id, with both turns in creation order.
	gw := env.do(t, http.MethodGet, "/api/v1/conversations/"+frames[0].ID, token, nil)
	if gw.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", gw.Code)
	}
	var detail model.ConversationDetail
	if err := json.Unmarshal(gw.Body.Bytes(), &detail); err != nil {
		t.Fatalf("failed to decode detail: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(detail.Messages))
	}
	if detail.Messages[0].Role != model.MessageRoleUser || detail.Messages[1].Role != model.MessageRoleAssistant {
		t.Fatalf("unexpected roles: %+v", detail.Messages)
	}
	if detail.Messages[1].Content != streamed {
		t.Fatalf("assistant message %q does not match stream %q", detail.Messages[1].Content, streamed)
	}
}

func TestChatForeignConversationIs404(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{tokens: []string{"x"}, failAfter: -1})
	owner := signToken(t, "owner", model.RoleTrainer)
	intruder := signToken(t, "intruder", model.RoleTrainer)

	w := env.do(t, http.MethodPost, "/api/v1/chat", owner, model.ChatRequest{Message: "mine"})
	frames := parseFrames(t, w.Body.String())
	convID := frames[0].ID

	iw := env.do(t, http.MethodPost, "/api/v1/chat", intruder, model.ChatRequest{
		Message:        "yours",
		ConversationID: convID,
	})
	if iw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", iw.Code)
	}
	if strings.Contains(iw.Body.String(), `"type":"token"`) {
		t.Fatal("no token frames may be emitted for a foreign conversation")
	}
}

func TestChatProviderFailureScenario(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{tokens: []string{"a", "b", "c"}, failAfter: 2})
	token := signToken(t, "u1", model.RoleClient)

	w := env.do(t, http.MethodPost, "/api/v1/chat", token, model.ChatRequest{Message: "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 (headers committed before failure), got %d", w.Code)
	}

	frames := parseFrames(t, w.Body.String())
	last := frames[len(frames)-1]
	if last.Type != "error" || last.Message == "" {
		t.Fatalf("expected error terminal frame, got %+v", last)
	}
	for _, f := range frames {
		if f.Type == "done" {
			t.Fatal("done must not appear on the failure path")
		}
	}

	// The user message remains; no assistant message was written.
	gw := env.do(t, http.MethodGet, "/api/v1/conversations/"+frames[0].ID, token, nil)
	var detail model.ConversationDetail
	if err := json.Unmarshal(gw.Body.Bytes(), &detail); err != nil {
		t.Fatalf("failed to decode detail: %v", err)
	}
	if len(detail.Messages) != 1 || detail.Messages[0].Role != model.MessageRoleUser {
		t.Fatalf("expected only the user message, got %+v", detail.Messages)
	}
}

func TestConversationDeleteScenario(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{tokens: []string{"x"}, failAfter: -1})
	token := signToken(t, "u1", model.RoleTrainer)

	w := env.do(t, http.MethodPost, "/api/v1/chat", token, model.ChatRequest{Message: "hi"})
	frames := parseFrames(t, w.Body.String())
	convID := frames[0].ID

	dw := env.do(t, http.MethodDelete, "/api/v1/conversations/"+convID, token, nil)
	if dw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", dw.Code)
	}

	gw := env.do(t, http.MethodGet, "/api/v1/conversations/"+convID, token, nil)
	if gw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", gw.Code)
	}
}
