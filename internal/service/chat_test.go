package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fitstack/coach-chat/internal/llm"
	"github.com/fitstack/coach-chat/internal/model"
	"github.com/fitstack/coach-chat/internal/prompt"
	"github.com/fitstack/coach-chat/internal/store"
	"github.com/fitstack/coach-chat/pkg/logger"
)

// fakeLLM streams a fixed token sequence and records what it was asked.
type fakeLLM struct {
	tokens    []string
	failAfter int // fail after this many tokens; -1 disables
	got       []llm.ChatMessage
}

func newFakeLLM(tokens ...string) *fakeLLM {
	return &fakeLLM{tokens: tokens, failAfter: -1}
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.got = req.Messages
	return &llm.CompletionResponse{Content: strings.Join(f.tokens, "")}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	f.got = req.Messages

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

func newChatService(t *testing.T, client llm.Client, opts ChatOptions) (*ChatService, *store.Store) {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewChatService(st, client, nil, opts, logger.NewNop()), st
}

func collect(ch <-chan model.StreamEvent) []model.StreamEvent {
	var events []model.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestChatNewConversationStream(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLLM("Start ", "with ", "bodyweight squats.")
	svc, st := newChatService(t, fake, ChatOptions{})

	conv, err := svc.Prepare(ctx, "trainer-1", &model.ChatRequest{Message: "Jak cvičit dřep?"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if conv.Title != "Jak cvičit dřep?" {
		t.Fatalf("expected title from first message, got %q", conv.Title)
	}

	events := collect(svc.Run(ctx, model.RoleTrainer, conv))
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	first, ok := events[0].(model.ConversationIDEvent)
	if !ok || first.ID != conv.ID {
		t.Fatalf("expected conversation_id first, got %#v", events[0])
	}

	last := events[len(events)-1]
	if _, ok := last.(model.DoneEvent); !ok {
		t.Fatalf("expected done terminal event, got %#v", last)
	}

	var streamed string
	terminals := 0
	for _, ev := range events {
		if tok, ok := ev.(model.TokenEvent); ok {
			streamed += tok.Content
		}
		if ev.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", terminals)
	}
	if streamed != "Start with bodyweight squats." {
		t.Fatalf("unexpected streamed text %q", streamed)
	}

	// The concatenated tokens equal the newest assistant message.
	messages, err := st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(messages))
	}
	if messages[1].Role != model.MessageRoleAssistant || messages[1].Content != streamed {
		t.Fatalf("persisted assistant message %q does not match stream %q", messages[1].Content, streamed)
	}
}

func TestChatProviderFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLLM("partial ", "answer ", "never finished")
	fake.failAfter = 2
	svc, st := newChatService(t, fake, ChatOptions{})

	conv, err := svc.Prepare(ctx, "u1", &model.ChatRequest{Message: "help"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	events := collect(svc.Run(ctx, model.RoleClient, conv))

	last := events[len(events)-1]
	errEv, ok := last.(model.ErrorEvent)
	if !ok {
		t.Fatalf("expected error terminal event, got %#v", last)
	}
	if errEv.Message == "" {
		t.Fatal("expected error message")
	}
	for _, ev := range events {
		if _, ok := ev.(model.DoneEvent); ok {
			t.Fatal("done must not be emitted on failure")
		}
	}

	// The user's message stays; no assistant message appears.
	messages, err := st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != model.MessageRoleUser {
		t.Fatalf("expected only the user message, got %+v", messages)
	}
}

// hangingLLM never produces output; it blocks until its context expires.
type hangingLLM struct{}

func (hangingLLM) Name() string { return "fake" }

func (hangingLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestChatStreamTimeout(t *testing.T) {
	ctx := context.Background()
	svc, st := newChatService(t, hangingLLM{}, ChatOptions{StreamTimeout: 50 * time.Millisecond})

	conv, err := svc.Prepare(ctx, "u1", &model.ChatRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	events := collect(svc.Run(ctx, model.RoleClient, conv))
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	last := events[len(events)-1]
	if _, ok := last.(model.ErrorEvent); !ok {
		t.Fatalf("expected error terminal event after timeout, got %#v", last)
	}

	messages, err := st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != model.MessageRoleUser {
		t.Fatalf("expected only the user message after timeout, got %+v", messages)
	}
}

// endlessLLM emits tokens until the callback refuses one.
type endlessLLM struct{}

func (endlessLLM) Name() string { return "fake" }

func (endlessLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("not implemented")
}

func (endlessLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	for i := 0; ; i++ {
		if err := callback("tok ", i); err != nil {
			return nil, err
		}
	}
}

func TestChatClientAbortMidStream(t *testing.T) {
	svc, st := newChatService(t, endlessLLM{}, ChatOptions{})

	conv, err := svc.Prepare(context.Background(), "u1", &model.ChatRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := 0
	for ev := range svc.Run(runCtx, model.RoleClient, conv) {
		if ev.Terminal() {
			t.Fatalf("no terminal event may follow a client abort, got %#v", ev)
		}
		if _, ok := ev.(model.TokenEvent); ok {
			tokens++
			if tokens == 3 {
				cancel()
			}
		}
	}

	// The partial reply is discarded; only the user message remains.
	messages, err := st.ListMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != model.MessageRoleUser {
		t.Fatalf("expected only the user message after abort, got %+v", messages)
	}
}

func TestChatHistoryBounded(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLLM("ok")
	svc, st := newChatService(t, fake, ChatOptions{HistoryLimit: 10})

	conv, err := svc.Prepare(ctx, "u1", &model.ChatRequest{Message: "first"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	base := time.Now().UTC()
	for i := 0; i < 24; i++ {
		msg := &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			Role:           model.MessageRoleUser,
			Content:        "filler",
			CreatedAt:      base.Add(time.Duration(i+1) * time.Second),
		}
		if err := st.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append filler: %v", err)
		}
	}

	latest := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.MessageRoleUser,
		Content:        "latest question",
		CreatedAt:      base.Add(time.Hour),
	}
	if err := st.AppendMessage(ctx, latest); err != nil {
		t.Fatalf("append latest: %v", err)
	}

	collect(svc.Run(ctx, model.RoleTrainer, conv))

	// system message + at most HistoryLimit history entries.
	if len(fake.got) != 11 {
		t.Fatalf("expected 11 prompt messages, got %d", len(fake.got))
	}
	if fake.got[0].Role != "system" {
		t.Fatalf("expected leading system message, got role %q", fake.got[0].Role)
	}
	if fake.got[len(fake.got)-1].Content != "latest question" {
		t.Fatalf("expected newest message last, got %q", fake.got[len(fake.got)-1].Content)
	}
}

func TestChatEmptyCatalogPrompt(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLLM("ok")
	svc, _ := newChatService(t, fake, ChatOptions{})

	conv, err := svc.Prepare(ctx, "u1", &model.ChatRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	collect(svc.Run(ctx, model.RoleTrainer, conv))

	if len(fake.got) == 0 || fake.got[0].Role != "system" {
		t.Fatal("expected a system message")
	}
	if !strings.Contains(fake.got[0].Content, prompt.EmptyCatalogLine) {
		t.Fatalf("expected empty-catalog placeholder in prompt:\n%s", fake.got[0].Content)
	}
}

func TestPrepareRejectsEmptyMessage(t *testing.T) {
	svc, _ := newChatService(t, newFakeLLM(), ChatOptions{})

	if _, err := svc.Prepare(context.Background(), "u1", &model.ChatRequest{Message: "   \n"}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestPrepareRejectsForeignConversation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newChatService(t, newFakeLLM("x"), ChatOptions{})

	conv, err := svc.Prepare(ctx, "owner", &model.ChatRequest{Message: "mine"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	_, err = svc.Prepare(ctx, "intruder", &model.ChatRequest{
		Message:        "yours",
		ConversationID: conv.ID,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign conversation, got %v", err)
	}
}
