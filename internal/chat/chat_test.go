package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/llm"
	llmmock "github.com/MrWong99/agora/pkg/provider/llm/mock"
	"github.com/MrWong99/agora/pkg/store"
	storemock "github.com/MrWong99/agora/pkg/store/mock"
)

func newTestOrchestrator(t *testing.T, p llm.Provider, opts ...Option) (*Orchestrator, *storemock.Store) {
	t.Helper()
	st := storemock.New()
	o, err := New(st, p, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, st
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, &llmmock.Provider{}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := New(storemock.New(), nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestChat_RequiresUser(t *testing.T) {
	p := &llmmock.Provider{}
	o, st := newTestOrchestrator(t, p)

	_, err := o.Chat(context.Background(), Request{Message: "hi"})
	if !apperr.Is(err, apperr.KindAuthRequired) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if len(st.Calls) != 0 {
		t.Errorf("store touched before auth check: %v", st.Calls)
	}
	if p.Calls() != 0 {
		t.Errorf("llm called %d times", p.Calls())
	}
}

func TestChat_NewConversation(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: llmmock.TextChunks("Hel", "lo, ", "world")}
	o, st := newTestOrchestrator(t, p)

	msg := strings.Repeat("Explain Kirchhoff's current law. ", 3)
	res, err := o.Chat(context.Background(), Request{UserID: "u1", Message: msg})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Reply != "Hello, world" {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}

	conv, ok := st.Conversation(res.ConversationID)
	if !ok {
		t.Fatal("conversation not stored")
	}
	if conv.Title != store.TitleFrom(msg) || len([]rune(conv.Title)) != 50 {
		t.Errorf("title = %q", conv.Title)
	}

	msgs := st.Messages(res.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[0].Content != msg {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != store.RoleAssistant || msgs[1].Content != "Hello, world" {
		t.Errorf("second message = %+v", msgs[1])
	}

	if len(p.StreamCalls) != 1 {
		t.Fatalf("stream calls = %d", len(p.StreamCalls))
	}
	req := p.StreamCalls[0].Req
	if req.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != msg {
		t.Errorf("history sent = %+v", req.Messages)
	}
}

func TestChat_ContinuesConversationWithHistory(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: llmmock.TextChunks("Sure.")}
	o, st := newTestOrchestrator(t, p, WithSystemPrompt("custom prompt"))
	ctx := context.Background()

	_ = st.AppendMessage(ctx, "chat-1", store.RoleUser, "What is a diode?")
	_ = st.AppendMessage(ctx, "chat-1", store.RoleAssistant, "A one-way valve for current.")

	res, err := o.Chat(ctx, Request{UserID: "u1", ConversationID: "chat-1", Message: "Give an example."})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.ConversationID != "chat-1" {
		t.Errorf("conversation id = %q", res.ConversationID)
	}
	if st.ConversationCount() != 0 {
		t.Error("a new conversation was created for an existing id")
	}

	req := p.StreamCalls[0].Req
	if req.SystemPrompt != "custom prompt" {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	wantRoles := []string{llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	if len(req.Messages) != len(wantRoles) {
		t.Fatalf("history len = %d, want %d", len(req.Messages), len(wantRoles))
	}
	for i, r := range wantRoles {
		if req.Messages[i].Role != r {
			t.Errorf("message %d role = %q, want %q", i, req.Messages[i].Role, r)
		}
	}
	if req.Messages[2].Content != "Give an example." {
		t.Errorf("last message = %q", req.Messages[2].Content)
	}
	if n := len(st.Messages("chat-1")); n != 4 {
		t.Errorf("stored %d messages, want 4", n)
	}
}

func TestChat_RateLimitedKeepsUserMessage(t *testing.T) {
	p := &llmmock.Provider{StreamErr: apperr.RateLimited()}
	o, st := newTestOrchestrator(t, p)

	_, err := o.Chat(context.Background(), Request{UserID: "u1", ConversationID: "chat-9", Message: "hello"})
	if !apperr.Is(err, apperr.KindRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if apperr.HTTPStatus(err) != 429 {
		t.Errorf("status = %d, want 429", apperr.HTTPStatus(err))
	}

	msgs := st.Messages("chat-9")
	if len(msgs) != 1 || msgs[0].Role != store.RoleUser || msgs[0].Content != "hello" {
		t.Errorf("stored messages = %+v, want only the user message", msgs)
	}
}

func TestChat_StreamErrorWritesNoAssistantMessage(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "partial"},
		{Err: apperr.Upstream(0, errors.New("connection reset"))},
	}}
	o, st := newTestOrchestrator(t, p)

	_, err := o.Chat(context.Background(), Request{UserID: "u1", ConversationID: "c", Message: "hi"})
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	for _, m := range st.Messages("c") {
		if m.Role == store.RoleAssistant {
			t.Errorf("assistant message written after failure: %+v", m)
		}
	}
}

func TestChat_StoreFailureStopsBeforeCompletion(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: llmmock.TextChunks("x")}
	o, st := newTestOrchestrator(t, p)
	st.AppendErr = errors.New("connection lost")

	_, err := o.Chat(context.Background(), Request{UserID: "u1", Message: "hi"})
	if !apperr.Is(err, apperr.KindStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if p.Calls() != 0 {
		t.Errorf("llm called %d times after store failure", p.Calls())
	}
}

func TestChat_CallOrder(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: llmmock.TextChunks("ok")}
	o, st := newTestOrchestrator(t, p)

	if _, err := o.Chat(context.Background(), Request{UserID: "u1", Message: "hi"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"EnsureConversation", "AppendMessage", "LoadHistory", "AppendMessage"}
	if strings.Join(st.Calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", st.Calls, want)
	}
}
