// Package chat implements the tutor chat pipeline: one user message in, one
// assistant reply out, with the whole exchange persisted to the conversation
// store.
//
// A turn runs strictly in order:
//
//  1. Ensure the conversation exists (a new one is titled with the message).
//  2. Persist the user message.
//  3. Load the full history, which now includes that message.
//  4. Stream a completion over the history and accumulate it.
//  5. Persist the reply as a single assistant message.
//
// When the completion fails the user message stays persisted and no
// assistant message is written, so a client may simply resend.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/agora/internal/observe"
	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/store"
)

// DefaultSystemPrompt is the tutor persona sent ahead of every conversation.
const DefaultSystemPrompt = "You are Agora, a helpful AI tutor for engineering students. " +
	"Explain concepts clearly, solve doubts, and encourage students with motivational tips."

// Request is one chat turn.
type Request struct {
	// UserID is the authenticated user. Empty means anonymous.
	UserID string
	// ConversationID continues an existing conversation. Empty starts a new one.
	ConversationID string
	// Message is the user's text.
	Message string
}

// Result is the outcome of a successful turn.
type Result struct {
	ConversationID string
	Reply          string
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithSystemPrompt overrides [DefaultSystemPrompt].
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		if prompt != "" {
			o.systemPrompt = prompt
		}
	}
}

// WithMetrics records persisted messages on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs chat turns. It holds no per-conversation state and is
// safe for concurrent use.
type Orchestrator struct {
	store        store.ConversationStore
	llm          llm.Provider
	systemPrompt string
	metrics      *observe.Metrics
}

// New creates an Orchestrator.
func New(st store.ConversationStore, p llm.Provider, opts ...Option) (*Orchestrator, error) {
	if st == nil {
		return nil, errors.New("chat: store must not be nil")
	}
	if p == nil {
		return nil, errors.New("chat: llm provider must not be nil")
	}
	o := &Orchestrator{
		store:        st,
		llm:          p,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Chat runs one turn. Returned errors carry an apperr kind.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" {
		return Result{}, apperr.AuthRequired()
	}
	log := observe.Logger(ctx).With("user_id", req.UserID)

	chatID, err := o.store.EnsureConversation(ctx, req.UserID, req.ConversationID, req.Message)
	if err != nil {
		return Result{}, fmt.Errorf("chat: ensure conversation: %w", err)
	}
	log = log.With("chat_id", chatID)

	if err := o.store.AppendMessage(ctx, chatID, store.RoleUser, req.Message); err != nil {
		return Result{}, fmt.Errorf("chat: save user message: %w", err)
	}
	o.recordMessage(ctx, store.RoleUser)

	history, err := o.store.LoadHistory(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("chat: load history: %w", err)
	}

	stream, err := o.llm.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: o.systemPrompt,
		Messages:     toLLMMessages(history),
	})
	if err != nil {
		log.Warn("chat completion failed", "err", err)
		return Result{}, fmt.Errorf("chat: completion: %w", err)
	}
	reply, err := llm.Collect(ctx, stream)
	if err != nil {
		log.Warn("chat completion stream failed", "err", err)
		return Result{}, fmt.Errorf("chat: completion: %w", err)
	}

	if err := o.store.AppendMessage(ctx, chatID, store.RoleAssistant, reply); err != nil {
		return Result{}, fmt.Errorf("chat: save assistant message: %w", err)
	}
	o.recordMessage(ctx, store.RoleAssistant)

	log.Debug("chat turn complete", "history_len", len(history), "reply_len", len(reply))
	return Result{ConversationID: chatID, Reply: reply}, nil
}

func (o *Orchestrator) recordMessage(ctx context.Context, role string) {
	if o.metrics != nil {
		o.metrics.RecordChatMessage(ctx, role)
	}
}

// toLLMMessages converts stored history into completion messages, oldest
// first.
func toLLMMessages(history []store.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == store.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return msgs
}
