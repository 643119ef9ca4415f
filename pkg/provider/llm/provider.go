// Package llm defines the Provider interface for text completion backends.
//
// A provider wraps a remote chat-completions API (the AI gateway, OpenAI, or any
// vendor reachable through any-llm-go) and exposes two modes: streaming, where
// the reply arrives as incremental fragments, and single-shot. Upstream
// failures are classified with the apperr taxonomy: HTTP 429 becomes
// RateLimited, 402 becomes QuotaExceeded and any other non-2xx status becomes
// UpstreamError. Providers never retry.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"strings"
)

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is sent as a leading "system" message when non-empty.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// means the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this fragment. May be empty.
	Text string

	// FinishReason is set on the final chunk by backends that report it
	// ("stop", "length", ...). It is "error" when Err is set.
	FinishReason string

	// Err is set on a terminal chunk when the stream broke after it started.
	// No further chunks follow an error chunk.
	Err error
}

// CompletionResponse is returned by the single-shot Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request, when reported.
	Usage Usage
}

// Text returns r.Content, or "" for a nil response.
func (r *CompletionResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Content
}

// Provider is the abstraction over any text completion backend.
type Provider interface {
	// StreamCompletion sends req with streaming enabled and returns a channel
	// that emits fragments in arrival order. The initial error is non-nil for
	// failures that prevent the stream from starting, which includes every
	// non-2xx upstream status. Errors after the stream opened arrive as a final
	// Chunk with Err set.
	//
	// Callers must drain the channel. The returned channel is never nil when
	// error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req without streaming and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Collect drains ch and concatenates every fragment's text in arrival order.
// It returns the first stream error, together with the text accumulated up to
// that point. If ctx is cancelled first, ctx.Err() is returned.
func Collect(ctx context.Context, ch <-chan Chunk) (string, error) {
	var sb strings.Builder
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if c.Err != nil {
				// Drain so the producer goroutine can exit.
				for range ch {
				}
				return sb.String(), c.Err
			}
			sb.WriteString(c.Text)
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		}
	}
}
