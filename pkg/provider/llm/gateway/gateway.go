// Package gateway provides an LLM provider for OpenAI-compatible chat
// completion gateways, such as the Lovable AI gateway Agora is deployed
// against.
//
// Streaming responses are consumed as server-sent events: each line of the form
// "data: <json>" carries one fragment in choices[0].delta.content and the line
// "data: [DONE]" ends the stream. A fragment whose payload fails to parse is
// skipped rather than aborting the stream, so one corrupt fragment never
// discards the text received so far.
//
// Usage:
//
//	p, err := gateway.New(apiKey,
//	    gateway.WithModel("google/gemini-2.5-flash"),
//	)
//	ch, err := p.StreamCompletion(ctx, req)
//	reply, err := llm.Collect(ctx, ch)
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/llm"
)

const (
	// DefaultBaseURL is the Lovable AI gateway endpoint.
	DefaultBaseURL = "https://ai.gateway.lovable.dev/v1"

	// DefaultModel is the model requested when none is configured.
	DefaultModel = "google/gemini-2.5-flash"

	// maxLineBytes bounds a single SSE line. Fragments are small; the limit only
	// guards against a misbehaving upstream.
	maxLineBytes = 1 << 20

	doneSentinel = "[DONE]"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the gateway base URL. The chat completions path is
// appended to it.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the model identifier sent with every request.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient replaces the HTTP client. Useful for tests and for custom
// transports. A nil client is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithTimeout sets an overall per-request timeout. It applies to whichever
// HTTP client the provider ends up with, regardless of option order; the
// client passed to [WithHTTPClient] is copied, not mutated. Zero (the default)
// leaves requests bounded only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements llm.Provider against an OpenAI-compatible gateway.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a gateway Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gateway: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.model == "" {
		return nil, errors.New("gateway: model must not be empty")
	}
	if p.timeout > 0 {
		c := *p.httpClient
		c.Timeout = p.timeout
		p.httpClient = &c
	}
	return p, nil
}

// ---- wire types ----

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type streamFragment struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCompletion implements llm.Provider. A non-2xx response is returned as
// the initial error, classified per the apperr taxonomy.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := p.do(ctx, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := ParseStream(resp.Body, func(c llm.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Err: apperr.Upstream(0, fmt.Errorf("gateway: read stream: %w", err))}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, apperr.Upstream(resp.StatusCode, fmt.Errorf("gateway: decode response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return nil, apperr.Upstream(resp.StatusCode, errors.New("gateway: empty choices in response"))
	}

	out := &llm.CompletionResponse{Content: cr.Choices[0].Message.Content}
	if cr.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     cr.Usage.PromptTokens,
			CompletionTokens: cr.Usage.CompletionTokens,
			TotalTokens:      cr.Usage.TotalTokens,
		}
	}
	return out, nil
}

// do issues the chat completions request and classifies non-2xx statuses.
// On success the caller owns resp.Body.
func (p *Provider) do(ctx context.Context, req llm.CompletionRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(p.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream(0, fmt.Errorf("gateway: http request: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, apperr.FromStatus(resp.StatusCode,
			fmt.Errorf("gateway: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return resp, nil
}

// buildRequest converts a CompletionRequest into the gateway wire format.
func (p *Provider) buildRequest(req llm.CompletionRequest, stream bool) chatRequest {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: llm.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	cr := chatRequest{
		Model:    p.model,
		Messages: msgs,
		Stream:   stream,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		cr.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		cr.MaxTokens = &mt
	}
	return cr
}

// ParseStream reads server-sent event lines from r and calls emit once per
// text fragment, in arrival order. It stops at the "[DONE]" sentinel, at EOF,
// or when emit returns false. Malformed fragments are skipped. The returned
// error is non-nil only for read failures.
func ParseStream(r io.Reader, emit func(llm.Chunk) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Blank separators, ":" comments and event/id fields carry no text.
			continue
		}
		payload = strings.TrimPrefix(payload, " ")
		if payload == doneSentinel {
			return nil
		}

		var frag streamFragment
		if err := json.Unmarshal([]byte(payload), &frag); err != nil {
			slog.Debug("gateway: skipping malformed stream fragment", "err", err)
			continue
		}
		if len(frag.Choices) == 0 {
			continue
		}
		choice := frag.Choices[0]
		c := llm.Chunk{Text: choice.Delta.Content}
		if choice.FinishReason != nil {
			c.FinishReason = *choice.FinishReason
		}
		if c.Text == "" && c.FinishReason == "" {
			continue
		}
		if !emit(c) {
			return nil
		}
	}
	return sc.Err()
}
