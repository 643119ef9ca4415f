package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/llm"
)

func sseLine(text string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", text)
}

// newServer starts a test gateway that records the decoded request body and
// replies with handler.
func newServer(t *testing.T, handler func(w http.ResponseWriter, body chatRequest)) (*Provider, *chatRequest) {
	t.Helper()
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, got)
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, &got
}

func userRequest(text string) llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: "You are Agora.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
	}
}

func TestStreamCompletion_ConcatenatesFragments(t *testing.T) {
	t.Parallel()

	p, got := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, ": keep-alive\n\n")
		io.WriteString(w, sseLine("Hel"))
		io.WriteString(w, sseLine("lo, "))
		io.WriteString(w, sseLine("world"))
		io.WriteString(w, "data: [DONE]\n\n")
		io.WriteString(w, sseLine("ignored after done"))
	})

	ch, err := p.StreamCompletion(context.Background(), userRequest("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	text, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello, world" {
		t.Errorf("text = %q, want %q", text, "Hello, world")
	}
	if !got.Stream {
		t.Error("expected stream=true in request")
	}
	if got.Model != DefaultModel {
		t.Errorf("model = %q, want %q", got.Model, DefaultModel)
	}
}

func TestStreamCompletion_SkipsMalformedFragments(t *testing.T) {
	t.Parallel()

	p, _ := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		io.WriteString(w, sseLine("a"))
		io.WriteString(w, "data: {\"choices\":[{\"delta\":\n\n")
		io.WriteString(w, "data: not json at all\n\n")
		io.WriteString(w, sseLine("b"))
		io.WriteString(w, "data: [DONE]\n\n")
	})

	ch, err := p.StreamCompletion(context.Background(), userRequest("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	text, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "ab" {
		t.Errorf("text = %q, want %q", text, "ab")
	}
}

func TestStreamCompletion_EOFWithoutDone(t *testing.T) {
	t.Parallel()

	p, _ := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		io.WriteString(w, sseLine("partial"))
	})

	ch, err := p.StreamCompletion(context.Background(), userRequest("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	text, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "partial" {
		t.Errorf("text = %q", text)
	}
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status     int
		wantKind   apperr.Kind
		wantStatus int
	}{
		{http.StatusTooManyRequests, apperr.KindRateLimited, http.StatusTooManyRequests},
		{http.StatusPaymentRequired, apperr.KindQuotaExceeded, http.StatusPaymentRequired},
		{http.StatusInternalServerError, apperr.KindUpstream, http.StatusInternalServerError},
		{http.StatusBadRequest, apperr.KindUpstream, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			p, _ := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			})

			_, err := p.StreamCompletion(context.Background(), userRequest("Hi"))
			if !apperr.Is(err, tt.wantKind) {
				t.Fatalf("stream: kind = %v, want %v (err=%v)", apperr.KindOf(err), tt.wantKind, err)
			}
			if got := apperr.HTTPStatus(err); got != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.wantStatus)
			}

			_, err = p.Complete(context.Background(), userRequest("Hi"))
			if !apperr.Is(err, tt.wantKind) {
				t.Fatalf("complete: kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
			}
			if n := calls.Load(); n != 2 {
				t.Errorf("expected exactly one upstream call per request (no retry), got %d", n)
			}
		})
	}
}

func TestUpstreamErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	p, _ := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := p.Complete(context.Background(), userRequest("Hi"))
	if !strings.Contains(apperr.Message(err), "AI API error: 502") {
		t.Errorf("message = %q", apperr.Message(err))
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	p, got := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"concise answer"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`)
	})

	req := userRequest("What is gravity?")
	req.Temperature = 0.7
	req.MaxTokens = 120
	resp, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "concise answer" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
	if got.Stream {
		t.Error("expected stream=false for single-shot")
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature = %v", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 120 {
		t.Errorf("max_tokens = %v", got.MaxTokens)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	t.Parallel()

	p, _ := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
		io.WriteString(w, `{"choices":[]}`)
	})
	_, err := p.Complete(context.Background(), userRequest("Hi"))
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestBuildRequest_SystemPromptFirst(t *testing.T) {
	t.Parallel()

	p, err := New("k", WithModel("m"))
	if err != nil {
		t.Fatal(err)
	}
	cr := p.buildRequest(llm.CompletionRequest{
		SystemPrompt: "sys",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "q1"},
			{Role: llm.RoleAssistant, Content: "a1"},
			{Role: llm.RoleUser, Content: "q2"},
		},
	}, true)

	want := []chatMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	}
	if len(cr.Messages) != len(want) {
		t.Fatalf("got %d messages, want %d", len(cr.Messages), len(want))
	}
	for i := range want {
		if cr.Messages[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, cr.Messages[i], want[i])
		}
	}
	if cr.Temperature != nil || cr.MaxTokens != nil {
		t.Error("expected zero temperature and max tokens to be omitted")
	}
}

func TestParseStream_StopsWhenEmitDeclines(t *testing.T) {
	t.Parallel()

	in := sseLine("one") + sseLine("two") + sseLine("three")
	var got []string
	err := ParseStream(strings.NewReader(in), func(c llm.Chunk) bool {
		got = append(got, c.Text)
		return len(got) < 2
	})
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if strings.Join(got, ",") != "one,two" {
		t.Errorf("got %v", got)
	}
}

func TestParseStream_FinishReason(t *testing.T) {
	t.Parallel()

	in := sseLine("x") + "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" + "data: [DONE]\n"
	var chunks []llm.Chunk
	if err := ParseStream(strings.NewReader(in), func(c llm.Chunk) bool {
		chunks = append(chunks, c)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 || chunks[1].FinishReason != "stop" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("k", WithModel("")); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestWithTimeout_KeepsCustomClient(t *testing.T) {
	t.Parallel()

	transport := &http.Transport{}
	custom := &http.Client{Transport: transport}
	tests := []struct {
		name string
		opts []Option
	}{
		{"client first", []Option{WithHTTPClient(custom), WithTimeout(5 * time.Second)}},
		{"timeout first", []Option{WithTimeout(5 * time.Second), WithHTTPClient(custom)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("k", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.httpClient.Transport != transport {
				t.Error("custom transport discarded")
			}
			if p.httpClient.Timeout != 5*time.Second {
				t.Errorf("timeout = %v, want 5s", p.httpClient.Timeout)
			}
			if custom.Timeout != 0 {
				t.Errorf("caller's client mutated: timeout = %v", custom.Timeout)
			}
		})
	}
}
