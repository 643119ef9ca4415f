package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/llm"
	llmmock "github.com/MrWong99/agora/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/agora/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/agora/pkg/provider/tts/mock"
)

var testFallbackConfig = FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}}

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from gateway"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from openai"}}

	fb := NewLLMFallback(primary, "gateway", testFallbackConfig)
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from gateway" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestLLMFallback_Complete_QuotaFailsOver(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: apperr.QuotaExceeded()}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from openai"}}

	fb := NewLLMFallback(primary, "gateway", testFallbackConfig)
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from openai" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestLLMFallback_StreamCompletion(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{StreamErr: apperr.Upstream(500, errors.New("boom"))}
	secondary := &llmmock.Provider{StreamChunks: llmmock.TextChunks("Hel", "lo")}

	fb := NewLLMFallback(primary, "gateway", testFallbackConfig)
	fb.AddFallback("openai", secondary)

	ch, err := fb.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got string
	for c := range ch {
		got += c.Text
	}
	if got != "Hello" {
		t.Errorf("streamed %q, want Hello", got)
	}
	if fb.Group().Breaker("gateway").State() != StateClosed {
		t.Error("one failure must not open a breaker with MaxFailures 3")
	}
}

func TestLLMFallback_AllFailedRateLimited(t *testing.T) {
	t.Parallel()
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: apperr.RateLimited()}, "gateway", testFallbackConfig)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if apperr.HTTPStatus(err) != 429 || apperr.Message(err) != apperr.MsgRateLimited {
		t.Errorf("err = %v (status %d)", err, apperr.HTTPStatus(err))
	}
}

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: apperr.Transcription(503, errors.New("unavailable"))}
	secondary := &sttmock.Provider{Text: "what is torque"}

	fb := NewSTTFallback(primary, "openai", testFallbackConfig)
	fb.AddFallback("deepgram", secondary)

	text, err := fb.Transcribe(context.Background(), []byte{1, 2}, "audio/webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "what is torque" {
		t.Errorf("text = %q", text)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
	if got := secondary.TranscribeCalls[0].MimeType; got != "audio/webm" {
		t.Errorf("mime type = %q", got)
	}
}

func TestTTSFallback_Synthesize(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{Err: apperr.Synthesis(500, errors.New("boom"))}
	secondary := &ttsmock.Provider{Audio: []byte{0xff, 0xfb}}

	fb := NewTTSFallback(primary, "elevenlabs", testFallbackConfig)
	fb.AddFallback("openai", secondary)

	audio, err := fb.Synthesize(context.Background(), "hi there", "alloy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio) != 2 {
		t.Errorf("audio = %v", audio)
	}
	if got := secondary.SynthesizeCalls[0].Voice; got != "alloy" {
		t.Errorf("voice = %q", got)
	}
}

func TestTTSFallback_AllFailed(t *testing.T) {
	t.Parallel()
	fb := NewTTSFallback(&ttsmock.Provider{Err: apperr.Synthesis(500, errors.New("boom"))}, "openai", testFallbackConfig)

	_, err := fb.Synthesize(context.Background(), "hi", "")
	if !errors.Is(err, ErrAllFailed) || !apperr.Is(err, apperr.KindSynthesis) {
		t.Errorf("err = %v", err)
	}
}
