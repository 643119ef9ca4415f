package resilience

import (
	"context"

	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/provider/stt"
	"github.com/MrWong99/agora/pkg/provider/tts"
)

// ─── LLM ─────────────────────────────────────────────────────────────────────

// LLMFallback is an [llm.Provider] that fails over across several backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after all earlier ones.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Group exposes the underlying group, mainly for inspecting breaker state.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] { return f.group }

// StreamCompletion fails over only while opening the stream. Once a backend
// has accepted the request its chunks are returned as they are, including a
// trailing error chunk.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete returns the first successful reply.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// ─── STT ─────────────────────────────────────────────────────────────────────

// STTFallback is an [stt.Provider] that fails over across several backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// Transcribe returns the first successful transcript.
func (f *STTFallback) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, audio, mimeType)
	})
}

// ─── TTS ─────────────────────────────────────────────────────────────────────

// TTSFallback is a [tts.Provider] that fails over across several backends.
// Voice names are passed through unchanged, so fallbacks should either
// understand the same voice names or be configured with a default voice.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// Synthesize returns the first successful mp3 payload.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}
