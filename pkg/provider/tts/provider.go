// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (the OpenAI speech API or
// ElevenLabs) and turns one complete reply into an mp3 payload. The encoding is
// fixed: every implementation returns mp3 bytes, which Agora base64-encodes and
// hands to the browser for playback.
//
// Failures are reported as apperr.KindSynthesis.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
)

// DefaultVoice is used when the caller does not pick a voice.
const DefaultVoice = "alloy"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the named voice and returns the complete mp3
	// payload. An empty voice means the provider's default voice.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
