// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (the OpenAI Whisper API,
// a self-hosted whisper.cpp server or Deepgram's pre-recorded endpoint) and
// turns one complete audio recording into text. Agora's voice pipeline needs
// the full transcript before it can continue, so there is no streaming mode.
//
// Failures are reported as apperr.KindTranscription. An empty transcript is
// a valid result and not an error.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/agora/pkg/apperr"
)

// DefaultMimeType is assumed when the caller does not know the recording's
// container format. Browsers' MediaRecorder produces WebM/Opus by default.
const DefaultMimeType = "audio/webm"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe uploads audio, encoded as mimeType, and returns the recognised
	// text. An empty mimeType means DefaultMimeType.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// StatusError reads a bounded snippet of a failed response body and wraps it
// as a transcription error carrying the HTTP status.
func StatusError(provider string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return apperr.Transcription(resp.StatusCode,
		fmt.Errorf("%s: HTTP %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(snippet))))
}
