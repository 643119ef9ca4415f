// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify that the caller uploads the expected audio and mime
// type, and to feed a controlled transcript without a live STT backend.
//
// Example:
//
//	p := &mock.Provider{Text: "hello"}
//	text, _ := p.Transcribe(ctx, audio, "audio/webm")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/agora/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the bytes passed to Transcribe.
	Audio []byte
	// MimeType is the mime type passed to Transcribe.
	MimeType string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: cp, MimeType: mimeType})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
