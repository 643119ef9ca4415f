// Package voice implements the spoken tutor exchange: a recorded question is
// transcribed, answered concisely and the answer is synthesised back to mp3.
//
// The exchange is stateless. Nothing is persisted, no conversation history is
// used and a failure at any stage aborts the whole request without a partial
// result.
package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/agora/internal/observe"
	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/audio"
	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/provider/stt"
	"github.com/MrWong99/agora/pkg/provider/tts"
	"github.com/MrWong99/agora/pkg/transcode"
)

// DefaultSystemPrompt keeps spoken replies short.
const DefaultSystemPrompt = "You are Agora, a helpful AI tutor. Keep responses concise."

// Request carries one recorded question.
type Request struct {
	// AudioBase64 is the recording, base64 encoded. A data URL prefix is
	// accepted.
	AudioBase64 string
	// MimeType is the recording's container format. Empty means the
	// orchestrator's default.
	MimeType string
	// Voice selects the synthesis voice. Empty means the orchestrator's
	// default.
	Voice string
}

// Result is a complete voice exchange.
type Result struct {
	UserText         string
	ReplyText        string
	ReplyAudioBase64 string
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

// WithDefaultVoice sets the voice used when a request names none.
// Defaults to [tts.DefaultVoice].
func WithDefaultVoice(voice string) Option {
	return func(o *Orchestrator) {
		if voice != "" {
			o.voice = voice
		}
	}
}

// WithDefaultMimeType sets the recording format assumed when a request names
// none. Defaults to [stt.DefaultMimeType].
func WithDefaultMimeType(mime string) Option {
	return func(o *Orchestrator) {
		if mime != "" {
			o.mimeType = mime
		}
	}
}

// WithMetrics records reply audio length on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs voice exchanges. It is safe for concurrent use.
type Orchestrator struct {
	stt          stt.Provider
	llm          llm.Provider
	tts          tts.Provider
	systemPrompt string
	voice        string
	mimeType     string
	metrics      *observe.Metrics
}

// New creates an Orchestrator.
func New(s stt.Provider, l llm.Provider, t tts.Provider, opts ...Option) (*Orchestrator, error) {
	if s == nil || l == nil || t == nil {
		return nil, errors.New("voice: stt, llm and tts providers must not be nil")
	}
	o := &Orchestrator{
		stt:          s,
		llm:          l,
		tts:          t,
		systemPrompt: DefaultSystemPrompt,
		voice:        tts.DefaultVoice,
		mimeType:     stt.DefaultMimeType,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Converse runs one exchange. An empty transcript is answered like any other
// text. Returned errors carry an apperr kind.
func (o *Orchestrator) Converse(ctx context.Context, req Request) (Result, error) {
	if req.AudioBase64 == "" {
		return Result{}, apperr.Transcoding("No audio provided", nil)
	}
	recording, err := transcode.DecodeBase64(req.AudioBase64)
	if err != nil {
		return Result{}, fmt.Errorf("voice: decode audio: %w", err)
	}
	if len(recording) == 0 {
		return Result{}, apperr.Transcoding("No audio provided", nil)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = o.mimeType
	}
	userText, err := o.stt.Transcribe(ctx, recording, mimeType)
	if err != nil {
		return Result{}, fmt.Errorf("voice: transcribe: %w", err)
	}

	resp, err := o.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: o.systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userText}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("voice: completion: %w", err)
	}
	replyText := resp.Text()

	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}
	replyAudio, err := o.tts.Synthesize(ctx, replyText, voice)
	if err != nil {
		return Result{}, fmt.Errorf("voice: synthesize: %w", err)
	}

	o.recordReplyAudio(ctx, replyAudio)
	observe.Logger(ctx).Debug("voice exchange complete",
		"audio_bytes", len(recording),
		"user_text_len", len(userText),
		"reply_audio_bytes", len(replyAudio),
	)
	return Result{
		UserText:         userText,
		ReplyText:        replyText,
		ReplyAudioBase64: transcode.EncodeBase64(replyAudio),
	}, nil
}

// recordReplyAudio records the playback length of the synthesised reply.
// Audio that does not parse as mp3 is not recorded.
func (o *Orchestrator) recordReplyAudio(ctx context.Context, mp3 []byte) {
	if o.metrics == nil {
		return
	}
	d, err := audio.MP3Duration(mp3)
	if err != nil {
		observe.Logger(ctx).Debug("reply audio is not mp3", "err", err)
		return
	}
	o.metrics.ReplyAudioDuration.Record(ctx, d.Seconds())
}
