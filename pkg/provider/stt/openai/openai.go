// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (Whisper).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/audio"
	"github.com/MrWong99/agora/pkg/provider/stt"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = "whisper-1"

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

type config struct {
	baseURL    string
	model      string
	language   string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets an ISO-639-1 language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs an OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		cfg.model = DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = stt.DefaultMimeType
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), audio.FileName(mimeType), mimeType),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return "", apperr.Transcription(apiErr.StatusCode, fmt.Errorf("openai stt: %w", err))
		}
		return "", apperr.Transcription(0, fmt.Errorf("openai stt: %w", err))
	}
	return strings.TrimSpace(res.Text), nil
}
