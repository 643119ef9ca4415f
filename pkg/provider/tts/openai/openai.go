// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/tts"
)

// DefaultModel is the speech model used when none is configured.
const DefaultModel = "tts-1"

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	voice  string
}

type config struct {
	baseURL    string
	model      string
	voice      string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides DefaultModel (e.g., "tts-1-hd", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the voice used when Synthesize is called without one.
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs an OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel, voice: tts.DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		cfg.model = DefaultModel
	}
	if cfg.voice == "" {
		cfg.voice = tts.DefaultVoice
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
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = p.voice
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, apperr.Synthesis(apiErr.StatusCode, fmt.Errorf("openai tts: %w", err))
		}
		return nil, apperr.Synthesis(0, fmt.Errorf("openai tts: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Synthesis(resp.StatusCode, fmt.Errorf("openai tts: read audio: %w", err))
	}
	return data, nil
}
