// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded transcription API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the API endpoint. Useful for tests and self-hosted
// deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The recording is posted as the raw
// request body; Deepgram detects the container from the Content-Type.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = stt.DefaultMimeType
	}
	u, err := p.buildURL()
	if err != nil {
		return "", apperr.Transcription(0, fmt.Errorf("deepgram: build URL: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(audio))
	if err != nil {
		return "", apperr.Transcription(0, fmt.Errorf("deepgram: create request: %w", err))
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", mimeType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", apperr.Transcription(0, fmt.Errorf("deepgram: http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", stt.StatusError("deepgram", resp)
	}

	var dr deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", apperr.Transcription(resp.StatusCode, fmt.Errorf("deepgram: parse response: %w", err))
	}
	return dr.transcript(), nil
}

// buildURL constructs the Deepgram endpoint URL with recognition parameters.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	if p.language != "" {
		q.Set("language", p.language)
	}
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by the pre-recorded API.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// transcript returns the top alternative of the first channel, or "" when
// Deepgram recognised nothing.
func (r deepgramResponse) transcript() string {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Results.Channels[0].Alternatives[0].Transcript)
}
