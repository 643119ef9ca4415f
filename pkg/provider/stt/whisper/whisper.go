// Package whisper provides an STT provider for self-hosted Whisper servers.
//
// It speaks the multipart upload protocol shared by whisper.cpp's
// whisper-server (POST /inference) and OpenAI-compatible transcription servers
// such as faster-whisper-server or LocalAI (POST /v1/audio/transcriptions).
// The whole recording is sent as the "file" form field; the server replies with
// JSON {"text": "..."}.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	text, err := p.Transcribe(ctx, audioBytes, "audio/webm")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/audio"
	"github.com/MrWong99/agora/pkg/provider/stt"
)

const (
	// DefaultEndpoint is the whisper.cpp server inference path.
	DefaultEndpoint = "/inference"

	defaultTimeout = 60 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server (e.g.,
// "base.en", "whisper-1"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server (e.g., "en", "de").
// Empty lets the server auto-detect.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithEndpoint overrides the request path appended to the server URL. Use
// "/v1/audio/transcriptions" for OpenAI-compatible servers.
func WithEndpoint(path string) Option {
	return func(p *Provider) {
		p.endpoint = path
	}
}

// WithAPIKey sends the key as a bearer token. whisper.cpp ignores it; hosted
// OpenAI-compatible servers usually require it.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithHTTPClient replaces the HTTP client. Useful for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a Whisper HTTP server.
type Provider struct {
	serverURL  string
	endpoint   string
	model      string
	language   string
	apiKey     string
	httpClient *http.Client
}

// New creates a new Provider that connects to the Whisper server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = stt.DefaultMimeType
	}

	body, contentType, err := p.buildForm(data, mimeType)
	if err != nil {
		return "", apperr.Transcription(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+p.endpoint, body)
	if err != nil {
		return "", apperr.Transcription(0, fmt.Errorf("whisper: create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", apperr.Transcription(0, fmt.Errorf("whisper: http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", stt.StatusError("whisper", resp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperr.Transcription(resp.StatusCode, fmt.Errorf("whisper: parse JSON response: %w", err))
	}
	return strings.TrimSpace(result.Text), nil
}

// buildForm encodes the recording and hint fields as multipart/form-data.
func (p *Provider) buildForm(data []byte, mimeType string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.FileName(mimeType)))
	h.Set("Content-Type", mimeType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := [][2]string{
		{"model", p.model},
		{"language", p.language},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
