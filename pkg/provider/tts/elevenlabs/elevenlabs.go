// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. It implements the tts.Provider
// interface.
//
// The reply text is sent in one message followed by the end-of-input marker;
// the base64 audio chunks ElevenLabs streams back are decoded and concatenated
// until the server flags the final chunk.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/tts"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// defaultVoiceID is the ElevenLabs "Rachel" premade voice.
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the mp3 output format (e.g., "mp3_22050_32").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the WebSocket base URL. Useful for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithVoiceID sets the voice used when Synthesize is called without one, or
// with an OpenAI voice name that has no ElevenLabs equivalent.
func WithVoiceID(id string) Option {
	return func(p *Provider) {
		p.voiceID = id
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	voiceID      string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		voiceID:      defaultVoiceID,
	}
	for _, o := range opts {
		o(p)
	}
	if !strings.HasPrefix(p.outputFormat, "mp3_") {
		return nil, fmt.Errorf("elevenlabs: output format %q is not mp3", p.outputFormat)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded mp3
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	voiceID := p.resolveVoice(voice)

	conn, resp, err := websocket.Dial(ctx, p.buildURL(voiceID), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, apperr.Synthesis(status, fmt.Errorf("elevenlabs: dial: %w", err))
	}
	defer conn.CloseNow()
	conn.SetReadLimit(8 << 20)

	msgs := []textMessage{
		// The first message opens the stream; ElevenLabs requires a
		// non-empty text value.
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}, XiAPIKey: p.apiKey},
		{Text: text + " "},
		// Empty text marks the end of input and flushes the buffer.
		{Text: ""},
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, apperr.Synthesis(0, fmt.Errorf("elevenlabs: marshal message: %w", err))
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return nil, apperr.Synthesis(0, fmt.Errorf("elevenlabs: send text: %w", err))
		}
	}

	audio, err := collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return audio, nil
}

// collectAudio reads audio chunks until the final flag or a normal close.
func collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && buf.Len() > 0 {
				return buf.Bytes(), nil
			}
			return nil, apperr.Synthesis(0, fmt.Errorf("elevenlabs: read: %w", err))
		}

		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, apperr.Synthesis(0, fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message))
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, apperr.Synthesis(0, fmt.Errorf("elevenlabs: decode audio chunk: %w", err))
			}
			buf.Write(chunk)
		}
		if resp.IsFinal {
			if buf.Len() == 0 {
				return nil, apperr.Synthesis(0, errors.New("elevenlabs: no audio received"))
			}
			return buf.Bytes(), nil
		}
	}
}

// resolveVoice maps the requested voice to an ElevenLabs voice ID. The
// OpenAI voice names clients send by default are not ElevenLabs IDs and fall
// back to the configured voice.
func (p *Provider) resolveVoice(voice string) string {
	switch voice {
	case "", "alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse":
		return p.voiceID
	}
	return voice
}

// buildURL constructs the WebSocket URL for a given voice.
func (p *Provider) buildURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.baseURL, url.PathEscape(voiceID), q.Encode())
}
