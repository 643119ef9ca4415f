package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/agora/pkg/apperr"
	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/provider/stt"
	"github.com/MrWong99/agora/pkg/provider/tts"
)

// Provider kinds used as the "kind" metric attribute.
const (
	KindLLM = "llm"
	KindSTT = "stt"
	KindTTS = "tts"
)

// call tracks one provider invocation from start to finish.
type call struct {
	m        *Metrics
	provider string
	kind     string
	hist     metric.Float64Histogram
	start    time.Time
	span     trace.Span
}

func (m *Metrics) begin(ctx context.Context, provider, kind, op string, hist metric.Float64Histogram) (context.Context, *call) {
	ctx, span := StartSpan(ctx, kind+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider", provider)),
	)
	return ctx, &call{m: m, provider: provider, kind: kind, hist: hist, start: time.Now(), span: span}
}

// end records duration, request and error counters and closes the span.
func (c *call) end(ctx context.Context, err error) {
	defer c.span.End()
	c.hist.Record(ctx, time.Since(c.start).Seconds(),
		metric.WithAttributes(attribute.String("provider", c.provider)),
	)
	if err != nil {
		c.m.RecordProviderRequest(ctx, c.provider, c.kind, "error")
		c.m.RecordProviderError(ctx, c.provider, c.kind, apperr.KindOf(err).String())
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
		return
	}
	c.m.RecordProviderRequest(ctx, c.provider, c.kind, "ok")
}

// ─────────────────────────────────────────────────────────────────────────────
// LLM
// ─────────────────────────────────────────────────────────────────────────────

// InstrumentLLM wraps p so every call is timed, counted and traced under the
// given provider name.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	return &instrumentedLLM{next: p, name: name, m: m}
}

type instrumentedLLM struct {
	next llm.Provider
	name string
	m    *Metrics
}

// StreamCompletion records the call once the returned stream is closed.
func (p *instrumentedLLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ctx, c := p.m.begin(ctx, p.name, KindLLM, "stream", p.m.LLMDuration)
	in, err := p.next.StreamCompletion(ctx, req)
	if err != nil {
		c.end(ctx, err)
		return nil, err
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		var streamErr error
		defer func() { c.end(ctx, streamErr) }()
		for chunk := range in {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				streamErr = ctx.Err()
				return
			}
		}
	}()
	return out, nil
}

// Complete records a single-shot completion.
func (p *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, c := p.m.begin(ctx, p.name, KindLLM, "complete", p.m.LLMDuration)
	resp, err := p.next.Complete(ctx, req)
	c.end(ctx, err)
	return resp, err
}

// ─────────────────────────────────────────────────────────────────────────────
// STT
// ─────────────────────────────────────────────────────────────────────────────

// InstrumentSTT wraps p so every transcription is timed, counted and traced.
func InstrumentSTT(p stt.Provider, name string, m *Metrics) stt.Provider {
	return &instrumentedSTT{next: p, name: name, m: m}
}

type instrumentedSTT struct {
	next stt.Provider
	name string
	m    *Metrics
}

func (p *instrumentedSTT) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, c := p.m.begin(ctx, p.name, KindSTT, "transcribe", p.m.STTDuration)
	c.span.SetAttributes(attribute.Int("audio.bytes", len(audio)), attribute.String("audio.mime", mimeType))
	text, err := p.next.Transcribe(ctx, audio, mimeType)
	c.end(ctx, err)
	return text, err
}

// ─────────────────────────────────────────────────────────────────────────────
// TTS
// ─────────────────────────────────────────────────────────────────────────────

// InstrumentTTS wraps p so every synthesis is timed, counted and traced.
func InstrumentTTS(p tts.Provider, name string, m *Metrics) tts.Provider {
	return &instrumentedTTS{next: p, name: name, m: m}
}

type instrumentedTTS struct {
	next tts.Provider
	name string
	m    *Metrics
}

func (p *instrumentedTTS) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, c := p.m.begin(ctx, p.name, KindTTS, "synthesize", p.m.TTSDuration)
	c.span.SetAttributes(attribute.Int("text.length", len(text)), attribute.String("voice", voice))
	audio, err := p.next.Synthesize(ctx, text, voice)
	c.end(ctx, err)
	return audio, err
}

var (
	_ llm.Provider = (*instrumentedLLM)(nil)
	_ stt.Provider = (*instrumentedSTT)(nil)
	_ tts.Provider = (*instrumentedTTS)(nil)
)
