package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"agora.stt.duration", m.STTDuration},
		{"agora.llm.duration", m.LLMDuration},
		{"agora.tts.duration", m.TTSDuration},
		{"agora.voice.reply_audio.duration", m.ReplyAudioDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

// sumWith returns the value of the data point of an int64 sum metric that
// carries key=value, and whether such a point exists.
func sumWith(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value, true
			}
		}
	}
	return 0, false
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "gateway", "llm", "ok")
	m.RecordProviderRequest(ctx, "gateway", "llm", "ok")
	m.RecordProviderRequest(ctx, "gateway", "llm", "error")

	rm := collect(t, reader)
	got, ok := sumWith(t, rm, "agora.provider.requests", "status", "ok")
	if !ok {
		t.Fatal("data point with status=ok not found")
	}
	if got != 2 {
		t.Errorf("counter value = %d, want 2", got)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "openai", "tts", "synthesis_error")

	rm := collect(t, reader)
	got, ok := sumWith(t, rm, "agora.provider.errors", "error_kind", "synthesis_error")
	if !ok {
		t.Fatal("data point with error_kind=synthesis_error not found")
	}
	if got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestChatMessagesCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChatMessage(ctx, "user")
	m.RecordChatMessage(ctx, "user")
	m.RecordChatMessage(ctx, "assistant")

	rm := collect(t, reader)
	if got, _ := sumWith(t, rm, "agora.chat.messages", "role", "user"); got != 2 {
		t.Errorf("user messages = %d, want 2", got)
	}
	if got, _ := sumWith(t, rm, "agora.chat.messages", "role", "assistant"); got != 1 {
		t.Errorf("assistant messages = %d, want 1", got)
	}
}

func TestQuizGenerationsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordQuizGeneration(ctx, "medium", "ok")
	m.RecordQuizGeneration(ctx, "hard", "validation_error")

	rm := collect(t, reader)
	if got, ok := sumWith(t, rm, "agora.quiz.generations", "status", "validation_error"); !ok || got != 1 {
		t.Errorf("validation_error count = %d (found %v), want 1", got, ok)
	}
}

func TestRecordHTTPRequest_SuccessHasNoErrorKind(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordHTTPRequest(context.Background(), "POST", "/chat", 200, "", 50*time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "agora.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if v, _ := dp.Attributes.Value("error_kind"); v.AsString() != "none" {
		t.Errorf("error_kind = %q, want none", v.AsString())
	}
	if v, _ := dp.Attributes.Value("status"); v.AsInt64() != 200 {
		t.Errorf("status = %d, want 200", v.AsInt64())
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
