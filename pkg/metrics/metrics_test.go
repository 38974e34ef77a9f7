package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func chunkEvent(n float64) MetricsEvent {
	return MetricsEvent{Name: EventChunkOut, Value: n, Tags: map[string]string{TagSource: "sine"}}
}

func TestSamplingKeepsLifecycleEvents(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.5)
	s.RecordEvent(MetricsEvent{Name: EventSessionStart})
	for i := 0; i < 10; i++ {
		s.RecordEvent(chunkEvent(1))
	}
	s.RecordEvent(MetricsEvent{Name: EventSessionEnd})

	if got := len(mem.Named(EventChunkOut)); got != 5 {
		t.Fatalf("expected 5 sampled chunks, got %d", got)
	}
	if len(mem.Named(EventSessionStart)) != 1 || len(mem.Named(EventSessionEnd)) != 1 {
		t.Fatalf("lifecycle events must not be sampled")
	}

	none := NewMemoryObserver()
	NewSamplingObserver(none, 0).RecordEvent(chunkEvent(1))
	if none.Len() != 0 {
		t.Fatalf("rate 0 should drop sampled events")
	}
}

func TestSamplingStrideIsPerSession(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.25)
	chunk := func(id string) MetricsEvent {
		return MetricsEvent{Name: EventChunkOut, Value: 1, Tags: map[string]string{TagSessionID: id}}
	}
	// Interleaved sessions must not steal each other's kept slots.
	for i := 0; i < 8; i++ {
		s.RecordEvent(chunk("a"))
		s.RecordEvent(chunk("b"))
	}
	perSession := map[string]int{}
	for _, ev := range mem.Named(EventChunkOut) {
		perSession[ev.Tag(TagSessionID)]++
	}
	if perSession["a"] != 2 || perSession["b"] != 2 {
		t.Fatalf("expected 2 kept chunks per session, got %v", perSession)
	}

	s.RecordEvent(MetricsEvent{Name: EventSessionEnd, Tags: map[string]string{TagSessionID: "a"}})
	s.RecordEvent(chunk("a"))
	if got := len(mem.Named(EventChunkOut)); got != 5 {
		t.Fatalf("a restarted session keeps its first chunk, got %d kept", got)
	}
}

type flushCounter struct {
	MemoryObserver
	flushed int
}

func (f *flushCounter) Flush() error {
	f.flushed++
	return nil
}

func TestAsyncObserverDrainsOnClose(t *testing.T) {
	inner := &flushCounter{}
	a := NewAsyncObserver(inner, 16)
	for i := 0; i < 10; i++ {
		a.RecordEvent(chunkEvent(2))
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if inner.Len() != 10 {
		t.Fatalf("expected 10 events, got %d", inner.Len())
	}
	if inner.flushed != 1 {
		t.Fatalf("expected inner flush")
	}
	a.RecordEvent(chunkEvent(2))
	if inner.Len() != 10 {
		t.Fatalf("events after close must be ignored")
	}
}

func TestJSONLObserverWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSONLObserver(&buf)
	obs.RecordEvent(MetricsEvent{Name: EventFirstChunk, Time: time.Unix(0, 0), Value: 12, Tags: map[string]string{TagSessionID: "s1"}})
	obs.RecordEvent(chunkEvent(960))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first["name"] != EventFirstChunk || first["value"].(float64) != 12 {
		t.Fatalf("unexpected line %v", first)
	}
	if _, ok := first["msg"]; ok {
		t.Fatalf("msg key should be dropped")
	}
	tags, _ := first["tags"].(map[string]any)
	if tags[TagSessionID] != "s1" {
		t.Fatalf("unexpected tags %v", first["tags"])
	}
}

func TestOTelObserverInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obs, err := NewOTelObserver(mp.Meter("test"))
	if err != nil {
		t.Fatalf("observer: %v", err)
	}
	obs.RecordEvent(MetricsEvent{Name: EventSessionStart, Tags: map[string]string{TagSource: "sine"}})
	obs.RecordEvent(MetricsEvent{Name: EventFirstChunk, Value: 42, Tags: map[string]string{TagSource: "sine"}})
	obs.RecordEvent(chunkEvent(1920))
	obs.RecordEvent(chunkEvent(480))
	obs.RecordEvent(MetricsEvent{Name: EventSessionEnd, Tags: map[string]string{TagSource: "sine", TagOutcome: "complete"}})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := map[string]int64{}
	var histCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histCount += dp.Count
				}
			}
		}
	}
	if sums["voxstream_chunks_total"] != 2 || sums["voxstream_audio_bytes_total"] != 2400 {
		t.Fatalf("unexpected sums %v", sums)
	}
	if sums["voxstream_sessions_total"] != 1 || sums["voxstream_sessions_active"] != 0 {
		t.Fatalf("unexpected session sums %v", sums)
	}
	if histCount != 1 {
		t.Fatalf("expected one first chunk sample, got %d", histCount)
	}
}

func TestSetupTelemetryServesPrometheus(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), TelemetryConfig{Environment: "test"}, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()
	tel.Observer.RecordEvent(chunkEvent(960))

	rec := httptest.NewRecorder()
	tel.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "voxstream_chunks_total") {
		t.Fatalf("metrics output missing chunk counter:\n%s", body)
	}
}

func TestSetupTelemetryRejectsUnknownTracing(t *testing.T) {
	if _, err := SetupTelemetry(context.Background(), TelemetryConfig{Tracing: "zipkin"}, nil); err == nil {
		t.Fatalf("expected error for unknown tracing exporter")
	}
	if _, err := SetupTelemetry(context.Background(), TelemetryConfig{Tracing: "otlp"}, nil); err == nil {
		t.Fatalf("expected error for otlp without endpoint")
	}
}
