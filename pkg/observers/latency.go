package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/voxstream/pkg/metrics"
)

// LatencyObserver logs one latency summary per session: time to the
// request, to the first chunk and to the end.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	started    time.Time
	request    time.Time
	firstChunk time.Time
	chunks     int
	bytes      float64
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tag(metrics.TagSessionID)
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.traces[id]
	if t == nil {
		t = &trace{}
		o.traces[id] = t
	}
	switch ev.Name {
	case metrics.EventSessionStart:
		t.started = ev.Time
	case metrics.EventRequestReceived:
		if t.request.IsZero() {
			t.request = ev.Time
		}
	case metrics.EventFirstChunk:
		if t.firstChunk.IsZero() {
			t.firstChunk = ev.Time
		}
	case metrics.EventChunkOut:
		t.chunks++
		t.bytes += ev.Value
	case metrics.EventSessionEnd:
		o.log.Info("session_latency",
			"session_id", id,
			"outcome", ev.Tag(metrics.TagOutcome),
			"request_ms", durationMs(t.started, t.request),
			"first_chunk_ms", durationMs(t.started, t.firstChunk),
			"total_ms", durationMs(t.started, ev.Time),
			"chunks", t.chunks,
			"bytes", int64(t.bytes),
		)
		delete(o.traces, id)
	}
}

// Pending reports sessions that started but have not ended.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.traces)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
