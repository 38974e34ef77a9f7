package metrics

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the session instruments.
const MeterName = "github.com/harunnryd/voxstream/session"

// OTelObserver turns session events into OpenTelemetry instruments.
type OTelObserver struct {
	sessions   metric.Int64Counter
	active     metric.Int64UpDownCounter
	chunks     metric.Int64Counter
	audioBytes metric.Int64Counter
	firstChunk metric.Float64Histogram
}

func NewOTelObserver(meter metric.Meter) (*OTelObserver, error) {
	if meter == nil {
		return nil, errors.New("metrics: nil meter")
	}
	var (
		o    OTelObserver
		err  error
		errs []error
	)
	o.sessions, err = meter.Int64Counter("voxstream_sessions_total",
		metric.WithDescription("Sessions finished, by outcome"),
		metric.WithUnit("{session}"))
	errs = append(errs, err)
	o.active, err = meter.Int64UpDownCounter("voxstream_sessions_active",
		metric.WithDescription("Sessions currently running"),
		metric.WithUnit("{session}"))
	errs = append(errs, err)
	o.chunks, err = meter.Int64Counter("voxstream_chunks_total",
		metric.WithDescription("Binary audio chunks sent"),
		metric.WithUnit("{chunk}"))
	errs = append(errs, err)
	o.audioBytes, err = meter.Int64Counter("voxstream_audio_bytes_total",
		metric.WithDescription("PCM bytes sent"),
		metric.WithUnit("By"))
	errs = append(errs, err)
	o.firstChunk, err = meter.Float64Histogram("voxstream_first_chunk_latency_ms",
		metric.WithDescription("Time from accept to the first audio chunk"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *OTelObserver) RecordEvent(ev MetricsEvent) {
	ctx := context.Background()
	src := metric.WithAttributes(attribute.String(TagSource, ev.Tag(TagSource)))
	switch ev.Name {
	case EventSessionStart:
		o.active.Add(ctx, 1, src)
	case EventChunkOut:
		o.chunks.Add(ctx, 1, src)
		o.audioBytes.Add(ctx, int64(ev.Value), src)
	case EventFirstChunk:
		o.firstChunk.Record(ctx, ev.Value, src)
	case EventSessionEnd:
		o.active.Add(ctx, -1, src)
		o.sessions.Add(ctx, 1, metric.WithAttributes(
			attribute.String(TagSource, ev.Tag(TagSource)),
			attribute.String(TagOutcome, ev.Tag(TagOutcome)),
		))
	}
}

var _ Observer = (*OTelObserver)(nil)
