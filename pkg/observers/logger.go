package observers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harunnryd/voxstream/pkg/metrics"
)

// LoggerObserver mirrors metrics events into the structured log.
type LoggerObserver struct {
	log   *slog.Logger
	level slog.Level
}

func NewLoggerObserver(log *slog.Logger, level slog.Level) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log, level: level}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	ctx := context.Background()
	if !o.log.Enabled(ctx, o.level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(ctx, o.level, "metrics", attrs...)
}

type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}

// Flush flushes every member that supports it and joins their errors.
func (m *MultiObserver) Flush() error {
	var errs []error
	for _, obs := range m.list {
		if f, ok := obs.(metrics.Flusher); ok {
			errs = append(errs, f.Flush())
		}
	}
	return errors.Join(errs...)
}
