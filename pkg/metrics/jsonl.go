package metrics

import (
	"context"
	"io"
	"log/slog"
)

// JSONLObserver writes one JSON line per event, for offline analysis.
type JSONLObserver struct {
	logger *slog.Logger
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
				return slog.Attr{}
			}
			return a
		},
	})
	return &JSONLObserver{logger: slog.New(h)}
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Float64("value", ev.Value),
	}
	if len(ev.Tags) > 0 {
		tags := make([]any, 0, len(ev.Tags))
		for k, v := range ev.Tags {
			tags = append(tags, slog.String(k, v))
		}
		attrs = append(attrs, slog.Group("tags", tags...))
	}
	if len(ev.Fields) > 0 {
		fields := make([]any, 0, len(ev.Fields))
		for k, v := range ev.Fields {
			fields = append(fields, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("fields", fields...))
	}
	r := slog.NewRecord(ev.Time, slog.LevelInfo, "", 0)
	r.AddAttrs(attrs...)
	_ = o.logger.Handler().Handle(context.Background(), r)
}
