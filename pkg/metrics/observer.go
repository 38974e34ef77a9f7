package metrics

import "time"

// Session event names recorded by pkg/session.
const (
	EventSessionStart    = "session_start"
	EventRequestReceived = "request_received"
	EventFirstChunk      = "first_chunk"
	EventChunkOut        = "chunk_out"
	EventPhraseDone      = "phrase_done"
	EventSessionEnd      = "session_end"
)

// Tag keys shared by session events.
const (
	TagSessionID = "session_id"
	TagSource    = "source"
	TagOutcome   = "outcome"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Tag returns the tag value for key, or "" when absent.
func (ev MetricsEvent) Tag(key string) string {
	if ev.Tags == nil {
		return ""
	}
	return ev.Tags[key]
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
