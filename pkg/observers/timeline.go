package observers

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/voxstream/pkg/metrics"
	"github.com/harunnryd/voxstream/pkg/redact"
)

// TimelineObserver appends one JSONL file per session under dir. Each line
// carries the offset from the first event seen for that session, so a file
// reads as a latency trace of the stream. The file is flushed and closed on
// session_end.
type TimelineObserver struct {
	dir  string
	skip map[string]bool

	mu    sync.Mutex
	sinks map[string]*timelineSink
}

type timelineSink struct {
	f     *os.File
	w     *bufio.Writer
	enc   *json.Encoder
	start time.Time
}

type timelineLine struct {
	Time     time.Time         `json:"time"`
	OffsetMS int64             `json:"offset_ms"`
	Event    string            `json:"event"`
	Session  string            `json:"session_id"`
	Value    float64           `json:"value,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Fields   map[string]any    `json:"fields,omitempty"`
}

// NewTimelineObserver writes under dir, ignoring the named events.
func NewTimelineObserver(dir string, skip ...string) *TimelineObserver {
	o := &TimelineObserver{
		dir:   strings.TrimSpace(dir),
		skip:  make(map[string]bool, len(skip)),
		sinks: make(map[string]*timelineSink),
	}
	for _, name := range skip {
		o.skip[name] = true
	}
	return o
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := fileSafe(ev.Tag(metrics.TagSessionID))
	if id == "" || o.dir == "" || o.skip[ev.Name] {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	sink := o.sinks[id]
	if sink == nil {
		var err error
		if sink, err = o.open(id, ev.Time); err != nil {
			return
		}
		o.sinks[id] = sink
	}
	line := timelineLine{
		Time:     ev.Time.UTC(),
		OffsetMS: ev.Time.Sub(sink.start).Milliseconds(),
		Event:    ev.Name,
		Session:  ev.Tag(metrics.TagSessionID),
		Value:    ev.Value,
		Tags:     tagsWithout(ev.Tags, metrics.TagSessionID),
		Fields:   redactFields(ev.Fields),
	}
	_ = sink.enc.Encode(line)
	if ev.Name == metrics.EventSessionEnd {
		delete(o.sinks, id)
		_ = sink.close()
	}
}

// Close flushes and closes every open session file.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for id, sink := range o.sinks {
		err = errors.Join(err, sink.close())
		delete(o.sinks, id)
	}
	return err
}

func (o *TimelineObserver) open(id string, start time.Time) (*timelineSink, error) {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(o.dir, id+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)
	return &timelineSink{f: f, w: w, enc: json.NewEncoder(w), start: start}, nil
}

func (s *timelineSink) close() error {
	return errors.Join(s.w.Flush(), s.f.Close())
}

// fileSafe maps a session id onto a file name component.
func fileSafe(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_.", r) {
			return r
		}
		return '_'
	}, id)
}

func tagsWithout(in map[string]string, drop string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if k != drop {
			out[k] = v
		}
	}
	return out
}

// redactFields masks string values; phrase text may carry PII.
func redactFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			v = redact.Text(s)
		}
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
