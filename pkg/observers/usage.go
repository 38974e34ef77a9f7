package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/voxstream/pkg/metrics"
)

// UsageSummary is the audio volume one session streamed.
type UsageSummary struct {
	SessionID     string  `json:"session_id"`
	Source        string  `json:"source,omitempty"`
	Outcome       string  `json:"outcome,omitempty"`
	Phrases       int     `json:"phrases"`
	Chunks        int     `json:"chunks"`
	Bytes         int64   `json:"bytes"`
	AudioSeconds  float64 `json:"audio_seconds"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// UsageObserver accumulates streamed audio per session and writes
// <session>.usage.json when the session ends.
type UsageObserver struct {
	dir string
	// bytesPerSecond converts PCM bytes to seconds when a session does not
	// report its own sample rate.
	bytesPerSecond float64
	mu             sync.Mutex
	stats          map[string]*UsageSummary
	rates          map[string]float64
}

func NewUsageObserver(dir string, defaultSampleRate int) *UsageObserver {
	return &UsageObserver{
		dir:            dir,
		bytesPerSecond: float64(defaultSampleRate * 2),
		stats:          make(map[string]*UsageSummary),
		rates:          make(map[string]float64),
	}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tag(metrics.TagSessionID)
	if id == "" {
		return
	}
	o.mu.Lock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{SessionID: id, Source: ev.Tag(metrics.TagSource)}
		o.stats[id] = stat
	}
	var done *UsageSummary
	switch ev.Name {
	case metrics.EventSessionStart:
		if rate, ok := ev.Fields["sample_rate"].(int); ok && rate > 0 {
			o.rates[id] = float64(rate * 2)
		}
	case metrics.EventChunkOut:
		stat.Chunks++
		stat.Bytes += int64(ev.Value)
	case metrics.EventPhraseDone:
		stat.Phrases++
	case metrics.EventSessionEnd:
		bps := o.rates[id]
		if bps <= 0 {
			bps = o.bytesPerSecond
		}
		if bps > 0 {
			stat.AudioSeconds = float64(stat.Bytes) / bps
		}
		stat.Outcome = ev.Tag(metrics.TagOutcome)
		stat.RecordedAtUTC = ev.Time.UTC().Format(time.RFC3339)
		done = stat
		delete(o.stats, id)
		delete(o.rates, id)
	}
	o.mu.Unlock()
	if done != nil {
		_ = o.write(done)
	}
}

// Summary returns the running totals of a session still in progress.
func (o *UsageObserver) Summary(id string) (UsageSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		return UsageSummary{}, false
	}
	return *stat, true
}

func (o *UsageObserver) write(stat *UsageSummary) error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(stat, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(o.dir, fileSafe(stat.SessionID)+".usage.json")
	return os.WriteFile(path, b, 0o644)
}

// Flush writes summaries for sessions that never reported an end.
func (o *UsageObserver) Flush() error {
	o.mu.Lock()
	pending := make([]*UsageSummary, 0, len(o.stats))
	for _, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		pending = append(pending, stat)
	}
	o.mu.Unlock()
	var errOut error
	for _, stat := range pending {
		if err := o.write(stat); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*UsageObserver)(nil)
