package metrics

import (
	"math"
	"sync"
)

// SamplingObserver forwards one in every N of the named events and all other
// events untouched. With no names it samples chunk_out only. The stride is
// counted per session, so each session keeps its first event and every Nth
// after it. Observers behind it see thinned counts; anything that sums the
// sampled events belongs in front of it.
type SamplingObserver struct {
	inner  Observer
	every  uint64 // 0 drops every sampled event
	target map[string]bool

	mu   sync.Mutex
	seen map[string]uint64
}

func NewSamplingObserver(inner Observer, rate float64, names ...string) *SamplingObserver {
	if len(names) == 0 {
		names = []string{EventChunkOut}
	}
	s := &SamplingObserver{
		inner:  inner,
		every:  sampleEvery(rate),
		target: make(map[string]bool, len(names)),
		seen:   make(map[string]uint64),
	}
	for _, n := range names {
		s.target[n] = true
	}
	return s
}

// sampleEvery turns a keep ratio into a stride. Ratios are clamped to [0,1].
func sampleEvery(rate float64) uint64 {
	switch {
	case rate <= 0:
		return 0
	case rate >= 1:
		return 1
	}
	return max(uint64(math.Round(1/rate)), 1)
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if !s.target[ev.Name] {
		if ev.Name == EventSessionEnd {
			s.mu.Lock()
			delete(s.seen, ev.Tag(TagSessionID))
			s.mu.Unlock()
		}
		s.inner.RecordEvent(ev)
		return
	}
	switch s.every {
	case 0:
		return
	case 1:
		s.inner.RecordEvent(ev)
		return
	}
	id := ev.Tag(TagSessionID)
	s.mu.Lock()
	n := s.seen[id]
	s.seen[id] = n + 1
	s.mu.Unlock()
	if n%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}

func (s *SamplingObserver) Flush() error {
	if f, ok := s.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
