package voxstream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type activeSession struct {
	id      string
	cancel  context.CancelFunc
	created time.Time
}

// sessionRegistry tracks live sessions so a drain can cancel them and wait.
type sessionRegistry struct {
	sessions sync.Map
	count    atomic.Int64
	draining atomic.Bool
}

func (r *sessionRegistry) Add(id string, cancel context.CancelFunc) {
	r.sessions.Store(id, &activeSession{id: id, cancel: cancel, created: time.Now()})
	r.count.Add(1)
}

func (r *sessionRegistry) Remove(id string) {
	if v, ok := r.sessions.LoadAndDelete(id); ok {
		v.(*activeSession).cancel()
		r.count.Add(-1)
	}
}

// CancelAll cancels every live session. Sessions remove themselves once
// their Run returns.
func (r *sessionRegistry) CancelAll() {
	r.sessions.Range(func(_, value any) bool {
		value.(*activeSession).cancel()
		return true
	})
}

func (r *sessionRegistry) Count() int64 {
	return r.count.Load()
}

func (r *sessionRegistry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *sessionRegistry) Draining() bool {
	return r.draining.Load()
}

func (r *sessionRegistry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
