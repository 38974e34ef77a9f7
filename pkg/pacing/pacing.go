// Package pacing throttles chunk production to real time. Producers call
// Pacer.Wait before yielding each chunk; the session never applies its own
// flow control beyond blocking writes.
package pacing

import (
	"context"
	"sync"
	"time"
)

// BytesPerSample is the width of one PCM16 mono sample.
const BytesPerSample = 2

// Duration is the playback length of a PCM16 mono buffer of n bytes at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 || n <= 0 {
		return 0
	}
	samples := int64(n / BytesPerSample)
	return time.Duration(samples * int64(time.Second) / int64(rate))
}

// Clock abstracts time so pacing is testable without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer releases chunks no faster than their playback duration. Deadlines are
// computed from the first release plus the audio already released, so sleep
// overshoot does not accumulate.
type Pacer struct {
	clock    Clock
	lead     time.Duration
	start    time.Time
	released time.Duration
}

// NewPacer returns a Pacer. lead lets the producer run up to that much audio
// ahead of real time; zero means strictly real-time after the first chunk.
func NewPacer(clock Clock, lead time.Duration) *Pacer {
	if clock == nil {
		clock = RealClock()
	}
	if lead < 0 {
		lead = 0
	}
	return &Pacer{clock: clock, lead: lead}
}

// Wait blocks until a chunk of duration d may be released. The first chunk
// is released immediately. It returns ctx.Err() if ctx ends first.
func (p *Pacer) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.start.IsZero() {
		p.start = p.clock.Now()
		p.released += d
		return nil
	}
	deadline := p.start.Add(p.released - p.lead)
	p.released += d
	if wait := deadline.Sub(p.clock.Now()); wait > 0 {
		return p.clock.Sleep(ctx, wait)
	}
	return nil
}

// Released is the total audio duration let through so far.
func (p *Pacer) Released() time.Duration { return p.released }

// ManualClock is a Clock whose Sleep advances time instantly. It records the
// requested sleeps.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

// Advance moves the clock forward without recording a sleep.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleeps returns a copy of the recorded sleep durations.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Slept is the sum of recorded sleeps.
func (c *ManualClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}
