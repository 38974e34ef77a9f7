package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("runner already started")
	ErrDrainTimeout   = errors.New("drain timeout")
)

// LifecycleRunner moves through New, Starting, Running, Draining and
// Stopped exactly once. Stop may be called from any goroutine.
type LifecycleRunner struct {
	hooks   Hooks
	drainer Drainer
	timeout time.Duration
	// Banner receives the startup banner; nil disables it.
	Banner io.Writer

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
	err     error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		Banner:  os.Stdout,
		state:   StateNew,
		cancel:  func() {},
		stopped: make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or Stop is called, then drains.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.state != StateNew {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.state = StateStarting
	r.cancel = cancel
	r.mu.Unlock()

	PrintBanner(r.Banner)
	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(); err != nil {
			r.finish(err)
			return err
		}
	}
	r.set(StateRunning)
	<-ctx.Done()
	return r.shutdown()
}

// Stop cancels Run and waits for the drain to finish. A runner that never
// started goes straight to Stopped.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	state, cancel := r.state, r.cancel
	r.mu.Unlock()
	cancel()
	switch state {
	case StateNew:
		r.finish(nil)
		return nil
	case StateStarting:
		<-r.stopped
		return r.err
	}
	return r.shutdown()
}

func (r *LifecycleRunner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed once the runner reaches Stopped.
func (r *LifecycleRunner) Done() <-chan struct{} { return r.stopped }

func (r *LifecycleRunner) shutdown() error {
	r.once.Do(func() {
		r.set(StateDraining)
		err := r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.err = err
		r.set(StateStopped)
		close(r.stopped)
	})
	<-r.stopped
	return r.err
}

// drain runs the drainer under the configured deadline. A drainer that
// ignores its context is abandoned when the deadline passes.
func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- r.drainer.Drain(ctx) }()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}

// finish stops the runner without draining.
func (r *LifecycleRunner) finish(err error) {
	r.once.Do(func() {
		r.err = err
		r.set(StateStopped)
		close(r.stopped)
	})
}

func (r *LifecycleRunner) set(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
