package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLifecycleRunnerDrainsOnCancel(t *testing.T) {
	drained := make(chan struct{})
	var stopped bool
	r := NewLifecycleRunner(DrainerFunc(func(ctx context.Context) error {
		close(drained)
		return nil
	}), Hooks{OnStop: func() { stopped = true }}, time.Second)
	r.Banner = nil

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running, state %s", r.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	select {
	case <-drained:
	default:
		t.Fatal("drainer not called")
	}
	if !stopped {
		t.Fatal("OnStop not called")
	}
	if r.State() != StateStopped {
		t.Fatalf("state %s", r.State())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second run: %v", err)
	}
}

func TestLifecycleRunnerDrainTimeout(t *testing.T) {
	r := NewLifecycleRunner(DrainerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	}), Hooks{}, 20*time.Millisecond)
	r.Banner = nil

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestLifecycleRunnerStartHookError(t *testing.T) {
	boom := errors.New("listen failed")
	r := NewLifecycleRunner(nil, Hooks{OnStart: func() error { return boom }}, 0)
	r.Banner = nil
	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("state %s", r.State())
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	if !strings.Contains(buf.String(), "Version: "+Version) {
		t.Fatalf("banner missing version: %q", buf.String())
	}
	PrintBanner(nil)
}

func TestLifecycleRunnerStopBeforeRun(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, 0)
	r.Banner = nil
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("done not closed")
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("run after stop: %v", err)
	}
}
