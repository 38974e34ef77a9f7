package runner

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run on the lifecycle goroutine. OnStart returning an error aborts
// Run before the runner reaches StateRunning.
type Hooks struct {
	OnStart func() error
	OnStop  func()
}

// Drainer finishes in-flight work. The context carries the drain deadline.
type Drainer interface {
	Drain(ctx context.Context) error
}

type DrainerFunc func(ctx context.Context) error

func (f DrainerFunc) Drain(ctx context.Context) error { return f(ctx) }

var Version = "dev"

// PrintBanner writes the startup banner to w. A nil writer prints nothing.
func PrintBanner(w io.Writer) {
	if w == nil {
		return
	}
	tpl := "{{ .Title \"VOXSTREAM\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
