package session

import (
	"log/slog"
	"time"

	"github.com/harunnryd/voxstream/pkg/metrics"
	"github.com/harunnryd/voxstream/pkg/phrase"
	"go.opentelemetry.io/otel/trace"
)

// Config is the per-session policy, fixed at construction.
type Config struct {
	// Defaults are the synthesis parameters used when the client sets none.
	Defaults phrase.Params
	// RequestTimeout bounds the wait for the start message. Zero waits
	// until the peer goes away.
	RequestTimeout time.Duration
	// LogPhraseChars truncates phrase text in log lines; zero logs it whole.
	LogPhraseChars int
}

// Option customizes a Session.
type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.baseLog = l }
}

func WithObserver(o metrics.Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithRequest seeds resolution with a request parsed from the connection,
// typically phrase.ParseQuery on the upgrade URL. A non-empty request skips
// the wait for a start message.
func WithRequest(req phrase.Request) Option {
	return func(s *Session) {
		s.initial = req
		s.hasInitial = true
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

func WithListener(l StateListener) Option {
	return func(s *Session) { s.pending = append(s.pending, l) }
}

// WithTracer overrides the global tracer provider's session tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}
