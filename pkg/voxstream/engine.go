package voxstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/voxstream/pkg/logging"
	"github.com/harunnryd/voxstream/pkg/metrics"
	"github.com/harunnryd/voxstream/pkg/observers"
	"github.com/harunnryd/voxstream/pkg/redact"
	"github.com/harunnryd/voxstream/pkg/runner"
	"github.com/harunnryd/voxstream/pkg/session"
	"github.com/nats-io/nats.go"
)

type EngineOptions struct {
	Config Config
	// Providers defaults to a registry holding the builtin sources.
	Providers *ProviderRegistry
	Logger    *slog.Logger
	// Observers are appended to the builtin observer set.
	Observers []metrics.Observer
	// Publisher replaces the NATS connection built from observability.bus.
	Publisher observers.Publisher
	Listeners []session.StateListener
}

// Engine wires configuration, observers and telemetry around a Server and
// drives it with a LifecycleRunner.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	server    *Server
	runner    *runner.LifecycleRunner
	telemetry *metrics.Telemetry
	async     *metrics.AsyncObserver
	timeline  *observers.TimelineObserver
	eventsLog io.Closer
	bus       *nats.Conn
	embedded  *observers.EmbeddedBus
	cancel    context.CancelFunc
	ctx       context.Context
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	redact.SetEnabled(cfg.Privacy.RedactPII)
	log := opts.Logger
	if log == nil {
		log = logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	}

	log.Info("voxstream_init",
		"environment", cfg.Environment,
		"source_provider", cfg.Source.Provider,
		"addr", cfg.Server.Addr,
		"stream_path", cfg.Server.StreamPath,
	)

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
		RegisterBuiltinSources(providers)
	}
	sources, err := providers.BuildSourceFactory(cfg.Source.Provider, cfg)
	if err != nil {
		return nil, err
	}

	telemetry, err := metrics.SetupTelemetry(ctx, cfg.Observability.Telemetry, log)
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, log: log, telemetry: telemetry}
	e.ctx, e.cancel = context.WithCancel(ctx)

	// Aggregating observers see every event; the rest sit behind the
	// chunk sampler.
	full := []metrics.Observer{observers.NewLatencyObserver(log)}
	obsList := []metrics.Observer{observers.NewLoggerObserver(log, slog.LevelDebug)}
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if days := cfg.Observability.RetentionDays; days > 0 {
			go observers.RunRetention(e.ctx, dir, time.Duration(days)*24*time.Hour, time.Hour, log)
		}
		e.timeline = observers.NewTimelineObserver(dir, metrics.EventChunkOut)
		// Sessions report their own rate at start; this covers the rest.
		rate := sources("").Format().SampleRate
		full = append(full, e.timeline, observers.NewUsageObserver(dir, rate))
	}
	if path := strings.TrimSpace(cfg.Observability.EventsLog); path != "" {
		w, closer, err := openEventsLog(path)
		if err != nil {
			e.abort()
			return nil, err
		}
		e.eventsLog = closer
		obsList = append(obsList, metrics.NewJSONLObserver(w))
	}
	pub := opts.Publisher
	busCfg := cfg.Observability.Bus
	if pub == nil && busCfg.Embedded {
		e.embedded, err = observers.StartEmbeddedBus("127.0.0.1", busCfg.EmbeddedPort, log)
		if err != nil {
			e.abort()
			return nil, err
		}
		if strings.TrimSpace(busCfg.URL) == "" {
			busCfg.URL = e.embedded.ClientURL()
		}
	}
	if pub == nil && strings.TrimSpace(busCfg.URL) != "" {
		conn, err := observers.ConnectBus(e.ctx, busCfg, log)
		if err != nil {
			e.abort()
			return nil, err
		}
		e.bus = conn
		pub = conn
	}
	if pub != nil {
		obsList = append(obsList, observers.NewBusObserver(pub, cfg.Observability.Bus.SubjectPrefix, log))
	}
	obsList = append(obsList, opts.Observers...)

	sampled := metrics.NewSamplingObserver(observers.NewMultiObserver(obsList...), cfg.Observability.ChunkSampleRate)
	full = append(full, sampled)
	e.async = metrics.NewAsyncObserver(observers.NewMultiObserver(full...), cfg.Observability.ObserverBuffer)
	// Prometheus counters are recorded inline, outside the async queue.
	root := observers.NewMultiObserver(telemetry.Observer, e.async)

	e.server, err = NewServer(ServerOptions{
		Config:    cfg,
		Sources:   sources,
		Observer:  root,
		Metrics:   telemetry.Handler,
		Logger:    log,
		Listeners: opts.Listeners,
	})
	if err != nil {
		e.abort()
		return nil, err
	}

	e.runner = runner.NewLifecycleRunner(runner.DrainerFunc(e.drain), runner.Hooks{
		OnStart: func() error { return e.server.Start(e.ctx) },
		OnStop:  func() { log.Info("voxstream_stopped") },
	}, cfg.DrainTimeout())
	return e, nil
}

func (e *Engine) Server() *Server { return e.server }

func (e *Engine) Handler() http.Handler { return e.server.Handler() }

// Runner exposes the lifecycle runner, mostly so callers can silence the
// banner.
func (e *Engine) Runner() *runner.LifecycleRunner { return e.runner }

// Run serves until ctx is cancelled or Stop is called, then drains.
func (e *Engine) Run(ctx context.Context) error {
	return e.runner.Run(ctx)
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

// abort releases what NewEngine acquired before failing.
func (e *Engine) abort() {
	e.cancel()
	if e.eventsLog != nil {
		_ = e.eventsLog.Close()
	}
	if e.bus != nil {
		e.bus.Close()
	}
	e.embedded.Shutdown()
	_ = e.telemetry.Shutdown(context.Background())
}

// openEventsLog resolves the events_log setting. The closer is nil for the
// standard streams.
func openEventsLog(path string) (io.Writer, io.Closer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open events log: %w", err)
	}
	return f, f, nil
}

func (e *Engine) drain(ctx context.Context) error {
	errs := e.server.Drain(ctx)
	e.cancel()
	if err := e.async.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("flush observers: %w", err))
	}
	if e.timeline != nil {
		if err := e.timeline.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close timelines: %w", err))
		}
	}
	if e.eventsLog != nil {
		if err := e.eventsLog.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close events log: %w", err))
		}
	}
	if e.bus != nil {
		if err := e.bus.Drain(); err != nil {
			e.bus.Close()
		}
	}
	e.embedded.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.telemetry.Shutdown(shutdownCtx); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}
