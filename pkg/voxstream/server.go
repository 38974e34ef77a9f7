package voxstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxstream/pkg/logging"
	"github.com/harunnryd/voxstream/pkg/metrics"
	"github.com/harunnryd/voxstream/pkg/phrase"
	"github.com/harunnryd/voxstream/pkg/session"
	wsconn "github.com/harunnryd/voxstream/pkg/transports/websocket"
)

type ServerOptions struct {
	Config  Config
	Sources SourceFactory
	// Observer receives every session's metrics events.
	Observer metrics.Observer
	// Metrics is mounted at /metrics when set.
	Metrics   http.Handler
	Logger    *slog.Logger
	Listeners []session.StateListener
}

// Server accepts WebSocket connections on the stream path and runs one
// session per connection until it closes.
type Server struct {
	cfg       Config
	policy    session.Config
	sources   SourceFactory
	obs       metrics.Observer
	log       *slog.Logger
	listeners []session.StateListener
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
	registry  sessionRegistry

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

type configResponse struct {
	Voices       []string `json:"voices"`
	DefaultVoice string   `json:"default_voice"`
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Sources == nil {
		return nil, errors.New("voxstream: server needs a source factory")
	}
	obs := opts.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       opts.Config,
		policy:    opts.Config.SessionPolicy(),
		sources:   opts.Sources,
		obs:       obs,
		log:       logging.NewComponentLogger(opts.Logger, "server"),
		listeners: opts.Listeners,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     wsconn.CheckOrigin(opts.Config.Server.AllowAnyOrigin, opts.Config.Server.AllowedOrigins),
		},
		mux:     http.NewServeMux(),
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.mux.HandleFunc(opts.Config.Server.StreamPath, s.handleStream)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/config", s.handleConfig)
	if opts.Metrics != nil {
		s.mux.Handle("/metrics", opts.Metrics)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.mux }

// Active reports the number of sessions currently running.
func (s *Server) Active() int64 { return s.registry.Count() }

// Start binds the configured address and serves in the background. Bind
// errors are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("server_listening", "addr", ln.Addr().String(), "stream_path", s.cfg.Server.StreamPath)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server_error", "error", err)
		}
	}()
	return nil
}

// Addr is the bound listen address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Drain stops accepting connections, cancels every live session and waits
// for them to close or for ctx to expire.
func (s *Server) Drain(ctx context.Context) error {
	s.registry.SetDraining(true)
	active := s.registry.Count()
	s.log.Info("server_draining", "active_sessions", active)

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		// Hijacked websocket connections are not tracked by the http server,
		// so shutdown returns once plain requests finish.
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Warn("server_shutdown_failed", "error", err)
		}
	}

	s.registry.CancelAll()
	if !s.registry.WaitForEmpty(ctx, 0) {
		s.cancel()
		return fmt.Errorf("drain: %d sessions still open: %w", s.registry.Count(), ctx.Err())
	}
	s.cancel()
	s.log.Info("server_drained", "sessions", active)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.registry.Draining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(configResponse{
		Voices:       s.cfg.VoiceCatalog(),
		DefaultVoice: s.cfg.DefaultVoice(),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.registry.Draining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		s.log.Warn("websocket_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	conn := wsconn.New(ws, s.cfg.Server.WebSocket, s.log.With("session_id", id))
	req := phrase.ParseQuery(r.URL.Query(), s.policy.Defaults)

	opts := []session.Option{
		session.WithID(id),
		session.WithLogger(s.log),
		session.WithObserver(s.obs),
		session.WithRequest(req),
	}
	for _, l := range s.listeners {
		opts = append(opts, session.WithListener(l))
	}
	sess := session.New(conn, s.sources(id), s.policy, opts...)

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()
	s.registry.Add(id, cancel)
	defer s.registry.Remove(id)
	if s.registry.Draining() {
		// Raced with Drain after its CancelAll; close as going away.
		cancel()
	}

	s.log.Debug("session_accepted", "session_id", id, "remote", r.RemoteAddr)
	if err := sess.Run(ctx); err != nil {
		s.log.Debug("session_failed", "session_id", id, "error", err)
	}
}
