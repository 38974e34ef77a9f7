package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/voxstream/pkg/adapters/source"
	"github.com/harunnryd/voxstream/pkg/errorsx"
	"github.com/harunnryd/voxstream/pkg/events"
	"github.com/harunnryd/voxstream/pkg/frames"
	"github.com/harunnryd/voxstream/pkg/logging"
	"github.com/harunnryd/voxstream/pkg/metrics"
	"github.com/harunnryd/voxstream/pkg/phrase"
	"github.com/harunnryd/voxstream/pkg/redact"
	"github.com/harunnryd/voxstream/pkg/transports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/harunnryd/voxstream/session"

var errRequestTimeout = errorsx.New(errorsx.ReasonRequestTimeout, "no start message before request timeout")

// Session drives one connection from accept to close. It is the only writer
// on its connection.
type Session struct {
	id   string
	conn transports.Conn
	src  source.ChunkSource
	cfg  Config

	baseLog    *slog.Logger
	log        *slog.Logger
	obs        metrics.Observer
	tracer     trace.Tracer
	span       trace.Span
	initial    phrase.Request
	hasInitial bool
	pending    []StateListener

	fsm            *stateMachine
	queue          *phrase.Queue
	firstChunkSent bool
	startedAt      time.Time
	chunks         int
	bytes          int64
	outcome        string
}

func New(conn transports.Conn, src source.ChunkSource, cfg Config, opts ...Option) *Session {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
		src:  src,
		cfg:  cfg,
		obs:  metrics.NoopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if !s.hasInitial {
		s.initial = phrase.Request{Params: cfg.Defaults, Origin: phrase.OriginNone}
	}
	s.log = logging.NewComponentLogger(s.baseLog, "session").With("session_id", s.id)
	s.fsm = newStateMachine(s.id)
	for _, l := range s.pending {
		s.fsm.AddListener(l)
	}
	s.pending = nil
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return s.fsm.State() }

// AddListener registers l for subsequent transitions.
func (s *Session) AddListener(l StateListener) { s.fsm.AddListener(l) }

// Run drives the session to CLOSED. It returns nil when the stream completed,
// the peer went away, the request timed out or ctx was cancelled, and the
// classified failure when the session ended in ERROR.
func (s *Session) Run(ctx context.Context) error {
	if s.State() != StateConnecting {
		return fmt.Errorf("session %s already run", s.id)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx, s.span = s.tracer.Start(ctx, "session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(metrics.TagSessionID, s.id),
			attribute.String(metrics.TagSource, s.src.Name()),
		))
	defer s.span.End()

	// Peer close cancels the session; the watcher exits with Run.
	done := ctx.Done()
	go func() {
		select {
		case <-s.conn.Done():
			cancel()
		case <-done:
		}
	}()

	s.startedAt = time.Now()
	s.record(metrics.EventSessionStart, 0, map[string]any{"sample_rate": s.src.Format().SampleRate})
	err := s.stream(ctx)
	return s.finish(err)
}

func (s *Session) stream(ctx context.Context) error {
	if err := s.transition(StateAwaitingRequest, "connection accepted"); err != nil {
		return err
	}
	req, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	s.queue = req.Queue()
	s.log.Info("request_resolved",
		"origin", string(req.Origin),
		"phrases", s.queue.Len(),
		"text_length", s.queue.TextLength(),
		"voice", req.Params.Voice,
		"cfg_scale", req.Params.CFGScale,
		"inference_steps", req.Params.InferenceSteps,
	)
	for _, note := range req.Notes {
		s.log.Warn("request_lenient_parse", "note", note)
	}
	s.span.SetAttributes(
		attribute.Int("voxstream.phrases", s.queue.Len()),
		attribute.String("voxstream.request_origin", string(req.Origin)),
	)
	s.record(metrics.EventRequestReceived, float64(s.queue.Len()), map[string]any{"origin": string(req.Origin)})
	if err := s.sendEvent(ctx, events.RequestReceived(s.queue.TextLength(), req.Params.CFGScale, req.Params.InferenceSteps)); err != nil {
		return err
	}

	for {
		p, ok := s.queue.Active()
		if !ok {
			break
		}
		if err := s.transition(StateStreaming, "phrase "+strconv.Itoa(p.Position)); err != nil {
			return err
		}
		if err := s.streamPhrase(ctx, p); err != nil {
			return err
		}
		if err := s.transition(StatePhraseTransition, "end of phrase"); err != nil {
			return err
		}
		s.queue.Advance()
	}

	if err := s.transition(StateComplete, "all phrases streamed"); err != nil {
		return err
	}
	return s.sendEvent(ctx, events.StreamComplete())
}

// resolve produces the phrase request, waiting for one text control message
// when the connection itself carried no text. Binary messages do not count.
func (s *Session) resolve(ctx context.Context) (phrase.Request, error) {
	if !s.initial.Empty() {
		return s.initial, nil
	}
	var timeout <-chan time.Time
	if s.cfg.RequestTimeout > 0 {
		timer := time.NewTimer(s.cfg.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return phrase.Request{}, ctx.Err()
		case <-timeout:
			return phrase.Request{}, errRequestTimeout
		case f, ok := <-s.conn.Recv():
			if !ok {
				return phrase.Request{}, transports.PeerGone(nil)
			}
			tf, isText := f.(frames.TextFrame)
			if !isText {
				frames.ReleaseAudioFrame(f)
				s.log.Debug("inbound_binary_ignored")
				continue
			}
			req, err := phrase.ParseStart(tf.Bytes(), s.initial)
			if err != nil {
				s.log.Warn("start_message_malformed", "error", err.Error(), "reason_code", string(errorsx.Reason(err)))
			}
			return req, nil
		}
	}
}

func (s *Session) streamPhrase(ctx context.Context, p phrase.Phrase) error {
	s.log.Debug("phrase_started", "position", p.Position, "phrase", redact.Phrase(p.Text, s.cfg.LogPhraseChars))
	s.span.AddEvent("phrase", trace.WithAttributes(attribute.Int("position", p.Position)))
	if err := s.sendEvent(ctx, events.Phrase(p.Text)); err != nil {
		return err
	}
	st, err := s.src.BeginPhrase(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errorsx.Wrapf(err, errorsx.ReasonSourceStart, "begin phrase %d", p.Position)
	}
	defer func() { _ = st.Close() }()

	for {
		chunk, err := st.Next(ctx)
		if source.IsEndOfPhrase(err) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return source.Failure(fmt.Errorf("phrase %d: %w", p.Position, err))
		}
		if err := s.sendChunk(ctx, chunk); err != nil {
			return err
		}
	}
	s.record(metrics.EventPhraseDone, float64(p.Position), nil)
	return nil
}

func (s *Session) sendChunk(ctx context.Context, chunk frames.AudioFrame) error {
	defer frames.ReleaseAudioFrame(chunk)
	if !s.firstChunkSent {
		if err := s.sendEvent(ctx, events.FirstChunkSent()); err != nil {
			return err
		}
		s.firstChunkSent = true
		s.record(metrics.EventFirstChunk, float64(time.Since(s.startedAt).Milliseconds()), nil)
	}
	n := chunk.Len()
	if err := s.conn.SendBinary(ctx, chunk.RawPayload()); err != nil {
		return s.sendError(ctx, err)
	}
	s.chunks++
	s.bytes += int64(n)
	s.record(metrics.EventChunkOut, float64(n), nil)
	return nil
}

func (s *Session) sendEvent(ctx context.Context, ev events.Event) error {
	if err := s.conn.SendText(ctx, events.Encode(ev)); err != nil {
		return s.sendError(ctx, err)
	}
	return nil
}

func (s *Session) sendError(ctx context.Context, err error) error {
	if ctx.Err() != nil && !transports.IsPeerGone(err) {
		return ctx.Err()
	}
	return transports.SendFailure(err)
}

// finish maps the outcome of stream to the terminal transitions and the
// close code.
func (s *Session) finish(err error) error {
	defer func() {
		s.span.SetAttributes(
			attribute.String(metrics.TagOutcome, s.outcome),
			attribute.Int("voxstream.chunks", s.chunks),
			attribute.Int64("voxstream.bytes", s.bytes),
		)
		s.record(metrics.EventSessionEnd, float64(s.bytes), map[string]any{
			"chunks": s.chunks,
			"state":  s.State().String(),
		})
	}()

	switch {
	case err == nil:
		s.outcome = "complete"
		s.closeWith(frames.CloseNormal, "stream complete", "stream complete")
	case s.peerGone() || transports.IsPeerGone(err):
		s.outcome = "peer_gone"
		s.closeWith(frames.CloseNormal, "", "peer gone")
	case errors.Is(err, errRequestTimeout):
		s.outcome = "request_timeout"
		s.closeWith(frames.ClosePolicyViolation, "request timeout", "request timeout")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.outcome = "cancelled"
		s.closeWith(frames.CloseGoingAway, "server shutting down", "cancelled")
	}
	if s.outcome != "" {
		s.log.Info("session_closed", "outcome", s.outcome, "chunks", s.chunks, "bytes", s.bytes)
		return nil
	}

	s.outcome = "error"
	reason := errorsx.Reason(err)
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		s.log.Error("session_invalid_transition", "error", err.Error())
	}
	s.log.Error("session_failed", "error", err.Error(), "reason_code", string(reason))
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, string(reason))
	if terr := s.transition(StateError, string(reason)); terr == nil {
		// Best effort: the connection may already be unusable.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.conn.SendText(ctx, events.Encode(events.Error(err.Error())))
		cancel()
	}
	s.closeWith(frames.CloseInternalError, "stream error", "after error")
	return err
}

func (s *Session) closeWith(code frames.CloseCode, reason, why string) {
	if !s.State().Terminal() {
		if err := s.transition(StateClosed, why); err != nil {
			s.log.Error("session_close_transition_failed", "error", err.Error())
		}
	}
	if err := s.conn.Close(code, reason); err != nil {
		s.log.Debug("session_close_failed", "error", err.Error())
	}
}

func (s *Session) peerGone() bool {
	select {
	case <-s.conn.Done():
		return true
	default:
		return false
	}
}

func (s *Session) transition(to State, reason string) error {
	from := s.fsm.State()
	if err := s.fsm.Transition(to, reason); err != nil {
		return err
	}
	s.log.Debug("session_state", "from", from.String(), "to", to.String(), "reason", reason)
	return nil
}

func (s *Session) record(name string, value float64, fields map[string]any) {
	tags := map[string]string{metrics.TagSessionID: s.id, metrics.TagSource: s.src.Name()}
	if s.outcome != "" {
		tags[metrics.TagOutcome] = s.outcome
	}
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   tags,
		Fields: fields,
	})
}
