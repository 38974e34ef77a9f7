package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxstream/pkg/frames"
	"github.com/harunnryd/voxstream/pkg/logging"
	"github.com/harunnryd/voxstream/pkg/transports"
)

type Config struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval enables keep-alive pings; the read deadline is then
	// twice the interval and is extended by every pong.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	CloseGrace   time.Duration `mapstructure:"close_grace"`
	RecvBuffer   int           `mapstructure:"recv_buffer"`
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = time.Second
	}
	if c.RecvBuffer <= 0 {
		c.RecvBuffer = 16
	}
	return c
}

// Conn adapts a gorilla websocket connection to transports.Conn. A single
// read pump owns reads; writes are serialized by the caller and guarded here.
type Conn struct {
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger

	recvCh chan frames.Frame
	doneCh chan struct{}

	writeMu sync.Mutex

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	stopPing  chan struct{}
}

func New(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{
		ws:       ws,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "ws_transport"),
		recvCh:   make(chan frames.Frame, cfg.RecvBuffer),
		doneCh:   make(chan struct{}),
		stopPing: make(chan struct{}),
	}
	ws.SetReadLimit(cfg.ReadLimit)
	if cfg.PingInterval > 0 {
		wait := 2 * cfg.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
		go c.pingLoop()
	}
	go c.readPump()
	return c
}

func (c *Conn) Recv() <-chan frames.Frame { return c.recvCh }

func (c *Conn) Done() <-chan struct{} { return c.doneCh }

func (c *Conn) SendText(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.TextMessage, data)
}

func (c *Conn) SendBinary(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.BinaryMessage, data)
}

func (c *Conn) write(ctx context.Context, kind int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.doneCh:
		return transports.PeerGone(c.readError())
	default:
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return classify(err)
	}
	if err := c.ws.WriteMessage(kind, data); err != nil {
		return classify(err)
	}
	return nil
}

// Close sends a close frame with code and waits briefly for the peer's
// acknowledgement before dropping the connection.
func (c *Conn) Close(code frames.CloseCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopPing)
		msg := websocket.FormatCloseMessage(int(code), reason)
		werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
		if werr == nil {
			timer := time.NewTimer(c.cfg.CloseGrace)
			select {
			case <-c.doneCh:
			case <-timer.C:
			}
			timer.Stop()
		} else if !IsPeerGone(werr) {
			c.logger.Debug("ws_close_frame_failed", "error", werr.Error())
		}
		err = c.ws.Close()
		if err != nil && IsPeerGone(err) {
			err = nil
		}
	})
	return err
}

func (c *Conn) readPump() {
	defer func() {
		close(c.doneCh)
		close(c.recvCh)
	}()
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			c.setReadError(err)
			if !IsPeerGone(err) {
				c.logger.Debug("ws_read_failed", "error", err.Error())
			}
			return
		}
		now := time.Now().UnixNano()
		var f frames.Frame
		switch kind {
		case websocket.TextMessage:
			f = frames.NewTextFrame("", now, string(data), nil)
		case websocket.BinaryMessage:
			f = frames.NewAudioFrame("", now, data, 0, 1, nil)
		default:
			continue
		}
		select {
		case c.recvCh <- f:
		default:
			c.logger.Debug("ws_inbound_dropped", "kind", string(f.Kind()))
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPing:
			return
		case <-c.doneCh:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *Conn) setReadError(err error) {
	c.errMu.Lock()
	c.readErr = err
	c.errMu.Unlock()
}

func (c *Conn) readError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

func classify(err error) error {
	if IsPeerGone(err) {
		return transports.PeerGone(err)
	}
	return transports.SendFailure(err)
}

// IsPeerGone reports whether err means the remote end is no longer there.
// Timeouts and other I/O faults are not included.
func IsPeerGone(err error) bool {
	if err == nil {
		return false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// CheckOrigin builds an upgrader origin check. Requests without an Origin
// header are always accepted.
func CheckOrigin(allowAny bool, allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowAny {
			return true
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		origin = strings.TrimRight(origin, "/")
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		for _, a := range allowed {
			a = strings.TrimRight(strings.TrimSpace(a), "/")
			if a == "" {
				continue
			}
			if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
				if strings.EqualFold(a, origin) {
					return true
				}
				continue
			}
			if strings.EqualFold(a, host) {
				return true
			}
		}
		return false
	}
}

var _ transports.Conn = (*Conn)(nil)
