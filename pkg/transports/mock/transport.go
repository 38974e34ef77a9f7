package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/voxstream/pkg/frames"
	"github.com/harunnryd/voxstream/pkg/transports"
)

// Message is one outbound write recorded by Conn.
type Message struct {
	Binary bool
	Data   []byte
}

func (m Message) Text() string { return string(m.Data) }

// Conn is an in-memory transports.Conn for tests and local integration.
// Outbound payloads are copied, so callers may recycle their buffers.
type Conn struct {
	recvCh chan frames.Frame
	doneCh chan struct{}

	mu        sync.Mutex
	sent      []Message
	closed    bool
	code      frames.CloseCode
	reason    string
	gone      bool
	failAfter int
	failErr   error
	// OnSend runs after each recorded write, outside the lock.
	onSend func(Message)
}

func New() *Conn {
	return &Conn{
		recvCh:    make(chan frames.Frame, 64),
		doneCh:    make(chan struct{}),
		failAfter: -1,
	}
}

// OnSend registers fn to observe each outbound write as it happens.
func (c *Conn) OnSend(fn func(Message)) {
	c.mu.Lock()
	c.onSend = fn
	c.mu.Unlock()
}

// FailAfter makes every write after the first n writes return err.
func (c *Conn) FailAfter(n int, err error) {
	c.mu.Lock()
	c.failAfter = n
	c.failErr = err
	c.mu.Unlock()
}

func (c *Conn) SendText(ctx context.Context, data []byte) error {
	return c.send(ctx, Message{Data: data})
}

func (c *Conn) SendBinary(ctx context.Context, data []byte) error {
	return c.send(ctx, Message{Binary: true, Data: data})
}

func (c *Conn) send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.gone || c.closed {
		c.mu.Unlock()
		return transports.PeerGone(nil)
	}
	if c.failAfter >= 0 && len(c.sent) >= c.failAfter {
		err := c.failErr
		c.mu.Unlock()
		return err
	}
	m.Data = append([]byte(nil), m.Data...)
	c.sent = append(c.sent, m)
	fn := c.onSend
	c.mu.Unlock()
	if fn != nil {
		fn(m)
	}
	return nil
}

func (c *Conn) Recv() <-chan frames.Frame { return c.recvCh }

func (c *Conn) Done() <-chan struct{} { return c.doneCh }

// Push injects an inbound frame. It is dropped once the peer is gone.
func (c *Conn) Push(f frames.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return
	}
	select {
	case c.recvCh <- f:
	default:
	}
}

// PushText injects an inbound text message.
func (c *Conn) PushText(text string) {
	c.Push(frames.NewTextFrame("", 0, text, nil))
}

// PushBinary injects an inbound binary message.
func (c *Conn) PushBinary(data []byte) {
	c.Push(frames.NewAudioFrame("", 0, data, 0, 1, nil))
}

// Disconnect simulates the peer going away.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markGone()
}

func (c *Conn) markGone() {
	if c.gone {
		return
	}
	c.gone = true
	close(c.doneCh)
	close(c.recvCh)
}

func (c *Conn) Close(code frames.CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.code = code
	c.reason = reason
	c.markGone()
	return nil
}

// Sent returns a snapshot of the outbound writes.
func (c *Conn) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// Closed reports whether Close was called and with which code.
func (c *Conn) Closed() (bool, frames.CloseCode, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

var _ transports.Conn = (*Conn)(nil)
