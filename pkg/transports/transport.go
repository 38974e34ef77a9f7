package transports

import (
	"context"
	"errors"
	"fmt"

	"github.com/harunnryd/voxstream/pkg/errorsx"
	"github.com/harunnryd/voxstream/pkg/frames"
)

// ErrPeerGone marks failures caused by the remote end going away. Sessions
// terminate silently on these.
var ErrPeerGone = errors.New("transport: peer gone")

// Conn is a single message-framed, bidirectional connection owned by one
// session. Writes must come from one goroutine at a time and are delivered
// in call order.
type Conn interface {
	SendText(ctx context.Context, data []byte) error
	SendBinary(ctx context.Context, data []byte) error
	// Recv yields inbound messages: text as frames.TextFrame, binary as
	// frames.AudioFrame. It is closed after Done.
	Recv() <-chan frames.Frame
	// Done is closed once the peer closed or reading failed.
	Done() <-chan struct{}
	Close(code frames.CloseCode, reason string) error
}

// PeerGone wraps cause so that IsPeerGone reports true for it.
func PeerGone(cause error) error {
	if cause == nil {
		cause = errors.New("connection closed")
	}
	return errorsx.Wrap(fmt.Errorf("%w: %w", ErrPeerGone, cause), errorsx.ReasonTransportClosed)
}

func IsPeerGone(err error) bool {
	return errors.Is(err, ErrPeerGone)
}

// SendFailure wraps a write error that is not attributable to the peer.
func SendFailure(err error) error {
	if err == nil || IsPeerGone(err) {
		return err
	}
	return errorsx.Wrap(err, errorsx.ReasonTransportSend)
}
