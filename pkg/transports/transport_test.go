package transports

import (
	"errors"
	"io"
	"testing"

	"github.com/harunnryd/voxstream/pkg/errorsx"
)

func TestPeerGoneClassification(t *testing.T) {
	err := PeerGone(io.EOF)
	if !IsPeerGone(err) {
		t.Fatalf("expected peer gone")
	}
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected cause to be preserved")
	}
	if errorsx.Reason(err) != errorsx.ReasonTransportClosed {
		t.Fatalf("unexpected reason %s", errorsx.Reason(err))
	}
	if !IsPeerGone(PeerGone(nil)) {
		t.Fatalf("nil cause should still be peer gone")
	}
}

func TestSendFailureKeepsPeerGone(t *testing.T) {
	gone := PeerGone(io.EOF)
	if got := SendFailure(gone); got != gone {
		t.Fatalf("peer gone should pass through unchanged")
	}
	err := SendFailure(errors.New("boom"))
	if IsPeerGone(err) || errorsx.Reason(err) != errorsx.ReasonTransportSend {
		t.Fatalf("unexpected classification %v", err)
	}
	if SendFailure(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}
