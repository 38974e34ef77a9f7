package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonSourceFailure)
	if Reason(err) != ReasonSourceFailure {
		t.Fatalf("expected reason %s, got %s", ReasonSourceFailure, Reason(err))
	}
	if !HasReason(err, ReasonSourceFailure) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonTransportSend)
	second := Wrap(first, ReasonSourceFailure)
	if Reason(second) != ReasonTransportSend {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("phrase 2: %w", Wrap(assertErr{}, ReasonSourceFailure))
	if Reason(err) != ReasonSourceFailure {
		t.Fatalf("expected reason through fmt wrap, got %s", Reason(err))
	}
	var target assertErr
	if !errors.As(err, &target) {
		t.Fatalf("expected underlying error reachable")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ReasonSourceFailure) != nil {
		t.Fatalf("expected nil")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestNewCarriesReason(t *testing.T) {
	err := New(ReasonRequestTimeout, "no start message")
	if !HasReason(err, ReasonRequestTimeout) {
		t.Fatalf("expected request_timeout reason, got %s", Reason(err))
	}
	if err.Error() != "no start message" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestWrapfAddsContext(t *testing.T) {
	err := Wrapf(assertErr{}, ReasonSourceStart, "begin phrase %d", 3)
	if err.Error() != "begin phrase 3: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !HasReason(err, ReasonSourceStart) {
		t.Fatalf("expected source_start, got %s", Reason(err))
	}
	if Wrapf(nil, ReasonSourceStart, "x") != nil {
		t.Fatalf("expected nil")
	}
	if !HasReason(Newf(ReasonConfigInvalid, "bad %s", "key"), ReasonConfigInvalid) {
		t.Fatalf("Newf lost its reason")
	}
}
