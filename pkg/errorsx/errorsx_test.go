package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonLockAcquire)
	if Reason(err) != ReasonLockAcquire {
		t.Fatalf("expected reason %s, got %s", ReasonLockAcquire, Reason(err))
	}
	if !HasReason(err, ReasonLockAcquire) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonTransportNotConnected)
	second := Wrap(fmt.Errorf("publish event: %w", first), ReasonPublish)
	if Reason(second) != ReasonTransportNotConnected {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestNewUnwrapsToFormattedError(t *testing.T) {
	base := assertErr{}
	err := New(ReasonSpeak, "say greeting: %w", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to match")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
