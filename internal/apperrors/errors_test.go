package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestPreconditionErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("delete event: %w", Refuse("outstanding balances"))

	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected errors.Is(err, ErrPrecondition), got %v", err)
	}
	if errors.Is(err, ErrValidation) {
		t.Error("precondition error must not match ErrValidation")
	}
	if got := Reason(err); got != "outstanding balances" {
		t.Errorf("Reason() = %q, want %q", got, "outstanding balances")
	}
}

func TestReasonFallsBackToMessage(t *testing.T) {
	err := fmt.Errorf("%w: amount must be positive", ErrValidation)
	if got := Reason(err); got != err.Error() {
		t.Errorf("Reason() = %q, want %q", got, err.Error())
	}
}
