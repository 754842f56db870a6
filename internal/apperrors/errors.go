// Package apperrors defines the error taxonomy shared by the ledger, the
// settlement engine and the RPC layer.
package apperrors

import "errors"

// ErrValidation indicates malformed input that was rejected at the boundary.
var ErrValidation = errors.New("validation error")

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrPrecondition indicates a well-formed request that cannot be honoured in
// the current state (e.g. deleting an event that still has debts).
var ErrPrecondition = errors.New("precondition failed")

// ErrPermission indicates the caller is not allowed to perform the operation.
var ErrPermission = errors.New("permission denied")

// ErrIntegrity indicates stored data violates an accounting invariant.
// Seeing it means a bug upstream, not a user mistake.
var ErrIntegrity = errors.New("data integrity violation")

// ErrTransient indicates an external collaborator failed in a way that may
// succeed on retry.
var ErrTransient = errors.New("transient external failure")

// PreconditionError is a structured refusal carrying a human-readable reason.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// Is lets errors.Is(err, ErrPrecondition) match a *PreconditionError.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// Refuse returns a PreconditionError with the given reason.
func Refuse(reason string) error {
	return &PreconditionError{Reason: reason}
}

// Reason extracts the human-readable reason from a precondition error, or
// returns err.Error() for anything else.
func Reason(err error) string {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}
