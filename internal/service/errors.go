package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitton/internal/apperrors"
)

// toConnectError maps domain errors onto Connect codes. Errors that are
// already Connect errors pass through unchanged.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, apperrors.ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, apperrors.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, apperrors.ErrPrecondition):
		return connect.NewError(connect.CodeFailedPrecondition, errors.New(apperrors.Reason(err)))
	case errors.Is(err, apperrors.ErrPermission):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, apperrors.ErrTransient):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, apperrors.ErrIntegrity):
		slog.Error("Integrity violation", "error", err)
		return connect.NewError(connect.CodeInternal, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
