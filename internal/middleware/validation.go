package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"
)

// validationInterceptor checks request messages against their validate tags
// before they reach a handler.
type validationInterceptor struct {
	validate *validator.Validate
}

// ValidationInterceptor rejects malformed requests with CodeInvalidArgument.
func ValidationInterceptor(v *validator.Validate) connect.Interceptor {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &validationInterceptor{validate: v}
}

func (vi *validationInterceptor) check(msg any) error {
	if msg == nil {
		return nil
	}
	err := vi.validate.Struct(msg)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Not a struct; nothing to check.
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, describe(fe))
		}
		return connect.NewError(connect.CodeInvalidArgument, errors.New(strings.Join(msgs, "; ")))
	}
	return connect.NewError(connect.CodeInvalidArgument, err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "max":
		return fmt.Sprintf("%s must have %s %s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}

func (vi *validationInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if err := vi.check(req.Any()); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (vi *validationInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (vi *validationInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return next(ctx, &validatingConn{StreamingHandlerConn: conn, vi: vi})
	}
}

// validatingConn validates each message as it is received.
type validatingConn struct {
	connect.StreamingHandlerConn
	vi *validationInterceptor
}

func (c *validatingConn) Receive(msg any) error {
	if err := c.StreamingHandlerConn.Receive(msg); err != nil {
		return err
	}
	return c.vi.check(msg)
}
