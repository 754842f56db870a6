package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"connectrpc.com/connect"
	"github.com/ulule/limiter/v3"
)

var errRateLimited = errors.New("too many requests, please try again later")

// RateLimit returns a unary interceptor that limits calls per client IP.
// It is mounted on the auth service to slow down credential guessing.
func RateLimit(lim *limiter.Limiter) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ip := clientIP(req.Peer().Addr)

			lctx, err := lim.Get(ctx, ip)
			if err != nil {
				slog.Error("Failed to get rate limit context", "ip", ip, "error", err)
				return nil, connect.NewError(connect.CodeInternal, errors.New("rate limit check failed"))
			}
			if lctx.Reached {
				slog.Warn("Rate limit exceeded", "ip", ip, "procedure", req.Spec().Procedure, "limit", lctx.Limit)
				return nil, connect.NewError(connect.CodeResourceExhausted, errRateLimited)
			}
			return next(ctx, req)
		}
	}
}

func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
