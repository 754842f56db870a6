package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/mmynk/splitton/internal/auth"
	"github.com/mmynk/splitton/internal/metrics"
	"github.com/mmynk/splitton/internal/models"
)

type loginMsg struct {
	Username string `validate:"required,min=3"`
	Password string `validate:"required,min=8"`
}

func okHandler(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
	return connect.NewResponse(&struct{}{}), nil
}

func TestRequireAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwtManager.Generate(&models.User{ID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)

	var gotID, gotName string
	next := func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		gotID, gotName = GetUserID(ctx), GetDisplayName(ctx)
		return okHandler(ctx, req)
	}
	handler := RequireAuth(jwtManager).WrapUnary(next)

	tests := []struct {
		name   string
		header string
		code   connect.Code
	}{
		{name: "missing header", header: "", code: connect.CodeUnauthenticated},
		{name: "wrong scheme", header: "Basic " + token, code: connect.CodeUnauthenticated},
		{name: "garbage token", header: "Bearer nope", code: connect.CodeUnauthenticated},
		{name: "valid token", header: "Bearer " + token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := connect.NewRequest(&struct{}{})
			if tt.header != "" {
				req.Header().Set("Authorization", tt.header)
			}
			_, err := handler(context.Background(), req)
			if tt.code != 0 {
				assert.Equal(t, tt.code, connect.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", gotID)
			assert.Equal(t, "Alice", gotName)
		})
	}
}

func TestValidationInterceptor(t *testing.T) {
	handler := ValidationInterceptor(nil).WrapUnary(okHandler)

	_, err := handler(context.Background(), connect.NewRequest(&loginMsg{Username: "al", Password: "short"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	var ce *connect.Error
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Message(), "Username must have min 3")
	assert.Contains(t, ce.Message(), "Password must have min 8")

	_, err = handler(context.Background(), connect.NewRequest(&loginMsg{Username: "alice", Password: "long enough"}))
	assert.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	lim := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})
	handler := RateLimit(lim)(okHandler)

	for i := 0; i < 2; i++ {
		_, err := handler(context.Background(), connect.NewRequest(&struct{}{}))
		require.NoError(t, err, "call %d", i+1)
	}
	_, err := handler(context.Background(), connect.NewRequest(&struct{}{}))
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(err))
}

func TestLoggingInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	handler := LoggingInterceptor(metrics.New(reg)).WrapUnary(
		func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Header().Get("X-Fail") != "" {
				return nil, connect.NewError(connect.CodeNotFound, errors.New("missing"))
			}
			return okHandler(ctx, req)
		})

	_, err := handler(context.Background(), connect.NewRequest(&struct{}{}))
	require.NoError(t, err)

	failing := connect.NewRequest(&struct{}{})
	failing.Header().Set("X-Fail", "1")
	_, err = handler(context.Background(), failing)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	count, err := testutil.GatherAndCount(reg, "splitton_rpc_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per result code")
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", clientIP("10.0.0.1:5432"))
	assert.Equal(t, "::1", clientIP("[::1]:80"))
	assert.Equal(t, "unix", clientIP("unix"))
}
