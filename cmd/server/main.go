package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitton/internal/auth"
	"github.com/mmynk/splitton/internal/config"
	"github.com/mmynk/splitton/internal/ledger"
	"github.com/mmynk/splitton/internal/metrics"
	"github.com/mmynk/splitton/internal/middleware"
	"github.com/mmynk/splitton/internal/payment"
	"github.com/mmynk/splitton/internal/rates"
	"github.com/mmynk/splitton/internal/rpc"
	"github.com/mmynk/splitton/internal/service"
	"github.com/mmynk/splitton/internal/settlement"
	"github.com/mmynk/splitton/internal/storage/memory"
	"github.com/mmynk/splitton/internal/storage/sqlite"
	"github.com/mmynk/splitton/pkg/logging"
)

// archiveCheckInterval is how often idle events are looked for.
const archiveCheckInterval = 6 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	l := ledger.New(memory.New(), store,
		ledger.WithMaxAttempts(cfg.SyncMaxAttempts),
		ledger.WithMetrics(m),
	)

	// The static fetcher only answers the settlement unit itself; fiat quotes
	// come from the price API or, while it is unreachable, the seeded defaults.
	rateCache := rates.NewCache(
		rates.Chain{rates.NewCoinGecko(cfg.RateAPIURL, nil), rates.Static{}},
		rates.WithTTL(cfg.RateTTL),
		rates.WithMetrics(m),
	)
	rateCache.Seed(rates.DefaultRates)

	planner := settlement.NewPlanner(rateCache, settlement.WithUnit(cfg.SettlementUnit))
	executor := settlement.NewExecutor(
		payment.NewHTTPRail(cfg.RailURL, cfg.RailSender, nil),
		settlement.WithDelay(cfg.TransferDelay),
		settlement.WithExecutorMetrics(m),
	)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	authenticator := auth.NewPasswordAuthenticator(store)

	authRate, err := limiter.NewRateFromFormatted(cfg.AuthRateLimit)
	if err != nil {
		slog.Error("Invalid auth rate limit", "error", err)
		os.Exit(1)
	}
	authLimiter := limiter.New(limitermemory.NewStore(), authRate)

	validation := middleware.ValidationInterceptor(validator.New(validator.WithRequiredStructEnabled()))
	logInterceptor := middleware.LoggingInterceptor(m)

	mux := http.NewServeMux()

	// Register Connect services
	authPath, authHandler := rpc.NewAuthServiceHandler(
		service.NewAuthService(authenticator, jwtManager, store, slog.Default()),
		connect.WithInterceptors(logInterceptor, middleware.RateLimit(authLimiter), validation),
	)
	mux.Handle(authPath, authHandler)

	eventPath, eventHandler := rpc.NewEventServiceHandler(
		service.NewEventService(service.EventServiceDeps{
			Ledger:      l,
			Planner:     planner,
			Executor:    executor,
			Settlements: store,
			Users:       store,
			Rates:       rateCache,
		}),
		connect.WithInterceptors(logInterceptor, middleware.RequireAuth(jwtManager), validation),
	)
	mux.Handle(eventPath, eventHandler)

	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go l.RunSync(ctx, cfg.SyncInterval)
	go archiveLoop(ctx, l, cfg.ArchiveAfter)

	// Add logging and CORS middleware
	loggedHandler := loggingMiddleware(corsMiddleware(mux))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	h2cHandler := h2c.NewHandler(loggedHandler, &http2.Server{})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	slog.Info("Connect server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	// Last attempt to push queued writes before exit.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := l.Flush(flushCtx); err != nil {
		slog.Warn("Final sync incomplete", "error", err, "pending", len(l.Pending()))
	}
	slog.Info("Server stopped")
}

// archiveLoop periodically archives events idle for longer than maxIdle.
func archiveLoop(ctx context.Context, l *ledger.Ledger, maxIdle time.Duration) {
	ticker := time.NewTicker(archiveCheckInterval)
	defer ticker.Stop()
	for {
		report, err := l.ArchiveInactive(ctx, maxIdle)
		if err != nil && ctx.Err() == nil {
			slog.Warn("Archive pass incomplete", "error", err)
		} else if len(report.Deleted)+len(report.Deactivated) > 0 {
			slog.Info("Archived idle events", "deleted", len(report.Deleted), "deactivated", len(report.Deactivated))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
