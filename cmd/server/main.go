package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tradeops/recon-engine/internal/metrics"
	"github.com/tradeops/recon-engine/internal/recon"
	"github.com/tradeops/recon-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	originURL := os.Getenv("DATABASE_URL")
	counterURL := os.Getenv("COUNTER_DATABASE_URL")
	if originURL != "" && counterURL != "" {
		origin, err := pgxpool.New(context.Background(), originURL)
		if err != nil {
			slog.Error("origin database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, origin.Close)

		counter, err := pgxpool.New(context.Background(), counterURL)
		if err != nil {
			slog.Error("counter database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, counter.Close)

		st = store.NewPostgresStore(origin, counter)
		slog.Info("connected to PostgreSQL", "databases", 2)

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, referenceTTL())
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL or COUNTER_DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := recon.NewWSHub()
	go wsHub.Run()

	// --- Reconciliation service ---
	reconSvc := recon.NewService(st, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"recon-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live run results.
		r.Get("/ws", wsHub.HandleWS)

		// Run orchestration.
		r.Post("/reconcile", reconSvc.Reconcile)

		// Account queries.
		r.Get("/accounts", reconSvc.ListAccounts)
		r.Get("/accounts/{accountID}/report", reconSvc.GetReport)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("recon-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down recon-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("recon-engine stopped")
}

// referenceTTL reads REFERENCE_TTL (Go duration syntax). Reference data
// is stable within a trading day, so the default is generous.
func referenceTTL() time.Duration {
	if v := os.Getenv("REFERENCE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil && ttl > 0 {
			return ttl
		}
		slog.Warn("invalid REFERENCE_TTL, using default", "value", v)
	}
	return 5 * time.Minute
}
