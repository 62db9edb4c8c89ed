package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enzo-mourany/steroid-analytics/internal/app/migrate"
	httpx "github.com/enzo-mourany/steroid-analytics/internal/http"
	"github.com/enzo-mourany/steroid-analytics/internal/repository/postgres"
	"github.com/enzo-mourany/steroid-analytics/internal/service/admission"
	"github.com/enzo-mourany/steroid-analytics/internal/service/authorizer"
	"github.com/enzo-mourany/steroid-analytics/internal/service/ingest"
	"github.com/enzo-mourany/steroid-analytics/internal/service/site"
	"github.com/enzo-mourany/steroid-analytics/internal/service/stats"
	"github.com/enzo-mourany/steroid-analytics/internal/service/throttle"
	"github.com/enzo-mourany/steroid-analytics/internal/ws"
	"github.com/enzo-mourany/steroid-analytics/pkg/config"
	"github.com/enzo-mourany/steroid-analytics/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()

	validator := admission.NewValidator(admission.Config{
		MaxEventSize:        cfg.MaxEventSize,
		MaxCustomParams:     cfg.MaxCustomParams,
		MaxParamNameLength:  cfg.MaxParamNameLength,
		MaxParamValueLength: cfg.MaxParamValueLength,
		ThrottleWindow:      cfg.ThrottleWindow,
		AllowLocalhost:      cfg.AllowLocalhost,
		AllowFileProtocol:   cfg.AllowFileProtocol,
		AllowIframes:        cfg.AllowIframes,
		BotDetection:        cfg.BotDetection,
	})
	authSvc := authorizer.New(repo, log, cfg.RequireRegisteredSites)
	throttleSvc := throttle.New(repo, log, cfg.ThrottleWindow)
	ingestSvc := ingest.New(repo, validator, authSvc, throttleSvc, hub, log)
	statsSvc := stats.New(repo, log, cfg.ActiveWindow)
	siteSvc := site.New(repo, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, ingestSvc, statsSvc, siteSvc, hub, limiter, cfg.AdminToken, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
