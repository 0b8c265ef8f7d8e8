package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hostria.io/internal/audit"
	"hostria.io/internal/auth"
	"hostria.io/internal/config"
	"hostria.io/internal/directory"
	"hostria.io/internal/httpapi"
	"hostria.io/internal/obs"
	"hostria.io/internal/store/pg"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()

	store, err := pg.Open(cfg.Database.DSN(), pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	// Audit events go to the structured log, the security_events table and
	// the live SSE stream.
	pgSink, err := audit.NewPGSink(store.DB())
	if err != nil {
		logger.Fatal("audit sink", zap.Error(err))
	}
	stream := audit.NewStream()
	events := audit.MultiEmitter{audit.NewZapSink(logger), pgSink, stream}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		logger.Fatal("token manager", zap.Error(err))
	}

	core, err := auth.NewService(auth.NewPGStore(store.DB()), tokens, events,
		auth.WithMaxLoginAttempts(cfg.Auth.MaxLoginAttempts),
		auth.WithLockoutDuration(cfg.Auth.LockoutDuration),
	)
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}

	dir, err := directory.NewService(store, core, events)
	if err != nil {
		logger.Fatal("directory service", zap.Error(err))
	}

	api := httpapi.New(core, dir, stream, logger, httpapi.ReadyProbe{DB: store.DB()}, httpapi.Options{
		Version:         version,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		RateLimitPerSec: cfg.RateLimit.PerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Log the manager's effective TTLs rather than the raw config: zero
	// config values fall back to the built-in defaults.
	logger.Info("starting hostria-auth",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("environment", cfg.App.Environment),
		zap.Duration("access_ttl", tokens.AccessTTL()),
		zap.Duration("refresh_ttl", tokens.RefreshTTL()),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}
