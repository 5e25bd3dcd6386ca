package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cascade/internal/admin"
	"cascade/internal/config"
	"cascade/internal/db"
	"cascade/internal/logger"
	"cascade/internal/metrics"
	"cascade/internal/plugin"
	"cascade/internal/ratelimit"
	"cascade/internal/store"
	"cascade/internal/ui"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}

	st := store.New(pool)
	limiter := ratelimit.New(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	renderer, err := ui.New()
	if err != nil {
		log.Error("template_load_failed", "error", err)
		os.Exit(1)
	}

	srv := admin.New(cfg, st, limiter, log, renderer, metrics.New(), plugin.DefaultCatalog())
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api_listen", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http_server_error", "error", err)
		}
	}()

	sweep := time.NewTicker(5 * time.Minute)
	defer sweep.Stop()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
loop:
	for {
		select {
		case <-sweep.C:
			if n := limiter.Sweep(); n > 0 {
				log.Debug("ratelimit_sweep", "removed", n)
			}
		case <-stop:
			break loop
		}
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	log.Info("api_shutdown")
}
