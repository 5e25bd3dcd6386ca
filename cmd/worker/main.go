package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cascade/internal/config"
	"cascade/internal/db"
	"cascade/internal/elementid"
	"cascade/internal/logger"
	"cascade/internal/maintenance"
	"cascade/internal/store"
)

func main() {
	cfg := config.LoadCore()
	log := logger.New(cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool)
	pruner := newPruner(st, log)

	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	log.Info("worker_start", "prune_interval", cfg.PruneInterval.String())
	for {
		select {
		case <-ticker.C:
			cleanupSessions(ctx, st, log)
			pruneElementIDs(ctx, pruner, log)
		case <-done:
			log.Info("worker_shutdown")
			return
		}
	}
}

func cleanupSessions(ctx context.Context, st *store.Store, log *slog.Logger) {
	removed, err := st.CleanupExpiredSessions(ctx)
	if err != nil {
		log.Error("session_cleanup_failed", "error", err)
		return
	}
	if removed > 0 {
		log.Info("session_cleanup", "removed", removed)
	}
}

// pageStore is what the element id prune needs from the store.
type pageStore interface {
	elementid.Documents
	maintenance.Pages
}

// newPruner builds the prune run. The worker serves no metrics, so enforcement
// counters are not recorded here.
func newPruner(st pageStore, log *slog.Logger) *maintenance.Pruner {
	return maintenance.NewPruner(st, elementid.NewEnforcer(st, log, nil), log, 4)
}

func pruneElementIDs(ctx context.Context, pruner *maintenance.Pruner, log *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	res, err := pruner.PruneAll(runCtx)
	if err != nil {
		log.Error("element_ids_prune_run_failed", "error", err)
		return
	}
	if res.Removed > 0 || res.Failed > 0 {
		log.Info("element_ids_prune_run", "pages", res.Pages, "removed", res.Removed, "failed", res.Failed)
	}
}
