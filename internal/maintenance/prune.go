// Package maintenance removes element id entries whose plugin instance no longer
// exists. Deletes through the admin service keep pages clean; this catches data
// written before that, or by other tools.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"cascade/internal/cms"
)

// Pages lists the pages carrying element ids.
type Pages interface {
	ListPageIDs(ctx context.Context) ([]int64, error)
}

// Enforcer is the part of elementid.Enforcer the pruner drives.
type Enforcer interface {
	Prune(ctx context.Context, pageID int64) ([]string, error)
}

type Pruner struct {
	pages       Pages
	enforcer    Enforcer
	logger      *slog.Logger
	concurrency int
}

func NewPruner(pages Pages, enforcer Enforcer, logger *slog.Logger, concurrency int) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pruner{pages: pages, enforcer: enforcer, logger: logger, concurrency: concurrency}
}

// PrunePage drops the stale entries of one page and returns their instance keys.
func (p *Pruner) PrunePage(ctx context.Context, pageID int64) ([]string, error) {
	return p.enforcer.Prune(ctx, pageID)
}

// Result is the outcome of a full run.
type Result struct {
	Pages   int
	Removed int
	Failed  int
}

// PruneAll prunes every page, a few at a time. Failures on one page are logged and
// counted; they do not stop the run.
func (p *Pruner) PruneAll(ctx context.Context) (Result, error) {
	ids, err := p.pages.ListPageIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Pages: len(ids)}
	var mu sync.Mutex
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			removed, err := p.PrunePage(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, cms.ErrNotFound) {
					return
				}
				res.Failed++
				p.logger.Error("element_ids_prune_failed", "page_id", id, "error", err)
				return
			}
			res.Removed += len(removed)
		}()
	}
	wg.Wait()
	return res, ctx.Err()
}

// ParsePageID reads a page id given on a command line.
func ParsePageID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("page id must be a positive integer")
	}
	return id, nil
}
