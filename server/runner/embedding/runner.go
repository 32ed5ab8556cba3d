// Package embedding backfills missing entry summaries and embeddings.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/saga/internal/observability"
	"github.com/hrygo/saga/store"
)

// Refresher regenerates the derived fields of one entry and reports whether it still needs work.
type Refresher interface {
	Refresh(ctx context.Context, id string) (bool, error)
}

type Runner struct {
	store       *store.Store
	refresher   Refresher
	metrics     *observability.Metrics
	schedule    string
	batchSize   int
	concurrency int
	window      int

	// cursor is the offset of the next pending window. Entries that stay
	// pending are stepped over so they cannot starve the rest of the queue.
	cursor atomic.Int64
}

// Stats summarises one backfill pass.
type Stats struct {
	Refreshed int
	Pending   int
	Failed    int
}

// NewRunner creates a backfill runner.
// Small batches and two workers keep the model backends from being flooded.
func NewRunner(store *store.Store, refresher Refresher, metrics *observability.Metrics) *Runner {
	return &Runner{
		store:       store,
		refresher:   refresher,
		metrics:     metrics,
		schedule:    "@every 2m",
		batchSize:   8,
		concurrency: 2,
		window:      8 * 20,
	}
}

// Run processes pending entries on start and then on the runner schedule until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(r.schedule, func() { r.RunOnce(ctx) }); err != nil {
		return errors.Wrapf(err, "invalid backfill schedule %q", r.schedule)
	}

	// Process once on startup
	r.RunOnce(ctx)

	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	slog.Info("embedding backfill runner stopped")
	return nil
}

// RunOnce processes pending entries once (for manual trigger).
func (r *Runner) RunOnce(ctx context.Context) Stats {
	var stats Stats
	entries, err := r.findPendingEntries(ctx)
	if err != nil {
		slog.Error("failed to find entries needing backfill", "error", err)
		return stats
	}
	if len(entries) == 0 {
		return stats
	}

	slog.Info("backfilling entries", "count", len(entries))

	for i := 0; i < len(entries); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("backfill cancelled", "processed", i, "total", len(entries))
			return stats
		default:
		}

		end := min(i+r.batchSize, len(entries))
		batch := r.processBatch(ctx, entries[i:end])
		stats.Refreshed += batch.Refreshed
		stats.Pending += batch.Pending
		stats.Failed += batch.Failed
		slog.Info("batch processed", "count", end-i, "progress", fmt.Sprintf("%d/%d", end, len(entries)))
	}
	r.advance(len(entries), stats)
	return stats
}

// findPendingEntries returns the next window of entries needing backfill,
// oldest first, wrapping to the start once the end of the queue is reached.
func (r *Runner) findPendingEntries(ctx context.Context) ([]*store.Entry, error) {
	offset := int(r.cursor.Load())
	entries, err := r.listPending(ctx, offset)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && offset > 0 {
		r.cursor.Store(0)
		return r.listPending(ctx, 0)
	}
	return entries, nil
}

func (r *Runner) listPending(ctx context.Context, offset int) ([]*store.Entry, error) {
	limit := r.window
	return r.store.ListEntries(ctx, &store.FindEntry{
		NeedsBackfill:  true,
		OrderByDateAsc: true,
		Limit:          &limit,
		Offset:         &offset,
	})
}

// advance moves the cursor past the entries that are still pending after a
// full window, or back to the start when the window reached the end of the queue.
func (r *Runner) advance(fetched int, stats Stats) {
	if fetched < r.window {
		r.cursor.Store(0)
		return
	}
	r.cursor.Add(int64(stats.Pending + stats.Failed))
}

// processBatch refreshes a batch with bounded concurrency. A failing entry is
// logged and skipped; it does not stop the rest of the batch.
func (r *Runner) processBatch(ctx context.Context, entries []*store.Entry) Stats {
	var refreshed, pending, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, entry := range entries {
		id := entry.ID
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			stillPending, err := r.refresher.Refresh(gctx, id)
			switch {
			case err != nil:
				slog.Error("failed to backfill entry", "entry_id", id, "error", err)
				failed.Add(1)
				r.metrics.RecordBackfill("failed")
			case stillPending:
				pending.Add(1)
				r.metrics.RecordBackfill("pending")
			default:
				refreshed.Add(1)
				r.metrics.RecordBackfill("ok")
			}
			return nil
		})
	}
	_ = g.Wait()

	return Stats{
		Refreshed: int(refreshed.Load()),
		Pending:   int(pending.Load()),
		Failed:    int(failed.Load()),
	}
}
