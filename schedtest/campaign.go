package schedtest

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gitrdm/godejafu/internal/bpor"
)

// Run names one independent exploration a Campaign should perform: its own
// Config (memory model, preemption bound, ...) and Program, run against a
// fresh World/BporTree the same as a standalone RunTest call.
type Run struct {
	Name    string
	Config  Config
	Program bpor.Program
}

// ModelResult is one Run's outcome, tagged with the campaign-wide run ID
// so concurrent RunMany campaigns stay distinguishable in logs (mirrors
// how other retrieved services tag mesh/session identifiers with
// google/uuid).
type ModelResult struct {
	RunID   uuid.UUID
	Name    string
	Results ResultSet
}

// Campaign runs a batch of independent Runs concurrently, bounded by
// Concurrency — the same backpressure idea as the teacher's worker-pool
// queue-depth thresholds, reused directly via golang.org/x/sync/semaphore.
type Campaign struct {
	// Concurrency caps how many Runs execute at once; 0 means unbounded
	// (one goroutine per Run).
	Concurrency int
}

// NewCampaign creates a Campaign with the given concurrency bound.
func NewCampaign(concurrency int) *Campaign {
	return &Campaign{Concurrency: concurrency}
}

// RunMany fans runs out across goroutines (golang.org/x/sync/errgroup),
// each owning its own World and BporTree — the single-stepper itself stays
// single-threaded per run; only whole campaigns run in parallel. Returns
// once every goroutine has finished: after ctx is cancelled, Runs not yet
// started are skipped and the error is returned, while Runs already in
// progress still run to completion.
func (c *Campaign) RunMany(ctx context.Context, runs []Run) ([]ModelResult, error) {
	limit := c.Concurrency
	if limit <= 0 {
		limit = len(runs)
	}
	if limit <= 0 {
		return nil, nil
	}
	sem := semaphore.NewWeighted(int64(limit))

	g, gctx := errgroup.WithContext(ctx)
	results := make([]ModelResult, len(runs))

	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			id := uuid.New()
			cfg := run.Config
			cfg.Log = cfg.Log.With().Str("run_id", id.String()).Str("run", run.Name).Logger()

			results[i] = ModelResult{
				RunID:   id,
				Name:    run.Name,
				Results: RunTest(cfg, run.Program),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
