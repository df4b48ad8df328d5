package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stockmatrix/internal/domain"
	"stockmatrix/internal/fetch"
	"stockmatrix/internal/manifest"
	"stockmatrix/internal/store"
	"stockmatrix/internal/util"
)

// Coordinator drives one acquisition run for one market: it loads the
// checkpoint manifest, fetches every not-yet-successful symbol through a
// bounded worker pool, and validates the run against the completion
// threshold. Runs are resumable: a crashed run picks up from the manifest
// without re-fetching completed symbols.
type Coordinator struct {
	Source   fetch.Source
	Bars     store.BarStore
	Manifest manifest.Store

	Market domain.Market
	RunKey string
	Range  domain.DateRange

	Threshold  float64
	RetryLimit int
	MaxWorkers int
	RateMin    time.Duration
	RateMax    time.Duration

	log *slog.Logger
}

// NewCoordinator builds a Coordinator for one market run. MaxWorkers values
// below 1 are raised to 1.
func NewCoordinator(src fetch.Source, bars store.BarStore, ms manifest.Store, market domain.Market, runKey string, rng domain.DateRange, threshold float64, retryLimit, maxWorkers int, rateMin, rateMax time.Duration) *Coordinator {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Coordinator{
		Source:     src,
		Bars:       bars,
		Manifest:   ms,
		Market:     market,
		RunKey:     runKey,
		Range:      rng,
		Threshold:  threshold,
		RetryLimit: retryLimit,
		MaxWorkers: maxWorkers,
		RateMin:    rateMin,
		RateMax:    rateMax,
		log:        slog.Default().With("coordinator", string(market)),
	}
}

// Run executes the acquisition for the given universe. Already-successful
// symbols from a previous attempt of the same run key are skipped; symbols
// previously marked failed-permanent are retried with a fresh retry budget.
// After all pending symbols are processed the completion ratio is checked
// against the threshold; falling short returns a *ThresholdError.
func (c *Coordinator) Run(ctx context.Context, universe []domain.Listing) (*RunResult, error) {
	if len(universe) == 0 {
		return nil, fmt.Errorf("run %s: empty universe", c.RunKey)
	}

	m, err := c.Manifest.Load(ctx, c.RunKey)
	if err != nil {
		if !errors.Is(err, manifest.ErrCorruptManifest) {
			return nil, fmt.Errorf("loading manifest for %s: %w", c.RunKey, err)
		}
		// Unreadable checkpoint state: start the run fresh rather than
		// trusting partial progress. The persisted rows are purged so the
		// damage cannot resurface on the final reload.
		c.log.Warn("manifest corrupt, starting fresh", "runKey", c.RunKey, "err", err)
		if err := c.Manifest.Reset(ctx, c.RunKey); err != nil {
			return nil, fmt.Errorf("resetting corrupt manifest for %s: %w", c.RunKey, err)
		}
		m = manifest.New(c.RunKey)
	}

	pending := m.PendingSymbols(universe)
	c.log.Info("starting acquisition",
		"runKey", c.RunKey,
		"universe", len(universe),
		"resumed", len(universe)-len(pending),
		"pending", len(pending),
	)

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		failures  atomic.Int64
		runStart  = time.Now()
	)

	listingCh := make(chan domain.Listing, len(pending))
	for _, l := range pending {
		listingCh <- l
	}
	close(listingCh)

	workers := min(c.MaxWorkers, len(pending))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker paces itself: the pool-wide request rate is
			// workers / avg(jitter).
			limiter := util.NewJitterLimiter(c.RateMin, c.RateMax)
			w := fetch.NewWorker(c.Source, c.Bars, c.Manifest, c.RunKey, c.Market, limiter, c.RetryLimit, c.Range)
			for l := range listingCh {
				if ctx.Err() != nil {
					return
				}
				if _, err := w.Fetch(ctx, l); err != nil {
					if ctx.Err() != nil {
						return
					}
					failures.Add(1)
				} else {
					successes.Add(1)
				}
				// Pace after every outcome; a burst of failures must not
				// hammer the source any harder than successes would.
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		// Abandoned mid-run: the manifest retains every completed entry,
		// so the next invocation resumes where this one stopped.
		c.log.Info("acquisition cancelled",
			"runKey", c.RunKey,
			"done", successes.Load(),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
		return nil, ctx.Err()
	}

	// Re-load for the authoritative final state; the in-memory manifest
	// predates the workers' writes.
	final, err := c.Manifest.Load(ctx, c.RunKey)
	if err != nil {
		return nil, fmt.Errorf("reloading manifest for %s: %w", c.RunKey, err)
	}

	completed := final.SuccessCount()
	ratio := float64(completed) / float64(len(universe))

	c.log.Info("acquisition done",
		"runKey", c.RunKey,
		"completed", completed,
		"failed", final.FailedCount(),
		"ratio", fmt.Sprintf("%.3f", ratio),
		"elapsed", time.Since(runStart).Round(time.Second),
	)

	if ratio < c.Threshold {
		te := &ThresholdError{
			Universe:  len(universe),
			Completed: completed,
			Threshold: c.Threshold,
		}
		for _, e := range final.Entries {
			if e.Status == manifest.StatusFailed {
				te.Failed = append(te.Failed, FailedSymbol{Symbol: e.Symbol, Reason: e.Reason})
			}
		}
		sortFailed(te.Failed)
		return nil, te
	}

	return &RunResult{
		Universe:  len(universe),
		Completed: completed,
		Failed:    final.FailedCount(),
	}, nil
}
