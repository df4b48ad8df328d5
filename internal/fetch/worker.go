package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stockmatrix/internal/domain"
	"stockmatrix/internal/manifest"
	"stockmatrix/internal/store"
	"stockmatrix/internal/util"
)

// Worker fetches one symbol at a time: retrying transient failures with
// jittered spacing, validating the response, persisting the series, and
// recording every attempt in the manifest.
type Worker struct {
	Source     Source
	Bars       store.BarStore
	Manifest   manifest.Store
	RunKey     string
	Market     domain.Market
	Delay      util.Delayer
	RetryLimit int
	Range      domain.DateRange

	now func() time.Time
	log *slog.Logger
}

// NewWorker builds a Worker. RetryLimit values below 1 are raised to 1.
func NewWorker(src Source, bars store.BarStore, ms manifest.Store, runKey string, market domain.Market, delay util.Delayer, retryLimit int, rng domain.DateRange) *Worker {
	if retryLimit < 1 {
		retryLimit = 1
	}
	return &Worker{
		Source:     src,
		Bars:       bars,
		Manifest:   ms,
		RunKey:     runKey,
		Market:     market,
		Delay:      delay,
		RetryLimit: retryLimit,
		Range:      rng,
		now:        time.Now,
		log:        slog.Default().With("component", "fetch-worker", "market", market),
	}
}

// Fetch acquires the symbol's price history. On success the series is
// persisted and the manifest entry marked success. Failures end the symbol
// as failed-permanent (after exhausting retries for transient ones) and
// return the classified error; they are warnings at the run level, not
// run-fatal.
func (w *Worker) Fetch(ctx context.Context, l domain.Listing) (domain.PriceSeries, error) {
	var (
		series   domain.PriceSeries
		attempts int
	)

	err := util.Retry(ctx, w.RetryLimit, w.Delay, func() error {
		attempts++

		s, ferr := w.fetchOnce(ctx, l.Symbol)
		if ferr != nil {
			w.record(ctx, l.Symbol, manifest.StatusPending, attempts, ferr.Error())
			if IsPermanent(ferr) {
				return util.Permanent(ferr)
			}
			return ferr
		}
		series = s
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-run: leave the entry as recorded so a resume
			// picks the symbol up again.
			return nil, err
		}
		reason := err.Error()
		if !IsPermanent(err) {
			reason = fmt.Sprintf("retries exhausted after %d attempts: %v", attempts, err)
		}
		w.record(ctx, l.Symbol, manifest.StatusFailed, attempts, reason)
		w.log.Warn("symbol failed", "symbol", l.Symbol, "attempts", attempts, "err", err)
		return nil, err
	}

	if werr := w.Bars.WriteSeries(ctx, w.Market, series); werr != nil {
		// Storage trouble is not the symbol's fault; keep it retryable on
		// the next run.
		w.record(ctx, l.Symbol, manifest.StatusPending, attempts, werr.Error())
		return nil, fmt.Errorf("persisting %s: %w", l.Symbol, werr)
	}

	w.record(ctx, l.Symbol, manifest.StatusSuccess, attempts, "")
	return series, nil
}

// fetchOnce performs a single fetch attempt plus schema validation.
func (w *Worker) fetchOnce(ctx context.Context, symbol string) (domain.PriceSeries, error) {
	series, err := w.Source.FetchHistory(ctx, symbol, w.Range)
	if err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			// Unclassified source errors default to transient.
			err = NewTransient(symbol, err)
		}
		return nil, err
	}
	if verr := series.Validate(); verr != nil {
		return nil, NewPermanent(symbol, fmt.Errorf("malformed response: %w", verr))
	}
	return series, nil
}

func (w *Worker) record(ctx context.Context, symbol string, status manifest.Status, attempts int, reason string) {
	e := manifest.Entry{
		Symbol:      symbol,
		Status:      status,
		LastAttempt: w.now().UTC(),
		Retries:     attempts,
		Reason:      reason,
	}
	if err := w.Manifest.RecordAttempt(ctx, w.RunKey, e); err != nil {
		w.log.Error("recording manifest entry failed", "symbol", symbol, "err", err)
	}
}
