// Package pipeline wires one market's full run: universe, acquisition,
// aggregation, rendering, and notification. Markets are isolated units;
// a pipeline owns its manifest run key and shares nothing with other
// markets beyond the injected stores.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stockmatrix/internal/analyze"
	"stockmatrix/internal/config"
	"stockmatrix/internal/domain"
	"stockmatrix/internal/fetch"
	"stockmatrix/internal/gather"
	"stockmatrix/internal/manifest"
	"stockmatrix/internal/notify"
	"stockmatrix/internal/render"
	"stockmatrix/internal/store"
	"stockmatrix/internal/universe"
)

// Compile-time interface check.
var _ gather.Gatherer = (*MarketPipeline)(nil)

// MarketPipeline runs the acquire-aggregate-report cycle for one market.
type MarketPipeline struct {
	Market   domain.Market
	Universe universe.Lister
	Source   fetch.Source
	Bars     store.BarStore
	Manifest manifest.Store
	Renderer *render.Renderer
	Resend   *notify.ResendNotifier   // nil disables email
	Telegram *notify.TelegramNotifier // nil disables telegram

	Cfg config.MarketConfig

	now func() time.Time
	log *slog.Logger
}

// NewMarketPipeline builds a pipeline for one market from its
// collaborators and acquisition parameters.
func NewMarketPipeline(market domain.Market, cfg config.MarketConfig, lister universe.Lister, src fetch.Source, bars store.BarStore, ms manifest.Store, renderer *render.Renderer) *MarketPipeline {
	return &MarketPipeline{
		Market:   market,
		Universe: lister,
		Source:   src,
		Bars:     bars,
		Manifest: ms,
		Renderer: renderer,
		Cfg:      cfg,
		now:      time.Now,
		log:      slog.Default().With("pipeline", string(market)),
	}
}

// Name returns the pipeline identifier.
func (p *MarketPipeline) Name() string { return string(p.Market) + "-monitor" }

// Run executes one full cycle for the market's current reference date.
// Universe and threshold failures abort before aggregation; notification
// failures are logged and swallowed.
func (p *MarketPipeline) Run(ctx context.Context) error {
	refDate := p.referenceDate()
	runKey := manifest.RunKeyFor(p.Market, refDate)

	listings, err := p.Universe.ListSymbols(ctx, p.Market)
	if err != nil {
		return fmt.Errorf("listing %s universe: %w", p.Market, err)
	}

	rateMin, rateMax := p.Cfg.RateBounds()
	rng := domain.DateRange{
		Start: refDate.AddDate(0, 0, -p.Cfg.HistoryDays),
		End:   refDate,
	}

	coord := gather.NewCoordinator(p.Source, p.Bars, p.Manifest, p.Market, runKey, rng,
		p.Cfg.Threshold, p.Cfg.RetryLimit, p.Cfg.MaxWorkers, rateMin, rateMax)

	result, err := coord.Run(ctx, listings)
	if err != nil {
		return fmt.Errorf("acquisition for %s: %w", runKey, err)
	}

	seriesBySymbol, names, err := p.loadSeries(ctx, listings, rng)
	if err != nil {
		return fmt.Errorf("loading series for %s: %w", runKey, err)
	}

	matrix := analyze.Aggregate(seriesBySymbol, p.Market, refDate)

	artifacts, err := p.Renderer.RenderMatrix(p.Market, refDate, matrix)
	if err != nil {
		return fmt.Errorf("rendering %s matrix: %w", runKey, err)
	}

	reports := make(map[string]string, len(analyze.Horizons))
	for _, h := range analyze.Horizons {
		r := analyze.BuildReport(seriesBySymbol, names, p.Market, refDate, h, analyze.High)
		reports[h.String()] = r.HTML()
	}

	p.dispatch(ctx, refDate, result, artifacts, reports)

	p.log.Info("run complete",
		"runKey", runKey,
		"completed", result.Completed,
		"failed", result.Failed,
		"charts", len(artifacts),
	)
	return nil
}

// referenceDate is today's UTC date at midnight.
func (p *MarketPipeline) referenceDate() time.Time {
	now := p.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// loadSeries reads back the acquired history for every universe symbol.
// Symbols without stored bars (failed this run and never acquired before)
// are skipped; binning eligibility handles the rest.
func (p *MarketPipeline) loadSeries(ctx context.Context, listings []domain.Listing, rng domain.DateRange) (map[string]domain.PriceSeries, map[string]string, error) {
	series := make(map[string]domain.PriceSeries, len(listings))
	names := make(map[string]string, len(listings))
	for _, l := range listings {
		s, err := p.Bars.ReadSeries(ctx, p.Market, l.Symbol, rng)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", l.Symbol, err)
		}
		if len(s) == 0 {
			continue
		}
		series[l.Symbol] = s
		names[l.Symbol] = l.Name
	}
	return series, names, nil
}

// dispatch sends the report email and telegram summary. Failures here
// never fail the run.
func (p *MarketPipeline) dispatch(ctx context.Context, refDate time.Time, result *gather.RunResult, artifacts []render.Artifact, reports map[string]string) {
	if p.Resend != nil && p.Resend.Configured() {
		email := notify.BuildReportEmail(p.Market, refDate, result, artifacts, reports)
		if err := p.Resend.Send(ctx, email); err != nil {
			p.log.Error("report email failed", "err", err)
		}
	}
	if p.Telegram != nil && p.Telegram.Configured() {
		msg := notify.BuildTelegramSummary(p.Market, result)
		if err := p.Telegram.SendWithRetry(ctx, msg, 2); err != nil {
			p.log.Error("telegram summary failed", "err", err)
		}
	}
}
