package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"stockmatrix/internal/analyze"
	"stockmatrix/internal/config"
	"stockmatrix/internal/domain"
	"stockmatrix/internal/render"
	"stockmatrix/internal/store"
	"stockmatrix/internal/util"
)

// matrix-report rebuilds the distribution matrix for one market from
// already-acquired parquet data, without fetching anything. Useful for
// re-running the analysis after a completed acquisition.
func main() {
	marketFlag := flag.String("market", "", "market to analyze (tw|us|hk|cn|jp|kr)")
	cfgFlag := flag.String("config", "config/stockmatrix.yaml", "config file path")
	dateFlag := flag.String("date", "", "reference date YYYY-MM-DD (default today UTC)")
	flag.Parse()

	market, err := domain.ParseMarket(*marketFlag)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.Load(*cfgFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	slog.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	refDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *dateFlag != "" {
		refDate, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Fatalf("invalid date %q: %v", *dateFlag, err)
		}
	}

	ctx := context.Background()
	bars := store.NewParquetStore(cfg.Storage.DataDir)

	symbols, err := bars.ListSymbols(ctx, market)
	if err != nil {
		log.Fatalf("listing symbols: %v", err)
	}
	if len(symbols) == 0 {
		log.Fatalf("no stored data for market %s", market)
	}

	mc := cfg.Market(market)
	rng := domain.DateRange{Start: refDate.AddDate(0, 0, -mc.HistoryDays), End: refDate}

	seriesBySymbol := make(map[string]domain.PriceSeries, len(symbols))
	for _, sym := range symbols {
		s, err := bars.ReadSeries(ctx, market, sym, rng)
		if err != nil {
			log.Fatalf("reading %s: %v", sym, err)
		}
		if len(s) > 0 {
			seriesBySymbol[sym] = s
		}
	}

	matrix := analyze.Aggregate(seriesBySymbol, market, refDate)

	artifacts, err := render.NewRenderer(cfg.Storage.OutputDir).RenderMatrix(market, refDate, matrix)
	if err != nil {
		log.Fatalf("rendering: %v", err)
	}
	for _, a := range artifacts {
		slog.Info("chart written", "id", a.ID, "path", a.Path)
	}

	for _, h := range analyze.Horizons {
		r := analyze.BuildReport(seriesBySymbol, nil, market, refDate, h, analyze.High)
		fmt.Fprintf(os.Stdout, "\n=== %s return distribution (sample: %d) ===\n%s", h, r.Sample, r.Text())
	}
}
