package pipeline

import (
	"fmt"
	"path/filepath"

	"stockmatrix/internal/config"
	"stockmatrix/internal/domain"
	"stockmatrix/internal/fetch"
	"stockmatrix/internal/manifest"
	"stockmatrix/internal/notify"
	"stockmatrix/internal/render"
	"stockmatrix/internal/store"
	"stockmatrix/internal/universe"
)

// Build wires a MarketPipeline for one market from the loaded
// configuration and the process-wide stores.
func Build(cfg *config.Config, market domain.Market, bars store.BarStore, ms manifest.Store) (*MarketPipeline, error) {
	mc := cfg.Market(market)

	lister, err := buildLister(mc, market, cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	src, err := buildSource(mc, market, cfg.Alpaca)
	if err != nil {
		return nil, err
	}

	p := NewMarketPipeline(market, mc, lister, src, bars, ms, render.NewRenderer(cfg.Storage.OutputDir))

	if r := cfg.Notify.Resend; r.APIKey != "" {
		p.Resend = notify.NewResendNotifier(r.APIKey, r.From, r.To)
	}
	if t := cfg.Notify.Telegram; t.BotToken != "" {
		p.Telegram = notify.NewTelegramNotifier(t.BotToken, t.ChatID)
	}
	return p, nil
}

func buildLister(mc config.MarketConfig, market domain.Market, dataDir string) (universe.Lister, error) {
	switch mc.Universe {
	case "nasdaq":
		cache := mc.UniverseCache
		if cache == "" {
			cache = filepath.Join(dataDir, string(market), "universe_cache.json")
		}
		return universe.NewNasdaqLister(cache), nil
	case "csv":
		if mc.UniversePath == "" {
			return nil, fmt.Errorf("market %s: universe_path required for csv universe", market)
		}
		return universe.NewFileLister(mc.UniversePath), nil
	default:
		return nil, fmt.Errorf("market %s: unknown universe source %q", market, mc.Universe)
	}
}

func buildSource(mc config.MarketConfig, market domain.Market, a config.Alpaca) (fetch.Source, error) {
	switch mc.Source {
	case "yahoo":
		return fetch.NewYahooSource(market), nil
	case "alpaca":
		if a.APIKey == "" || a.APISecret == "" {
			return nil, fmt.Errorf("market %s: alpaca credentials required", market)
		}
		return fetch.NewAlpacaSource(a.APIKey, a.APISecret, a.DataURL), nil
	default:
		return nil, fmt.Errorf("market %s: unknown price source %q", market, mc.Source)
	}
}
