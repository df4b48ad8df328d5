package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

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

var testRefDate = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type staticLister struct {
	listings []domain.Listing
	err      error
}

func (s staticLister) ListSymbols(context.Context, domain.Market) ([]domain.Listing, error) {
	return s.listings, s.err
}

// historySource serves a two-year flat history with a configurable final
// close, so every horizon is eligible.
type historySource struct {
	finalClose float64
	failing    map[string]bool
	calls      atomic.Int64
}

func (h *historySource) Name() string { return "history" }

func (h *historySource) FetchHistory(_ context.Context, symbol string, rng domain.DateRange) (domain.PriceSeries, error) {
	h.calls.Add(1)
	if h.failing[symbol] {
		return nil, fetch.NewPermanent(symbol, fmt.Errorf("delisted"))
	}
	var s domain.PriceSeries
	for d := rng.Start; !d.After(rng.End); d = d.AddDate(0, 0, 1) {
		price := 100.0
		if d.Equal(rng.End) {
			price = h.finalClose
		}
		s = append(s, domain.Bar{
			Symbol:    symbol,
			Timestamp: d,
			Open:      price, High: price, Low: price, Close: price,
		})
	}
	return s, nil
}

func testConfig() config.MarketConfig {
	return config.MarketConfig{
		Threshold:   0.95,
		RetryLimit:  2,
		RateMinMS:   0,
		RateMaxMS:   1,
		MaxWorkers:  4,
		HistoryDays: 400,
	}
}

func newTestPipeline(t *testing.T, src fetch.Source, listings []domain.Listing) *MarketPipeline {
	t.Helper()
	dataDir := t.TempDir()
	p := NewMarketPipeline(domain.MarketTW, testConfig(),
		staticLister{listings: listings}, src,
		store.NewParquetStore(dataDir), manifest.NewMemoryStore(),
		render.NewRenderer(filepath.Join(dataDir, "output")))
	p.now = func() time.Time { return testRefDate }
	return p
}

func symbols(n int) []domain.Listing {
	out := make([]domain.Listing, n)
	for i := range out {
		out[i] = domain.Listing{Symbol: fmt.Sprintf("TK%02d.TW", i), Name: fmt.Sprintf("Ticker %d", i)}
	}
	return out
}

func TestPipelineRun(t *testing.T) {
	var emails atomic.Int64
	emailSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		emails.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer emailSrv.Close()

	src := &historySource{finalClose: 115}
	p := newTestPipeline(t, src, symbols(10))

	p.Resend = notify.NewResendNotifier("key", "m@example.com", []string{"ops@example.com"})
	p.Resend.BaseURL = emailSrv.URL

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if emails.Load() != 1 {
		t.Errorf("sent %d emails, want 1", emails.Load())
	}

	// Nine charts on disk for the market.
	pattern := filepath.Join(p.Renderer.OutputDir, "images", "tw", "*.png")
	matches, _ := filepath.Glob(pattern)
	if len(matches) != 9 {
		t.Errorf("found %d chart files, want 9", len(matches))
	}

	// Manifest holds a success entry per symbol.
	m, err := p.Manifest.Load(context.Background(), manifest.RunKeyFor(domain.MarketTW, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	if m.SuccessCount() != 10 {
		t.Errorf("manifest successes = %d, want 10", m.SuccessCount())
	}
}

func TestPipelineThresholdBreachAborts(t *testing.T) {
	var emails atomic.Int64
	emailSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		emails.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer emailSrv.Close()

	// 2 of 10 symbols permanently failing: 80% < 95% threshold.
	src := &historySource{finalClose: 110, failing: map[string]bool{"TK00.TW": true, "TK01.TW": true}}
	p := newTestPipeline(t, src, symbols(10))
	p.Resend = notify.NewResendNotifier("key", "m@example.com", []string{"ops@example.com"})
	p.Resend.BaseURL = emailSrv.URL

	err := p.Run(context.Background())
	var te *gather.ThresholdError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *ThresholdError", err)
	}

	// No report of any kind on a breached run.
	if emails.Load() != 0 {
		t.Errorf("sent %d emails after threshold breach, want 0", emails.Load())
	}
	if matches, _ := filepath.Glob(filepath.Join(p.Renderer.OutputDir, "images", "tw", "*.png")); len(matches) != 0 {
		t.Errorf("found %d chart files after threshold breach, want 0", len(matches))
	}
}

func TestPipelineUniverseUnavailableFatal(t *testing.T) {
	p := newTestPipeline(t, &historySource{finalClose: 100}, nil)
	p.Universe = staticLister{err: fmt.Errorf("directory down: %w", universe.ErrUnavailable)}

	err := p.Run(context.Background())
	if !errors.Is(err, universe.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestPipelineResumeSkipsFetched(t *testing.T) {
	src := &historySource{finalClose: 108}
	listings := symbols(6)
	p := newTestPipeline(t, src, listings)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := src.calls.Load()
	if first != 6 {
		t.Fatalf("first run fetched %d times, want 6", first)
	}

	// Same reference date: everything is already marked success.
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if src.calls.Load() != first {
		t.Errorf("second run fetched %d more times, want 0", src.calls.Load()-first)
	}
}
