package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockmatrix/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.seriesPath(domain.MarketTW, "2330.tw")
	want := filepath.Join("/data", "tw", "dayK", "2330.TW.parquet")
	if got != want {
		t.Errorf("seriesPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadSeries(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	series := domain.PriceSeries{
		{Symbol: "7203.T", Timestamp: day(3), Open: 100, High: 105, Low: 99, Close: 104, Volume: 1000},
		{Symbol: "7203.T", Timestamp: day(4), Open: 104, High: 110, Low: 103, Close: 109, Volume: 1200},
		{Symbol: "7203.T", Timestamp: day(5), Open: 109, High: 112, Low: 108, Close: 111, Volume: 900},
	}
	if err := ps.WriteSeries(ctx, domain.MarketJP, series); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	got, err := ps.ReadSeries(ctx, domain.MarketJP, "7203.T", domain.DateRange{Start: day(1), End: day(31)})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadSeries returned %d bars, want 3", len(got))
	}
	if got[1].High != 110 || got[1].Close != 109 {
		t.Errorf("bar[1] = %+v, want high=110 close=109", got[1])
	}
	if err := got.Validate(); err != nil {
		t.Errorf("stored series should be valid: %v", err)
	}

	// Range filter.
	window, err := ps.ReadSeries(ctx, domain.MarketJP, "7203.T", domain.DateRange{Start: day(4), End: day(4)})
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 1 || !window[0].Timestamp.Equal(day(4)) {
		t.Errorf("range read = %+v, want the single day-4 bar", window)
	}
}

func TestParquetStoreMergeOverwrites(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteSeries(ctx, domain.MarketUS, domain.PriceSeries{
		{Symbol: "AAPL", Timestamp: day(3), Close: 100, High: 101, Low: 99},
	}); err != nil {
		t.Fatal(err)
	}
	// Re-fetch revises the same session and appends a new one.
	if err := ps.WriteSeries(ctx, domain.MarketUS, domain.PriceSeries{
		{Symbol: "AAPL", Timestamp: day(3), Close: 102, High: 103, Low: 99},
		{Symbol: "AAPL", Timestamp: day(4), Close: 104, High: 105, Low: 101},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := ps.ReadSeries(ctx, domain.MarketUS, "AAPL", domain.DateRange{Start: day(1), End: day(31)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("merged series has %d bars, want 2", len(got))
	}
	if got[0].Close != 102 {
		t.Errorf("revised bar close = %v, want incoming value 102", got[0].Close)
	}
}

func TestParquetStoreMissingSymbol(t *testing.T) {
	ps := NewParquetStore(t.TempDir())

	got, err := ps.ReadSeries(context.Background(), domain.MarketKR, "005930.KS", domain.DateRange{Start: day(1), End: day(31)})
	if err != nil {
		t.Fatalf("ReadSeries for missing symbol should not error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadSeries for missing symbol returned %d bars, want 0", len(got))
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	for _, sym := range []string{"2330.TW", "2317.TW"} {
		if err := ps.WriteSeries(ctx, domain.MarketTW, domain.PriceSeries{
			{Symbol: sym, Timestamp: day(3), Close: 1, High: 1, Low: 1},
		}); err != nil {
			t.Fatal(err)
		}
	}

	symbols, err := ps.ListSymbols(ctx, domain.MarketTW)
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "2317.TW" || symbols[1] != "2330.TW" {
		t.Errorf("ListSymbols = %v, want sorted [2317.TW 2330.TW]", symbols)
	}

	// Other markets are isolated.
	other, err := ps.ListSymbols(ctx, domain.MarketHK)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("ListSymbols for empty market = %v, want none", other)
	}
}

func TestParquetStoreRewritesUnreadableFile(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	// Truncated or garbage file where the series should be.
	path := ps.seriesPath(domain.MarketUS, "AAPL")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not parquet"), 0o644); err != nil {
		t.Fatal(err)
	}

	incoming := domain.PriceSeries{
		{Symbol: "AAPL", Timestamp: day(3), Close: 100, High: 101, Low: 99},
	}
	if err := ps.WriteSeries(ctx, domain.MarketUS, incoming); err != nil {
		t.Fatalf("WriteSeries over unreadable file: %v", err)
	}

	got, err := ps.ReadSeries(ctx, domain.MarketUS, "AAPL", domain.DateRange{Start: day(1), End: day(31)})
	if err != nil {
		t.Fatalf("ReadSeries after rewrite: %v", err)
	}
	if len(got) != 1 || got[0].Close != 100 {
		t.Errorf("rewritten series = %+v, want the single incoming bar", got)
	}
}

func TestParquetStoreRejectsMixedSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())

	err := ps.WriteSeries(context.Background(), domain.MarketUS, domain.PriceSeries{
		{Symbol: "AAPL", Timestamp: day(3), Close: 1},
		{Symbol: "MSFT", Timestamp: day(4), Close: 1},
	})
	if err == nil {
		t.Error("WriteSeries should reject a series mixing symbols")
	}
}
