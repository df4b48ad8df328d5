package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockmatrix/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using one Parquet file per symbol under
// <DataDir>/<market>/dayK/<SYMBOL>.parquet. Rewrites are merge-and-replace,
// staged through a temp file so a crash mid-write leaves the old file intact.
type ParquetStore struct {
	DataDir string

	log *slog.Logger
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{
		DataDir: dataDir,
		log:     slog.Default().With("store", "parquet"),
	}
}

// barRecord is the Parquet on-disk schema for daily bars.
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// WriteSeries merges the series into the symbol's Parquet file.
func (s *ParquetStore) WriteSeries(_ context.Context, market domain.Market, series domain.PriceSeries) error {
	if len(series) == 0 {
		return nil
	}
	symbol := series[0].Symbol

	incoming := make([]barRecord, 0, len(series))
	for _, b := range series {
		if b.Symbol != symbol {
			return fmt.Errorf("mixed symbols in series: %q and %q", symbol, b.Symbol)
		}
		incoming = append(incoming, barRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	path := s.seriesPath(market, symbol)
	existing, err := readParquetFile[barRecord](path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		// An unreadable file loses its history to the rewrite; say so
		// instead of replacing it silently.
		s.log.Warn("discarding unreadable series file",
			"market", string(market), "symbol", symbol, "err", err)
		existing = nil
	}
	merged := mergeBarRecords(existing, incoming)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing series for %s/%s: %w", market, symbol, err)
	}
	return nil
}

// ReadSeries reads stored bars for the symbol within the range.
func (s *ParquetStore) ReadSeries(_ context.Context, market domain.Market, symbol string, rng domain.DateRange) (domain.PriceSeries, error) {
	records, err := readParquetFile[barRecord](s.seriesPath(market, symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading series for %s/%s: %w", market, symbol, err)
	}

	var series domain.PriceSeries
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if ts.Before(rng.Start) || ts.After(rng.End) {
			continue
		}
		series = append(series, domain.Bar{
			Symbol:    r.Symbol,
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return series, nil
}

// ListSymbols lists all symbols that have stored data for the market.
func (s *ParquetStore) ListSymbols(_ context.Context, market domain.Market) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(market), "dayK")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(name, ".parquet"))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// seriesPath returns the Parquet path for one symbol's daily history.
// Layout: <dataDir>/<market>/dayK/<SYMBOL>.parquet
func (s *ParquetStore) seriesPath(market domain.Market, symbol string) string {
	return filepath.Join(s.DataDir, string(market), "dayK", strings.ToUpper(symbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates records by timestamp, preferring incoming
// over existing. The result is sorted by timestamp ascending.
func mergeBarRecords(existing, incoming []barRecord) []barRecord {
	seen := make(map[int64]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
