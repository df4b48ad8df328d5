// Package analyze turns acquired price series into the 3x3 return
// distribution matrix: Horizon (week/month/year) crossed with PricePoint
// (high/close/low), each cell holding 10%-wide return buckets.
package analyze

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"stockmatrix/internal/domain"
)

// ---------------------------------------------------------------------------
// Axes
// ---------------------------------------------------------------------------

// Horizon is the time window over which a return is measured.
type Horizon int

const (
	Week Horizon = iota
	Month
	Year
)

// Horizons lists the matrix's row axis in order.
var Horizons = []Horizon{Week, Month, Year}

// String returns the horizon label.
func (h Horizon) String() string {
	switch h {
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	}
	return fmt.Sprintf("Horizon(%d)", int(h))
}

// Start returns the base date for a return measured at referenceDate:
// the reference date shifted back by one calendar week, month, or year.
func (h Horizon) Start(referenceDate time.Time) time.Time {
	switch h {
	case Week:
		return referenceDate.AddDate(0, 0, -7)
	case Month:
		return referenceDate.AddDate(0, -1, 0)
	default:
		return referenceDate.AddDate(-1, 0, 0)
	}
}

// PricePoint selects which session price anchors the return calculation.
type PricePoint int

const (
	High PricePoint = iota
	Close
	Low
)

// PricePoints lists the matrix's column axis in order.
var PricePoints = []PricePoint{High, Close, Low}

// String returns the price point label.
func (p PricePoint) String() string {
	switch p {
	case High:
		return "high"
	case Close:
		return "close"
	case Low:
		return "low"
	}
	return fmt.Sprintf("PricePoint(%d)", int(p))
}

// Select extracts the price point's field from a bar.
func (p PricePoint) Select(b domain.Bar) float64 {
	switch p {
	case High:
		return b.High
	case Low:
		return b.Low
	default:
		return b.Close
	}
}

// ---------------------------------------------------------------------------
// Binning
// ---------------------------------------------------------------------------

// Bucket bounds. Buckets are 10 percentage points wide; returns beyond
// either tail are clamped into the edge bucket, keeping the matrix a
// fixed 21 buckets wide.
const (
	BucketWidth = 10.0
	MinBucket   = -10 // everything at or below -100%
	MaxBucket   = 10  // everything at or above +100%
)

// ErrIneligible marks a symbol that lacks the records needed for one
// (horizon, price point) cell. It is an exclusion, not a failure: the
// symbol may still be eligible for other cells.
var ErrIneligible = errors.New("series ineligible for horizon")

// Return computes the percentage return of the price point over the
// horizon ending at referenceDate. The current price comes from the most
// recent record at or before referenceDate; the base price from the most
// recent record at or before the horizon start. Either record missing, or
// a non-positive base price, yields ErrIneligible.
func Return(series domain.PriceSeries, referenceDate time.Time, h Horizon, p PricePoint) (float64, error) {
	current, ok := series.LatestOnOrBefore(referenceDate)
	if !ok {
		return 0, fmt.Errorf("no record at or before %s: %w", referenceDate.Format("2006-01-02"), ErrIneligible)
	}
	base, ok := series.LatestOnOrBefore(h.Start(referenceDate))
	if !ok {
		return 0, fmt.Errorf("no record at or before %s start: %w", h, ErrIneligible)
	}
	basePrice := p.Select(base)
	if basePrice <= 0 {
		return 0, fmt.Errorf("non-positive base price %.4f: %w", basePrice, ErrIneligible)
	}
	return (p.Select(current) - basePrice) / basePrice * 100, nil
}

// Bin assigns a series to a return bucket for one (horizon, price point)
// pair, or ErrIneligible. Floor semantics: a return of exactly +10.0%
// lands in the bucket starting at 10, never the one below, so boundary
// ties resolve identically across all cells.
func Bin(series domain.PriceSeries, referenceDate time.Time, h Horizon, p PricePoint) (int, error) {
	pct, err := Return(series, referenceDate, h, p)
	if err != nil {
		return 0, err
	}
	return bucketFor(pct), nil
}

func bucketFor(pct float64) int {
	idx := int(floorDiv(pct, BucketWidth))
	if idx < MinBucket {
		return MinBucket
	}
	if idx > MaxBucket {
		return MaxBucket
	}
	return idx
}

// floorDiv is floor(x/w) as a float, correct for negative x where plain
// integer truncation would round toward zero.
func floorDiv(x, w float64) float64 {
	q := x / w
	f := float64(int(q))
	if q < 0 && q != f {
		f--
	}
	return f
}

// ---------------------------------------------------------------------------
// Matrix
// ---------------------------------------------------------------------------

// Cell is one (horizon, price point) distribution: bucket index to the
// sorted symbols that landed there. Sample counts the eligible symbols.
type Cell struct {
	Buckets map[int][]string
	Sample  int
}

// Count returns the number of symbols in one bucket.
func (c *Cell) Count(bucket int) int { return len(c.Buckets[bucket]) }

// DistributionMatrix is the full 3x3 grid for one market run. Built fresh
// per run, read-only afterward.
type DistributionMatrix struct {
	Market        domain.Market
	ReferenceDate time.Time
	Cells         [3][3]Cell
}

// Cell returns the distribution for one (horizon, price point) pair.
func (m *DistributionMatrix) Cell(h Horizon, p PricePoint) *Cell {
	return &m.Cells[h][p]
}

// Aggregate bins every symbol's series into all nine cells. Ineligible
// symbols are skipped per cell. The result is deterministic: identical
// input always yields an identical matrix, with each bucket's symbol list
// sorted.
func Aggregate(seriesBySymbol map[string]domain.PriceSeries, market domain.Market, referenceDate time.Time) *DistributionMatrix {
	m := &DistributionMatrix{Market: market, ReferenceDate: referenceDate}

	symbols := make([]string, 0, len(seriesBySymbol))
	for sym := range seriesBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, h := range Horizons {
		for _, p := range PricePoints {
			cell := &m.Cells[h][p]
			cell.Buckets = make(map[int][]string)
			for _, sym := range symbols {
				bucket, err := Bin(seriesBySymbol[sym], referenceDate, h, p)
				if err != nil {
					continue
				}
				cell.Buckets[bucket] = append(cell.Buckets[bucket], sym)
				cell.Sample++
			}
		}
	}
	return m
}

// BucketLabel renders a bucket index as its percentage interval, with the
// clamped tails marked open-ended.
func BucketLabel(bucket int) string {
	switch {
	case bucket <= MinBucket:
		return fmt.Sprintf("<%d%%", (MinBucket+1)*int(BucketWidth))
	case bucket >= MaxBucket:
		return fmt.Sprintf(">=%d%%", MaxBucket*int(BucketWidth))
	default:
		lo := bucket * int(BucketWidth)
		return fmt.Sprintf("%d%%~%d%%", lo, lo+int(BucketWidth))
	}
}
