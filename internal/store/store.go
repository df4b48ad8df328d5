// Package store persists validated daily price series per market.
package store

import (
	"context"

	"stockmatrix/internal/domain"
)

// BarStore persists and retrieves daily price history. Ownership of a series
// transfers to the store on write; callers must not mutate it afterwards.
type BarStore interface {
	// WriteSeries persists one symbol's series under the given market,
	// merging with any previously stored bars for that symbol.
	WriteSeries(ctx context.Context, market domain.Market, series domain.PriceSeries) error

	// ReadSeries returns the stored bars for the symbol within the range,
	// ordered by date ascending. A symbol with no stored data yields an
	// empty series and no error.
	ReadSeries(ctx context.Context, market domain.Market, symbol string, rng domain.DateRange) (domain.PriceSeries, error)

	// ListSymbols returns all distinct symbols stored for the market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}
