// Package universe supplies per-market ticker lists for acquisition runs.
package universe

import (
	"context"
	"errors"

	"stockmatrix/internal/domain"
)

// ErrUnavailable signals that a market's ticker list could not be obtained.
// It is fatal for that market's run.
var ErrUnavailable = errors.New("ticker universe unavailable")

// Lister returns the ordered ticker universe for a market. The returned
// slice is immutable for the duration of a run.
type Lister interface {
	ListSymbols(ctx context.Context, market domain.Market) ([]domain.Listing, error)
}
