// Package fetch retrieves daily price history from upstream data sources and
// drives the per-symbol retry and manifest bookkeeping.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"stockmatrix/internal/domain"
)

// Source fetches one symbol's daily price history from an upstream provider.
type Source interface {
	// FetchHistory returns the symbol's daily bars within the range, ordered
	// by date ascending. Errors are *Error values classified transient or
	// permanent.
	FetchHistory(ctx context.Context, symbol string, rng domain.DateRange) (domain.PriceSeries, error)

	// Name returns the source identifier.
	Name() string
}

// Kind classifies a fetch failure.
type Kind int

const (
	// Transient failures (timeouts, rate limiting, empty payloads) are
	// retried with jittered spacing.
	Transient Kind = iota
	// Permanent failures (delisted symbol, malformed response) are recorded
	// and never retried within a run.
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// Error is a classified fetch failure for one symbol.
type Error struct {
	Kind   Kind
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Symbol, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a transient fetch failure.
func NewTransient(symbol string, err error) *Error {
	return &Error{Kind: Transient, Symbol: symbol, Err: err}
}

// NewPermanent wraps err as a permanent fetch failure.
func NewPermanent(symbol string, err error) *Error {
	return &Error{Kind: Permanent, Symbol: symbol, Err: err}
}

// IsPermanent reports whether err is a fetch failure classified permanent.
func IsPermanent(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == Permanent
}
