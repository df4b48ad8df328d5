package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockmatrix/internal/domain"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches US daily bars from the Alpaca market-data API.
type AlpacaSource struct {
	client *marketdata.Client
}

// NewAlpacaSource creates an AlpacaSource with the given credentials. An
// empty dataURL uses the SDK default endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
	}
}

// Name returns "alpaca".
func (a *AlpacaSource) Name() string { return "alpaca" }

// FetchHistory fetches daily bars for the symbol within the range.
func (a *AlpacaSource) FetchHistory(ctx context.Context, symbol string, rng domain.DateRange) (domain.PriceSeries, error) {
	if ctx.Err() != nil {
		return nil, NewTransient(symbol, ctx.Err())
	}

	bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     rng.Start,
		End:       rng.End,
		Feed:      "iex",
	})
	if err != nil {
		if isAlpacaPermanent(err) {
			return nil, NewPermanent(symbol, err)
		}
		return nil, NewTransient(symbol, err)
	}
	if len(bars) == 0 {
		return nil, NewTransient(symbol, fmt.Errorf("empty payload"))
	}

	series := make(domain.PriceSeries, 0, len(bars))
	for _, b := range bars {
		series = append(series, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}
	return series, nil
}

// isAlpacaPermanent classifies API errors that retrying cannot fix: unknown
// symbols and rejected queries.
func isAlpacaPermanent(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "404") ||
		strings.Contains(msg, "invalid symbol") ||
		strings.Contains(msg, "42210000")
}
