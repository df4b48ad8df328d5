// Package domain defines the core types shared across the stockmatrix
// pipeline: markets, listings, daily bars, and price series.
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Markets
// ---------------------------------------------------------------------------

// Market identifies one of the monitored stock markets.
type Market string

const (
	MarketTW Market = "tw"
	MarketUS Market = "us"
	MarketHK Market = "hk"
	MarketCN Market = "cn"
	MarketJP Market = "jp"
	MarketKR Market = "kr"
)

// AllMarkets lists every supported market in pipeline execution order.
var AllMarkets = []Market{MarketTW, MarketUS, MarketHK, MarketCN, MarketJP, MarketKR}

// ParseMarket converts a market identifier string into a Market.
func ParseMarket(s string) (Market, error) {
	for _, m := range AllMarkets {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown market %q", s)
}

// ---------------------------------------------------------------------------
// Universe
// ---------------------------------------------------------------------------

// Listing is one entry of a market's ticker universe.
type Listing struct {
	Symbol string
	Name   string
}

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is a single daily OHLCV bar for one symbol.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// PriceSeries is a sequence of daily bars for one symbol, ordered by
// timestamp ascending. Once handed to the aggregation stage it is read-only.
type PriceSeries []Bar

// Validate checks that the series is non-empty, strictly ascending by date,
// and free of non-positive close prices. A series that fails validation is a
// malformed upstream response and must not be retried.
func (s PriceSeries) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty series")
	}
	for i := range s {
		if s[i].Close <= 0 {
			return fmt.Errorf("non-positive close %.4f at %s", s[i].Close, s[i].Timestamp.Format("2006-01-02"))
		}
		if i > 0 && !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("non-monotonic dates: %s followed by %s",
				s[i-1].Timestamp.Format("2006-01-02"), s[i].Timestamp.Format("2006-01-02"))
		}
	}
	return nil
}

// LatestOnOrBefore returns the most recent bar whose timestamp does not
// exceed t, and whether such a bar exists.
func (s PriceSeries) LatestOnOrBefore(t time.Time) (Bar, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if !s[i].Timestamp.After(t) {
			return s[i], true
		}
	}
	return Bar{}, false
}

// DateRange represents an inclusive time range for history fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}
