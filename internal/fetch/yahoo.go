package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockmatrix/internal/domain"
)

// Compile-time interface check.
var _ Source = (*YahooSource)(nil)

const yahooChartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooSource fetches daily bars from the Yahoo Finance chart API. It serves
// every market except US-via-Alpaca, translating local symbols into Yahoo's
// suffixed form.
type YahooSource struct {
	Client  *http.Client
	BaseURL string
	Market  domain.Market
}

// NewYahooSource creates a YahooSource for the given market.
func NewYahooSource(market domain.Market) *YahooSource {
	return &YahooSource{
		Client:  &http.Client{Timeout: 20 * time.Second},
		BaseURL: yahooChartBaseURL,
		Market:  market,
	}
}

// Name returns "yahoo".
func (y *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure of the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchHistory fetches daily bars for the symbol within the range.
func (y *YahooSource) FetchHistory(ctx context.Context, symbol string, rng domain.DateRange) (domain.PriceSeries, error) {
	yahooSym := YahooSymbol(y.Market, symbol)
	u := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d",
		y.BaseURL, url.PathEscape(yahooSym), rng.Start.Unix(), rng.End.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, NewPermanent(symbol, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.Client.Do(req)
	if err != nil {
		return nil, NewTransient(symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransient(symbol, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown or delisted symbol; retrying will not help.
		return nil, NewPermanent(symbol, fmt.Errorf("symbol not found"))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewTransient(symbol, fmt.Errorf("rate limited"))
	case resp.StatusCode != http.StatusOK:
		return nil, NewTransient(symbol, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body)))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, NewPermanent(symbol, fmt.Errorf("decoding chart response: %w", err))
	}
	if chart.Chart.Error != nil {
		return nil, NewPermanent(symbol, fmt.Errorf("chart api error %s: %s",
			chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, NewPermanent(symbol, fmt.Errorf("response missing quote data"))
	}

	res := chart.Chart.Result[0]
	if len(res.Timestamp) == 0 {
		// Empty payloads are retried; Yahoo intermittently returns them
		// under load for symbols that do have data.
		return nil, NewTransient(symbol, fmt.Errorf("empty payload"))
	}

	quote := res.Indicators.Quote[0]
	series := make(domain.PriceSeries, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		// Sessions with null quotes (halts) are skipped.
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bar := domain.Bar{
			Symbol:    symbol,
			Timestamp: time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Close:     *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			bar.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			bar.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		series = append(series, bar)
	}
	if len(series) == 0 {
		return nil, NewTransient(symbol, fmt.Errorf("payload had no usable sessions"))
	}
	return series, nil
}

func truncate(b []byte) string {
	const max = 120
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

// YahooSymbol translates a market-local symbol into Yahoo Finance notation.
// Symbols that already carry an exchange suffix pass through unchanged.
// Unsuffixed symbols map to the market's main board (TWSE .TW, KOSPI .KS);
// listings on a secondary board (TPEx .TWO, KOSDAQ .KQ) must carry their
// suffix in the universe file.
func YahooSymbol(market domain.Market, symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	switch market {
	case domain.MarketTW:
		return symbol + ".TW"
	case domain.MarketHK:
		// Yahoo wants zero-padded 4-digit Hong Kong codes.
		code := symbol
		for len(code) < 4 {
			code = "0" + code
		}
		return code + ".HK"
	case domain.MarketCN:
		// Shanghai listings start with 6, the rest trade in Shenzhen.
		if strings.HasPrefix(symbol, "6") {
			return symbol + ".SS"
		}
		return symbol + ".SZ"
	case domain.MarketJP:
		return symbol + ".T"
	case domain.MarketKR:
		return symbol + ".KS"
	}
	return symbol
}
