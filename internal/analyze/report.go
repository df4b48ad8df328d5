package analyze

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"stockmatrix/internal/domain"
)

// ---------------------------------------------------------------------------
// Chart links
// ---------------------------------------------------------------------------

// ChartURL returns the market's chart-platform page for a symbol, used to
// make report entries clickable.
func ChartURL(market domain.Market, symbol string) string {
	switch market {
	case domain.MarketUS:
		return "https://stockcharts.com/sc3/ui/?s=" + symbol
	case domain.MarketHK:
		code := strings.TrimSuffix(symbol, ".HK")
		for len(code) < 5 {
			code = "0" + code
		}
		return "https://www.aastocks.com/tc/stocks/quote/stocktrend.aspx?symbol=" + code
	case domain.MarketCN:
		prefix := "sz"
		if strings.HasPrefix(symbol, "6") {
			prefix = "sh"
		}
		return fmt.Sprintf("https://quote.eastmoney.com/%s%s.html", prefix, strings.TrimSuffix(strings.TrimSuffix(symbol, ".SS"), ".SZ"))
	case domain.MarketJP:
		ric := symbol
		if !strings.Contains(strings.ToUpper(ric), ".T") {
			ric = strings.SplitN(ric, ".", 2)[0] + ".T"
		}
		return "https://www.rakuten-sec.co.jp/web/market/search/quote.html?ric=" + ric
	case domain.MarketKR:
		return "https://finance.naver.com/item/main.naver?code=" + strings.SplitN(symbol, ".", 2)[0]
	default:
		return fmt.Sprintf("https://www.wantgoo.com/stock/%s/technical-chart", strings.SplitN(symbol, ".", 2)[0])
	}
}

// ---------------------------------------------------------------------------
// Bucket report
// ---------------------------------------------------------------------------

// ReportEntry is one symbol's placement in a report row.
type ReportEntry struct {
	Symbol string
	Name   string
	Return float64
}

// ReportRow is one non-empty bucket with its member symbols.
type ReportRow struct {
	Bucket  int
	Entries []ReportEntry
}

// Report is a per-horizon company listing: every non-empty bucket with
// counts, percentages, and chart links, plus an extreme section for
// returns at or beyond the top bucket, sorted by return descending.
type Report struct {
	Market     domain.Market
	Horizon    Horizon
	PricePoint PricePoint
	Sample     int
	Rows       []ReportRow
	Extreme    []ReportEntry
}

// BuildReport computes returns for every symbol over one (horizon, price
// point) pair and assembles the bucket listing. Ineligible symbols are
// skipped; names fall back to the symbol when the universe carries none.
func BuildReport(seriesBySymbol map[string]domain.PriceSeries, names map[string]string, market domain.Market, referenceDate time.Time, h Horizon, p PricePoint) *Report {
	r := &Report{Market: market, Horizon: h, PricePoint: p}

	symbols := make([]string, 0, len(seriesBySymbol))
	for sym := range seriesBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	byBucket := make(map[int][]ReportEntry)
	for _, sym := range symbols {
		pct, err := Return(seriesBySymbol[sym], referenceDate, h, p)
		if err != nil {
			continue
		}
		name := names[sym]
		if name == "" {
			name = sym
		}
		e := ReportEntry{Symbol: sym, Name: name, Return: pct}
		r.Sample++
		if bucket := bucketFor(pct); bucket >= MaxBucket {
			// Top movers get their own section, sorted by return.
			r.Extreme = append(r.Extreme, e)
		} else {
			byBucket[bucket] = append(byBucket[bucket], e)
		}
	}

	buckets := make([]int, 0, len(byBucket))
	for b := range byBucket {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	for _, b := range buckets {
		r.Rows = append(r.Rows, ReportRow{Bucket: b, Entries: byBucket[b]})
	}
	sort.Slice(r.Extreme, func(i, j int) bool { return r.Extreme[i].Return > r.Extreme[j].Return })

	return r
}

// Text renders the report as a plain-text table.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s | %-14s | companies\n", "return", "count (share)")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, row := range r.Rows {
		syms := make([]string, len(row.Entries))
		for i, e := range row.Entries {
			syms[i] = fmt.Sprintf("%s(%s)", e.Symbol, e.Name)
		}
		fmt.Fprintf(&b, "%-12s | %4d (%5.1f%%) | %s\n",
			BucketLabel(row.Bucket), len(row.Entries), r.share(len(row.Entries)), strings.Join(syms, ", "))
	}
	if len(r.Extreme) > 0 {
		syms := make([]string, len(r.Extreme))
		for i, e := range r.Extreme {
			syms[i] = fmt.Sprintf("%s(%s:%.0f%%)", e.Symbol, e.Name, e.Return)
		}
		fmt.Fprintf(&b, "%-12s | %4d (%5.1f%%) | %s\n",
			BucketLabel(MaxBucket), len(r.Extreme), r.share(len(r.Extreme)), strings.Join(syms, ", "))
	}
	return b.String()
}

// HTML renders the report with chart-platform links per company and the
// extreme movers highlighted.
func (r *Report) HTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s | %-14s | companies\n", "return", "count (share)")
	b.WriteString(strings.Repeat("-", 80) + "\n")

	for _, row := range r.Rows {
		links := make([]string, len(row.Entries))
		for i, e := range row.Entries {
			links[i] = fmt.Sprintf(`<a href="%s" style="text-decoration:none; color:#0366d6;">%s(%s)</a>`,
				ChartURL(r.Market, e.Symbol), html.EscapeString(e.Symbol), html.EscapeString(e.Name))
		}
		fmt.Fprintf(&b, "%-12s | %4d (%5.1f%%) | %s\n",
			BucketLabel(row.Bucket), len(row.Entries), r.share(len(row.Entries)), strings.Join(links, ", "))
	}

	if len(r.Extreme) > 0 {
		links := make([]string, len(r.Extreme))
		for i, e := range r.Extreme {
			links[i] = fmt.Sprintf(`<a href="%s" style="text-decoration:none; color:red; font-weight:bold;">%s(%s:%.0f%%)</a>`,
				ChartURL(r.Market, e.Symbol), html.EscapeString(e.Symbol), html.EscapeString(e.Name), e.Return)
		}
		fmt.Fprintf(&b, "%-12s | %4d (%5.1f%%) | %s\n",
			BucketLabel(MaxBucket), len(r.Extreme), r.share(len(r.Extreme)), strings.Join(links, ", "))
	}
	return b.String()
}

func (r *Report) share(n int) float64 {
	if r.Sample == 0 {
		return 0
	}
	return float64(n) / float64(r.Sample) * 100
}
