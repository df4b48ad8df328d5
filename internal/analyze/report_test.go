package analyze

import (
	"strings"
	"testing"

	"stockmatrix/internal/domain"
)

func TestChartURL(t *testing.T) {
	cases := []struct {
		market domain.Market
		symbol string
		want   string
	}{
		{domain.MarketUS, "AAPL", "https://stockcharts.com/sc3/ui/?s=AAPL"},
		{domain.MarketHK, "0005.HK", "https://www.aastocks.com/tc/stocks/quote/stocktrend.aspx?symbol=00005"},
		{domain.MarketCN, "600519", "https://quote.eastmoney.com/sh600519.html"},
		{domain.MarketCN, "000001", "https://quote.eastmoney.com/sz000001.html"},
		{domain.MarketJP, "7203.T", "https://www.rakuten-sec.co.jp/web/market/search/quote.html?ric=7203.T"},
		{domain.MarketJP, "7203", "https://www.rakuten-sec.co.jp/web/market/search/quote.html?ric=7203.T"},
		{domain.MarketKR, "005930.KS", "https://finance.naver.com/item/main.naver?code=005930"},
		{domain.MarketTW, "2330.TW", "https://www.wantgoo.com/stock/2330/technical-chart"},
	}
	for _, c := range cases {
		if got := ChartURL(c.market, c.symbol); got != c.want {
			t.Errorf("ChartURL(%s, %s) = %q, want %q", c.market, c.symbol, got, c.want)
		}
	}
}

func TestBuildReport(t *testing.T) {
	series := map[string]domain.PriceSeries{
		"AAA": twoPointSeries("AAA", Week, 100, 105),  // +5%  -> bucket 0
		"BBB": twoPointSeries("BBB", Week, 100, 115),  // +15% -> bucket 1
		"CCC": twoPointSeries("CCC", Week, 100, 320),  // +220% -> extreme
		"DDD": twoPointSeries("DDD", Week, 100, 250),  // +150% -> extreme
		"EEE": flatSeries("EEE", 2, 10),               // ineligible
	}
	names := map[string]string{"AAA": "Alpha Corp", "BBB": "Beta Inc"}

	r := BuildReport(series, names, domain.MarketUS, refDate, Week, Close)

	if r.Sample != 4 {
		t.Errorf("sample = %d, want 4 (EEE ineligible)", r.Sample)
	}
	if len(r.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(r.Rows))
	}
	if r.Rows[0].Bucket != 0 || r.Rows[1].Bucket != 1 {
		t.Errorf("row buckets = %d,%d, want 0,1", r.Rows[0].Bucket, r.Rows[1].Bucket)
	}
	if len(r.Extreme) != 2 {
		t.Fatalf("extreme = %d entries, want 2", len(r.Extreme))
	}
	// Extreme section sorts by return descending.
	if r.Extreme[0].Symbol != "CCC" || r.Extreme[1].Symbol != "DDD" {
		t.Errorf("extreme order = %s,%s, want CCC,DDD", r.Extreme[0].Symbol, r.Extreme[1].Symbol)
	}
	// Missing names fall back to the symbol.
	if r.Extreme[0].Name != "CCC" {
		t.Errorf("name fallback = %q, want CCC", r.Extreme[0].Name)
	}
}

func TestReportText(t *testing.T) {
	series := map[string]domain.PriceSeries{
		"AAA": twoPointSeries("AAA", Week, 100, 105),
		"CCC": twoPointSeries("CCC", Week, 100, 320),
	}
	r := BuildReport(series, nil, domain.MarketTW, refDate, Week, Close)

	text := r.Text()
	for _, want := range []string{"0%~10%", "AAA(AAA)", ">=100%", "CCC(CCC:220%)"} {
		if !strings.Contains(text, want) {
			t.Errorf("text report missing %q:\n%s", want, text)
		}
	}
}

func TestReportHTMLLinks(t *testing.T) {
	series := map[string]domain.PriceSeries{
		"2330.TW": twoPointSeries("2330.TW", Week, 100, 112),
	}
	r := BuildReport(series, map[string]string{"2330.TW": "TSMC"}, domain.MarketTW, refDate, Week, Close)

	html := r.HTML()
	if !strings.Contains(html, `href="https://www.wantgoo.com/stock/2330/technical-chart"`) {
		t.Errorf("html report missing chart link:\n%s", html)
	}
	if !strings.Contains(html, "2330.TW(TSMC)") {
		t.Errorf("html report missing labeled entry:\n%s", html)
	}
}
