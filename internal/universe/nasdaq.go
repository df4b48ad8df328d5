package universe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"stockmatrix/internal/domain"
)

// Compile-time interface check.
var _ Lister = (*NasdaqLister)(nil)

const (
	nasdaqListedURL = "https://www.nasdaqtrader.com/dynamic/symdir/nasdaqlisted.txt"
	otherListedURL  = "https://www.nasdaqtrader.com/dynamic/symdir/otherlisted.txt"
)

// NasdaqLister builds the US common-stock universe from the official
// NASDAQ/NYSE symbol directory files. The parsed list is cached as JSON on
// disk and reused for the rest of the day so repeated runs do not hammer
// the directory endpoints.
type NasdaqLister struct {
	Client    *http.Client
	CachePath string
	log       *slog.Logger

	nasdaqURL string
	otherURL  string
	now       func() time.Time
}

// NewNasdaqLister creates a NasdaqLister caching at cachePath. An empty
// cachePath disables caching.
func NewNasdaqLister(cachePath string) *NasdaqLister {
	return &NasdaqLister{
		Client:    &http.Client{Timeout: 15 * time.Second},
		CachePath: cachePath,
		log:       slog.Default().With("component", "universe-nasdaq"),
		nasdaqURL: nasdaqListedURL,
		otherURL:  otherListedURL,
		now:       time.Now,
	}
}

// ListSymbols returns the filtered US common-stock universe.
func (n *NasdaqLister) ListSymbols(ctx context.Context, _ domain.Market) ([]domain.Listing, error) {
	if cached, ok := n.loadCache(); ok {
		n.log.Info("using same-day universe cache", "path", n.CachePath, "symbols", len(cached))
		return cached, nil
	}

	var listings []domain.Listing

	nasdaq, err := n.fetchDirectory(ctx, n.nasdaqURL)
	if err != nil {
		return nil, fmt.Errorf("%w: nasdaq directory: %v", ErrUnavailable, err)
	}
	listings = append(listings, filterNasdaqListed(nasdaq)...)

	other, err := n.fetchDirectory(ctx, n.otherURL)
	if err != nil {
		return nil, fmt.Errorf("%w: nyse directory: %v", ErrUnavailable, err)
	}
	listings = append(listings, filterOtherListed(other)...)

	if len(listings) == 0 {
		return nil, fmt.Errorf("%w: directories yielded no common stocks", ErrUnavailable)
	}

	listings = dedupeListings(listings)
	n.saveCache(listings)
	return listings, nil
}

func (n *NasdaqLister) fetchDirectory(ctx context.Context, url string) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "File Creation Time") {
			continue
		}
		rows = append(rows, strings.Split(line, "|"))
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("directory has no data rows")
	}
	return rows, nil
}

// excludedNameKeywords marks security names that are not plain common stock.
var excludedNameKeywords = []string{
	"WARRANT", "RIGHTS", "UNIT", "PREFERRED", "DEPOSITARY", "ADR", "FOREIGN", "DEBENTURE",
}

func isCommonStock(name string, isETF bool) bool {
	if isETF {
		return false
	}
	upper := strings.ToUpper(name)
	for _, kw := range excludedNameKeywords {
		if strings.Contains(upper, kw) {
			return false
		}
	}
	return true
}

// filterNasdaqListed extracts common stocks from nasdaqlisted.txt rows:
// Symbol|Security Name|Market Category|Test Issue|Financial Status|Round Lot Size|ETF|NextShares
func filterNasdaqListed(rows [][]string) []domain.Listing {
	idx := headerIndex(rows[0])
	var out []domain.Listing
	for _, row := range rows[1:] {
		sym := field(row, idx, "Symbol")
		name := field(row, idx, "Security Name")
		if sym == "" || field(row, idx, "Test Issue") != "N" {
			continue
		}
		cat := field(row, idx, "Market Category")
		if cat != "Q" && cat != "G" {
			continue
		}
		if !isCommonStock(name, field(row, idx, "ETF") == "Y") {
			continue
		}
		out = append(out, domain.Listing{Symbol: normalizeUSSymbol(sym), Name: name})
	}
	return out
}

// filterOtherListed extracts NYSE common stocks from otherlisted.txt rows:
// ACT Symbol|Security Name|Exchange|CUSIP|ETF|Round Lot Size|Test Issue|NASDAQ Symbol
func filterOtherListed(rows [][]string) []domain.Listing {
	idx := headerIndex(rows[0])
	var out []domain.Listing
	for _, row := range rows[1:] {
		sym := field(row, idx, "NASDAQ Symbol")
		name := field(row, idx, "Security Name")
		if sym == "" || field(row, idx, "Test Issue") != "N" {
			continue
		}
		if field(row, idx, "Exchange") != "N" {
			continue
		}
		if !isCommonStock(name, field(row, idx, "ETF") == "Y") {
			continue
		}
		out = append(out, domain.Listing{Symbol: normalizeUSSymbol(sym), Name: name})
	}
	return out
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeUSSymbol maps directory share-class notation (BRK$A) to the form
// the price sources accept (BRK-A).
func normalizeUSSymbol(sym string) string {
	return strings.ReplaceAll(sym, "$", "-")
}

func dedupeListings(in []domain.Listing) []domain.Listing {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Listing, 0, len(in))
	for _, l := range in {
		if _, ok := seen[l.Symbol]; ok {
			continue
		}
		seen[l.Symbol] = struct{}{}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ---------------------------------------------------------------------------
// Same-day cache
// ---------------------------------------------------------------------------

func (n *NasdaqLister) loadCache() ([]domain.Listing, bool) {
	if n.CachePath == "" {
		return nil, false
	}
	info, err := os.Stat(n.CachePath)
	if err != nil {
		return nil, false
	}
	today := n.now().Format("2006-01-02")
	if info.ModTime().Format("2006-01-02") != today {
		return nil, false
	}

	data, err := os.ReadFile(n.CachePath)
	if err != nil {
		return nil, false
	}
	var listings []domain.Listing
	if err := json.Unmarshal(data, &listings); err != nil || len(listings) == 0 {
		return nil, false
	}
	return listings, true
}

func (n *NasdaqLister) saveCache(listings []domain.Listing) {
	if n.CachePath == "" {
		return
	}
	data, err := json.Marshal(listings)
	if err != nil {
		return
	}
	if err := os.WriteFile(n.CachePath, data, 0o644); err != nil {
		n.log.Warn("writing universe cache failed", "path", n.CachePath, "err", err)
	}
}
