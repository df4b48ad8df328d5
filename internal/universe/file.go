package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"stockmatrix/internal/domain"
)

// Compile-time interface check.
var _ Lister = (*FileLister)(nil)

// FileLister reads a market's ticker universe from a reference CSV file with
// a header row and columns symbol,name. Rows keep file order. Symbols on a
// market's secondary board (e.g. TPEx, KOSDAQ) must include their exchange
// suffix; bare symbols are treated as main-board listings downstream.
type FileLister struct {
	Path string
}

// NewFileLister creates a FileLister for the given CSV path.
func NewFileLister(path string) *FileLister {
	return &FileLister{Path: path}
}

// ListSymbols reads and parses the reference CSV.
func (f *FileLister) ListSymbols(_ context.Context, market domain.Market) ([]domain.Listing, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s universe %s: %v", ErrUnavailable, market, f.Path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s universe %s: %v", ErrUnavailable, market, f.Path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: %s universe %s has no data rows", ErrUnavailable, market, f.Path)
	}

	listings := make([]domain.Listing, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		sym := strings.TrimSpace(row[0])
		if sym == "" {
			continue
		}
		name := sym
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			name = strings.TrimSpace(row[1])
		}
		listings = append(listings, domain.Listing{Symbol: sym, Name: name})
	}
	return listings, nil
}
