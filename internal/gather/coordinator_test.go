package gather

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"stockmatrix/internal/domain"
	"stockmatrix/internal/fetch"
	"stockmatrix/internal/manifest"
)

// scriptedSource counts fetches per symbol and fails the configured set.
type scriptedSource struct {
	mu    sync.Mutex
	calls map[string]int
	times []time.Time
	fail  map[string]bool
	block chan struct{} // if non-nil, every fetch waits on it
}

func newScriptedSource(fail ...string) *scriptedSource {
	s := &scriptedSource{calls: make(map[string]int), fail: make(map[string]bool)}
	for _, sym := range fail {
		s.fail[sym] = true
	}
	return s
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) FetchHistory(ctx context.Context, symbol string, _ domain.DateRange) (domain.PriceSeries, error) {
	s.mu.Lock()
	s.calls[symbol]++
	s.times = append(s.times, time.Now())
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail[symbol] {
		return nil, fetch.NewPermanent(symbol, fmt.Errorf("no data"))
	}
	return domain.PriceSeries{{
		Symbol:    symbol,
		Timestamp: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		Open:      10, High: 11, Low: 9, Close: 10,
	}}, nil
}

func (s *scriptedSource) callCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[symbol]
}

func (s *scriptedSource) callTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.times...)
}

// nullBarStore accepts every write and returns nothing.
type nullBarStore struct{}

func (nullBarStore) WriteSeries(context.Context, domain.Market, domain.PriceSeries) error {
	return nil
}

func (nullBarStore) ReadSeries(context.Context, domain.Market, string, domain.DateRange) (domain.PriceSeries, error) {
	return nil, nil
}

func (nullBarStore) ListSymbols(context.Context, domain.Market) ([]string, error) {
	return nil, nil
}

func listings(n int) []domain.Listing {
	out := make([]domain.Listing, n)
	for i := range out {
		out[i] = domain.Listing{Symbol: fmt.Sprintf("SYM%03d", i)}
	}
	return out
}

func testCoordinator(src fetch.Source, ms manifest.Store, threshold float64) *Coordinator {
	rng := domain.DateRange{
		Start: time.Date(2024, 8, 28, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
	}
	return NewCoordinator(src, nullBarStore{}, ms, domain.MarketUS, "us/2026-08-28", rng, threshold, 3, 4, 0, time.Millisecond)
}

func TestCoordinatorCompleteRun(t *testing.T) {
	src := newScriptedSource()
	ms := manifest.NewMemoryStore()
	c := testCoordinator(src, ms, 0.95)

	res, err := c.Run(context.Background(), listings(20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Completed != 20 || res.Failed != 0 {
		t.Errorf("result = %+v, want 20 completed, 0 failed", res)
	}
	for i := 0; i < 20; i++ {
		sym := fmt.Sprintf("SYM%03d", i)
		if got := src.callCount(sym); got != 1 {
			t.Errorf("%s fetched %d times, want 1", sym, got)
		}
	}
}

func TestCoordinatorResumeSkipsCompleted(t *testing.T) {
	ctx := context.Background()
	ms := manifest.NewMemoryStore()

	// A prior run already completed the first 15 symbols.
	for i := 0; i < 15; i++ {
		e := manifest.Entry{
			Symbol:      fmt.Sprintf("SYM%03d", i),
			Status:      manifest.StatusSuccess,
			LastAttempt: time.Now().UTC(),
			Retries:     1,
		}
		if err := ms.RecordAttempt(ctx, "us/2026-08-28", e); err != nil {
			t.Fatal(err)
		}
	}

	src := newScriptedSource()
	c := testCoordinator(src, ms, 0.95)

	res, err := c.Run(ctx, listings(20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Completed != 20 {
		t.Errorf("completed = %d, want 20", res.Completed)
	}
	for i := 0; i < 15; i++ {
		sym := fmt.Sprintf("SYM%03d", i)
		if got := src.callCount(sym); got != 0 {
			t.Errorf("%s re-fetched %d times after a recorded success", sym, got)
		}
	}
	for i := 15; i < 20; i++ {
		sym := fmt.Sprintf("SYM%03d", i)
		if got := src.callCount(sym); got != 1 {
			t.Errorf("%s fetched %d times, want 1", sym, got)
		}
	}
}

func TestCoordinatorThreshold(t *testing.T) {
	t.Run("94 of 100 fails", func(t *testing.T) {
		var fail []string
		for i := 94; i < 100; i++ {
			fail = append(fail, fmt.Sprintf("SYM%03d", i))
		}
		src := newScriptedSource(fail...)
		c := testCoordinator(src, manifest.NewMemoryStore(), 0.95)

		_, err := c.Run(context.Background(), listings(100))
		var te *ThresholdError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want *ThresholdError", err)
		}
		if te.Completed != 94 || te.Universe != 100 {
			t.Errorf("error counts = %d/%d, want 94/100", te.Completed, te.Universe)
		}
		if len(te.Failed) != 6 {
			t.Errorf("failed list has %d symbols, want 6", len(te.Failed))
		}
		for _, f := range te.Failed {
			if f.Reason == "" {
				t.Errorf("failed symbol %s has no reason", f.Symbol)
			}
		}
	})

	t.Run("95 of 100 passes", func(t *testing.T) {
		var fail []string
		for i := 95; i < 100; i++ {
			fail = append(fail, fmt.Sprintf("SYM%03d", i))
		}
		src := newScriptedSource(fail...)
		c := testCoordinator(src, manifest.NewMemoryStore(), 0.95)

		res, err := c.Run(context.Background(), listings(100))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Completed != 95 || res.Failed != 5 {
			t.Errorf("result = %+v, want 95 completed, 5 failed", res)
		}
	})
}

func TestCoordinatorCancellation(t *testing.T) {
	src := newScriptedSource()
	src.block = make(chan struct{})
	ms := manifest.NewMemoryStore()
	c := testCoordinator(src, ms, 0.95)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, listings(50))
		done <- err
	}()

	// Let a few fetches start, then pull the plug.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestCoordinatorCorruptManifestRecovers(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "manifest.db")

	ms, err := manifest.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer ms.Close()

	// Damage the persisted state behind the store's back: a row whose
	// status no reader recognises, for a symbol outside the universe.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(
		`INSERT INTO manifest_entries (run_key, symbol, status, last_attempt)
		 VALUES (?, ?, ?, 0)`,
		"us/2026-08-28", "GHOST", "half-done"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	src := newScriptedSource()
	c := testCoordinator(src, ms, 0.95)

	// The fresh start must also survive the final reload: every fetch
	// succeeds, so the run has to come back with a full result.
	res, err := c.Run(ctx, listings(10))
	if err != nil {
		t.Fatalf("Run after corrupt manifest: %v", err)
	}
	if res.Completed != 10 || res.Failed != 0 {
		t.Errorf("result = %+v, want 10 completed, 0 failed", res)
	}

	final, err := ms.Load(ctx, "us/2026-08-28")
	if err != nil {
		t.Fatalf("Load after recovery: %v", err)
	}
	if _, ok := final.Entries["GHOST"]; ok {
		t.Error("damaged entry survived the fresh start")
	}
}

func TestCoordinatorPacesFailedFetches(t *testing.T) {
	const minDelay = 15 * time.Millisecond

	// Every symbol fails permanently, so each fetch is a single attempt
	// and any spacing between calls comes from the coordinator.
	universe := listings(5)
	var fail []string
	for _, l := range universe {
		fail = append(fail, l.Symbol)
	}
	src := newScriptedSource(fail...)

	rng := domain.DateRange{
		Start: time.Date(2024, 8, 28, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
	}
	c := NewCoordinator(src, nullBarStore{}, manifest.NewMemoryStore(), domain.MarketUS,
		"us/2026-08-28", rng, 0, 3, 1, minDelay, 2*minDelay)

	if _, err := c.Run(context.Background(), universe); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := src.callTimes()
	if len(calls) != 5 {
		t.Fatalf("source saw %d calls, want 5", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap < minDelay {
			t.Errorf("gap between calls %d and %d was %v, want >= %v", i-1, i, gap, minDelay)
		}
	}
}

func TestCoordinatorEmptyUniverse(t *testing.T) {
	c := testCoordinator(newScriptedSource(), manifest.NewMemoryStore(), 0.95)
	if _, err := c.Run(context.Background(), nil); err == nil {
		t.Fatal("Run should reject an empty universe")
	}
}

func TestThresholdErrorMessage(t *testing.T) {
	te := &ThresholdError{Universe: 100, Completed: 94, Threshold: 0.95,
		Failed: []FailedSymbol{{Symbol: "AAPL", Reason: "no data"}}}
	msg := te.Error()
	if msg == "" {
		t.Fatal("empty message")
	}
	for _, want := range []string{"94/100", "95.0%", "1 failed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
