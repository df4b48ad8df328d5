// Package manifest tracks per-symbol fetch progress for one market run so an
// interrupted run can resume without re-fetching completed symbols.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockmatrix/internal/domain"
)

// ErrCorruptManifest signals that persisted manifest state could not be
// decoded. Callers log it and proceed from an empty manifest; the corruption
// is never silently dropped.
var ErrCorruptManifest = errors.New("corrupt manifest")

// Status is the lifecycle state of one symbol within a run.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed-permanent"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Entry records the fetch outcome for a single symbol. Created on first
// encounter, updated after every attempt, never deleted mid-run.
type Entry struct {
	Symbol      string
	Status      Status
	LastAttempt time.Time
	Retries     int
	Reason      string
}

// Store is the durable persistence behind a manifest. Implementations must
// persist RecordAttempt before returning and serialize concurrent writers.
type Store interface {
	// Load reads prior persisted state for a run key. It returns an empty
	// manifest when none exists and ErrCorruptManifest (wrapped) when the
	// persisted form cannot be decoded.
	Load(ctx context.Context, runKey string) (*Manifest, error)

	// RecordAttempt idempotently upserts an entry for the run key.
	RecordAttempt(ctx context.Context, runKey string, e Entry) error

	// Reset deletes all persisted entries for the run key. Called when a
	// corrupt manifest forces a fresh start, so damaged rows cannot
	// resurface on later loads of the same run.
	Reset(ctx context.Context, runKey string) error
}

// Manifest is the in-memory view of one market-run's fetch progress. It is
// owned by a single coordinator; the coordinator serialises mutation.
type Manifest struct {
	RunKey  string
	Entries map[string]Entry
}

// New returns an empty manifest for the given run key.
func New(runKey string) *Manifest {
	return &Manifest{
		RunKey:  runKey,
		Entries: make(map[string]Entry),
	}
}

// Set stores or replaces the entry for its symbol.
func (m *Manifest) Set(e Entry) {
	m.Entries[e.Symbol] = e
}

// Entry returns the entry for a symbol and whether one exists.
func (m *Manifest) Entry(symbol string) (Entry, bool) {
	e, ok := m.Entries[symbol]
	return e, ok
}

// PendingSymbols returns the listings from universe not yet marked success,
// preserving universe order. Failed-permanent symbols from a prior
// interrupted run are included again: a new run gives them a fresh retry
// budget.
func (m *Manifest) PendingSymbols(universe []domain.Listing) []domain.Listing {
	var pending []domain.Listing
	for _, l := range universe {
		if e, ok := m.Entries[l.Symbol]; ok && e.Status == StatusSuccess {
			continue
		}
		pending = append(pending, l)
	}
	return pending
}

// SuccessCount returns the number of entries marked success.
func (m *Manifest) SuccessCount() int {
	return m.countStatus(StatusSuccess)
}

// FailedCount returns the number of entries marked failed-permanent.
func (m *Manifest) FailedCount() int {
	return m.countStatus(StatusFailed)
}

// TotalCount returns the number of recorded entries.
func (m *Manifest) TotalCount() int {
	return len(m.Entries)
}

func (m *Manifest) countStatus(s Status) int {
	n := 0
	for _, e := range m.Entries {
		if e.Status == s {
			n++
		}
	}
	return n
}

// RunKeyFor builds the canonical run key for a market and reference date.
func RunKeyFor(market domain.Market, referenceDate time.Time) string {
	return fmt.Sprintf("%s/%s", market, referenceDate.Format("2006-01-02"))
}
