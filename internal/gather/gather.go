package gather

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run executes one gathering pass, returning when the work completes
	// or ctx is cancelled.
	Run(ctx context.Context) error
}

// RunResult summarizes a completed acquisition run that met its
// completion threshold.
type RunResult struct {
	Universe  int // symbols in the universe
	Completed int // symbols with a success entry
	Failed    int // symbols marked failed-permanent
}

// FailedSymbol pairs a symbol with the reason its acquisition gave up.
type FailedSymbol struct {
	Symbol string
	Reason string
}

// ThresholdError reports a run whose completion ratio fell below the
// configured threshold. It is fatal for the run: no aggregation should
// be attempted on the partial dataset.
type ThresholdError struct {
	Universe  int
	Completed int
	Threshold float64
	Failed    []FailedSymbol
}

// Error implements the error interface.
func (e *ThresholdError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "completion %d/%d (%.1f%%) below threshold %.1f%%",
		e.Completed, e.Universe, e.Ratio()*100, e.Threshold*100)
	if n := len(e.Failed); n > 0 {
		fmt.Fprintf(&b, "; %d failed", n)
	}
	return b.String()
}

// Ratio returns the completion ratio for the run.
func (e *ThresholdError) Ratio() float64 {
	if e.Universe == 0 {
		return 0
	}
	return float64(e.Completed) / float64(e.Universe)
}

// sortFailed orders failed symbols lexicographically for stable reporting.
func sortFailed(failed []FailedSymbol) {
	sort.Slice(failed, func(i, j int) bool { return failed[i].Symbol < failed[j].Symbol })
}
