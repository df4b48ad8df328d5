package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"stockmatrix/internal/config"
	"stockmatrix/internal/domain"
	"stockmatrix/internal/manifest"
)

// manifest-inspect prints the checkpoint state of one acquisition run:
// status counts plus the failed symbols with their recorded reasons, for
// operator follow-up after a partial or threshold-breached run.
func main() {
	marketFlag := flag.String("market", "", "market of the run (tw|us|hk|cn|jp|kr)")
	cfgFlag := flag.String("config", "config/stockmatrix.yaml", "config file path")
	dateFlag := flag.String("date", "", "run date YYYY-MM-DD (default today UTC)")
	failedOnly := flag.Bool("failed", false, "list only failed symbols")
	flag.Parse()

	market, err := domain.ParseMarket(*marketFlag)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.Load(*cfgFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	runDate := time.Now().UTC()
	if *dateFlag != "" {
		runDate, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Fatalf("invalid date %q: %v", *dateFlag, err)
		}
	}
	runKey := manifest.RunKeyFor(market, runDate)

	ms, err := manifest.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open manifest store: %v", err)
	}
	defer ms.Close()

	m, err := ms.Load(context.Background(), runKey)
	if err != nil {
		log.Fatalf("loading %s: %v", runKey, err)
	}

	fmt.Printf("run %s: %d entries, %d success, %d failed\n\n",
		runKey, m.TotalCount(), m.SuccessCount(), m.FailedCount())

	entries := make([]manifest.Entry, 0, len(m.Entries))
	for _, e := range m.Entries {
		if *failedOnly && e.Status != manifest.StatusFailed {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSTATUS\tRETRIES\tLAST ATTEMPT\tREASON")
	for _, e := range entries {
		last := ""
		if !e.LastAttempt.IsZero() {
			last = e.LastAttempt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.Symbol, e.Status, e.Retries, last, e.Reason)
	}
	w.Flush()
}
