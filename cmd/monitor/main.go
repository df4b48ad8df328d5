package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockmatrix/internal/config"
	"stockmatrix/internal/domain"
	"stockmatrix/internal/manifest"
	"stockmatrix/internal/pipeline"
	"stockmatrix/internal/store"
	"stockmatrix/internal/util"
)

func main() {
	marketFlag := flag.String("market", "all", "market to run (tw|us|hk|cn|jp|kr|all)")
	cfgFlag := flag.String("config", "", "config file path (default config/stockmatrix.yaml)")
	daemon := flag.Bool("daemon", false, "run on each market's cron schedule instead of once")
	flag.Parse()

	cfgPath := *cfgFlag
	if cfgPath == "" {
		cfgPath = "config/stockmatrix.yaml"
		if p := os.Getenv("STOCKMATRIX_CONFIG"); p != "" {
			cfgPath = p
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/stockmatrix-monitor-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	slog.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format))

	markets, err := selectMarkets(*marketFlag)
	if err != nil {
		log.Fatalf("%v", err)
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	ms, err := manifest.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open manifest store: %v", err)
	}
	defer ms.Close()

	pipelines := make([]*pipeline.MarketPipeline, 0, len(markets))
	for _, m := range markets {
		p, err := pipeline.Build(cfg, m, bars, ms)
		if err != nil {
			log.Fatalf("failed to build %s pipeline: %v", m, err)
		}
		pipelines = append(pipelines, p)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *daemon {
		runDaemon(ctx, cfg, pipelines)
		return
	}
	runOnce(ctx, pipelines)
}

// runOnce executes every selected market as an isolated parallel unit and
// exits non-zero if any of them failed.
func runOnce(ctx context.Context, pipelines []*pipeline.MarketPipeline) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, p := range pipelines {
		wg.Add(1)
		go func(p *pipeline.MarketPipeline) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				slog.Error("pipeline failed", "pipeline", p.Name(), "err", err)
				mu.Lock()
				failed = append(failed, p.Name())
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	if len(failed) > 0 {
		log.Fatalf("failed pipelines: %v", failed)
	}
	slog.Info("all pipelines complete", "count", len(pipelines))
}

// runDaemon registers each market's cron schedule and blocks until the
// process is signalled.
func runDaemon(ctx context.Context, cfg *config.Config, pipelines []*pipeline.MarketPipeline) {
	sched := pipeline.NewScheduler()
	for _, p := range pipelines {
		spec := cfg.Market(p.Market).Schedule
		if spec == "" {
			slog.Warn("no schedule configured, skipping", "pipeline", p.Name())
			continue
		}
		if err := sched.Register(ctx, spec, p); err != nil {
			log.Fatalf("failed to register schedule: %v", err)
		}
		slog.Info("registered schedule", "pipeline", p.Name(), "spec", spec)
	}

	sched.Start()
	<-ctx.Done()
	sched.Stop()
}

func selectMarkets(flag string) ([]domain.Market, error) {
	if flag == "all" {
		return domain.AllMarkets, nil
	}
	m, err := domain.ParseMarket(flag)
	if err != nil {
		return nil, err
	}
	return []domain.Market{m}, nil
}
