// Package main provides the batch pipeline entry point.
// Executes: fetch → filter → price → enrich → aggregate → write → commit.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phoenix-pipeline/internal/config"
	"phoenix-pipeline/internal/enrich"
	"phoenix-pipeline/internal/observability"
	"phoenix-pipeline/internal/output"
	"phoenix-pipeline/internal/pipeline"
	"phoenix-pipeline/internal/pricing"
	"phoenix-pipeline/internal/ratelimit"
	"phoenix-pipeline/internal/storage"
	"phoenix-pipeline/internal/storage/clickhouse"
	"phoenix-pipeline/internal/storage/file"
	"phoenix-pipeline/internal/storage/migrations"
	pgstore "phoenix-pipeline/internal/storage/postgres"
	"phoenix-pipeline/internal/subgraph"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	subgraphURL := flag.String("subgraph-url", "", "GraphQL subgraph endpoint (overrides config)")
	window := flag.Duration("window", 0, "Trailing time window to fetch (overrides config)")
	batchSize := flag.Int("batch-size", 0, "Records per subgraph page (overrides config)")
	maxResults := flag.Int("max-results", 0, "Cap on fetched records, 0 = unlimited")
	topN := flag.Int("top-n", 0, "Keep only the top N pairs in the summary, 0 = all")
	outputDir := flag.String("output-dir", "", "Output directory (overrides config)")
	statePath := flag.String("state-path", "", "State file path (overrides config, file backend)")
	apiKey := flag.String("api-key", "", "Price API key (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[pipeline] ", log.LstdFlags)

	// Load config, then apply flag overrides
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatalf("Config error: %v", err)
		}
		cfg = loaded
	}
	applyOverrides(cfg, *subgraphURL, *window, *batchSize, *maxResults, *topN, *outputDir, *statePath, *apiKey, *metricsAddr)

	// Start metrics server if enabled
	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	result, err := run(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Pipeline failed: %v", err)
	}
	if result.EarlyExit {
		logger.Printf("Nothing to do (early exit in %s)", result.Duration.Round(time.Millisecond))
	}
}

// run wires the configured components and executes one batch run.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger) (*pipeline.RunResult, error) {
	// State backend
	var state storage.StateStore
	switch cfg.State.Backend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.State.PostgresDSN)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, err
		}
		state = pgstore.NewStateStore(pool, logger)
	default:
		state = file.NewStateStore(cfg.State.Path, file.WithLogger(logger))
	}

	// Optional warehouse sink
	var sink storage.SwapSink
	if cfg.Warehouse.Enabled {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Warehouse.DSN)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		sink = clickhouse.NewSwapSink(conn)
	}

	// Fetch and price clients
	fetcher := subgraph.NewClient(cfg.Subgraph.URL,
		subgraph.WithTimeout(cfg.Subgraph.Timeout),
		subgraph.WithLogger(logger),
	)

	priceOpts := []pricing.ClientOption{
		pricing.WithTimeout(cfg.Prices.Timeout),
		pricing.WithRateLimiter(ratelimit.New(cfg.Prices.RateLimit.MaxRequests, cfg.Prices.RateLimit.Window)),
		pricing.WithLogger(logger),
	}
	if cfg.Prices.APIKey != "" {
		priceOpts = append(priceOpts, pricing.WithAPIKey(cfg.Prices.APIKey))
	}
	prices := pricing.NewClient(cfg.Prices.BaseURL, priceOpts...)

	p, err := pipeline.New(pipeline.Options{
		Fetcher:    fetcher,
		Prices:     prices,
		Enricher:   enrich.NewEngine(logger),
		State:      state,
		Writer:     output.NewWriter(logger),
		Sink:       sink,
		Window:     cfg.Pipeline.Window,
		BatchSize:  cfg.Pipeline.BatchSize,
		MaxResults: cfg.Pipeline.MaxResults,
		TopN:       cfg.Pipeline.TopN,
		Currency:   cfg.Prices.Currency,
		OutputDir:  cfg.Output.Dir,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return p.Run(ctx)
}

// applyOverrides copies non-zero flag values over the loaded config.
func applyOverrides(cfg *config.Config, subgraphURL string, window time.Duration, batchSize, maxResults, topN int, outputDir, statePath, apiKey, metricsAddr string) {
	if subgraphURL != "" {
		cfg.Subgraph.URL = subgraphURL
	}
	if window > 0 {
		cfg.Pipeline.Window = window
	}
	if batchSize > 0 {
		cfg.Pipeline.BatchSize = batchSize
	}
	if maxResults > 0 {
		cfg.Pipeline.MaxResults = maxResults
	}
	if topN > 0 {
		cfg.Pipeline.TopN = topN
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if statePath != "" {
		cfg.State.Path = statePath
	}
	if apiKey != "" {
		cfg.Prices.APIKey = apiKey
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
}
