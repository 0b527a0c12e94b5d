// Package main provides a live swap follower. It subscribes to the subgraph
// over GraphQL websockets, enriches each swap as it arrives, and prints the
// result. Useful for eyeballing a deployment before pointing the batch
// pipeline at it.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phoenix-pipeline/internal/config"
	"phoenix-pipeline/internal/domain"
	"phoenix-pipeline/internal/enrich"
	"phoenix-pipeline/internal/pricing"
	"phoenix-pipeline/internal/ratelimit"
	"phoenix-pipeline/internal/subgraph"
)

func main() {
	// Parse flags
	wsEndpoint := flag.String("ws-endpoint", "", "GraphQL websocket endpoint (wss://...)")
	priceURL := flag.String("price-url", "", "Price API base URL (overrides default)")
	apiKey := flag.String("api-key", "", "Price API key")
	currency := flag.String("currency", "usd", "Price currency")
	refresh := flag.Duration("price-refresh", 5*time.Minute, "How often to refresh prices for seen tokens")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags)

	if *wsEndpoint == "" {
		logger.Fatal("No websocket endpoint specified. Use --ws-endpoint")
	}

	cfg := config.Default()
	if *priceURL != "" {
		cfg.Prices.BaseURL = *priceURL
	}

	priceOpts := []pricing.ClientOption{
		pricing.WithTimeout(cfg.Prices.Timeout),
		pricing.WithRateLimiter(ratelimit.New(cfg.Prices.RateLimit.MaxRequests, cfg.Prices.RateLimit.Window)),
		pricing.WithLogger(logger),
	}
	if *apiKey != "" {
		priceOpts = append(priceOpts, pricing.WithAPIKey(*apiKey))
	}
	prices := pricing.NewClient(cfg.Prices.BaseURL, priceOpts...)
	engine := enrich.NewEngine(logger)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, closing stream...", sig)
		cancel()
	}()

	stream, err := subgraph.NewStream(ctx, *wsEndpoint, nil, logger)
	if err != nil {
		logger.Fatalf("Stream connect failed: %v", err)
	}
	defer stream.Close()

	events, err := stream.Subscribe(ctx)
	if err != nil {
		logger.Fatalf("Subscribe failed: %v", err)
	}
	logger.Printf("Following swaps from %s", *wsEndpoint)

	// Prices are refreshed lazily: a swap involving a token we have not
	// priced recently triggers a batch fetch for everything seen so far.
	priceMap := make(map[string]float64)
	lastRefresh := time.Time{}
	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			logger.Println("Shutdown complete")
			return
		case swap, ok := <-events:
			if !ok {
				logger.Println("Stream closed by server")
				return
			}

			stale := time.Since(lastRefresh) > *refresh
			if _, known := seen[swap.Token0]; !known {
				stale = true
			}
			if _, known := seen[swap.Token1]; !known {
				stale = true
			}
			seen[swap.Token0] = struct{}{}
			seen[swap.Token1] = struct{}{}

			if stale {
				priceMap = prices.FetchPrices(ctx, tokenList(seen), *currency)
				lastRefresh = time.Now()
			}

			enriched, skips := engine.Enrich([]domain.SwapEvent{swap}, priceMap)
			for _, e := range enriched {
				logger.Printf("block=%d pair=%s volume=$%.2f tx=%s",
					e.BlockNumber, e.Pair, e.USDVolume, e.TxHash)
			}
			for _, s := range skips {
				logger.Printf("skipped tx=%s reason=%s", s.TxHash, s.Reason)
			}
		}
	}
}

func tokenList(seen map[string]struct{}) []string {
	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	return tokens
}
