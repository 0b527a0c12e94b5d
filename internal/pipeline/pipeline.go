// Package pipeline orchestrates one batch run: fetch, filter, price, enrich,
// aggregate, write, commit state. The run is a linear state machine with an
// early exit when there is nothing to do; state is only advanced after a
// fully successful write so a failed run can be retried verbatim.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"phoenix-pipeline/internal/aggregate"
	"phoenix-pipeline/internal/domain"
	"phoenix-pipeline/internal/enrich"
	"phoenix-pipeline/internal/observability"
	"phoenix-pipeline/internal/pricing"
	"phoenix-pipeline/internal/storage"
	"phoenix-pipeline/internal/subgraph"
)

// Stage identifies a pipeline state.
type Stage string

const (
	StageInit          Stage = "init"
	StageFetching      Stage = "fetching"
	StageFiltering     Stage = "filtering"
	StagePriceFetching Stage = "price-fetching"
	StageEnriching     Stage = "enriching"
	StageAggregating   Stage = "aggregating"
	StageWriting       Stage = "writing"
	StageStateUpdate   Stage = "state-update"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// SwapFetcher fetches ordered swap events.
type SwapFetcher interface {
	FetchSwaps(ctx context.Context, query string, batchSize, maxResults int) ([]domain.SwapEvent, error)
	LatestBlock(ctx context.Context) (int64, error)
}

// PriceFetcher fetches batch token prices.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, identifiers []string, currency string) map[string]float64
	CacheStats() pricing.CacheStats
}

// ArtifactWriter writes hash-gated output artifacts.
type ArtifactWriter interface {
	WriteJSON(path string, data interface{}) (bool, error)
	WriteSummaryCSV(path string, rows []domain.SummaryRow) (bool, error)
}

// Options wires pipeline collaborators and run parameters.
type Options struct {
	Fetcher  SwapFetcher
	Prices   PriceFetcher
	Enricher *enrich.Engine
	State    storage.StateStore
	Writer   ArtifactWriter

	// Sink is optional; when set, enriched swaps and summaries are
	// mirrored into the warehouse after a successful artifact write.
	Sink storage.SwapSink

	// Window is the trailing time window to fetch.
	Window time.Duration
	// BatchSize is records per subgraph page.
	BatchSize int
	// MaxResults caps fetched records; 0 means unlimited.
	MaxResults int
	// TopN truncates the summary; 0 keeps all pairs.
	TopN int
	// Currency for price lookups.
	Currency string
	// OutputDir receives swaps.json and summary.csv.
	OutputDir string

	Logger *log.Logger

	// now is injectable for tests.
	now func() time.Time
}

// RunResult carries run statistics. It is populated on every run, including
// early exits and failures, so operators can tell "nothing to do" from
// "something broke".
type RunResult struct {
	Stage     Stage
	EarlyExit bool
	Duration  time.Duration

	SwapsFetched  int
	SwapsFiltered int // dropped as already processed
	SwapsNew      int
	UniqueTokens  int
	PricesFetched int
	PricesMissing int
	SwapsEnriched int
	SwapsSkipped  int
	Pairs         int

	WroteSwaps   bool
	WroteSummary bool

	LatestBlock        int64
	ChainHead          int64
	LastProcessedBlock int64
}

// Pipeline is the batch run orchestrator.
type Pipeline struct {
	opts   Options
	logger *log.Logger
}

// New creates a pipeline. Fetcher, Prices, Enricher, State and Writer are
// required.
func New(opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil || opts.Prices == nil || opts.Enricher == nil || opts.State == nil || opts.Writer == nil {
		return nil, errors.New("pipeline: missing required collaborator")
	}
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = subgraph.DefaultBatchSize
	}
	if opts.Currency == "" {
		opts.Currency = pricing.DefaultCurrency
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "output"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Pipeline{opts: opts, logger: opts.Logger}, nil
}

// Run executes one batch run. The returned RunResult is non-nil on every
// path; err is non-nil only for fatal stage failures, in which case state is
// left at its last committed value.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := p.opts.now()
	result := &RunResult{Stage: StageInit}
	defer func() {
		result.Duration = p.opts.now().Sub(start)
		p.reportStats(result)
	}()

	p.logger.Printf("Starting pipeline run (window=%s, batchSize=%d)", p.opts.Window, p.opts.BatchSize)

	// Init: load state, build the window query.
	state, err := p.opts.State.Load(ctx)
	if err != nil {
		return p.fail(result, fmt.Errorf("load state: %w", err))
	}
	result.LastProcessedBlock = state.LastProcessedBlock
	p.logger.Printf("State: lastProcessedBlock=%d", state.LastProcessedBlock)

	since := subgraph.SinceTimestamp(p.opts.now(), p.opts.Window)
	query := subgraph.BuildRecentSwapsQuery(since)

	// Fetching.
	result.Stage = StageFetching
	swaps, err := p.opts.Fetcher.FetchSwaps(ctx, query, p.opts.BatchSize, p.opts.MaxResults)
	if err != nil {
		return p.fail(result, fmt.Errorf("fetch swaps: %w", err))
	}
	result.SwapsFetched = len(swaps)

	if len(swaps) == 0 {
		p.logger.Printf("No swaps found in time window, exiting")
		result.Stage = StageDone
		result.EarlyExit = true
		observability.RecordRun("early-exit", p.opts.now().Sub(start).Seconds())
		return result, nil
	}

	result.LatestBlock = storage.MaxBlock(swaps)

	// Indexer head, for lag reporting only. Best effort.
	if head, err := p.opts.Fetcher.LatestBlock(ctx); err != nil {
		p.logger.Printf("Could not fetch indexer head: %v", err)
	} else {
		result.ChainHead = head
		observability.DefaultMetrics.LatestBlockLag.Set(float64(head - state.LastProcessedBlock))
	}

	// Filtering.
	result.Stage = StageFiltering
	newSwaps := storage.FilterNew(swaps, state.LastProcessedBlock)
	result.SwapsNew = len(newSwaps)
	result.SwapsFiltered = len(swaps) - len(newSwaps)

	if len(newSwaps) == 0 {
		p.logger.Printf("No new swaps to process (all at or before block %d), exiting", state.LastProcessedBlock)
		result.Stage = StageDone
		result.EarlyExit = true
		observability.RecordRun("early-exit", p.opts.now().Sub(start).Seconds())
		return result, nil
	}

	// PriceFetching.
	result.Stage = StagePriceFetching
	tokens := collectTokens(newSwaps)
	result.UniqueTokens = len(tokens)

	prices := p.opts.Prices.FetchPrices(ctx, tokens, p.opts.Currency)
	for _, price := range prices {
		if price == 0 {
			result.PricesMissing++
		} else {
			result.PricesFetched++
		}
	}
	observability.DefaultMetrics.PricesMissing.Add(float64(result.PricesMissing))

	// Enriching.
	result.Stage = StageEnriching
	enriched, skips := p.opts.Enricher.Enrich(newSwaps, prices)
	result.SwapsEnriched = len(enriched)
	result.SwapsSkipped = len(skips)

	skipsByReason := make(map[string]int)
	for _, s := range skips {
		skipsByReason[string(s.Reason)]++
	}
	observability.RecordEnrichment(len(enriched), skipsByReason)

	// Aggregating.
	result.Stage = StageAggregating
	summary := aggregate.Summarize(enriched, p.opts.TopN)
	result.Pairs = len(summary)

	// Writing. Both artifacts are hash-gated: an unchanged artifact is
	// not rewritten and does not trigger downstream effects.
	result.Stage = StageWriting
	swapsPath := filepath.Join(p.opts.OutputDir, "swaps.json")
	wroteSwaps, err := p.opts.Writer.WriteJSON(swapsPath, enriched)
	if err != nil {
		return p.fail(result, fmt.Errorf("write swaps artifact: %w", err))
	}
	result.WroteSwaps = wroteSwaps
	observability.RecordOutputWrite(wroteSwaps)

	summaryPath := filepath.Join(p.opts.OutputDir, "summary.csv")
	wroteSummary, err := p.opts.Writer.WriteSummaryCSV(summaryPath, summary)
	if err != nil {
		return p.fail(result, fmt.Errorf("write summary artifact: %w", err))
	}
	result.WroteSummary = wroteSummary
	observability.RecordOutputWrite(wroteSummary)

	if p.opts.Sink != nil && (wroteSwaps || wroteSummary) {
		p.mirrorToSink(ctx, start, enriched, summary)
	}

	// StateUpdate: only after a successful write, to the max fetched block.
	result.Stage = StageStateUpdate
	if result.LatestBlock > 0 {
		extra := map[string]interface{}{"lastRunSwaps": len(enriched)}
		if err := p.opts.State.Advance(ctx, result.LatestBlock, extra); err != nil {
			return p.fail(result, fmt.Errorf("advance state: %w", err))
		}
		result.LastProcessedBlock = result.LatestBlock
		observability.DefaultMetrics.LastProcessedBlock.Set(float64(result.LatestBlock))
	} else {
		p.logger.Printf("No valid block number found, state not updated")
	}

	result.Stage = StageDone
	observability.RecordRun("success", p.opts.now().Sub(start).Seconds())
	p.logger.Printf("Pipeline run completed")
	return result, nil
}

// fail marks the run failed and records the outcome. State is untouched.
func (p *Pipeline) fail(result *RunResult, err error) (*RunResult, error) {
	p.logger.Printf("Pipeline failed in stage %s: %v", result.Stage, err)
	result.Stage = StageFailed
	observability.RecordRun("failure", 0)
	return result, err
}

// mirrorToSink is best-effort: a warehouse outage must not fail the run or
// block the state commit.
func (p *Pipeline) mirrorToSink(ctx context.Context, start time.Time, enriched []domain.EnrichedSwap, summary []domain.SummaryRow) {
	runID := start.UTC().Format("20060102T150405Z")

	if err := p.opts.Sink.InsertSwaps(ctx, enriched); err != nil {
		p.logger.Printf("Warehouse swap insert failed (continuing): %v", err)
	}
	if err := p.opts.Sink.InsertSummaries(ctx, runID, summary); err != nil {
		p.logger.Printf("Warehouse summary insert failed (continuing): %v", err)
	}
}

// collectTokens returns the sorted unique token addresses across swaps.
func collectTokens(swaps []domain.SwapEvent) []string {
	seen := make(map[string]struct{}, len(swaps)*2)
	var tokens []string
	for _, s := range swaps {
		for _, tok := range []string{s.Token0, s.Token1} {
			if tok == "" {
				continue
			}
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// reportStats prints the operator summary. It runs on every path, early
// exits and failures included.
func (p *Pipeline) reportStats(r *RunResult) {
	stats := p.opts.Prices.CacheStats()

	p.logger.Printf("Run statistics:")
	p.logger.Printf("  Final stage:          %s", r.Stage)
	p.logger.Printf("  Execution time:       %.2fs", r.Duration.Seconds())
	p.logger.Printf("  Swaps fetched:        %d", r.SwapsFetched)
	p.logger.Printf("  Swaps filtered (old): %d", r.SwapsFiltered)
	p.logger.Printf("  Swaps new:            %d", r.SwapsNew)
	p.logger.Printf("  Swaps enriched:       %d", r.SwapsEnriched)
	p.logger.Printf("  Swaps skipped:        %d", r.SwapsSkipped)
	p.logger.Printf("  Unique tokens:        %d", r.UniqueTokens)
	p.logger.Printf("  Prices fetched:       %d", r.PricesFetched)
	p.logger.Printf("  Prices missing:       %d", r.PricesMissing)
	p.logger.Printf("  Trading pairs:        %d", r.Pairs)
	if r.ChainHead > 0 {
		p.logger.Printf("  Indexer head:         %d", r.ChainHead)
	}
	p.logger.Printf("  Price cache entries:  %d", stats.CachedTokens)
	p.logger.Printf("  Price API calls:      %d", stats.RateLimiter.RequestsInWindow)
	if r.Stage == StageDone && !r.EarlyExit {
		p.logger.Printf("  Wrote swaps.json:     %t", r.WroteSwaps)
		p.logger.Printf("  Wrote summary.csv:    %t", r.WroteSummary)
		p.logger.Printf("  Last processed block: %d", r.LastProcessedBlock)
	}
}
