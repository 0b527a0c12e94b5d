package clickhouse

import (
	"context"
	"fmt"
	"time"

	"phoenix-pipeline/internal/domain"
	"phoenix-pipeline/internal/storage"
)

// SwapSink implements storage.SwapSink using ClickHouse. Enriched swaps land
// in a ReplacingMergeTree so overlapping runs converge instead of
// accumulating duplicates; summaries are keyed by run id and kept as history.
type SwapSink struct {
	conn *Conn
}

// NewSwapSink creates a new ClickHouse swap sink.
func NewSwapSink(conn *Conn) *SwapSink {
	return &SwapSink{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapSink = (*SwapSink)(nil)

// InsertSwaps appends a batch of enriched swaps.
func (s *SwapSink) InsertSwaps(ctx context.Context, swaps []domain.EnrichedSwap) error {
	if len(swaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO enriched_swaps (
			tx_hash, block_number, ts, token0, token1,
			amount0, amount1, sqrt_price_x96,
			price_usd0, price_usd1, usd_volume, pair
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, swap := range swaps {
		err = batch.Append(
			swap.TxHash, swap.BlockNumber, time.Unix(swap.Timestamp, 0).UTC(),
			swap.Token0, swap.Token1,
			swap.Amount0, swap.Amount1, swap.SqrtPriceX96,
			swap.PriceUSD0, swap.PriceUSD1, swap.USDVolume, swap.Pair,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// InsertSummaries appends a batch of per-pair summary rows for a run.
func (s *SwapSink) InsertSummaries(ctx context.Context, runID string, rows []domain.SummaryRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pair_summaries (
			run_id, pair, swap_count, total_usd, avg_usd
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(runID, row.Pair, uint64(row.Count), row.TotalUSD, row.AvgUSD); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
