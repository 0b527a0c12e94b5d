package storage

import (
	"context"

	"phoenix-pipeline/internal/domain"
)

// StateStore persists pipeline progress between runs. This enables
// resumption after restarts without reprocessing already-handled swaps.
type StateStore interface {
	// Load returns the persisted state. A missing or unreadable record
	// degrades to the zero state (lastProcessedBlock = 0) so first runs
	// and recovery from corruption share one code path.
	Load(ctx context.Context) (domain.PipelineState, error)

	// Advance merges lastBlock and extra fields into the persisted state.
	// Fields already present and not named in extra survive unchanged;
	// lastProcessedBlock and lastUpdated are always refreshed.
	Advance(ctx context.Context, lastBlock int64, extra map[string]interface{}) error
}

// SwapSink mirrors enriched swaps and pair summaries into a warehouse for
// ad-hoc analysis. Sinks are best-effort collaborators: the pipeline's own
// idempotency lives in StateStore and the output hash, not here.
type SwapSink interface {
	// InsertSwaps appends a batch of enriched swaps.
	InsertSwaps(ctx context.Context, swaps []domain.EnrichedSwap) error

	// InsertSummaries appends a batch of per-pair summary rows for a run.
	InsertSummaries(ctx context.Context, runID string, rows []domain.SummaryRow) error
}
