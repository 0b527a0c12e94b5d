package storage

import "phoenix-pipeline/internal/domain"

// FilterNew returns only the swaps with a block number strictly greater than
// lastProcessedBlock. Swaps at exactly lastProcessedBlock were committed by a
// previous run and are dropped; combined with the fetcher's ascending order
// this makes re-runs over overlapping windows idempotent.
func FilterNew(swaps []domain.SwapEvent, lastProcessedBlock int64) []domain.SwapEvent {
	filtered := make([]domain.SwapEvent, 0, len(swaps))
	for _, s := range swaps {
		if s.BlockNumber > lastProcessedBlock {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// MaxBlock returns the highest block number in swaps, or 0 for an empty
// slice.
func MaxBlock(swaps []domain.SwapEvent) int64 {
	var max int64
	for _, s := range swaps {
		if s.BlockNumber > max {
			max = s.BlockNumber
		}
	}
	return max
}
