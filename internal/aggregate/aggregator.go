// Package aggregate folds enriched swaps into per-pair summary rows.
package aggregate

import (
	"math"
	"sort"

	"phoenix-pipeline/internal/domain"
)

// Summarize groups enriched swaps by pair and computes count, total and
// average USD volume, rounded to 2 decimal places. Rows are ordered by
// totalUSD descending with pair ascending as the tiebreak, so equal totals
// always render in the same order. A positive topN truncates the result after
// sorting. Empty input yields an empty slice.
func Summarize(enriched []domain.EnrichedSwap, topN int) []domain.SummaryRow {
	totals := make(map[string]*domain.SummaryRow)
	var order []string

	for _, swap := range enriched {
		row, ok := totals[swap.Pair]
		if !ok {
			row = &domain.SummaryRow{Pair: swap.Pair}
			totals[swap.Pair] = row
			order = append(order, swap.Pair)
		}
		row.Count++
		row.TotalUSD += swap.USDVolume
	}

	rows := make([]domain.SummaryRow, 0, len(order))
	for _, pair := range order {
		row := totals[pair]
		row.AvgUSD = round2(row.TotalUSD / float64(row.Count))
		row.TotalUSD = round2(row.TotalUSD)
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalUSD != rows[j].TotalUSD {
			return rows[i].TotalUSD > rows[j].TotalUSD
		}
		return rows[i].Pair < rows[j].Pair
	})

	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
