// Package enrich joins swap events with token prices and computes normalized
// USD trade volume. Enrichment is deterministic and has no hidden state;
// failures are handled at record granularity and never abort the batch.
package enrich

import (
	"log"
	"math"
	"strconv"
	"strings"

	"phoenix-pipeline/internal/domain"
)

// SkipReason classifies why a swap was excluded from enrichment.
type SkipReason string

const (
	SkipMissingPrice SkipReason = "missing-price"
	SkipBadAmount    SkipReason = "bad-amount"
)

// Skip records one excluded swap for reporting.
type Skip struct {
	TxHash string
	Reason SkipReason
}

// Engine enriches swaps with USD prices.
type Engine struct {
	logger *log.Logger
}

// NewEngine creates an enrichment engine.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{logger: logger}
}

// Enrich computes USD volume for every swap that has both prices and parsable
// amounts. Price lookup is case-insensitive on the token address. Raw amounts
// are normalized by per-token decimals before pricing.
//
// Volume accounting is stablecoin-aware: when both legs are stable only
// token0's leg counts (the legs are near-equal), when exactly one leg is
// stable that leg counts (it is the numerically trustworthy side), and when
// neither is stable both legs are summed as an approximation of two-sided
// volume.
func (e *Engine) Enrich(swaps []domain.SwapEvent, prices map[string]float64) ([]domain.EnrichedSwap, []Skip) {
	lowerPrices := make(map[string]float64, len(prices))
	for addr, price := range prices {
		lowerPrices[strings.ToLower(addr)] = price
	}

	enriched := make([]domain.EnrichedSwap, 0, len(swaps))
	var skips []Skip

	for _, swap := range swaps {
		token0 := strings.ToLower(swap.Token0)
		token1 := strings.ToLower(swap.Token1)

		price0, ok0 := lowerPrices[token0]
		price1, ok1 := lowerPrices[token1]
		if !ok0 || !ok1 {
			e.logger.Printf("Skipping swap %s: missing prices (token0=%s, token1=%s)",
				shortHash(swap.TxHash), swap.Token0, swap.Token1)
			skips = append(skips, Skip{TxHash: swap.TxHash, Reason: SkipMissingPrice})
			continue
		}

		amount0Raw, err0 := strconv.ParseFloat(swap.Amount0, 64)
		amount1Raw, err1 := strconv.ParseFloat(swap.Amount1, 64)
		if err0 != nil || err1 != nil {
			e.logger.Printf("Skipping swap %s: invalid amounts (%q, %q)",
				shortHash(swap.TxHash), swap.Amount0, swap.Amount1)
			skips = append(skips, Skip{TxHash: swap.TxHash, Reason: SkipBadAmount})
			continue
		}

		amount0 := amount0Raw / math.Pow10(decimalsFor(token0))
		amount1 := amount1Raw / math.Pow10(decimalsFor(token1))

		stable0 := domain.Stablecoins[token0]
		stable1 := domain.Stablecoins[token1]

		var usdVolume float64
		switch {
		case stable0:
			usdVolume = math.Abs(amount0 * price0)
		case stable1:
			usdVolume = math.Abs(amount1 * price1)
		default:
			usdVolume = math.Abs(amount0*price0) + math.Abs(amount1*price1)
		}

		enriched = append(enriched, domain.EnrichedSwap{
			SwapEvent: swap,
			PriceUSD0: round6(price0),
			PriceUSD1: round6(price1),
			USDVolume: round6(usdVolume),
			Pair:      swap.Token0 + "-" + swap.Token1,
		})
	}

	if len(skips) > 0 {
		e.logger.Printf("Skipped %d swaps due to missing prices or invalid data", len(skips))
	}
	e.logger.Printf("Enriched %d swaps with price data", len(enriched))

	return enriched, skips
}

func decimalsFor(tokenAddr string) int {
	if d, ok := domain.TokenDecimals[tokenAddr]; ok {
		return d
	}
	return domain.DefaultTokenDecimals
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func shortHash(h string) string {
	if len(h) <= 10 {
		return h
	}
	return h[:10] + "..."
}
