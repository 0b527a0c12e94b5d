package domain

// SwapEvent is a raw swap record as returned by the subgraph.
// Amounts are signed decimal strings in the token's native unit;
// decimals are applied during enrichment, not here.
type SwapEvent struct {
	TxHash       string `json:"txHash"`
	BlockNumber  int64  `json:"blockNumber"`
	Timestamp    int64  `json:"timestamp"` // unix seconds
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrtPriceX96"`
}

// EnrichedSwap is a SwapEvent joined with USD price data.
// It is only created when both token prices are resolvable.
type EnrichedSwap struct {
	SwapEvent

	PriceUSD0 float64 `json:"priceUSD0"`
	PriceUSD1 float64 `json:"priceUSD1"`
	USDVolume float64 `json:"usdVolume"`
	// Pair is "{token0}-{token1}" with addresses exactly as they
	// arrived, token order preserved (not canonicalized).
	Pair string `json:"pair"`
}

// SummaryRow is a per-pair aggregate, recomputed in full on every run.
type SummaryRow struct {
	Pair     string  `json:"pair"`
	Count    int     `json:"count"`
	TotalUSD float64 `json:"totalUSD"`
	AvgUSD   float64 `json:"avgUSD"`
}
