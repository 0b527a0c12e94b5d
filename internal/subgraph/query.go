package subgraph

import (
	"fmt"
	"time"
)

// SinceTimestamp returns the unix timestamp marking the start of a trailing
// window ending at now.
func SinceTimestamp(now time.Time, window time.Duration) int64 {
	return now.Add(-window).Unix()
}

// BuildRecentSwapsQuery builds a paginated query for swaps at or after the
// given unix timestamp, ordered ascending. The caller supplies $first and
// $skip per page.
func BuildRecentSwapsQuery(sinceTimestamp int64) string {
	return fmt.Sprintf(`query GetRecentSwaps($first: Int!, $skip: Int!) {
    swaps(
        first: $first
        skip: $skip
        where: { timestamp_gte: %d }
        orderBy: timestamp
        orderDirection: asc
    ) {
        id
        transaction {
            id
        }
        timestamp
        blockNumber
        token0 {
            symbol
            id
        }
        token1 {
            symbol
            id
        }
        amount0
        amount1
        sqrtPriceX96
    }
}`, sinceTimestamp)
}

// BuildBlockRangeQuery builds a paginated query for swaps in the inclusive
// block range [startBlock, endBlock], ordered ascending by block.
func BuildBlockRangeQuery(startBlock, endBlock int64) string {
	return fmt.Sprintf(`query GetSwapsByBlock($first: Int!, $skip: Int!) {
    swaps(
        first: $first
        skip: $skip
        where: { blockNumber_gte: %d, blockNumber_lte: %d }
        orderBy: blockNumber
        orderDirection: asc
    ) {
        id
        transaction {
            id
        }
        timestamp
        blockNumber
        token0 {
            symbol
            id
        }
        token1 {
            symbol
            id
        }
        amount0
        amount1
        sqrtPriceX96
    }
}`, startBlock, endBlock)
}

// latestBlockQuery reads the chain head the indexer has processed.
const latestBlockQuery = `query GetLatestBlock {
    _meta {
        block {
            number
        }
    }
}`
