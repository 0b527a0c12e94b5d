// Package subgraph fetches swap events from a Graph-protocol style GraphQL
// endpoint with forward-only (first, skip) pagination. Transport failures are
// retried; an error payload in the response body is a contract violation and
// fails the request immediately.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"phoenix-pipeline/internal/domain"
	"phoenix-pipeline/internal/retry"
)

// Default configuration values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultBatchSize = 100
)

// GraphQLError is a GraphQL "errors" payload returned with HTTP 200. It is
// never retried: the endpoint understood the request and rejected it.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql query failed: " + strings.Join(e.Messages, "; ")
}

// IsGraphQLError reports whether err carries a GraphQL error payload.
func IsGraphQLError(err error) bool {
	var ge *GraphQLError
	return errors.As(err, &ge)
}

// Client queries a swap subgraph.
type Client struct {
	url    string
	http   *http.Client
	retry  retry.Policy
	logger *log.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy sets a custom retry policy. The GraphQL-error predicate is
// always applied on top of it.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the client logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a subgraph client for the given GraphQL endpoint.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		http:   &http.Client{Timeout: DefaultTimeout},
		retry:  retry.DefaultPolicy(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Retryable = func(err error) bool { return !IsGraphQLError(err) }
	return c
}

// FetchSwaps pages through swap records until an empty page, a short page, or
// maxResults (0 means unlimited). Records arrive in ascending order; a record
// that fails to parse is logged and dropped without aborting the page.
func (c *Client) FetchSwaps(ctx context.Context, query string, batchSize, maxResults int) ([]domain.SwapEvent, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var all []domain.SwapEvent
	skip := 0

	for {
		if maxResults > 0 && len(all) >= maxResults {
			c.logger.Printf("Reached max results limit of %d", maxResults)
			break
		}

		pageSize := batchSize
		if maxResults > 0 {
			if remaining := maxResults - len(all); remaining < pageSize {
				pageSize = remaining
			}
		}

		variables := map[string]interface{}{
			"first": pageSize,
			"skip":  skip,
		}

		data, err := c.execute(ctx, query, variables)
		if err != nil {
			return nil, fmt.Errorf("fetch swaps at skip=%d: %w", skip, err)
		}

		var page struct {
			Swaps []json.RawMessage `json:"swaps"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decode swaps page at skip=%d: %w", skip, err)
		}
		if page.Swaps == nil {
			return nil, fmt.Errorf("response missing swaps field at skip=%d", skip)
		}

		if len(page.Swaps) == 0 {
			c.logger.Printf("No more swaps found, total fetched: %d", len(all))
			break
		}

		parsed := 0
		for i, raw := range page.Swaps {
			event, err := parseSwap(raw)
			if err != nil {
				c.logger.Printf("Skipping malformed swap at index %d (skip=%d): %v", i, skip, err)
				continue
			}
			all = append(all, event)
			parsed++
		}

		c.logger.Printf("Fetched batch: %d swaps (skip=%d, total so far: %d)", parsed, skip, len(all))

		if len(page.Swaps) < pageSize {
			break
		}
		skip += pageSize
	}

	return all, nil
}

// LatestBlock returns the most recent block the indexer has processed.
func (c *Client) LatestBlock(ctx context.Context) (int64, error) {
	data, err := c.execute(ctx, latestBlockQuery, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch latest block: %w", err)
	}

	var out struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decode latest block: %w", err)
	}
	return out.Meta.Block.Number, nil
}

// execute posts one GraphQL request with retry on transport failures and
// returns the raw data field.
func (c *Client) execute(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	payload := map[string]interface{}{"query": query}
	if variables != nil {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var data json.RawMessage
	err = c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("subgraph status %d: %s", resp.StatusCode, firstN(string(respBody), 200))
		}

		var envelope struct {
			Data   json.RawMessage `json:"data"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		if len(envelope.Errors) > 0 {
			msgs := make([]string, 0, len(envelope.Errors))
			for _, e := range envelope.Errors {
				msgs = append(msgs, e.Message)
			}
			c.logger.Printf("GraphQL errors: %s", strings.Join(msgs, "; "))
			return &GraphQLError{Messages: msgs}
		}
		if envelope.Data == nil {
			return fmt.Errorf("response missing data field")
		}

		data = envelope.Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// flexInt64 decodes either a JSON number or a quoted decimal string. Graph
// endpoints serialize BigInt fields as strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", s, err)
	}
	*f = flexInt64(n)
	return nil
}

type rawToken struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

type rawSwap struct {
	ID           string    `json:"id"`
	Transaction  *rawToken `json:"transaction"`
	Timestamp    flexInt64 `json:"timestamp"`
	BlockNumber  flexInt64 `json:"blockNumber"`
	Token0       rawToken  `json:"token0"`
	Token1       rawToken  `json:"token1"`
	Amount0      string    `json:"amount0"`
	Amount1      string    `json:"amount1"`
	SqrtPriceX96 string    `json:"sqrtPriceX96"`
}

// parseSwap converts one raw record to a SwapEvent. The transaction hash
// prefers the nested transaction id and falls back to the swap id.
func parseSwap(raw json.RawMessage) (domain.SwapEvent, error) {
	var r rawSwap
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.SwapEvent{}, err
	}

	if r.Token0.ID == "" || r.Token1.ID == "" {
		return domain.SwapEvent{}, fmt.Errorf("missing token address (token0=%q, token1=%q)", r.Token0.ID, r.Token1.ID)
	}

	txHash := r.ID
	if r.Transaction != nil && r.Transaction.ID != "" {
		txHash = r.Transaction.ID
	}
	if txHash == "" {
		return domain.SwapEvent{}, fmt.Errorf("missing transaction hash")
	}

	amount0 := r.Amount0
	if amount0 == "" {
		amount0 = "0"
	}
	amount1 := r.Amount1
	if amount1 == "" {
		amount1 = "0"
	}
	sqrtPrice := r.SqrtPriceX96
	if sqrtPrice == "" {
		sqrtPrice = "0"
	}

	return domain.SwapEvent{
		TxHash:       txHash,
		BlockNumber:  int64(r.BlockNumber),
		Timestamp:    int64(r.Timestamp),
		Token0:       r.Token0.ID,
		Token1:       r.Token1.ID,
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
	}, nil
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
