// Package pricing fetches current USD token prices from a CoinGecko-compatible
// API. The client composes a sliding-window rate limiter, a per-run cache and
// a retry policy that only retries server errors.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"phoenix-pipeline/internal/ratelimit"
	"phoenix-pipeline/internal/retry"
)

// Default configuration values.
const (
	DefaultBaseURL        = "https://api.coingecko.com/api/v3"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRequestsMin = 30
	DefaultCurrency       = "usd"

	apiKeyHeader = "x-cg-pro-api-key"
)

// StatusError reports a non-2xx HTTP response. Only status >= 500 is
// considered retryable.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("price api status %d: %s", e.StatusCode, e.Body)
}

// IsServerError reports whether err is a StatusError with a 5xx status.
func IsServerError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode >= 500
}

// CacheStats exposes cache and rate limiter counters for run reporting.
type CacheStats struct {
	CachedTokens int
	RateLimiter  ratelimit.Stats
}

// Client fetches batch token prices.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.Limiter
	cache   *Cache
	retry   retry.Policy
	logger  *log.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithRetryPolicy sets a custom retry policy. The server-error predicate is
// always applied on top of it.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the client logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a price API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	policy := retry.DefaultPolicy()
	policy.Jitter = 2 * time.Second

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: ratelimit.New(DefaultMaxRequestsMin, time.Minute),
		cache:   NewCache(),
		retry:   policy,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Retry server errors only; 4xx means a contract violation, not a blip.
	c.retry.Retryable = IsServerError
	return c
}

// FetchPrices returns a price for every requested identifier, in the given
// currency. Cache hits bypass resolution and the network. Identifiers the
// API does not know, and all identifiers on total request failure, map to 0.0
// so one price-service outage degrades enrichment instead of aborting the run.
func (c *Client) FetchPrices(ctx context.Context, identifiers []string, currency string) map[string]float64 {
	if currency == "" {
		currency = DefaultCurrency
	}

	result := make(map[string]float64, len(identifiers))
	var toFetch []pendingLookup

	for _, id := range identifiers {
		if price, ok := c.cache.Get(id, currency); ok {
			result[id] = price
			continue
		}
		toFetch = append(toFetch, pendingLookup{original: id, canonical: ResolveTokenID(id)})
	}

	if len(toFetch) == 0 {
		return result
	}

	uniqueIDs := dedupeCanonical(toFetch)
	c.logger.Printf("Fetching prices for %d tokens (%d unresolved inputs)", len(uniqueIDs), len(toFetch))

	priceData, err := c.simplePrice(ctx, uniqueIDs, currency)
	if err != nil {
		c.logger.Printf("Price fetch failed, filling %d identifiers with 0.0: %v", len(toFetch), err)
		for _, p := range toFetch {
			result[p.original] = 0.0
		}
		return result
	}

	for _, p := range toFetch {
		entry, ok := priceData[p.canonical]
		if !ok {
			c.logger.Printf("No price data for %s (input %s)", p.canonical, p.original)
			result[p.original] = 0.0
			continue
		}
		price := entry[currency]
		result[p.original] = price
		c.cache.Put(p.original, currency, price)
	}

	return result
}

// pendingLookup pairs a caller-supplied identifier with its canonical ID.
type pendingLookup struct {
	original  string
	canonical string
}

// dedupeCanonical returns sorted unique canonical IDs for a deterministic
// request URL.
func dedupeCanonical(pendings []pendingLookup) []string {
	seen := make(map[string]struct{}, len(pendings))
	var ids []string
	for _, p := range pendings {
		if _, ok := seen[p.canonical]; ok {
			continue
		}
		seen[p.canonical] = struct{}{}
		ids = append(ids, p.canonical)
	}
	sort.Strings(ids)
	return ids
}

// simplePrice calls GET /simple/price for a batch of canonical IDs.
func (c *Client) simplePrice(ctx context.Context, ids []string, currency string) (map[string]map[string]float64, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", currency)
	params.Set("include_24hr_change", "false")

	var out map[string]map[string]float64
	if err := c.get(ctx, "simple/price", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HistoricalPrice returns the price of a canonical token ID on a given date
// (DD-MM-YYYY), or 0 with ok=false when the API has no data for that day.
func (c *Client) HistoricalPrice(ctx context.Context, tokenID, date, currency string) (float64, bool, error) {
	if currency == "" {
		currency = DefaultCurrency
	}

	params := url.Values{}
	params.Set("date", date)
	params.Set("localization", "false")

	var out struct {
		MarketData struct {
			CurrentPrice map[string]float64 `json:"current_price"`
		} `json:"market_data"`
	}
	if err := c.get(ctx, "coins/"+tokenID+"/history", params, &out); err != nil {
		return 0, false, err
	}

	price, ok := out.MarketData.CurrentPrice[currency]
	return price, ok, nil
}

// get performs one rate-limited GET with retry on server errors.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	return c.retry.Do(ctx, func() error {
		c.limiter.Acquire()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(apiKeyHeader, c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			if resp.StatusCode >= 500 {
				c.logger.Printf("Price API error %d (will retry): %s", resp.StatusCode, truncate(string(body), 200))
			} else {
				c.logger.Printf("Price API error %d: %s", resp.StatusCode, truncate(string(body), 200))
			}
			return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	})
}

// CacheStats returns cache and rate limiter statistics.
func (c *Client) CacheStats() CacheStats {
	return CacheStats{
		CachedTokens: c.cache.Len(),
		RateLimiter:  c.limiter.Stats(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
