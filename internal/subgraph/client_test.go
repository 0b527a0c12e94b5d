package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"phoenix-pipeline/internal/retry"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.InitialDelay = time.Millisecond
	p.MaxDelay = time.Millisecond
	p.Jitter = 0
	return p
}

func newTestClient(url string) *Client {
	return NewClient(url, WithRetryPolicy(fastPolicy()), WithLogger(quietLogger()))
}

func swapJSON(id string, block, ts int64) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"transaction": {"id": "%s-tx"},
		"timestamp": "%d",
		"blockNumber": "%d",
		"token0": {"symbol": "WETH", "id": "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
		"token1": {"symbol": "USDC", "id": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		"amount0": "1.5",
		"amount1": "-3000.0",
		"sqrtPriceX96": "12345"
	}`, id, id, ts, block)
}

func pageResponse(swaps ...string) string {
	return `{"data":{"swaps":[` + strings.Join(swaps, ",") + `]}}`
}

func TestFetchSwaps_Pagination(t *testing.T) {
	var skips []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				First int `json:"first"`
				Skip  int `json:"skip"`
			} `json:"variables"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("Bad request body: %v", err)
			return
		}
		skips = append(skips, req.Variables.Skip)

		// Two full pages of 2, then a short page of 1.
		switch req.Variables.Skip {
		case 0:
			fmt.Fprint(w, pageResponse(swapJSON("a", 100, 1000), swapJSON("b", 101, 1001)))
		case 2:
			fmt.Fprint(w, pageResponse(swapJSON("c", 102, 1002), swapJSON("d", 103, 1003)))
		default:
			fmt.Fprint(w, pageResponse(swapJSON("e", 104, 1004)))
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	swaps, err := client.FetchSwaps(context.Background(), "query", 2, 0)
	if err != nil {
		t.Fatalf("FetchSwaps: %v", err)
	}

	if len(swaps) != 5 {
		t.Fatalf("Got %d swaps, want 5", len(swaps))
	}
	if len(skips) != 3 || skips[0] != 0 || skips[1] != 2 || skips[2] != 4 {
		t.Errorf("Skip offsets = %v, want [0 2 4]", skips)
	}
	if swaps[0].TxHash != "a-tx" {
		t.Errorf("TxHash = %q, want transaction id %q", swaps[0].TxHash, "a-tx")
	}
	if swaps[0].BlockNumber != 100 || swaps[0].Timestamp != 1000 {
		t.Errorf("Parsed swap = %+v", swaps[0])
	}
}

func TestFetchSwaps_StopsOnEmptyPage(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			// Full page, forcing a second request.
			fmt.Fprint(w, pageResponse(swapJSON("a", 100, 1000)))
			return
		}
		fmt.Fprint(w, pageResponse())
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	swaps, err := client.FetchSwaps(context.Background(), "query", 1, 0)
	if err != nil {
		t.Fatalf("FetchSwaps: %v", err)
	}
	if len(swaps) != 1 {
		t.Errorf("Got %d swaps, want 1", len(swaps))
	}
	if requests != 2 {
		t.Errorf("Got %d requests, want 2", requests)
	}
}

func TestFetchSwaps_MaxResults(t *testing.T) {
	var firsts []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				First int `json:"first"`
			} `json:"variables"`
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		firsts = append(firsts, req.Variables.First)

		swaps := make([]string, req.Variables.First)
		for i := range swaps {
			swaps[i] = swapJSON(fmt.Sprintf("s%d", i), int64(100+i), int64(1000+i))
		}
		fmt.Fprint(w, pageResponse(swaps...))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	swaps, err := client.FetchSwaps(context.Background(), "query", 10, 15)
	if err != nil {
		t.Fatalf("FetchSwaps: %v", err)
	}

	if len(swaps) != 15 {
		t.Errorf("Got %d swaps, want 15 (maxResults)", len(swaps))
	}
	// Final page request is shrunk to the remaining budget.
	if len(firsts) != 2 || firsts[0] != 10 || firsts[1] != 5 {
		t.Errorf("Page sizes = %v, want [10 5]", firsts)
	}
}

func TestFetchSwaps_SkipsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		missingTokens := `{"id": "bad", "timestamp": "1000", "amount0": "1", "amount1": "2"}`
		fmt.Fprint(w, pageResponse(swapJSON("a", 100, 1000), missingTokens, swapJSON("c", 102, 1002)))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	swaps, err := client.FetchSwaps(context.Background(), "query", 10, 0)
	if err != nil {
		t.Fatalf("FetchSwaps: %v", err)
	}

	if len(swaps) != 2 {
		t.Fatalf("Got %d swaps, want 2 (malformed record dropped)", len(swaps))
	}
	if swaps[0].TxHash != "a-tx" || swaps[1].TxHash != "c-tx" {
		t.Errorf("Unexpected surviving swaps: %+v", swaps)
	}
}

func TestFetchSwaps_RetriesTransportErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, pageResponse(swapJSON("a", 100, 1000)))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	swaps, err := client.FetchSwaps(context.Background(), "query", 10, 0)
	if err != nil {
		t.Fatalf("FetchSwaps: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Got %d attempts, want 3", attempts)
	}
	if len(swaps) != 1 {
		t.Errorf("Got %d swaps, want 1", len(swaps))
	}
}

func TestFetchSwaps_GraphQLErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, `{"errors":[{"message":"field does not exist"},{"message":"syntax error"}]}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.FetchSwaps(context.Background(), "query", 10, 0)
	if err == nil {
		t.Fatal("Expected error for GraphQL error payload")
	}
	if attempts != 1 {
		t.Errorf("Got %d attempts, want 1 (no retry)", attempts)
	}
	if !IsGraphQLError(err) {
		t.Errorf("Expected GraphQLError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "field does not exist") {
		t.Errorf("Error should carry payload messages, got: %v", err)
	}
}

func TestFetchSwaps_TransportFailurePropagates(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.FetchSwaps(context.Background(), "query", 10, 0)
	if err == nil {
		t.Fatal("Expected error after retries exhausted")
	}
	if attempts != 3 {
		t.Errorf("Got %d attempts, want 3", attempts)
	}
}

func TestLatestBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"_meta":{"block":{"number":19000123}}}}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	block, err := client.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("LatestBlock: %v", err)
	}
	if block != 19000123 {
		t.Errorf("Block = %d, want 19000123", block)
	}
}

func TestBuildRecentSwapsQuery(t *testing.T) {
	query := BuildRecentSwapsQuery(1700000000)
	for _, want := range []string{"timestamp_gte: 1700000000", "$first", "$skip", "orderDirection: asc", "sqrtPriceX96"} {
		if !strings.Contains(query, want) {
			t.Errorf("Query missing %q", want)
		}
	}
}

func TestBuildBlockRangeQuery(t *testing.T) {
	query := BuildBlockRangeQuery(100, 200)
	for _, want := range []string{"blockNumber_gte: 100", "blockNumber_lte: 200", "orderBy: blockNumber"} {
		if !strings.Contains(query, want) {
			t.Errorf("Query missing %q", want)
		}
	}
}

func TestSinceTimestamp(t *testing.T) {
	now := time.Unix(1700003600, 0)
	got := SinceTimestamp(now, time.Hour)
	if got != 1700000000 {
		t.Errorf("SinceTimestamp = %d, want 1700000000", got)
	}
}
