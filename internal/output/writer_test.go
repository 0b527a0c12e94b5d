package output

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phoenix-pipeline/internal/domain"
)

func testWriter() *Writer {
	return NewWriter(log.New(io.Discard, "", 0))
}

func TestComputeDataHash_Deterministic(t *testing.T) {
	data := map[string]interface{}{"b": 2, "a": 1}

	h1, err := ComputeDataHash(data)
	if err != nil {
		t.Fatalf("ComputeDataHash: %v", err)
	}
	h2, err := ComputeDataHash(data)
	if err != nil {
		t.Fatalf("ComputeDataHash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("Hash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Hash length = %d, want 64 hex chars", len(h1))
	}
}

func TestComputeDataHash_KeyOrderInsensitive(t *testing.T) {
	// Struct field order differs from alphabetical; the canonical form
	// must not care.
	type ba struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	h1, err := ComputeDataHash(ba{B: 2, A: 1})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ComputeDataHash(map[string]int{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("Hashes differ for same logical data: %s != %s", h1, h2)
	}
}

func TestComputeDataHash_DifferentDataDiffers(t *testing.T) {
	h1, _ := ComputeDataHash(map[string]int{"a": 1})
	h2, _ := ComputeDataHash(map[string]int{"a": 2})
	if h1 == h2 {
		t.Error("Different data produced the same hash")
	}
}

func TestWriteJSON_WritesAndSkipsRepeat(t *testing.T) {
	w := testWriter()
	path := filepath.Join(t.TempDir(), "swaps.json")
	data := []domain.SummaryRow{{Pair: "weth-usdc", Count: 1, TotalUSD: 100, AvgUSD: 100}}

	wrote, err := w.WriteJSON(path, data)
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !wrote {
		t.Fatal("First write should not be skipped")
	}
	if _, err := os.Stat(path + HashSuffix); err != nil {
		t.Fatalf("Hash sidecar missing: %v", err)
	}

	wrote, err = w.WriteJSON(path, data)
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if wrote {
		t.Error("Identical data should skip the second write")
	}
}

func TestWriteJSON_ChangedDataRewrites(t *testing.T) {
	w := testWriter()
	path := filepath.Join(t.TempDir(), "swaps.json")

	if _, err := w.WriteJSON(path, map[string]int{"block": 1}); err != nil {
		t.Fatal(err)
	}
	wrote, err := w.WriteJSON(path, map[string]int{"block": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !wrote {
		t.Error("Changed data should be written")
	}
}

func TestShouldSkipWrite_MissingSidecarMeansWrite(t *testing.T) {
	w := testWriter()
	path := filepath.Join(t.TempDir(), "out.json")
	data := map[string]int{"a": 1}

	// Artifact exists but no sidecar.
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if w.ShouldSkipWrite(path, data) {
		t.Error("Missing sidecar should not skip the write")
	}

	// Sidecar exists but artifact does not.
	path2 := filepath.Join(t.TempDir(), "gone.json")
	if err := os.WriteFile(path2+HashSuffix, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if w.ShouldSkipWrite(path2, data) {
		t.Error("Missing artifact should not skip the write")
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	w := testWriter()
	path := filepath.Join(t.TempDir(), "summary.csv")
	rows := []domain.SummaryRow{
		{Pair: "weth-usdc", Count: 2, TotalUSD: 20000, AvgUSD: 10000},
		{Pair: "uni-weth", Count: 1, TotalUSD: 6000, AvgUSD: 6000},
	}

	wrote, err := w.WriteSummaryCSV(path, rows)
	if err != nil {
		t.Fatalf("WriteSummaryCSV: %v", err)
	}
	if !wrote {
		t.Fatal("First write should not be skipped")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Got %d lines, want header + 2 rows", len(lines))
	}
	if lines[0] != "pair,count,totalUSD,avgUSD" {
		t.Errorf("Header = %q", lines[0])
	}
	if lines[1] != "weth-usdc,2,20000.00,10000.00" {
		t.Errorf("Row = %q", lines[1])
	}

	// Identical rows skip the rewrite.
	wrote, err = w.WriteSummaryCSV(path, rows)
	if err != nil {
		t.Fatal(err)
	}
	if wrote {
		t.Error("Identical rows should skip the second write")
	}
}
