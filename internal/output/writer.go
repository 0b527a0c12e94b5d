package output

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"phoenix-pipeline/internal/domain"
)

// HashSuffix is appended to an artifact path to form its hash sidecar.
const HashSuffix = ".hash"

// Writer renders pipeline artifacts to disk. Every write is gated on the
// content hash of the data: unchanged data skips the write and any
// downstream effect keyed on "new output".
type Writer struct {
	logger *log.Logger
}

// NewWriter creates an artifact writer.
func NewWriter(logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{logger: logger}
}

// ShouldSkipWrite reports whether path already holds data with the same
// content hash. A missing artifact, missing sidecar, or unreadable sidecar
// means "write it": hash trouble degrades to writing, never to losing output.
func (w *Writer) ShouldSkipWrite(path string, data interface{}) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}

	existing, err := os.ReadFile(path + HashSuffix)
	if err != nil {
		return false
	}

	newHash, err := ComputeDataHash(data)
	if err != nil {
		w.logger.Printf("Could not hash data for %s: %v", path, err)
		return false
	}

	if strings.TrimSpace(string(existing)) == newHash {
		w.logger.Printf("Data unchanged, skipping write to %s", path)
		return true
	}
	return false
}

// WriteJSON writes data as indented JSON, gated on the content hash.
// Returns true when the file was written, false when skipped.
func (w *Writer) WriteJSON(path string, data interface{}) (bool, error) {
	if w.ShouldSkipWrite(path, data) {
		return false, nil
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal json: %w", err)
	}
	if err := w.writeArtifact(path, raw, data); err != nil {
		return false, err
	}
	return true, nil
}

// WriteSummaryCSV writes summary rows as CSV, gated on the content hash.
// Returns true when the file was written, false when skipped.
func (w *Writer) WriteSummaryCSV(path string, rows []domain.SummaryRow) (bool, error) {
	if w.ShouldSkipWrite(path, rows) {
		return false, nil
	}

	if err := w.writeArtifact(path, []byte(RenderSummaryCSV(rows)), rows); err != nil {
		return false, err
	}
	return true, nil
}

// RenderSummaryCSV renders summary rows as CSV string.
func RenderSummaryCSV(rows []domain.SummaryRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("pair,count,totalUSD,avgUSD\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%.2f,%.2f\n", r.Pair, r.Count, r.TotalUSD, r.AvgUSD))
	}

	return sb.String()
}

// writeArtifact writes content atomically and records the data hash in the
// sidecar. A sidecar write failure is logged, not fatal: the next run will
// rewrite the artifact, which is safe.
func (w *Writer) writeArtifact(path string, content []byte, data interface{}) error {
	if err := writeAtomic(path, content); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.logger.Printf("Wrote %d bytes to %s", len(content), path)

	hash, err := ComputeDataHash(data)
	if err != nil {
		w.logger.Printf("Could not hash data for %s: %v", path, err)
		return nil
	}
	if err := os.WriteFile(path+HashSuffix, []byte(hash), 0o644); err != nil {
		w.logger.Printf("Could not write hash sidecar for %s: %v", path, err)
	}
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
