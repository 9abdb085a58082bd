package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/steveyegge/parity/internal/types"
)

// RawResponse is one judge round trip kept for audit.
type RawResponse struct {
	Iteration int                   `json:"iteration"`
	View      string                `json:"view"`
	Reference types.ReferenceSource `json:"reference"`
	Text      string                `json:"text,omitempty"`
	Error     string                `json:"error,omitempty"`
	At        time.Time             `json:"at"`
}

// WriteIteration writes iteration-N/judge-results.json.
func (w *Writer) WriteIteration(result types.IterationResult) error {
	path := filepath.Join(w.IterationDir(result.Iteration), JudgeResultsFile)
	return writeJSON(path, result)
}

// WriteRunSummary writes run-summary.json at the output root.
func (w *Writer) WriteRunSummary(summary types.RunSummary) error {
	if summary.Iterations == nil {
		summary.Iterations = []types.IterationResult{}
	}
	return writeJSON(filepath.Join(w.OutDir, RunSummaryFile), summary)
}

// WriteRawResponses writes iteration-N/judge-raw.jsonl.zst, one JSON object
// per line.
func (w *Writer) WriteRawResponses(iteration int, responses []RawResponse) (string, error) {
	dir := w.IterationDir(iteration)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create iteration dir: %w", err)
	}
	destPath := filepath.Join(dir, JudgeRawFile)

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer dest.Close()

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder: %w", err)
	}

	enc := json.NewEncoder(encoder)
	for _, r := range responses {
		if err := enc.Encode(r); err != nil {
			encoder.Close()
			return "", fmt.Errorf("compress: %w", err)
		}
	}

	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}
	return destPath, nil
}

// ReadRawResponses decodes an archive written by WriteRawResponses.
func ReadRawResponses(path string) ([]RawResponse, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	decoder, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	var out []RawResponse
	reader := bufio.NewReader(decoder)
	dec := json.NewDecoder(reader)
	for {
		var r RawResponse
		if err := dec.Decode(&r); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode raw response: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
