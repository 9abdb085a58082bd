package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/steveyegge/parity/internal/types"
	"gopkg.in/yaml.v3"
)

// LoadRouteMatrix reads a route matrix file. JSON is a subset of YAML, so
// both .json and .yaml matrices go through the same decoder.
func LoadRouteMatrix(path string) (*types.RouteMatrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route matrix: %w", err)
	}

	var matrix types.RouteMatrix
	if err := yaml.Unmarshal(data, &matrix); err != nil {
		return nil, fmt.Errorf("parsing route matrix %s: %w", path, err)
	}
	if err := matrix.Validate(); err != nil {
		return nil, fmt.Errorf("invalid route matrix %s: %w", path, err)
	}
	return &matrix, nil
}

// WithPort rewrites the matrix base URL to http://localhost:<port> when a
// port is given. Zero keeps the file's base URL.
func WithPort(matrix *types.RouteMatrix, port int) *types.RouteMatrix {
	if port <= 0 {
		return matrix
	}
	out := *matrix
	out.BaseURL = "http://localhost:" + strconv.Itoa(port)
	return &out
}

// FixNotes maps a pass number to the corrective actions taken before it.
type FixNotes map[int][]string

// LoadFixNotes reads an optional YAML file of operator notes:
//
//	2:
//	  - tightened heading font stack
//	3:
//	  - restored focus ring token
//
// A missing file is not an error.
func LoadFixNotes(path string) (FixNotes, error) {
	if path == "" {
		return FixNotes{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FixNotes{}, nil
		}
		return nil, fmt.Errorf("reading fix notes: %w", err)
	}
	notes := FixNotes{}
	if err := yaml.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("parsing fix notes %s: %w", path, err)
	}
	return notes, nil
}

// BaselinePath returns the frozen baseline file for a view.
func (c HarnessConfig) BaselinePath(view ViewConfig) string {
	return filepath.Join(c.Parity.BaselineDir, view.Baseline)
}
