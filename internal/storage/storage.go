package storage

import (
	"context"

	"github.com/steveyegge/parity/internal/storage/sqlite"
	"github.com/steveyegge/parity/internal/types"
)

// History records runs and their passes.
type History interface {
	CreateRun(ctx context.Context, run *types.RunRecord) error
	FinishRun(ctx context.Context, run *types.RunRecord) error
	RecordPass(ctx context.Context, pass *types.PassRecord) error

	GetRun(ctx context.Context, id string) (*types.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*types.RunRecord, error)
	GetPasses(ctx context.Context, runID string) ([]*types.PassRecord, error)

	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".parity/history.db"
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".parity/history.db",
	}
}

// NewStorage opens the run history store.
func NewStorage(ctx context.Context, cfg *Config) (History, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return sqlite.New(ctx, cfg.Path)
}

// Nop discards everything. It is used when history is disabled.
type Nop struct{}

func (Nop) CreateRun(context.Context, *types.RunRecord) error              { return nil }
func (Nop) FinishRun(context.Context, *types.RunRecord) error              { return nil }
func (Nop) RecordPass(context.Context, *types.PassRecord) error            { return nil }
func (Nop) GetRun(context.Context, string) (*types.RunRecord, error)       { return nil, sqlite.ErrRunNotFound }
func (Nop) ListRuns(context.Context, int) ([]*types.RunRecord, error)      { return nil, nil }
func (Nop) GetPasses(context.Context, string) ([]*types.PassRecord, error) { return nil, nil }
func (Nop) Close() error                                                   { return nil }
