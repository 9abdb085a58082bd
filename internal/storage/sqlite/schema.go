package sqlite

import "github.com/steveyegge/parity/internal/storage/migrations"

var schema = []migrations.Migration{
	{
		Version:     1,
		Description: "runs and passes",
		Up: `
-- One row per harness invocation
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK(kind IN ('review', 'parity')),
    policy TEXT NOT NULL,
    out_dir TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT,
    iterations INTEGER NOT NULL DEFAULT 0,
    pass INTEGER NOT NULL DEFAULT 0,
    min_loops_met INTEGER NOT NULL DEFAULT 0,
    stop_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

-- One row per pass (review) or iteration (parity)
CREATE TABLE IF NOT EXISTS passes (
    run_id TEXT NOT NULL,
    number INTEGER NOT NULL CHECK(number >= 1),
    focus TEXT NOT NULL DEFAULT '',
    score REAL NOT NULL DEFAULT 0,
    pass INTEGER NOT NULL DEFAULT 0,
    issue_count INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    PRIMARY KEY (run_id, number),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`,
		Down: `
DROP TABLE IF EXISTS passes;
DROP TABLE IF EXISTS runs;
`,
	},
}
