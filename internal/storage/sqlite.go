package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	// CGO-free SQLite driver, registered as "sqlite3".
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// sqliteSchema mirrors the Postgres migration in SQLite dialect. Embedded
// mode owns its file, so DDL at open replaces a migration history.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
    delivery_id TEXT PRIMARY KEY,
    received_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS review_jobs (
    id              TEXT PRIMARY KEY,
    repo_owner      TEXT NOT NULL,
    repo_name       TEXT NOT NULL,
    repo_full_name  TEXT NOT NULL,
    pr_number       INTEGER NOT NULL,
    pr_title        TEXT NOT NULL DEFAULT '',
    head_sha        TEXT NOT NULL,
    installation_id INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    attempt_count   INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMP NOT NULL,
    updated_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_jobs_pr ON review_jobs (repo_full_name, pr_number);
CREATE INDEX IF NOT EXISTS idx_review_jobs_status ON review_jobs (status, created_at);

CREATE UNIQUE INDEX IF NOT EXISTS idx_review_jobs_active
    ON review_jobs (repo_full_name, pr_number)
    WHERE status NOT IN ('completed', 'failed', 'superseded', 'cancelled');

CREATE TABLE IF NOT EXISTS diff_chunks (
    job_id         TEXT NOT NULL REFERENCES review_jobs (id) ON DELETE CASCADE,
    ordinal        INTEGER NOT NULL,
    file_path      TEXT NOT NULL DEFAULT '',
    hunk_start     INTEGER NOT NULL DEFAULT 0,
    hunk_end       INTEGER NOT NULL DEFAULT 0,
    token_estimate INTEGER NOT NULL DEFAULT 0,
    content        TEXT NOT NULL,
    PRIMARY KEY (job_id, ordinal)
);

CREATE TABLE IF NOT EXISTS review_comments (
    job_id        TEXT NOT NULL REFERENCES review_jobs (id) ON DELETE CASCADE,
    ordinal       INTEGER NOT NULL,
    finding_index INTEGER NOT NULL,
    file_path     TEXT NOT NULL DEFAULT '',
    line          INTEGER NOT NULL DEFAULT 0,
    body          TEXT NOT NULL DEFAULT '',
    external_id   INTEGER NOT NULL DEFAULT 0,
    post_status   TEXT NOT NULL DEFAULT 'pending',
    PRIMARY KEY (job_id, ordinal, finding_index)
);
`

// NewSQLiteStore opens (or creates) the embedded-mode queue file and applies
// the schema. Jobs in this store survive process restarts on a single node.
func NewSQLiteStore(path string, logger *slog.Logger) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}

	conn, err := sqlx.Connect("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	// A single writer avoids SQLITE_BUSY churn between workers.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	// The queue file belongs to exactly one process, so any job still marked
	// in-flight at open was orphaned by a crash. Put it back on the queue.
	res, err := conn.Exec(conn.Rebind(`UPDATE review_jobs SET status = 'queued', updated_at = ?
		WHERE status NOT IN `+terminalStatuses+` AND status != 'queued'`), time.Now().UTC())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to re-queue orphaned jobs: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Warn("re-queued jobs orphaned by a previous run", "count", n)
	}

	logger.Info("embedded queue store ready", "path", path)
	return &sqlStore{db: conn, logger: logger, skipLocked: false}, nil
}
