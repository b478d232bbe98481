package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/reviewflow/internal/core"
)

const jobColumns = `id, repo_owner, repo_name, repo_full_name, pr_number, pr_title,
	head_sha, installation_id, status, attempt_count, created_at, updated_at`

// terminalStatuses is inlined into queries that must exclude finished jobs.
const terminalStatuses = `('completed', 'failed', 'superseded', 'cancelled')`

// sqlStore implements Store over sqlx for both the Postgres and SQLite
// backends. Queries are written with '?' placeholders and rebound per driver;
// only job claiming differs between the two.
type sqlStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	// skipLocked is true when the backend supports FOR UPDATE SKIP LOCKED,
	// which lets independent worker processes claim jobs concurrently.
	skipLocked bool
}

func (s *sqlStore) RecordDelivery(ctx context.Context, deliveryID string) (bool, error) {
	query := s.db.Rebind(`INSERT INTO deliveries (delivery_id, received_at) VALUES (?, ?)
		ON CONFLICT (delivery_id) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query, deliveryID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqlStore) ForgetDelivery(ctx context.Context, deliveryID string) error {
	query := s.db.Rebind(`DELETE FROM deliveries WHERE delivery_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, deliveryID); err != nil {
		return fmt.Errorf("failed to release delivery: %w", err)
	}
	return nil
}

func (s *sqlStore) ActiveJob(ctx context.Context, repoFullName string, prNumber int) (*core.ReviewJob, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM review_jobs
		WHERE repo_full_name = ? AND pr_number = ? AND status NOT IN ` + terminalStatuses + `
		LIMIT 1`)

	var job core.ReviewJob
	err := s.db.GetContext(ctx, &job, query, repoFullName, prNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active job: %w", err)
	}
	return &job, nil
}

func (s *sqlStore) CreateJob(ctx context.Context, job *core.ReviewJob) error {
	query := s.db.Rebind(`INSERT INTO review_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.RepoOwner, job.RepoName, job.RepoFullName, job.PRNumber, job.PRTitle,
		job.HeadSHA, job.InstallationID, job.Status, job.AttemptCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *sqlStore) JobStatus(ctx context.Context, jobID string) (core.JobStatus, error) {
	query := s.db.Rebind(`SELECT status FROM review_jobs WHERE id = ?`)
	var status core.JobStatus
	if err := s.db.GetContext(ctx, &status, query, jobID); err != nil {
		return "", fmt.Errorf("failed to query job status: %w", err)
	}
	return status, nil
}

func (s *sqlStore) TransitionJob(ctx context.Context, jobID string, to core.JobStatus) error {
	query := s.db.Rebind(`UPDATE review_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ` + terminalStatuses)
	res, err := s.db.ExecContext(ctx, query, to, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to transition job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the job is unknown or its terminal status was written already.
		current, statusErr := s.JobStatus(ctx, jobID)
		if statusErr != nil {
			return fmt.Errorf("job %s not found: %w", jobID, statusErr)
		}
		if current.Terminal() {
			return fmt.Errorf("job %s is %s: %w", jobID, current, core.ErrTerminalState)
		}
		return fmt.Errorf("job %s could not be transitioned to %s", jobID, to)
	}
	return nil
}

func (s *sqlStore) ClaimQueuedJob(ctx context.Context) (*core.ReviewJob, error) {
	if s.skipLocked {
		return s.claimSkipLocked(ctx)
	}
	return s.claimSerialized(ctx)
}

// claimSkipLocked claims via FOR UPDATE SKIP LOCKED so any number of worker
// processes can poll the same broker table without contention.
func (s *sqlStore) claimSkipLocked(ctx context.Context) (*core.ReviewJob, error) {
	query := `UPDATE review_jobs SET status = 'running', updated_at = $1, attempt_count = attempt_count + 1
		WHERE id = (
			SELECT id FROM review_jobs WHERE status = 'queued'
			ORDER BY created_at LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var job core.ReviewJob
	err := s.db.GetContext(ctx, &job, query, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim queued job: %w", err)
	}
	return &job, nil
}

// claimSerialized claims inside a transaction; SQLite writers serialize, so a
// plain select-then-update with a status guard is race-free.
func (s *sqlStore) claimSerialized(ctx context.Context) (*core.ReviewJob, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var job core.ReviewJob
	err = tx.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM review_jobs
		WHERE status = 'queued' ORDER BY created_at LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select queued job: %w", err)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE review_jobs
		SET status = 'running', updated_at = ?, attempt_count = attempt_count + 1
		WHERE id = ? AND status = 'queued'`), time.Now().UTC(), job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil // lost the race to another worker
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = core.StatusRunning
	job.AttemptCount++
	return &job, nil
}

func (s *sqlStore) RequeueStaleJobs(ctx context.Context, olderThan time.Time) (int, error) {
	query := s.db.Rebind(`UPDATE review_jobs SET status = 'queued', updated_at = ?
		WHERE status NOT IN ` + terminalStatuses + ` AND status != 'queued' AND updated_at < ?`)
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to re-queue stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqlStore) SaveChunks(ctx context.Context, chunks []core.DiffChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	query := s.db.Rebind(`INSERT INTO diff_chunks
		(job_id, ordinal, file_path, hunk_start, hunk_end, token_estimate, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, ordinal) DO NOTHING`)

	for _, c := range chunks {
		_, err := s.db.ExecContext(ctx, query,
			c.JobID, c.Ordinal, c.FilePath, c.HunkRange.Start, c.HunkRange.End, c.TokenEstimate, c.Content)
		if err != nil {
			return fmt.Errorf("failed to save chunk %d of job %s: %w", c.Ordinal, c.JobID, err)
		}
	}
	return nil
}

func (s *sqlStore) SaveComment(ctx context.Context, comment *core.ReviewComment) error {
	query := s.db.Rebind(`INSERT INTO review_comments
		(job_id, ordinal, finding_index, file_path, line, body, external_id, post_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, ordinal, finding_index) DO UPDATE SET
			external_id = excluded.external_id,
			post_status = excluded.post_status,
			body = excluded.body`)
	_, err := s.db.ExecContext(ctx, query,
		comment.JobID, comment.Ordinal, comment.FindingIndex,
		comment.FilePath, comment.Line, comment.Body, comment.ExternalID, comment.PostStatus)
	if err != nil {
		return fmt.Errorf("failed to save comment: %w", err)
	}
	return nil
}

func (s *sqlStore) Comment(ctx context.Context, jobID string, ordinal, findingIndex int) (*core.ReviewComment, error) {
	query := s.db.Rebind(`SELECT job_id, ordinal, finding_index, file_path, line, body, external_id, post_status
		FROM review_comments WHERE job_id = ? AND ordinal = ? AND finding_index = ?`)

	var c core.ReviewComment
	err := s.db.GetContext(ctx, &c, query, jobID, ordinal, findingIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query comment: %w", err)
	}
	return &c, nil
}

func (s *sqlStore) LastCompletedSHA(ctx context.Context, repoFullName string, prNumber int) (string, error) {
	query := s.db.Rebind(`SELECT head_sha FROM review_jobs
		WHERE repo_full_name = ? AND pr_number = ? AND status = 'completed'
		ORDER BY updated_at DESC LIMIT 1`)

	var sha string
	err := s.db.GetContext(ctx, &sha, query, repoFullName, prNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last completed SHA: %w", err)
	}
	return sha, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
