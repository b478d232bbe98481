package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/reviewflow/internal/core"
)

func seedJob(t *testing.T, store Store, id string, createdAt time.Time) *core.ReviewJob {
	t.Helper()
	job := &core.ReviewJob{
		ID:           id,
		RepoOwner:    "acme",
		RepoName:     "widgets",
		RepoFullName: "acme/widgets",
		PRNumber:     1,
		HeadSHA:      "sha-" + id,
		Status:       core.StatusQueued,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	return job
}

func TestMemoryStoreRecordDelivery(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	fresh, err := store.RecordDelivery(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.RecordDelivery(ctx, "d-1")
	require.NoError(t, err)
	assert.False(t, fresh, "second record of the same delivery must report seen")
}

func TestMemoryStoreForgetDelivery(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	fresh, err := store.RecordDelivery(ctx, "d-1")
	require.NoError(t, err)
	require.True(t, fresh)

	require.NoError(t, store.ForgetDelivery(ctx, "d-1"))

	// A redelivery after the ID was released is fresh again.
	fresh, err = store.RecordDelivery(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryStoreRequeueStaleJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedJob(t, store, "j-1", time.Now().UTC())
	claimed, err := store.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	require.Equal(t, "j-1", claimed.ID)

	done := seedJob(t, store, "j-done", time.Now().UTC())
	require.NoError(t, store.TransitionJob(ctx, done.ID, core.StatusCompleted))

	// The lease is still fresh: nothing moves.
	n, err := store.RequeueStaleJobs(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	// Cutoff in the future makes the claimed job stale; the completed one
	// stays terminal.
	n, err = store.RequeueStaleJobs(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := store.JobStatus(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusQueued, status)

	status, err = store.JobStatus(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, status)

	reclaimed, err := store.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, "j-1", reclaimed.ID)
	assert.Equal(t, 2, reclaimed.AttemptCount, "a re-queued job counts a new attempt")
}

func TestMemoryStoreClaimOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	seedJob(t, store, "newer", base.Add(time.Minute))
	seedJob(t, store, "older", base)

	first, err := store.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "older", first.ID, "claiming must be oldest-first")
	assert.Equal(t, core.StatusRunning, first.Status)
	assert.Equal(t, 1, first.AttemptCount)

	second, err := store.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "newer", second.ID)

	third, err := store.ClaimQueuedJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, third, "empty queue must claim nothing")
}

func TestMemoryStoreTerminalTransitionGuard(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := seedJob(t, store, "j-1", time.Now().UTC())

	require.NoError(t, store.TransitionJob(ctx, job.ID, core.StatusRunning))
	require.NoError(t, store.TransitionJob(ctx, job.ID, core.StatusFailed))

	// A terminal status is written exactly once; later writers lose.
	err := store.TransitionJob(ctx, job.ID, core.StatusCompleted)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTerminalState)

	status, err := store.JobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, status)
}

func TestMemoryStoreTransitionUnknownJob(t *testing.T) {
	store := NewMemoryStore()
	err := store.TransitionJob(context.Background(), "nope", core.StatusRunning)
	assert.Error(t, err)
}

func TestMemoryStoreActiveJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := seedJob(t, store, "j-1", time.Now().UTC())

	active, err := store.ActiveJob(ctx, "acme/widgets", 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, job.ID, active.ID)

	require.NoError(t, store.TransitionJob(ctx, job.ID, core.StatusCompleted))

	active, err = store.ActiveJob(ctx, "acme/widgets", 1)
	require.NoError(t, err)
	assert.Nil(t, active, "terminal jobs are not active")
}

func TestMemoryStoreLastCompletedSHA(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sha, err := store.LastCompletedSHA(ctx, "acme/widgets", 1)
	require.NoError(t, err)
	assert.Empty(t, sha)

	older := seedJob(t, store, "j-1", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, store.TransitionJob(ctx, older.ID, core.StatusCompleted))

	newer := seedJob(t, store, "j-2", time.Now().UTC())
	require.NoError(t, store.TransitionJob(ctx, newer.ID, core.StatusCompleted))

	sha, err = store.LastCompletedSHA(ctx, "acme/widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, "sha-j-2", sha, "the most recent completion wins")
}

func TestMemoryStoreCommentRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	missing, err := store.Comment(ctx, "j-1", 1, 0)
	require.NoError(t, err)
	assert.Nil(t, missing)

	comment := &core.ReviewComment{
		JobID:        "j-1",
		Ordinal:      1,
		FindingIndex: 0,
		FilePath:     "a.go",
		Line:         3,
		Body:         "fix this",
		PostStatus:   core.PostPending,
	}
	require.NoError(t, store.SaveComment(ctx, comment))

	// Posting succeeded; the same key is updated in place.
	comment.ExternalID = 9001
	comment.PostStatus = core.PostPosted
	require.NoError(t, store.SaveComment(ctx, comment))

	got, err := store.Comment(ctx, "j-1", 1, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9001), got.ExternalID)
	assert.Equal(t, core.PostPosted, got.PostStatus)
}

func TestMemoryStoreSaveChunks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	chunks := []core.DiffChunk{
		{JobID: "j-1", Ordinal: 0, Content: "summary"},
		{JobID: "j-1", Ordinal: 1, FilePath: "a.go", Content: "file diff"},
	}
	require.NoError(t, store.SaveChunks(ctx, chunks))
	require.NoError(t, store.SaveChunks(ctx, nil))
}
