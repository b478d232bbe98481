package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/storage"
)

// recordingRunner collects the jobs it ran.
type recordingRunner struct {
	mu   sync.Mutex
	ran  []string
	done chan string
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{done: make(chan string, 16)}
}

func (r *recordingRunner) Run(_ context.Context, job *core.ReviewJob) error {
	r.mu.Lock()
	r.ran = append(r.ran, job.ID)
	r.mu.Unlock()
	r.done <- job.ID
	return nil
}

func seedQueuedJob(t *testing.T, store storage.Store, id string) *core.ReviewJob {
	t.Helper()
	job := &core.ReviewJob{
		ID:           id,
		RepoOwner:    "acme",
		RepoName:     "widgets",
		RepoFullName: "acme/widgets",
		PRNumber:     1,
		HeadSHA:      "sha-" + id,
		Status:       core.StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	return job
}

func TestWorkerPoolRunsEnqueuedJob(t *testing.T) {
	store := storage.NewMemoryStore()
	runner := newRecordingRunner()
	pool := NewWorkerPool(store, runner, 2, 50*time.Millisecond, time.Minute, slog.New(slog.DiscardHandler))
	pool.Start()
	defer pool.Stop()

	job := seedQueuedJob(t, store, "j-1")
	require.NoError(t, pool.Enqueue(context.Background(), job))

	select {
	case ranID := <-runner.done:
		assert.Equal(t, "j-1", ranID)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed in time")
	}
}

func TestWorkerPoolPicksUpJobsWithoutNudge(t *testing.T) {
	store := storage.NewMemoryStore()
	// The job exists before the pool starts, as after a process restart.
	seedQueuedJob(t, store, "j-restart")

	runner := newRecordingRunner()
	pool := NewWorkerPool(store, runner, 1, 20*time.Millisecond, time.Minute, slog.New(slog.DiscardHandler))
	pool.Start()
	defer pool.Stop()

	select {
	case ranID := <-runner.done:
		assert.Equal(t, "j-restart", ranID)
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not pick up the persisted job")
	}
}

func TestWorkerPoolRunsEachJobOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	runner := newRecordingRunner()
	pool := NewWorkerPool(store, runner, 4, 20*time.Millisecond, time.Minute, slog.New(slog.DiscardHandler))
	pool.Start()

	for _, id := range []string{"j-1", "j-2", "j-3"} {
		job := seedQueuedJob(t, store, id)
		require.NoError(t, pool.Enqueue(context.Background(), job))
	}

	seen := map[string]int{}
	for range 3 {
		select {
		case id := <-runner.done:
			seen[id]++
		case <-time.After(2 * time.Second):
			t.Fatal("jobs were not executed in time")
		}
	}
	pool.Stop()

	assert.Len(t, seen, 3)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s ran %d times", id, n)
	}
}

func TestWorkerPoolReclaimsOrphanedJob(t *testing.T) {
	store := storage.NewMemoryStore()
	seedQueuedJob(t, store, "j-orphan")

	// Claim the job directly, as a worker that crashed mid-run would have.
	claimed, err := store.ClaimQueuedJob(context.Background())
	require.NoError(t, err)
	require.Equal(t, "j-orphan", claimed.ID)
	require.Equal(t, core.StatusRunning, claimed.Status)

	runner := newRecordingRunner()
	pool := NewWorkerPool(store, runner, 1, 20*time.Millisecond, 50*time.Millisecond, slog.New(slog.DiscardHandler))
	pool.Start()
	defer pool.Stop()

	select {
	case ranID := <-runner.done:
		assert.Equal(t, "j-orphan", ranID)
	case <-time.After(2 * time.Second):
		t.Fatal("stranded job was never re-claimed")
	}
}

func TestSyncQueueRunsInline(t *testing.T) {
	runner := newRecordingRunner()
	q := NewSyncQueue(runner, slog.New(slog.DiscardHandler))

	job := &core.ReviewJob{ID: "j-1", Status: core.StatusQueued}
	require.NoError(t, q.Enqueue(context.Background(), job))

	// Enqueue returns only after the job ran.
	assert.Equal(t, []string{"j-1"}, runner.ran)
}

func TestNewSelectsBackend(t *testing.T) {
	store := storage.NewMemoryStore()
	runner := newRecordingRunner()
	log := slog.New(slog.DiscardHandler)

	tests := []struct {
		mode    config.QueueMode
		wantErr bool
	}{
		{mode: config.QueueEmbedded},
		{mode: config.QueueDurable},
		{mode: config.QueueSync},
		{mode: config.QueueMode("bogus"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			q, err := New(&config.Config{QueueMode: tt.mode, MaxWorkers: 1, PollInterval: time.Second}, store, runner, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, q)
		})
	}
}
