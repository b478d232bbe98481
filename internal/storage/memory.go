package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sevigo/reviewflow/internal/core"
)

// memoryStore keeps everything in process memory. It backs synchronous queue
// mode, where losing state on a crash is documented behavior, and unit tests.
type memoryStore struct {
	mu         sync.Mutex
	deliveries map[string]struct{}
	jobs       map[string]*core.ReviewJob
	chunks     map[string][]core.DiffChunk
	comments   map[string]*core.ReviewComment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		deliveries: make(map[string]struct{}),
		jobs:       make(map[string]*core.ReviewJob),
		chunks:     make(map[string][]core.DiffChunk),
		comments:   make(map[string]*core.ReviewComment),
	}
}

func commentKey(jobID string, ordinal, findingIndex int) string {
	return fmt.Sprintf("%s/%d/%d", jobID, ordinal, findingIndex)
}

func (s *memoryStore) RecordDelivery(_ context.Context, deliveryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.deliveries[deliveryID]; seen {
		return false, nil
	}
	s.deliveries[deliveryID] = struct{}{}
	return true, nil
}

func (s *memoryStore) ForgetDelivery(_ context.Context, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deliveries, deliveryID)
	return nil
}

func (s *memoryStore) ActiveJob(_ context.Context, repoFullName string, prNumber int) (*core.ReviewJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.RepoFullName == repoFullName && job.PRNumber == prNumber && !job.Status.Terminal() {
			j := *job
			return &j, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CreateJob(_ context.Context, job *core.ReviewJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	j := *job
	s.jobs[job.ID] = &j
	return nil
}

func (s *memoryStore) JobStatus(_ context.Context, jobID string) (core.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("job %s not found", jobID)
	}
	return job.Status, nil
}

func (s *memoryStore) TransitionJob(_ context.Context, jobID string, to core.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, core.ErrTerminalState)
	}
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryStore) ClaimQueuedJob(_ context.Context) (*core.ReviewJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []*core.ReviewJob
	for _, job := range s.jobs {
		if job.Status == core.StatusQueued {
			queued = append(queued, job)
		}
	}
	if len(queued) == 0 {
		return nil, nil
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].CreatedAt.Before(queued[j].CreatedAt) })

	job := queued[0]
	job.Status = core.StatusRunning
	job.AttemptCount++
	job.UpdatedAt = time.Now().UTC()
	j := *job
	return &j, nil
}

func (s *memoryStore) RequeueStaleJobs(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, job := range s.jobs {
		if job.Status == core.StatusQueued || job.Status.Terminal() {
			continue
		}
		if job.UpdatedAt.Before(olderThan) {
			job.Status = core.StatusQueued
			job.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) SaveChunks(_ context.Context, chunks []core.DiffChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	jobID := chunks[0].JobID
	s.chunks[jobID] = append([]core.DiffChunk(nil), chunks...)
	return nil
}

func (s *memoryStore) SaveComment(_ context.Context, comment *core.ReviewComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *comment
	s.comments[commentKey(comment.JobID, comment.Ordinal, comment.FindingIndex)] = &c
	return nil
}

func (s *memoryStore) Comment(_ context.Context, jobID string, ordinal, findingIndex int) (*core.ReviewComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentKey(jobID, ordinal, findingIndex)]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (s *memoryStore) LastCompletedSHA(_ context.Context, repoFullName string, prNumber int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *core.ReviewJob
	for _, job := range s.jobs {
		if job.RepoFullName != repoFullName || job.PRNumber != prNumber || job.Status != core.StatusCompleted {
			continue
		}
		if latest == nil || job.UpdatedAt.After(latest.UpdatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return "", nil
	}
	return latest.HeadSHA, nil
}

func (s *memoryStore) Close() error {
	return nil
}
