package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/guard"
	"github.com/sevigo/reviewflow/internal/storage"
)

const webhookSecret = "test-secret"

// captureQueue records enqueued jobs instead of running them.
type captureQueue struct {
	jobs []*core.ReviewJob
	err  error
}

func (q *captureQueue) Enqueue(_ context.Context, job *core.ReviewJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type prPayload struct {
	action string
	number int
	sha    string
	draft  bool
	merged bool
}

func marshalPullRequestEvent(t *testing.T, p prPayload) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"action": p.action,
		"number": p.number,
		"pull_request": map[string]any{
			"number": p.number,
			"title":  "Add cache",
			"draft":  p.draft,
			"merged": p.merged,
			"head":   map[string]any{"sha": p.sha},
		},
		"repository": map[string]any{
			"name":      "widgets",
			"full_name": "acme/widgets",
			"owner":     map[string]any{"login": "acme"},
		},
		"installation": map[string]any{"id": 1234},
	})
	require.NoError(t, err)
	return body
}

func signedRequest(t *testing.T, event, deliveryID string, body []byte) *http.Request {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", deliveryID)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func newTestHandler(t *testing.T, queue *captureQueue) *WebhookHandler {
	t.Helper()
	cfg := &config.Config{GitHubWebhookSecret: webhookSecret}
	log := slog.New(slog.DiscardHandler)
	store := storage.NewMemoryStore()
	return NewWebhookHandler(cfg, guard.New(store, log), queue, log)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	queue := &captureQueue{}
	h := newTestHandler(t, queue)

	body := marshalPullRequestEvent(t, prPayload{action: "opened", number: 7, sha: "abc123"})
	req := signedRequest(t, "pull_request", "d-1", body)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(bytes.Repeat([]byte{0xaa}, 32)))

	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, queue.jobs)
}

func TestWebhookAcceptsPullRequest(t *testing.T) {
	queue := &captureQueue{}
	h := newTestHandler(t, queue)

	body := marshalPullRequestEvent(t, prPayload{action: "opened", number: 7, sha: "abc123"})
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "pull_request", "d-1", body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.jobs, 1)
	job := queue.jobs[0]
	assert.Equal(t, "acme/widgets", job.RepoFullName)
	assert.Equal(t, 7, job.PRNumber)
	assert.Equal(t, "abc123", job.HeadSHA)
	assert.Equal(t, int64(1234), job.InstallationID)
	assert.Equal(t, core.StatusQueued, job.Status)
}

func TestWebhookDropsDuplicateDelivery(t *testing.T) {
	queue := &captureQueue{}
	h := newTestHandler(t, queue)

	body := marshalPullRequestEvent(t, prPayload{action: "opened", number: 7, sha: "abc123"})

	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "pull_request", "d-1", body))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "pull_request", "d-1", body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dropped")
	assert.Len(t, queue.jobs, 1, "the duplicate must not enqueue a second job")
}

func TestWebhookIgnoresNonReviewableEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload prPayload
		want    string
	}{
		{
			name:    "closed action",
			payload: prPayload{action: "closed", number: 7, sha: "abc123"},
			want:    "Event ignored",
		},
		{
			name:    "merged pull request",
			payload: prPayload{action: "synchronize", number: 7, sha: "abc123", merged: true},
			want:    "Merged pull request ignored",
		},
		{
			name:    "draft pull request",
			payload: prPayload{action: "opened", number: 7, sha: "abc123", draft: true},
			want:    "Draft pull request ignored",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &captureQueue{}
			h := newTestHandler(t, queue)

			body := marshalPullRequestEvent(t, tt.payload)
			rec := httptest.NewRecorder()
			h.Handle(rec, signedRequest(t, "pull_request", "d-1", body))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, queue.jobs)
		})
	}
}

func TestWebhookReviewsDraftsWhenConfigured(t *testing.T) {
	queue := &captureQueue{}
	cfg := &config.Config{GitHubWebhookSecret: webhookSecret, ReviewDraftPRs: true}
	log := slog.New(slog.DiscardHandler)
	h := NewWebhookHandler(cfg, guard.New(storage.NewMemoryStore(), log), queue, log)

	body := marshalPullRequestEvent(t, prPayload{action: "opened", number: 7, sha: "abc123", draft: true})
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "pull_request", "d-1", body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, queue.jobs, 1)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	queue := &captureQueue{}
	h := newTestHandler(t, queue)

	body := []byte(`{"zen":"Keep it logically awesome."}`)
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "ping", "d-1", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not handled")
	assert.Empty(t, queue.jobs)
}

func TestWebhookEnqueueFailure(t *testing.T) {
	queue := &captureQueue{err: fmt.Errorf("queue is down")}
	h := newTestHandler(t, queue)

	body := marshalPullRequestEvent(t, prPayload{action: "opened", number: 7, sha: "abc123"})
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, "pull_request", "d-1", body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
