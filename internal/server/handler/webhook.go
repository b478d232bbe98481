// Package handler provides the HTTP handlers for the webhook intake.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/guard"
)

// WebhookHandler processes incoming webhooks from GitHub: it validates the
// signature, normalizes the payload, runs it through the admission guard, and
// enqueues accepted jobs.
type WebhookHandler struct {
	cfg    *config.Config
	guard  *guard.Guard
	queue  core.Queue
	logger *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(cfg *config.Config, g *guard.Guard, queue core.Queue, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:    cfg,
		guard:  g,
		queue:  queue,
		logger: logger,
	}
}

// Handle processes GitHub webhook requests.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.cfg.GitHubWebhookSecret))
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	switch e := event.(type) {
	case *github.PullRequestEvent:
		h.handlePullRequest(r.Context(), w, github.DeliveryID(r), e)
	default:
		h.logger.Debug("ignoring unhandled webhook event type", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
	}
}

// handlePullRequest admits a pull request event and enqueues the resulting
// job. Drops are acknowledged with 200 so GitHub does not redeliver.
func (h *WebhookHandler) handlePullRequest(ctx context.Context, w http.ResponseWriter, deliveryID string, event *github.PullRequestEvent) {
	reviewEvent, err := core.EventFromPullRequest(deliveryID, event)
	if err != nil {
		h.logger.Debug("ignoring pull request event", "reason", err.Error(), "repo", event.GetRepo().GetFullName())
		_, _ = fmt.Fprint(w, "Event ignored")
		return
	}

	if reviewEvent.Merged {
		h.logger.Debug("ignoring merged pull request", "repo", reviewEvent.RepoFullName, "pr", reviewEvent.PRNumber)
		_, _ = fmt.Fprint(w, "Merged pull request ignored")
		return
	}
	if reviewEvent.Draft && !h.cfg.ReviewDraftPRs {
		h.logger.Debug("ignoring draft pull request", "repo", reviewEvent.RepoFullName, "pr", reviewEvent.PRNumber)
		_, _ = fmt.Fprint(w, "Draft pull request ignored")
		return
	}

	decision, err := h.guard.Admit(ctx, reviewEvent)
	if err != nil {
		h.logger.Error("admission failed", "error", err, "repo", reviewEvent.RepoFullName, "pr", reviewEvent.PRNumber)
		http.Error(w, "Failed to admit event", http.StatusInternalServerError)
		return
	}

	if decision.Kind == core.DecisionDrop {
		h.logger.Info("event dropped",
			"reason", decision.Reason, "repo", reviewEvent.RepoFullName,
			"pr", reviewEvent.PRNumber, "delivery_id", reviewEvent.DeliveryID)
		_, _ = fmt.Fprint(w, "Event dropped: "+decision.Reason)
		return
	}

	if err := h.queue.Enqueue(ctx, decision.Job); err != nil {
		h.logger.Error("failed to enqueue review job", "error", err, "repo", reviewEvent.RepoFullName)
		http.Error(w, "Failed to start review job", http.StatusInternalServerError)
		return
	}

	h.logger.Info("review job admitted",
		"decision", decision.Kind.String(), "job_id", decision.Job.ID,
		"repo", reviewEvent.RepoFullName, "pr", reviewEvent.PRNumber,
		"superseded_job_id", decision.SupersededJobID)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, "Review job accepted")
}
