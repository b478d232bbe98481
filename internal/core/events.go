// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"fmt"
	"time"

	"github.com/google/go-github/v73/github"
)

// ReviewEvent represents a simplified, internal view of a pull request webhook
// delivery. DeliveryID is the identity key for deduplication; the pair
// (RepoFullName, PRNumber) is the causal key for supersession.
type ReviewEvent struct {
	DeliveryID   string
	Action       string
	RepoOwner    string
	RepoName     string
	RepoFullName string
	PRNumber     int
	PRTitle      string
	HeadSHA      string
	Draft        bool
	Merged       bool

	InstallationID int64
	ReceivedAt     time.Time
}

// reviewableActions are the pull request actions that trigger a review.
var reviewableActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// EventFromPullRequest transforms a raw GitHub PullRequestEvent into the
// application's internal ReviewEvent representation. It acts as an
// anti-corruption layer, ensuring the incoming webhook payload is valid and
// contains all the data a review job needs before anything is admitted.
func EventFromPullRequest(deliveryID string, event *github.PullRequestEvent) (*ReviewEvent, error) {
	if deliveryID == "" {
		return nil, fmt.Errorf("delivery ID is missing from the event")
	}

	if !reviewableActions[event.GetAction()] {
		return nil, fmt.Errorf("action %q does not trigger a review", event.GetAction())
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetOwner() == nil || repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, fmt.Errorf("repository or owner information is missing from the event")
	}

	pr := event.GetPullRequest()
	if pr == nil {
		return nil, fmt.Errorf("pull request information is missing from the event")
	}
	if event.GetNumber() <= 0 {
		return nil, fmt.Errorf("invalid pull request number: %d", event.GetNumber())
	}
	if pr.GetHead().GetSHA() == "" {
		return nil, fmt.Errorf("head commit SHA is missing from the event")
	}

	return &ReviewEvent{
		DeliveryID:     deliveryID,
		Action:         event.GetAction(),
		RepoOwner:      repo.GetOwner().GetLogin(),
		RepoName:       repo.GetName(),
		RepoFullName:   repo.GetFullName(),
		PRNumber:       event.GetNumber(),
		PRTitle:        pr.GetTitle(),
		HeadSHA:        pr.GetHead().GetSHA(),
		Draft:          pr.GetDraft(),
		Merged:         pr.GetMerged(),
		InstallationID: event.GetInstallation().GetID(),
		ReceivedAt:     time.Now().UTC(),
	}, nil
}
