// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// InlineComment is a single line-anchored review comment on a pull request.
type InlineComment struct {
	Path     string
	Line     int
	Body     string
	CommitID string
}

// Client defines the GitHub operations the review pipeline needs: fetching
// the PR diff and posting review output. Comments are posted one at a time so
// one rejected anchor cannot take the rest of the review down with it.
//
//go:generate mockgen -destination=../../mocks/mock_github_client.go -package=mocks . Client
type Client interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
	CreateReviewComment(ctx context.Context, owner, repo string, number int, comment *InlineComment) (int64, error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (int64, error)
}

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient wraps the official go-github client to provide a focused,
// testable interface for application-specific GitHub operations.
func NewGitHubClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient creates a new GitHub client authenticated with a Personal Access Token (PAT).
// This is useful for CLI tools or local development where an App installation is not available.
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)
	return &gitHubClient{client: client, logger: logger}
}

// GetPullRequest retrieves a single pull request by its number.
func (g *gitHubClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		g.logger.Error("failed to get pull request", "owner", owner, "repo", repo, "pr", number, "error", err)
		return nil, err
	}
	return pr, nil
}

// GetPullRequestDiff retrieves the diff of a pull request as a string.
func (g *gitHubClient) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, _, err := g.client.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{
		Type: github.Diff,
	})
	if err != nil {
		g.logger.Error("failed to get pull request diff", "owner", owner, "repo", repo, "pr", number, "error", err)
		return "", err
	}
	return diff, nil
}

// GetFileContent fetches one file from the repository at the given ref. Used
// to read the per-repo review policy at the PR's head commit.
func (g *gitHubClient) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	file, _, _, err := g.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []byte(content), nil
}

// CreateReviewComment posts a single line-anchored comment on the new side of
// the diff and returns the comment's ID.
func (g *gitHubClient) CreateReviewComment(ctx context.Context, owner, repo string, number int, comment *InlineComment) (int64, error) {
	ghComment := &github.PullRequestComment{
		Path:     github.Ptr(comment.Path),
		Line:     github.Ptr(comment.Line),
		Side:     github.Ptr("RIGHT"),
		Body:     github.Ptr(comment.Body),
		CommitID: github.Ptr(comment.CommitID),
	}

	created, _, err := g.client.PullRequests.CreateComment(ctx, owner, repo, number, ghComment)
	if err != nil {
		g.logger.Error("failed to create review comment",
			"owner", owner, "repo", repo, "pr", number,
			"path", comment.Path, "line", comment.Line, "error", err)
		return 0, err
	}
	return created.GetID(), nil
}

// CreateIssueComment posts a comment on the PR conversation and returns the
// comment's ID. Used for the review summary and for file-level feedback.
func (g *gitHubClient) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (int64, error) {
	created, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		g.logger.Error("failed to create comment", "owner", owner, "repo", repo, "pr", number, "error", err)
		return 0, err
	}
	return created.GetID(), nil
}
