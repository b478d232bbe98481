package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sevigo/reviewflow/internal/config"
	"github.com/sevigo/reviewflow/internal/core"
	"github.com/sevigo/reviewflow/internal/diff"
	"github.com/sevigo/reviewflow/internal/github"
	"github.com/sevigo/reviewflow/internal/llm"
	"github.com/sevigo/reviewflow/internal/logger"
	"github.com/sevigo/reviewflow/internal/publish"
	"github.com/sevigo/reviewflow/internal/storage"
)

var (
	postResults bool
	verbose     bool
)

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgWhite)
	dimColor     = color.New(color.FgHiBlack)
	boldColor    = color.New(color.Bold)
)

var reviewCmd = &cobra.Command{
	Use:   "review [pr-url]",
	Short: "Run a one-shot AI code review for a GitHub Pull Request",
	Long: `Run a one-shot AI code review for a GitHub Pull Request.

The review command fetches the PR diff, decomposes it into a summary chunk
and per-file chunks, runs the two-pass model review, and prints the findings.
With --post, the findings are also published to the PR as review comments.

Examples:
  reviewflow-cli review https://github.com/owner/repo/pull/123
  reviewflow-cli review --post https://github.com/owner/repo/pull/123`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewCmd.Flags().BoolVar(&postResults, "post", false, "Post findings to the pull request")
	reviewCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	prURL := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if token := viper.GetString("GITHUB_TOKEN"); token != "" {
		cfg.GitHubToken = token
	}
	if cfg.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is not set\n\nTip: Set the GITHUB_TOKEN environment variable or use --github-token")
	}

	logLevel := "error"
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logger.Config{Level: logLevel, Format: "text"}, os.Stderr)

	owner, repoName, prNumber, err := github.ParsePullRequestURL(prURL)
	if err != nil {
		return fmt.Errorf("invalid PR URL: %w\n\nExpected format: https://github.com/owner/repo/pull/123", err)
	}

	titleColor.Println("reviewflow - PR Review")
	dimColor.Printf("   Target: %s\n\n", prURL)
	start := time.Now()

	ghClient := github.NewPATClient(ctx, cfg.GitHubToken, log)

	pr, err := ghClient.GetPullRequest(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch PR: %w\n\nTip: Check that the PR exists and your token has access", err)
	}

	job := &core.ReviewJob{
		ID:           uuid.NewString(),
		RepoOwner:    owner,
		RepoName:     repoName,
		RepoFullName: fmt.Sprintf("%s/%s", owner, repoName),
		PRNumber:     prNumber,
		PRTitle:      pr.GetTitle(),
		HeadSHA:      pr.GetHead().GetSHA(),
		Status:       core.StatusRunning,
		CreatedAt:    time.Now().UTC(),
	}

	fmt.Printf("Fetching diff for PR #%d: %s\n", prNumber, pr.GetTitle())
	diffText, err := ghClient.GetPullRequestDiff(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch diff: %w", err)
	}

	files, err := diff.Parse(diffText)
	if err != nil {
		return fmt.Errorf("failed to parse diff: %w", err)
	}

	// A .reviewflow.yml in the working directory extends the exclusions, the
	// same way the service honors it.
	excludes := cfg.ExcludePatterns
	fallback := cfg.FileLevelFallback
	if policy, err := config.LoadRepoPolicy("."); err == nil || errors.Is(err, config.ErrPolicyNotFound) {
		excludes = append(excludes, policy.Exclude...)
		if policy.FileLevelFallback != nil {
			fallback = *policy.FileLevelFallback
		}
	}
	cfg.FileLevelFallback = fallback

	decomposer := diff.NewDecomposer(
		diff.NewExclusionPolicy(excludes...),
		diff.Budget{SummaryTokens: cfg.SummaryTokenBudget, ChunkTokens: cfg.ChunkTokenBudget},
		log,
	)
	chunks, err := decomposer.Decompose(job.ID, diffText)
	if err != nil {
		return fmt.Errorf("failed to decompose diff: %w", err)
	}
	if len(chunks) <= 1 {
		successColor.Println("No reviewable changes in this PR.")
		return nil
	}
	dimColor.Printf("   %d file chunk(s) to review\n", len(chunks)-1)

	provider, err := llm.NewProvider(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w\n\nTip: Check that the LLM service is reachable", err)
	}
	gateway := llm.NewGateway(provider, cfg, log)

	fmt.Println("Summarizing changes...")
	gc, err := gateway.Summarize(ctx, job, chunks[0])
	if err != nil {
		warnColor.Printf("Summary pass failed, reviewing without global context: %v\n", err)
		gc = core.GlobalContext{Degraded: true}
	}

	fmt.Println("Reviewing files...")
	var results []core.ChunkResult
	for _, chunk := range chunks[1:] {
		if verbose {
			dimColor.Printf("   reviewing %s\n", chunk.FilePath)
		}
		results = append(results, gateway.Review(ctx, chunk, gc))
	}

	if postResults {
		store := storage.NewMemoryStore()
		defer func() { _ = store.Close() }()

		publisher := publish.NewPublisher(store, cfg, log)
		posted, err := publisher.Publish(ctx, ghClient, job, results, diff.CommentableLinesByFile(files))
		if err != nil {
			return fmt.Errorf("failed to publish review: %w", err)
		}
		successColor.Printf("Posted %d comment(s)", posted.Posted)
		if posted.Failed > 0 {
			warnColor.Printf(", %d failed", posted.Failed)
		}
		fmt.Println()
	}

	if verbose {
		dimColor.Printf("\nTotal time: %s\n", time.Since(start).Round(time.Millisecond))
	}

	printReview(gc, results)
	return nil
}

func printReview(gc core.GlobalContext, results []core.ChunkResult) {
	separator := strings.Repeat("=", 60)
	thinSeparator := strings.Repeat("-", 60)

	fmt.Println()
	titleColor.Println(separator)
	titleColor.Println("REVIEW SUMMARY")
	titleColor.Println(separator)
	fmt.Println()
	if gc.Summary != "" {
		infoColor.Println(gc.Summary)
	} else {
		dimColor.Println("(no global summary available)")
	}

	var findings []core.Finding
	var failed []core.ChunkResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		findings = append(findings, r.Findings...)
	}

	if len(findings) == 0 {
		fmt.Println()
		successColor.Println("No issues found!")
	} else {
		fmt.Println()
		warnColor.Println(thinSeparator)
		warnColor.Printf("FINDINGS (%d)\n", len(findings))
		warnColor.Println(thinSeparator)

		for i, f := range findings {
			fmt.Println()
			printSeverityBadge(f.Severity)
			boldColor.Printf(" %s", f.FilePath)
			if f.FileLevel() {
				dimColor.Println(" (file-level)")
			} else {
				dimColor.Printf(":%d\n", f.Line)
			}
			if f.Category != "" {
				dimColor.Printf("   Category: %s\n", f.Category)
			}
			fmt.Println()
			infoColor.Printf("%s\n", f.Message)

			if i < len(findings)-1 {
				fmt.Println()
				dimColor.Println(strings.Repeat("-", 40))
			}
		}
	}

	if len(failed) > 0 {
		fmt.Println()
		warnColor.Printf("%d file(s) could not be reviewed:\n", len(failed))
		for _, r := range failed {
			dimColor.Printf("   %s: %v\n", r.FilePath, r.Err)
		}
	}
	fmt.Println()
}

func printSeverityBadge(severity string) {
	switch severity {
	case "Critical":
		color.New(color.BgRed, color.FgWhite, color.Bold).Printf(" %s ", severity)
	case "High":
		color.New(color.BgHiRed, color.FgWhite).Printf(" %s ", severity)
	case "Medium":
		color.New(color.BgYellow, color.FgBlack).Printf(" %s ", severity)
	case "Low":
		color.New(color.BgGreen, color.FgWhite).Printf(" %s ", severity)
	default:
		color.New(color.BgWhite, color.FgBlack).Printf(" %s ", severity)
	}
}
