// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// ErrPRNumberUnknown indicates a stored pull request has no number, so its
// review data cannot be fetched.
var ErrPRNumberUnknown = errors.New("pull request number unknown")

// SyncWindow bounds the creation dates of pull requests that are ingested.
// A zero Until means no upper bound.
type SyncWindow struct {
	Since time.Time
	Until time.Time
}

// SyncResult summarizes one user's sync.
type SyncResult struct {
	Login     string `json:"login"`
	Fetched   int    `json:"fetched"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
}

// PullRequestsProcessed is the number of pull requests that were reconciled
// against the store, whether or not anything changed.
func (r SyncResult) PullRequestsProcessed() int {
	return r.Created + r.Updated + r.Unchanged
}

type syncOutcome int

const (
	outcomeSkipped syncOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeUnchanged
)

// SyncService ingests a tracked user's pull requests from GitHub and
// reconciles them with the store.
type SyncService struct {
	ghClient driven.GitHubClient
	users    driven.UserStore
	owners   driven.OwnerStore
	repos    driven.RepoStore
	prs      driven.PRStore
	cache    driven.MetricsCache
	window   SyncWindow
}

// NewSyncService creates a new SyncService. cache may be nil.
func NewSyncService(
	ghClient driven.GitHubClient,
	users driven.UserStore,
	owners driven.OwnerStore,
	repos driven.RepoStore,
	prs driven.PRStore,
	cache driven.MetricsCache,
	window SyncWindow,
) *SyncService {
	return &SyncService{
		ghClient: ghClient,
		users:    users,
		owners:   owners,
		repos:    repos,
		prs:      prs,
		cache:    cache,
		window:   window,
	}
}

// SyncUser fetches every pull request login authored inside the sync window
// and creates or updates the stored copy. Failures on a single pull request
// are logged and counted as skipped. A search failure or an unreadable store
// aborts the sync; pull requests already written stay written.
func (s *SyncService) SyncUser(ctx context.Context, login string) (SyncResult, error) {
	start := time.Now()
	result := SyncResult{Login: login}

	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		return result, fmt.Errorf("sync %s: %w", login, err)
	}

	for summary, err := range s.ghClient.SearchPullRequests(ctx, login, s.window.Since, s.window.Until) {
		if err != nil {
			return result, fmt.Errorf("sync %s: %w", login, err)
		}
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync %s: %w", login, err)
		}

		result.Fetched++

		outcome, err := s.syncPullRequest(ctx, *user, summary)
		if err != nil {
			return result, fmt.Errorf("sync %s: %w", login, err)
		}

		switch outcome {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		case outcomeUnchanged:
			result.Unchanged++
		default:
			result.Skipped++
		}
	}

	s.invalidateMetrics(ctx)

	slog.Info("user sync complete",
		"login", login,
		"fetched", result.Fetched,
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"skipped", result.Skipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return result, nil
}

// syncPullRequest reconciles one search result. The returned error is
// non-nil only when the store cannot be read.
func (s *SyncService) syncPullRequest(ctx context.Context, author model.User, summary model.PullRequestSummary) (syncOutcome, error) {
	owner, err := s.resolveOwner(ctx, summary.Owner)
	if err != nil || owner == nil {
		return outcomeSkipped, err
	}

	repo, err := s.resolveRepository(ctx, *owner, summary.Repo)
	if err != nil || repo == nil {
		return outcomeSkipped, err
	}

	number := summary.Number
	if number == 0 {
		number = model.ExtractPRNumber(summary.URL)
	}

	merged := summary.MergedAt != nil
	if !merged && !summary.IsOpen() && summary.MergeStatusURL != "" && number > 0 {
		merged = s.ghClient.FetchMergeStatus(ctx, summary.Owner, summary.Repo, number)
	}

	state := s.fetchReviewState(ctx, summary.Owner, summary.Repo, number, ReviewInput{
		Merged:   merged,
		MergedAt: summary.MergedAt,
	})

	fresh := model.PullRequest{
		GitHubID:            summary.GitHubID,
		Number:              number,
		Title:               summary.Title,
		Body:                summary.Body,
		AuthorID:            author.ID,
		RepositoryID:        repo.ID,
		IsOpen:              summary.IsOpen(),
		IsMerged:            merged,
		URL:                 summary.URL,
		CreatedAt:           summary.CreatedAt,
		UpdatedAt:           summary.UpdatedAt,
		ClosedAt:            summary.ClosedAt,
		ReviewStatus:        state.Status,
		ReviewStartedAt:     state.StartedAt,
		Reviewers:           state.Reviewers,
		ReviewCommentsCount: state.CommentCount,
	}

	stored, err := s.prs.GetByGitHubID(ctx, summary.GitHubID)
	if err != nil {
		return outcomeSkipped, err
	}

	if stored == nil {
		_, created, err := s.prs.Create(ctx, fresh)
		if err != nil {
			slog.Error("create pull request failed", "github_id", summary.GitHubID, "repo", summary.RepoFullName(), "error", err)
			return outcomeSkipped, nil
		}
		if !created {
			return outcomeUnchanged, nil
		}
		return outcomeCreated, nil
	}

	next, changed := diffPullRequest(*stored, fresh)
	if !changed {
		return outcomeUnchanged, nil
	}

	if err := s.prs.UpdateSyncFields(ctx, next); err != nil {
		slog.Error("update pull request failed", "id", stored.ID, "github_id", summary.GitHubID, "error", err)
		return outcomeSkipped, nil
	}

	slog.Debug("pull request updated", "id", stored.ID, "repo", summary.RepoFullName(), "number", number, "status", next.ReviewStatus)
	return outcomeUpdated, nil
}

// resolveOwner returns the stored owner, creating it from GitHub when absent.
// A nil owner with a nil error means the pull request must be skipped.
func (s *SyncService) resolveOwner(ctx context.Context, login string) (*model.Owner, error) {
	owner, err := s.owners.GetByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		return owner, nil
	}

	details := s.ghClient.FetchOwnerDetails(ctx, login)
	if details == nil {
		slog.Warn("owner details unavailable, skipping pull request", "owner", login)
		return nil, nil
	}
	if details.Login == "" {
		details.Login = login
	}

	saved, err := s.owners.Ensure(ctx, *details)
	if err != nil {
		slog.Error("ensure owner failed", "owner", login, "error", err)
		return nil, nil
	}

	return &saved, nil
}

// resolveRepository returns the stored repository, creating it from GitHub
// when absent. A nil repository with a nil error means skip.
func (s *SyncService) resolveRepository(ctx context.Context, owner model.Owner, name string) (*model.Repository, error) {
	repo, err := s.repos.GetByName(ctx, owner.ID, name)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		return repo, nil
	}

	details := s.ghClient.FetchRepositoryDetails(ctx, owner.Login, name)
	if details == nil {
		slog.Warn("repository details unavailable, skipping pull request", "repo", owner.Login+"/"+name)
		return nil, nil
	}
	if details.Name == "" {
		details.Name = name
	}
	details.OwnerID = owner.ID
	details.OwnerLogin = owner.Login

	saved, err := s.repos.Ensure(ctx, *details)
	if err != nil {
		slog.Error("ensure repository failed", "repo", owner.Login+"/"+name, "error", err)
		return nil, nil
	}

	return &saved, nil
}

// fetchReviewState fetches reviews, review comments and requested reviewers
// concurrently and resolves them together with the merge facts in base.
// Without a number the review fetch is skipped.
func (s *SyncService) fetchReviewState(ctx context.Context, owner, repo string, number int, base ReviewInput) ReviewState {
	in := base
	if number <= 0 {
		return ResolveReviewState(in)
	}

	var g errgroup.Group
	g.Go(func() error {
		in.Reviews = s.ghClient.FetchReviews(ctx, owner, repo, number)
		return nil
	})
	g.Go(func() error {
		in.Comments = s.ghClient.FetchReviewComments(ctx, owner, repo, number)
		return nil
	})
	g.Go(func() error {
		in.RequestedReviewers = s.ghClient.FetchRequestedReviewers(ctx, owner, repo, number)
		return nil
	})
	_ = g.Wait()

	return ResolveReviewState(in)
}

// RefreshPullRequest re-fetches review data for one stored pull request and
// writes any review field that changed.
func (s *SyncService) RefreshPullRequest(ctx context.Context, prID int64) (model.PullRequest, error) {
	pr, err := s.prs.GetByID(ctx, prID)
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("refresh pull request %d: %w", prID, err)
	}
	if pr.Number <= 0 {
		return *pr, fmt.Errorf("refresh pull request %d: %w", prID, ErrPRNumberUnknown)
	}

	owner, name, ok := strings.Cut(pr.RepoFullName, "/")
	if !ok {
		return *pr, fmt.Errorf("refresh pull request %d: malformed repository name %q", prID, pr.RepoFullName)
	}

	state := s.fetchReviewState(ctx, owner, name, pr.Number, ReviewInput{Merged: pr.IsMerged})

	fresh := *pr
	fresh.ReviewStatus = state.Status
	fresh.ReviewStartedAt = state.StartedAt
	fresh.Reviewers = state.Reviewers
	fresh.ReviewCommentsCount = state.CommentCount

	next, changed := diffPullRequest(*pr, fresh)
	if !changed {
		return *pr, nil
	}

	if err := s.prs.UpdateSyncFields(ctx, next); err != nil {
		return *pr, fmt.Errorf("refresh pull request %d: %w", prID, err)
	}

	s.invalidateMetrics(ctx)

	slog.Info("pull request review refreshed", "id", prID, "repo", pr.RepoFullName, "number", pr.Number, "status", next.ReviewStatus)
	return next, nil
}

func (s *SyncService) invalidateMetrics(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// diffPullRequest merges the sync-managed fields of fresh into stored and
// reports whether anything changed. Title and body stay as first inserted.
// The merged flag never reverts and the review start only moves earlier.
func diffPullRequest(stored, fresh model.PullRequest) (model.PullRequest, bool) {
	next := stored

	next.IsOpen = fresh.IsOpen
	next.IsMerged = stored.IsMerged || fresh.IsMerged
	next.ClosedAt = fresh.ClosedAt
	if !fresh.UpdatedAt.IsZero() {
		next.UpdatedAt = fresh.UpdatedAt
	}
	if next.URL == "" && fresh.URL != "" {
		next.URL = fresh.URL
	}
	if next.Number == 0 && fresh.Number > 0 {
		next.Number = fresh.Number
	}

	next.ReviewStatus = fresh.ReviewStatus
	if next.IsMerged {
		next.ReviewStatus = model.ReviewStatusMerged
	}

	if fresh.ReviewStartedAt != nil && (stored.ReviewStartedAt == nil || fresh.ReviewStartedAt.Before(*stored.ReviewStartedAt)) {
		next.ReviewStartedAt = fresh.ReviewStartedAt
	}

	next.Reviewers = fresh.Reviewers
	if next.Reviewers == nil {
		next.Reviewers = []string{}
	}
	next.ReviewCommentsCount = fresh.ReviewCommentsCount

	changed := next.IsOpen != stored.IsOpen ||
		next.IsMerged != stored.IsMerged ||
		!timePtrEqual(next.ClosedAt, stored.ClosedAt) ||
		!next.UpdatedAt.Equal(stored.UpdatedAt) ||
		next.URL != stored.URL ||
		next.Number != stored.Number ||
		next.ReviewStatus != stored.ReviewStatus ||
		!timePtrEqual(next.ReviewStartedAt, stored.ReviewStartedAt) ||
		!slices.Equal(next.Reviewers, stored.Reviewers) ||
		next.ReviewCommentsCount != stored.ReviewCommentsCount

	return next, changed
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
