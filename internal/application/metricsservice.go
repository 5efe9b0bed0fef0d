package application

import (
	"context"
	"encoding/json"
	"errors"
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// ErrInvalidStatus indicates an unknown review status filter.
var ErrInvalidStatus = errors.New("invalid review status")

const (
	cacheKeyBottlenecks = "bottlenecks"
	cacheKeyEfficiency  = "efficiency"
	cacheKeyLeaderboard = "leaderboard"
)

// PullRequestView pairs a stored pull request with its derived timing metrics.
type PullRequestView struct {
	PullRequest model.PullRequest
	Metrics     model.PRMetrics
}

// MetricsService computes review-health metrics over the stored pull requests.
// Pull requests in flagged repositories are excluded from every aggregate and
// listing.
type MetricsService struct {
	prs    driven.PRStore
	repos  driven.RepoStore
	users  driven.UserStore
	owners driven.OwnerStore
	cache  driven.MetricsCache
	now    func() time.Time
}

// NewMetricsService creates a new MetricsService. cache may be nil; clock
// defaults to time.Now.
func NewMetricsService(
	prs driven.PRStore,
	repos driven.RepoStore,
	users driven.UserStore,
	owners driven.OwnerStore,
	cache driven.MetricsCache,
	clock func() time.Time,
) *MetricsService {
	if clock == nil {
		clock = time.Now
	}
	return &MetricsService{
		prs:    prs,
		repos:  repos,
		users:  users,
		owners: owners,
		cache:  cache,
		now:    clock,
	}
}

// Bottlenecks reports open pull requests that have been in review or waiting
// on requested changes for at least a week, oldest first.
func (s *MetricsService) Bottlenecks(ctx context.Context) (model.BottleneckReport, error) {
	var report model.BottleneckReport
	if s.cached(ctx, cacheKeyBottlenecks, &report) {
		return report, nil
	}

	prs, err := s.trackedPullRequests(ctx)
	if err != nil {
		return model.BottleneckReport{}, fmt.Errorf("bottlenecks: %w", err)
	}

	report = buildBottleneckReport(prs, s.now())
	s.store(ctx, cacheKeyBottlenecks, report)

	return report, nil
}

// Efficiency aggregates review coverage, outcome rates and average timings.
func (s *MetricsService) Efficiency(ctx context.Context) (model.EfficiencyReport, error) {
	var report model.EfficiencyReport
	if s.cached(ctx, cacheKeyEfficiency, &report) {
		return report, nil
	}

	prs, err := s.trackedPullRequests(ctx)
	if err != nil {
		return model.EfficiencyReport{}, fmt.Errorf("efficiency: %w", err)
	}

	report = buildEfficiencyReport(prs, s.now())
	s.store(ctx, cacheKeyEfficiency, report)

	return report, nil
}

// InReview lists open pull requests that have review activity and are not yet
// merged, with their metrics.
func (s *MetricsService) InReview(ctx context.Context) ([]PullRequestView, error) {
	prs, err := s.trackedPullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("in-review pull requests: %w", err)
	}

	now := s.now()
	views := make([]PullRequestView, 0)
	for _, pr := range prs {
		if !pr.IsOpen {
			continue
		}
		switch pr.ReviewStatus {
		case model.ReviewStatusInReview, model.ReviewStatusChangesRequested, model.ReviewStatusApproved:
			views = append(views, PullRequestView{PullRequest: pr, Metrics: model.ComputePRMetrics(pr, now)})
		}
	}

	return views, nil
}

// ByStatus lists pull requests with the given review status.
func (s *MetricsService) ByStatus(ctx context.Context, status model.ReviewStatus) ([]PullRequestView, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("list by status %q: %w", status, ErrInvalidStatus)
	}

	prs, err := s.prs.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list by status %s: %w", status, err)
	}

	now := s.now()
	views := make([]PullRequestView, 0, len(prs))
	for _, pr := range prs {
		if pr.RepoFlagged {
			continue
		}
		views = append(views, PullRequestView{PullRequest: pr, Metrics: model.ComputePRMetrics(pr, now)})
	}

	return views, nil
}

// PullRequest returns a single stored pull request with its metrics.
func (s *MetricsService) PullRequest(ctx context.Context, id int64) (PullRequestView, error) {
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return PullRequestView{}, err
	}

	return PullRequestView{PullRequest: *pr, Metrics: model.ComputePRMetrics(*pr, s.now())}, nil
}

// Statistics returns store-wide totals.
func (s *MetricsService) Statistics(ctx context.Context) (model.Statistics, error) {
	prs, err := s.trackedPullRequests(ctx)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("statistics: %w", err)
	}

	repos, err := s.repos.ListAll(ctx)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("statistics: %w", err)
	}

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("statistics: %w", err)
	}

	owners, err := s.owners.Count(ctx)
	if err != nil {
		return model.Statistics{}, fmt.Errorf("statistics: %w", err)
	}

	stats := model.Statistics{
		TotalPRs:           len(prs),
		TotalRepositories:  len(repos),
		TotalUsers:         len(users),
		TotalOwners:        owners,
		ReviewStatusCounts: statusCounts(prs),
	}

	for _, pr := range prs {
		switch {
		case pr.IsMerged:
			stats.MergedPRs++
		case pr.IsOpen:
			stats.OpenPRs++
		default:
			stats.ClosedPRs++
		}
	}

	for _, r := range repos {
		if r.Flagged {
			stats.FlaggedRepositories++
		}
	}

	return stats, nil
}

// Leaderboard ranks every tracked user by merged pull requests, then by total
// pull requests, then by login. Users without pull requests are included.
func (s *MetricsService) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	var board []model.LeaderboardEntry
	if s.cached(ctx, cacheKeyLeaderboard, &board) {
		return board, nil
	}

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	prs, err := s.trackedPullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	board = buildLeaderboard(users, prs)
	s.store(ctx, cacheKeyLeaderboard, board)

	return board, nil
}

// UserPullRequests lists the pull requests authored by one tracked user,
// newest first. An untracked login yields driven.ErrUserNotFound.
func (s *MetricsService) UserPullRequests(ctx context.Context, login string) ([]PullRequestView, error) {
	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("user pull requests: %w", err)
	}

	prs, err := s.trackedPullRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("user pull requests %s: %w", login, err)
	}

	prs = slices.DeleteFunc(prs, func(pr model.PullRequest) bool { return pr.AuthorID != user.ID })
	slices.SortStableFunc(prs, func(a, b model.PullRequest) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	now := s.now()
	views := make([]PullRequestView, 0, len(prs))
	for _, pr := range prs {
		views = append(views, PullRequestView{PullRequest: pr, Metrics: model.ComputePRMetrics(pr, now)})
	}

	return views, nil
}

// trackedPullRequests lists every pull request outside flagged repositories.
func (s *MetricsService) trackedPullRequests(ctx context.Context) ([]model.PullRequest, error) {
	all, err := s.prs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(all, func(pr model.PullRequest) bool { return pr.RepoFlagged }), nil
}

func (s *MetricsService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}

	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("discarding unreadable cached metrics", "key", key, "error", err)
		return false
	}

	return true
}

func (s *MetricsService) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("encode metrics for cache failed", "key", key, "error", err)
		return
	}

	s.cache.Set(ctx, key, data)
}

func buildBottleneckReport(prs []model.PullRequest, now time.Time) model.BottleneckReport {
	report := model.BottleneckReport{
		StuckPRs:     []model.StuckPR{},
		ByRepository: map[string][]model.StuckPR{},
	}

	cutoff := now.Add(-model.StuckThreshold)

	for _, pr := range prs {
		if !pr.IsOpen || pr.ReviewStartedAt == nil || pr.ReviewStartedAt.After(cutoff) {
			continue
		}
		if pr.ReviewStatus != model.ReviewStatusInReview && pr.ReviewStatus != model.ReviewStatusChangesRequested {
			continue
		}

		hours := now.Sub(*pr.ReviewStartedAt).Hours()
		report.StuckPRs = append(report.StuckPRs, model.StuckPR{
			PullRequest:   pr,
			DaysInReview:  int(hours / 24),
			HoursInReview: int(hours),
		})
	}

	slices.SortStableFunc(report.StuckPRs, func(a, b model.StuckPR) int {
		return a.PullRequest.ReviewStartedAt.Compare(*b.PullRequest.ReviewStartedAt)
	})

	for _, stuck := range report.StuckPRs {
		repo := stuck.PullRequest.RepoFullName
		report.ByRepository[repo] = append(report.ByRepository[repo], stuck)
	}
	report.TotalStuckPRs = len(report.StuckPRs)

	return report
}

func buildEfficiencyReport(prs []model.PullRequest, now time.Time) model.EfficiencyReport {
	counts := statusCounts(prs)

	report := model.EfficiencyReport{
		TotalPRs:            len(prs),
		StatusCounts:        counts,
		ApprovedPRs:         counts[model.ReviewStatusApproved],
		ChangesRequestedPRs: counts[model.ReviewStatusChangesRequested],
		MergedPRs:           counts[model.ReviewStatusMerged],
	}

	var ttfrSum, totalSum float64
	var ttfrCount, totalCount int

	for _, pr := range prs {
		if pr.ReviewStartedAt == nil {
			continue
		}
		report.PRsWithReviews++

		m := model.ComputePRMetrics(pr, now)
		if m.TimeToFirstReviewHours != nil {
			ttfrSum += *m.TimeToFirstReviewHours
			ttfrCount++
		}
		if m.TotalReviewHours != nil && !pr.IsOpen {
			totalSum += *m.TotalReviewHours
			totalCount++
		}
	}

	report.ReviewRate = model.Round2(percent(report.PRsWithReviews, report.TotalPRs))
	report.ApprovalRate = model.Round2(percent(report.ApprovedPRs, report.PRsWithReviews))

	if ttfrCount > 0 {
		avg := ttfrSum / float64(ttfrCount)
		report.AvgTimeToFirstReviewHours = model.Round2(avg)
		report.AvgTimeToFirstReviewDays = model.Round2(avg / 24)
	}
	if totalCount > 0 {
		avg := totalSum / float64(totalCount)
		report.AvgTotalReviewTimeHours = model.Round2(avg)
		report.AvgTotalReviewTimeDays = model.Round2(avg / 24)
	}

	bottlenecks := buildBottleneckReport(prs, now)
	report.Bottlenecks = model.BottleneckSummary{
		TotalStuckPRs:            bottlenecks.TotalStuckPRs,
		RepositoriesWithStuckPRs: len(bottlenecks.ByRepository),
	}

	return report
}

func buildLeaderboard(users []model.User, prs []model.PullRequest) []model.LeaderboardEntry {
	type tally struct{ total, merged int }
	byAuthor := make(map[int64]tally, len(users))
	for _, pr := range prs {
		t := byAuthor[pr.AuthorID]
		t.total++
		if pr.IsMerged {
			t.merged++
		}
		byAuthor[pr.AuthorID] = t
	}

	board := make([]model.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		t := byAuthor[u.ID]
		board = append(board, model.LeaderboardEntry{
			Login:     u.Login,
			Name:      u.Name,
			AvatarURL: u.AvatarURL,
			TotalPRs:  t.total,
			MergedPRs: t.merged,
		})
	}

	slices.SortStableFunc(board, func(a, b model.LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.MergedPRs, a.MergedPRs),
			cmp.Compare(b.TotalPRs, a.TotalPRs),
			cmp.Compare(a.Login, b.Login),
		)
	})

	return board
}

// statusCounts counts pull requests per review status, with every status present.
func statusCounts(prs []model.PullRequest) map[model.ReviewStatus]int {
	counts := make(map[model.ReviewStatus]int, len(model.ReviewStatuses))
	for _, st := range model.ReviewStatuses {
		counts[st] = 0
	}
	for _, pr := range prs {
		counts[pr.ReviewStatus]++
	}
	return counts
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
