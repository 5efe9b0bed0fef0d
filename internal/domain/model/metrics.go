package model

import (
	"math"
	"time"
)

// StuckThreshold is how long a pull request may sit in review before it is
// considered stuck.
const StuckThreshold = 7 * 24 * time.Hour

// PRMetrics holds the timing metrics derived for a single pull request.
// Nil pointers mean the metric is not applicable.
type PRMetrics struct {
	TimeToFirstReviewHours *float64
	TotalReviewHours       *float64
	IsStuck                bool
}

// ComputePRMetrics derives timing metrics for pr as of now.
func ComputePRMetrics(pr PullRequest, now time.Time) PRMetrics {
	var m PRMetrics
	if pr.ReviewStartedAt == nil {
		return m
	}
	start := *pr.ReviewStartedAt

	ttfr := hoursBetween(pr.CreatedAt, start)
	m.TimeToFirstReviewHours = &ttfr

	switch {
	case pr.IsOpen && pr.ReviewStatus == ReviewStatusInReview:
		total := hoursBetween(start, now)
		m.TotalReviewHours = &total
		m.IsStuck = now.Sub(start) > StuckThreshold
	case pr.IsMerged || !pr.IsOpen:
		total := hoursBetween(start, pr.reviewEnd(now))
		m.TotalReviewHours = &total
	}

	return m
}

// reviewEnd is the best known time review activity ended on a closed PR.
func (pr PullRequest) reviewEnd(now time.Time) time.Time {
	if pr.ClosedAt != nil && !pr.ClosedAt.IsZero() {
		return *pr.ClosedAt
	}
	if !pr.UpdatedAt.IsZero() {
		return pr.UpdatedAt
	}
	return now
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}

// StuckPR is a pull request that has been in review longer than StuckThreshold.
type StuckPR struct {
	PullRequest   PullRequest
	DaysInReview  int
	HoursInReview int
}

// BottleneckReport groups stuck pull requests by repository full name.
type BottleneckReport struct {
	TotalStuckPRs int
	StuckPRs      []StuckPR
	ByRepository  map[string][]StuckPR
}

// BottleneckSummary is the condensed bottleneck view embedded in efficiency metrics.
type BottleneckSummary struct {
	TotalStuckPRs            int
	RepositoriesWithStuckPRs int
}

// EfficiencyReport aggregates review-health metrics across all pull requests.
type EfficiencyReport struct {
	TotalPRs                  int
	PRsWithReviews            int
	ReviewRate                float64 // percent
	StatusCounts              map[ReviewStatus]int
	ApprovedPRs               int
	ChangesRequestedPRs       int
	MergedPRs                 int
	ApprovalRate              float64 // percent of reviewed PRs
	AvgTimeToFirstReviewHours float64
	AvgTimeToFirstReviewDays  float64
	AvgTotalReviewTimeHours   float64
	AvgTotalReviewTimeDays    float64
	Bottlenecks               BottleneckSummary
}

// Statistics is a coarse inventory of the store.
type Statistics struct {
	TotalPRs            int
	MergedPRs           int
	OpenPRs             int
	ClosedPRs           int
	TotalRepositories   int
	FlaggedRepositories int
	TotalUsers          int
	TotalOwners         int
	ReviewStatusCounts  map[ReviewStatus]int
}

// LeaderboardEntry ranks one tracked user by authored pull requests.
type LeaderboardEntry struct {
	Login     string
	Name      string
	AvatarURL string
	TotalPRs  int
	MergedPRs int
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
