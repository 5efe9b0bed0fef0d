package application

import (
	"slices"
	"time"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// ReviewInput is everything the resolver needs to classify a pull request.
type ReviewInput struct {
	Merged             bool
	MergedAt           *time.Time
	Reviews            []model.Review
	Comments           []model.ReviewComment
	RequestedReviewers []string
}

// ReviewState is the resolver's output.
type ReviewState struct {
	Status       model.ReviewStatus
	StartedAt    *time.Time
	Reviewers    []string // Sorted, deduplicated.
	CommentCount int
}

// defaultReviewState is what a pull request resolves to when no review data
// is available.
func defaultReviewState() ReviewState {
	return ReviewState{
		Status:    model.ReviewStatusPending,
		Reviewers: []string{},
	}
}

// ResolveReviewState classifies a pull request from its review activity.
// It is deterministic and performs no I/O.
//
// Precedence: merged, then any changes-requested review, then any approval,
// then any review or review comment (in review), otherwise pending.
func ResolveReviewState(in ReviewInput) ReviewState {
	return ReviewState{
		Status:       resolveStatus(in),
		StartedAt:    earliestActivity(in.Reviews, in.Comments),
		Reviewers:    collectReviewers(in.Reviews, in.RequestedReviewers),
		CommentCount: len(in.Comments),
	}
}

func resolveStatus(in ReviewInput) model.ReviewStatus {
	if in.Merged || (in.MergedAt != nil && !in.MergedAt.IsZero()) {
		return model.ReviewStatusMerged
	}

	var approved bool
	for _, r := range in.Reviews {
		switch r.State {
		case model.ReviewStateChangesRequested:
			return model.ReviewStatusChangesRequested
		case model.ReviewStateApproved:
			approved = true
		}
	}

	switch {
	case approved:
		return model.ReviewStatusApproved
	case len(in.Reviews) > 0 || len(in.Comments) > 0:
		return model.ReviewStatusInReview
	default:
		return model.ReviewStatusPending
	}
}

// earliestActivity returns the earliest review submission or comment creation
// time, or nil if there is none. Zero timestamps are ignored.
func earliestActivity(reviews []model.Review, comments []model.ReviewComment) *time.Time {
	var earliest time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}

	for _, r := range reviews {
		consider(r.SubmittedAt)
	}
	for _, c := range comments {
		consider(c.CreatedAt)
	}

	if earliest.IsZero() {
		return nil
	}
	return &earliest
}

func collectReviewers(reviews []model.Review, requested []string) []string {
	seen := make(map[string]struct{}, len(reviews)+len(requested))
	reviewers := make([]string, 0, len(reviews)+len(requested))

	add := func(login string) {
		if login == "" {
			return
		}
		if _, ok := seen[login]; ok {
			return
		}
		seen[login] = struct{}{}
		reviewers = append(reviewers, login)
	}

	for _, r := range reviews {
		add(r.ReviewerLogin)
	}
	for _, login := range requested {
		add(login)
	}

	slices.Sort(reviewers)
	return reviewers
}
