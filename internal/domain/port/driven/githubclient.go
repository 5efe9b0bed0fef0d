package driven

import (
	"context"
	"iter"
	"time"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// GitHubClient defines the driven port for reading from the GitHub API.
//
// Only SearchPullRequests reports errors. Every other method degrades to a
// safe default (false, nil, or an empty slice) once its retries are exhausted,
// so a failed sub-fetch never aborts processing of sibling pull requests.
type GitHubClient interface {
	// SearchPullRequests lazily walks the search results for pull requests
	// authored by login and created within [since, until]. A zero until leaves
	// the window open-ended. Each range over the sequence restarts from the
	// first page. Iteration stops after the first error is yielded.
	SearchPullRequests(ctx context.Context, login string, since, until time.Time) iter.Seq2[model.PullRequestSummary, error]

	// FetchMergeStatus reports whether the pull request was merged. Any fetch
	// failure yields false.
	FetchMergeStatus(ctx context.Context, owner, repo string, number int) bool

	// FetchOwnerDetails returns nil when the owner cannot be fetched.
	FetchOwnerDetails(ctx context.Context, login string) *model.Owner
	// FetchRepositoryDetails returns nil when the repository cannot be fetched.
	// The returned repository has no OwnerID; the caller assigns it.
	FetchRepositoryDetails(ctx context.Context, owner, name string) *model.Repository
	// FetchUserDetails returns nil when the user cannot be fetched.
	FetchUserDetails(ctx context.Context, login string) *model.UserProfile

	FetchReviews(ctx context.Context, owner, repo string, number int) []model.Review
	FetchReviewComments(ctx context.Context, owner, repo string, number int) []model.ReviewComment
	// FetchRequestedReviewers returns the logins of users currently requested
	// to review. Team requests are not included.
	FetchRequestedReviewers(ctx context.Context, owner, repo string, number int) []string
}
