// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

const (
	searchPageSize = 100
	maxSearchPages = 5
	listPageSize   = 100
	maxRetries     = 3
)

// Client implements the driven.GitHubClient port using the go-github library.
type Client struct {
	gh         *gh.Client
	newBackOff func() backoff.BackOff
	maxRetries uint64
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// Primary rate limit errors that still surface are retried with exponential
// backoff, at most maxRetries times.
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{
		gh:         client,
		newBackOff: defaultBackOff,
		maxRetries: maxRetries,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest
// server. Retries happen without delay.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:         client,
		newBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		maxRetries: maxRetries,
	}, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

// SearchPullRequests walks the issue search API for pull requests authored by
// login. Pages are fetched on demand as the sequence is consumed.
func (c *Client) SearchPullRequests(ctx context.Context, login string, since, until time.Time) iter.Seq2[model.PullRequestSummary, error] {
	query := searchQuery(login, since, until)

	return func(yield func(model.PullRequestSummary, error) bool) {
		opts := &gh.SearchOptions{
			Sort:  "created",
			Order: "desc",
			ListOptions: gh.ListOptions{
				PerPage: searchPageSize,
			},
		}

		for page := 1; page <= maxSearchPages; page++ {
			opts.Page = page

			result, err := fetch(ctx, c, "search/issues", func() (*gh.IssuesSearchResult, *gh.Response, error) {
				return c.gh.Search.Issues(ctx, query, opts)
			})
			if err != nil {
				yield(model.PullRequestSummary{}, fmt.Errorf("searching pull requests for %s (page %d): %w", login, page, err))
				return
			}

			for _, issue := range result.Issues {
				summary, ok := mapSearchIssue(issue)
				if !ok {
					slog.Warn("skipping search result with malformed repository url",
						"login", login,
						"github_id", issue.GetID(),
						"repository_url", issue.GetRepositoryURL(),
					)
					continue
				}
				if !yield(summary, nil) {
					return
				}
			}

			if len(result.Issues) < searchPageSize {
				return
			}
		}

		slog.Warn("search page ceiling reached", "login", login, "pages", maxSearchPages)
	}
}

// searchQuery builds the issue search query for a login and creation window.
func searchQuery(login string, since, until time.Time) string {
	const day = "2006-01-02"

	q := fmt.Sprintf("is:pr author:%s", login)
	switch {
	case !since.IsZero() && !until.IsZero():
		q += fmt.Sprintf(" created:%s..%s", since.UTC().Format(day), until.UTC().Format(day))
	case !since.IsZero():
		q += fmt.Sprintf(" created:>=%s", since.UTC().Format(day))
	case !until.IsZero():
		q += fmt.Sprintf(" created:<=%s", until.UTC().Format(day))
	}
	return q
}

// FetchMergeStatus reports whether the pull request was merged. Errors yield
// false: absence of confirmation is not proof of merge.
func (c *Client) FetchMergeStatus(ctx context.Context, owner, repo string, number int) bool {
	pr, err := fetch(ctx, c, "pulls/get", func() (*gh.PullRequest, *gh.Response, error) {
		return c.gh.PullRequests.Get(ctx, owner, repo, number)
	})
	if err != nil {
		slog.Error("fetch merge status failed", "repo", owner+"/"+repo, "pr", number, "error", err)
		return false
	}

	return pr.GetMerged() || pr.MergedAt != nil
}

// FetchOwnerDetails returns the owner's profile, or nil on failure.
func (c *Client) FetchOwnerDetails(ctx context.Context, login string) *model.Owner {
	u, err := fetch(ctx, c, "users/get", func() (*gh.User, *gh.Response, error) {
		return c.gh.Users.Get(ctx, login)
	})
	if err != nil {
		slog.Error("fetch owner details failed", "owner", login, "error", err)
		return nil
	}

	return &model.Owner{
		GitHubID:   u.GetID(),
		Login:      u.GetLogin(),
		Name:       u.GetName(),
		Kind:       model.OwnerKind(u.GetType()),
		ProfileURL: u.GetHTMLURL(),
	}
}

// FetchRepositoryDetails returns the repository's metadata, or nil on failure.
func (c *Client) FetchRepositoryDetails(ctx context.Context, owner, name string) *model.Repository {
	r, err := fetch(ctx, c, "repos/get", func() (*gh.Repository, *gh.Response, error) {
		return c.gh.Repositories.Get(ctx, owner, name)
	})
	if err != nil {
		slog.Error("fetch repository details failed", "repo", owner+"/"+name, "error", err)
		return nil
	}

	return &model.Repository{
		GitHubID:   r.GetID(),
		Name:       r.GetName(),
		OwnerLogin: r.GetOwner().GetLogin(),
	}
}

// FetchUserDetails returns the user's public profile, or nil on failure.
func (c *Client) FetchUserDetails(ctx context.Context, login string) *model.UserProfile {
	u, err := fetch(ctx, c, "users/get", func() (*gh.User, *gh.Response, error) {
		return c.gh.Users.Get(ctx, login)
	})
	if err != nil {
		slog.Error("fetch user details failed", "login", login, "error", err)
		return nil
	}

	return &model.UserProfile{
		GitHubID:  u.GetID(),
		Login:     u.GetLogin(),
		Name:      u.GetName(),
		AvatarURL: u.GetAvatarURL(),
	}
}

// FetchReviews retrieves all reviews for a pull request. It handles pagination
// automatically and returns an empty slice on failure.
func (c *Client) FetchReviews(ctx context.Context, owner, repo string, number int) []model.Review {
	reviews, err := fetchAllPages(ctx, c, "pulls/reviews", func(opts gh.ListOptions) ([]*gh.PullRequestReview, *gh.Response, error) {
		return c.gh.PullRequests.ListReviews(ctx, owner, repo, number, &opts)
	})
	if err != nil {
		slog.Error("fetch reviews failed", "repo", owner+"/"+repo, "pr", number, "error", err)
		return []model.Review{}
	}

	out := make([]model.Review, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, mapReview(r))
	}
	return out
}

// FetchReviewComments retrieves all review comments (inline code comments) for
// a pull request and returns an empty slice on failure.
func (c *Client) FetchReviewComments(ctx context.Context, owner, repo string, number int) []model.ReviewComment {
	comments, err := fetchAllPages(ctx, c, "pulls/comments", func(opts gh.ListOptions) ([]*gh.PullRequestComment, *gh.Response, error) {
		return c.gh.PullRequests.ListComments(ctx, owner, repo, number, &gh.PullRequestListCommentsOptions{ListOptions: opts})
	})
	if err != nil {
		slog.Error("fetch review comments failed", "repo", owner+"/"+repo, "pr", number, "error", err)
		return []model.ReviewComment{}
	}

	out := make([]model.ReviewComment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, mapReviewComment(cm))
	}
	return out
}

// FetchRequestedReviewers returns the logins of users with a pending review
// request and returns an empty slice on failure.
func (c *Client) FetchRequestedReviewers(ctx context.Context, owner, repo string, number int) []string {
	reviewers, err := fetch(ctx, c, "pulls/requested_reviewers", func() (*gh.Reviewers, *gh.Response, error) {
		return c.gh.PullRequests.ListReviewers(ctx, owner, repo, number, &gh.ListOptions{PerPage: listPageSize})
	})
	if err != nil {
		slog.Error("fetch requested reviewers failed", "repo", owner+"/"+repo, "pr", number, "error", err)
		return []string{}
	}

	logins := make([]string, 0, len(reviewers.Users))
	for _, u := range reviewers.Users {
		if login := u.GetLogin(); login != "" {
			logins = append(logins, login)
		}
	}
	return logins
}

// mapSearchIssue converts a search result item to a summary. It returns false
// when the repository cannot be determined from the item.
func mapSearchIssue(issue *gh.Issue) (model.PullRequestSummary, bool) {
	owner, repo, ok := parseRepositoryURL(issue.GetRepositoryURL())
	if !ok {
		return model.PullRequestSummary{}, false
	}

	number := issue.GetNumber()
	if number == 0 {
		number = model.ExtractPRNumber(issue.GetHTMLURL())
	}

	s := model.PullRequestSummary{
		GitHubID:  issue.GetID(),
		Number:    number,
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		Owner:     owner,
		Repo:      repo,
		State:     issue.GetState(),
		URL:       issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}

	if issue.ClosedAt != nil {
		closedAt := issue.GetClosedAt().Time
		s.ClosedAt = &closedAt
	}

	if links := issue.PullRequestLinks; links != nil {
		s.MergeStatusURL = links.GetURL()
		if links.MergedAt != nil {
			mergedAt := links.MergedAt.Time
			s.MergedAt = &mergedAt
		}
	}

	return s, true
}

// parseRepositoryURL extracts owner and name from an API repository link like
// https://api.github.com/repos/owner/repo.
func parseRepositoryURL(raw string) (string, string, bool) {
	parts := strings.Split(strings.TrimRight(raw, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner, repo := parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || repo == "" || strings.Contains(owner, ":") {
		return "", "", false
	}
	return owner, repo, true
}

// mapReview converts a go-github PullRequestReview to a domain model Review.
func mapReview(r *gh.PullRequestReview) model.Review {
	return model.Review{
		ID:            r.GetID(),
		ReviewerLogin: r.GetUser().GetLogin(),
		State:         model.ParseReviewState(r.GetState()),
		SubmittedAt:   r.GetSubmittedAt().Time,
	}
}

// mapReviewComment converts a go-github PullRequestComment to a domain model ReviewComment.
func mapReviewComment(c *gh.PullRequestComment) model.ReviewComment {
	return model.ReviewComment{
		ID:        c.GetID(),
		Author:    c.GetUser().GetLogin(),
		CreatedAt: c.GetCreatedAt().Time,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
