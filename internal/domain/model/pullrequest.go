package model

import (
	"regexp"
	"strconv"
	"time"
)

// PullRequest represents a GitHub pull request authored by a tracked user.
type PullRequest struct {
	ID                  int64
	GitHubID            int64 // Reconciliation key; unique.
	Number              int   // Zero when it could not be determined.
	Title               string
	Body                string
	AuthorID            int64
	RepositoryID        int64
	IsOpen              bool
	IsMerged            bool
	URL                 string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ClosedAt            *time.Time
	ReviewStatus        ReviewStatus
	ReviewStartedAt     *time.Time
	Reviewers           []string
	ReviewCommentsCount int

	// Populated on reads via join, never written.
	RepoFullName string
	AuthorLogin  string
	RepoFlagged  bool
}

// PullRequestSummary is a pull request as returned by the search API, before
// it has been reconciled against the store.
type PullRequestSummary struct {
	GitHubID       int64
	Number         int
	Title          string
	Body           string
	Owner          string
	Repo           string
	State          string // "open" or "closed"
	URL            string
	MergeStatusURL string // API link to the pull request resource; empty when absent.
	MergedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
}

// IsOpen reports whether the summary describes an open pull request.
func (s PullRequestSummary) IsOpen() bool {
	return s.State == "open"
}

// RepoFullName returns "owner/repo".
func (s PullRequestSummary) RepoFullName() string {
	return s.Owner + "/" + s.Repo
}

var pullNumberPattern = regexp.MustCompile(`/pull/(\d+)`)

// ExtractPRNumber returns the pull request number embedded in a link such as
// https://github.com/owner/repo/pull/42, or 0 if the link has none.
func ExtractPRNumber(link string) int {
	m := pullNumberPattern.FindStringSubmatch(link)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
