package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// ErrPRNotFound indicates the requested pull request does not exist.
var ErrPRNotFound = errors.New("pull request not found")

// PRStore defines the driven port for pull request persistence.
// Read methods populate the joined RepoFullName, AuthorLogin and RepoFlagged fields.
type PRStore interface {
	// GetByGitHubID returns nil, nil if no pull request has the GitHub id.
	GetByGitHubID(ctx context.Context, githubID int64) (*model.PullRequest, error)
	// GetByID returns ErrPRNotFound if the pull request does not exist.
	GetByID(ctx context.Context, id int64) (*model.PullRequest, error)
	// Create inserts pr and returns its ID. If a pull request with the same
	// GitHub id already exists, nothing is written and created is false.
	Create(ctx context.Context, pr model.PullRequest) (id int64, created bool, err error)
	// UpdateSyncFields writes the sync-managed columns of an existing pull
	// request: open/merged flags, timestamps, URL, number and review fields.
	UpdateSyncFields(ctx context.Context, pr model.PullRequest) error
	ListAll(ctx context.Context) ([]model.PullRequest, error)
	ListByStatus(ctx context.Context, status model.ReviewStatus) ([]model.PullRequest, error)
}
