package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// ErrRepoNotFound indicates the requested repository does not exist.
var ErrRepoNotFound = errors.New("repository not found")

// RepoStore defines the driven port for repository persistence.
type RepoStore interface {
	// GetByName returns nil, nil if the owner has no repository with the name.
	GetByName(ctx context.Context, ownerID int64, name string) (*model.Repository, error)
	// GetByID returns ErrRepoNotFound if the repository does not exist.
	GetByID(ctx context.Context, id int64) (*model.Repository, error)
	// Ensure inserts the repository keyed by (owner, name). A GitHub id
	// collision updates the existing record's name and owner instead of
	// failing. The flagged column is never modified.
	Ensure(ctx context.Context, repo model.Repository) (model.Repository, error)
	// SetFlagged returns ErrRepoNotFound if the repository does not exist.
	SetFlagged(ctx context.Context, id int64, flagged bool) error
	ListAll(ctx context.Context) ([]model.Repository, error)
}
