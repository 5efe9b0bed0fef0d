package driven

import (
	"context"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// OwnerStore defines the driven port for owner persistence.
type OwnerStore interface {
	// GetByLogin returns nil, nil if no owner has the login.
	GetByLogin(ctx context.Context, login string) (*model.Owner, error)
	// Ensure inserts the owner or, if one with the same GitHub id or login
	// already exists, returns the existing record with empty fields backfilled.
	// It never fails on a duplicate key.
	Ensure(ctx context.Context, owner model.Owner) (model.Owner, error)
	Count(ctx context.Context) (int, error)
}
