package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// ErrUserNotFound indicates the login is not a tracked user.
var ErrUserNotFound = errors.New("user not found")

// UserStore defines the driven port for the tracked-user roster.
type UserStore interface {
	// GetByLogin returns ErrUserNotFound if the login is not tracked.
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	// ListAll returns the roster ordered by login.
	ListAll(ctx context.Context) ([]model.User, error)
	// Upsert adds a user or updates the profile fields of an existing one.
	Upsert(ctx context.Context, user model.User) (model.User, error)
}
