package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// ErrUnknownGitHubUser is returned when a login cannot be resolved on GitHub.
var ErrUnknownGitHubUser = errors.New("github user not found")

// RosterService manages the set of tracked users.
type RosterService struct {
	ghClient driven.GitHubClient
	users    driven.UserStore
	now      func() time.Time
}

// NewRosterService creates a new RosterService. clock defaults to time.Now.
func NewRosterService(ghClient driven.GitHubClient, users driven.UserStore, clock func() time.Time) *RosterService {
	if clock == nil {
		clock = time.Now
	}
	return &RosterService{ghClient: ghClient, users: users, now: clock}
}

// AddUser starts tracking login. The GitHub profile is fetched to confirm the
// account exists and to record its canonical login, id, name and avatar.
// Adding an already tracked user refreshes its profile fields.
func (s *RosterService) AddUser(ctx context.Context, login, affiliation string) (model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return model.User{}, errors.New("add user: login is required")
	}

	profile := s.ghClient.FetchUserDetails(ctx, login)
	if profile == nil {
		return model.User{}, fmt.Errorf("add user %s: %w", login, ErrUnknownGitHubUser)
	}

	user, err := s.users.Upsert(ctx, model.User{
		Login:       profile.Login,
		GitHubID:    profile.GitHubID,
		Name:        profile.Name,
		AvatarURL:   profile.AvatarURL,
		Affiliation: affiliation,
		AddedAt:     s.now().UTC(),
	})
	if err != nil {
		return model.User{}, fmt.Errorf("add user %s: %w", login, err)
	}

	slog.Info("user tracked", "login", user.Login, "github_id", user.GitHubID, "affiliation", affiliation)
	return user, nil
}

// ListUsers returns the tracked users ordered by login.
func (s *RosterService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
