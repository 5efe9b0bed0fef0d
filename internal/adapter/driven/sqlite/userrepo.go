package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserStore = (*UserRepo)(nil)

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, login, github_id, name, avatar_url, affiliation, added_at`

// GetByLogin retrieves a tracked user by login.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE login = ?`

	user, err := scanUser(r.db.Reader.QueryRowContext(ctx, query, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user %s: %w", login, driven.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", login, err)
	}

	return user, nil
}

// ListAll returns the tracked users ordered by login.
func (r *UserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY login`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Upsert adds a user or refreshes the profile of an existing one. Empty
// incoming fields never overwrite stored values.
func (r *UserRepo) Upsert(ctx context.Context, user model.User) (model.User, error) {
	const query = `
		INSERT INTO users (login, github_id, name, avatar_url, affiliation, added_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			github_id = COALESCE(excluded.github_id, users.github_id),
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
			avatar_url = CASE WHEN excluded.avatar_url <> '' THEN excluded.avatar_url ELSE users.avatar_url END,
			affiliation = CASE WHEN excluded.affiliation <> '' THEN excluded.affiliation ELSE users.affiliation END
		RETURNING ` + userColumns

	addedAt := user.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}

	saved, err := scanUser(r.db.Writer.QueryRowContext(ctx, query,
		user.Login, nullInt64(user.GitHubID), user.Name, user.AvatarURL, user.Affiliation, formatTime(addedAt),
	))
	if err != nil {
		return model.User{}, fmt.Errorf("upsert user %s: %w", user.Login, err)
	}

	return *saved, nil
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var githubID sql.NullInt64
	var addedAt string

	if err := s.Scan(&u.ID, &u.Login, &githubID, &u.Name, &u.AvatarURL, &u.Affiliation, &addedAt); err != nil {
		return nil, err
	}

	u.GitHubID = githubID.Int64

	var err error
	u.AddedAt, err = parseTime(addedAt)
	if err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}

	return &u, nil
}
