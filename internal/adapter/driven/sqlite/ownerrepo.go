package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OwnerStore = (*OwnerRepo)(nil)

// OwnerRepo is the SQLite implementation of the OwnerStore port interface.
type OwnerRepo struct {
	db *DB
}

// NewOwnerRepo creates a new OwnerRepo backed by the given DB.
func NewOwnerRepo(db *DB) *OwnerRepo {
	return &OwnerRepo{db: db}
}

const ownerColumns = `id, github_id, login, name, kind, profile_url`

// GetByLogin retrieves an owner by login. Returns nil, nil if absent.
func (r *OwnerRepo) GetByLogin(ctx context.Context, login string) (*model.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE login = ?`

	owner, err := scanOwner(r.db.Reader.QueryRowContext(ctx, query, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner %s: %w", login, err)
	}

	return owner, nil
}

// Ensure inserts the owner or returns the existing record, backfilling empty
// name and profile URL. Conflicts on either the login or the GitHub id resolve
// to the existing row. A GitHub id match under a new login is a rename: the
// login moves and a profile URL derived from the old login is replaced.
func (r *OwnerRepo) Ensure(ctx context.Context, owner model.Owner) (model.Owner, error) {
	const query = `
		INSERT INTO owners (github_id, login, name, kind, profile_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			github_id = COALESCE(owners.github_id, excluded.github_id),
			name = CASE WHEN owners.name = '' THEN excluded.name ELSE owners.name END,
			profile_url = CASE WHEN owners.profile_url = '' THEN excluded.profile_url ELSE owners.profile_url END
		ON CONFLICT(github_id) DO UPDATE SET
			login = excluded.login,
			name = CASE WHEN owners.name = '' THEN excluded.name ELSE owners.name END,
			profile_url = CASE
				WHEN owners.profile_url = '' OR owners.profile_url = ? || owners.login THEN excluded.profile_url
				ELSE owners.profile_url
			END
		RETURNING ` + ownerColumns

	kind := owner.Kind
	if kind == "" {
		kind = model.OwnerKindUser
	}
	profileURL := owner.ProfileURL
	if profileURL == "" {
		profileURL = model.DefaultProfileURL(owner.Login)
	}

	saved, err := scanOwner(r.db.Writer.QueryRowContext(ctx, query,
		nullInt64(owner.GitHubID), owner.Login, owner.Name, string(kind), profileURL,
		model.DefaultProfileURL(""),
	))
	if err != nil {
		return model.Owner{}, fmt.Errorf("ensure owner %s: %w", owner.Login, err)
	}

	return *saved, nil
}

// Count returns the number of stored owners.
func (r *OwnerRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM owners`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

func scanOwner(s scanner) (*model.Owner, error) {
	var o model.Owner
	var githubID sql.NullInt64
	var kind string

	if err := s.Scan(&o.ID, &githubID, &o.Login, &o.Name, &kind, &o.ProfileURL); err != nil {
		return nil, err
	}

	o.GitHubID = githubID.Int64
	o.Kind = model.OwnerKind(kind)

	return &o, nil
}
