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
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

const repoSelect = `
	SELECT r.id, r.github_id, r.name, r.owner_id, r.flagged, o.login
	FROM repositories r
	JOIN owners o ON o.id = r.owner_id`

// GetByName retrieves a repository by owner and name. Returns nil, nil if absent.
func (r *RepoRepo) GetByName(ctx context.Context, ownerID int64, name string) (*model.Repository, error) {
	query := repoSelect + ` WHERE r.owner_id = ? AND r.name = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, ownerID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d/%s: %w", ownerID, name, err)
	}

	return repo, nil
}

// GetByID retrieves a repository by local id.
func (r *RepoRepo) GetByID(ctx context.Context, id int64) (*model.Repository, error) {
	query := repoSelect + ` WHERE r.id = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get repository %d: %w", id, driven.ErrRepoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", id, err)
	}

	return repo, nil
}

// Ensure inserts the repository or returns the existing one. A GitHub id that
// already belongs to another (owner, name) means the repository was renamed
// or transferred, so that row is moved rather than duplicated.
func (r *RepoRepo) Ensure(ctx context.Context, repo model.Repository) (model.Repository, error) {
	const query = `
		INSERT INTO repositories (github_id, name, owner_id)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id, name) DO UPDATE SET
			github_id = COALESCE(repositories.github_id, excluded.github_id)
		ON CONFLICT(github_id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id
		RETURNING id, github_id, name, owner_id, flagged`

	var saved model.Repository
	var githubID sql.NullInt64
	err := r.db.Writer.QueryRowContext(ctx, query, nullInt64(repo.GitHubID), repo.Name, repo.OwnerID).
		Scan(&saved.ID, &githubID, &saved.Name, &saved.OwnerID, &saved.Flagged)
	if err != nil {
		return model.Repository{}, fmt.Errorf("ensure repository %s: %w", repo.FullName(), err)
	}

	saved.GitHubID = githubID.Int64
	saved.OwnerLogin = repo.OwnerLogin

	return saved, nil
}

// SetFlagged sets the manual exclusion flag.
func (r *RepoRepo) SetFlagged(ctx context.Context, id int64, flagged bool) error {
	const query = `UPDATE repositories SET flagged = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, flagged, id)
	if err != nil {
		return fmt.Errorf("flag repository %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("flag repository %d: %w", id, driven.ErrRepoNotFound)
	}

	return nil
}

// ListAll returns all repositories ordered by owner login and name.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	query := repoSelect + ` ORDER BY o.login, r.name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var githubID sql.NullInt64

	err := s.Scan(&repo.ID, &githubID, &repo.Name, &repo.OwnerID, &repo.Flagged, &repo.OwnerLogin)
	if err != nil {
		return nil, err
	}

	repo.GitHubID = githubID.Int64

	return &repo, nil
}
