package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRStore = (*PRRepo)(nil)

// PRRepo is the SQLite implementation of the PRStore port interface.
type PRRepo struct {
	db *DB
}

// NewPRRepo creates a new PRRepo backed by the given DB.
func NewPRRepo(db *DB) *PRRepo {
	return &PRRepo{db: db}
}

const prSelect = `
	SELECT
		p.id, p.github_id, p.number, p.title, p.body, p.author_id, p.repository_id,
		p.is_open, p.is_merged, p.url, p.created_at, p.updated_at, p.closed_at,
		p.review_status, p.review_started_at, p.reviewers, p.review_comments_count,
		o.login || '/' || r.name, u.login, r.flagged
	FROM pull_requests p
	JOIN repositories r ON r.id = p.repository_id
	JOIN owners o ON o.id = r.owner_id
	JOIN users u ON u.id = p.author_id`

// GetByGitHubID retrieves a pull request by GitHub id. Returns nil, nil if absent.
func (r *PRRepo) GetByGitHubID(ctx context.Context, githubID int64) (*model.PullRequest, error) {
	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, prSelect+` WHERE p.github_id = ?`, githubID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pull request github_id=%d: %w", githubID, err)
	}

	return pr, nil
}

// GetByID retrieves a pull request by local id.
func (r *PRRepo) GetByID(ctx context.Context, id int64) (*model.PullRequest, error) {
	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, prSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get pull request %d: %w", id, driven.ErrPRNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pull request %d: %w", id, err)
	}

	return pr, nil
}

// Create inserts a pull request. A GitHub id collision leaves the stored row
// untouched and reports its id with created=false. Reviewers are serialized
// as a JSON array in the TEXT column.
func (r *PRRepo) Create(ctx context.Context, pr model.PullRequest) (int64, bool, error) {
	const query = `
		INSERT INTO pull_requests (
			github_id, number, title, body, author_id, repository_id,
			is_open, is_merged, url, created_at, updated_at, closed_at,
			review_status, review_started_at, reviewers, review_comments_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(github_id) DO NOTHING
		RETURNING id`

	reviewers, err := marshalReviewers(pr.Reviewers)
	if err != nil {
		return 0, false, err
	}

	status := pr.ReviewStatus
	if status == "" {
		status = model.ReviewStatusPending
	}

	var id int64
	err = r.db.Writer.QueryRowContext(ctx, query,
		pr.GitHubID, nullInt64(int64(pr.Number)), pr.Title, pr.Body, pr.AuthorID, pr.RepositoryID,
		pr.IsOpen, pr.IsMerged, pr.URL, formatTime(pr.CreatedAt), formatTime(pr.UpdatedAt), nullTime(pr.ClosedAt),
		string(status), nullTime(pr.ReviewStartedAt), reviewers, pr.ReviewCommentsCount,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("create pull request github_id=%d: %w", pr.GitHubID, err)
	}

	// DO NOTHING returns no row; the existing one is read back.
	err = r.db.Writer.QueryRowContext(ctx, `SELECT id FROM pull_requests WHERE github_id = ?`, pr.GitHubID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("read existing pull request github_id=%d: %w", pr.GitHubID, err)
	}

	return id, false, nil
}

// UpdateSyncFields writes the sync-managed columns of an existing pull request.
// Title, body, author and repository are left as first inserted.
func (r *PRRepo) UpdateSyncFields(ctx context.Context, pr model.PullRequest) error {
	const query = `
		UPDATE pull_requests SET
			number = ?,
			is_open = ?,
			is_merged = ?,
			url = ?,
			updated_at = ?,
			closed_at = ?,
			review_status = ?,
			review_started_at = ?,
			reviewers = ?,
			review_comments_count = ?
		WHERE id = ?`

	reviewers, err := marshalReviewers(pr.Reviewers)
	if err != nil {
		return err
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		nullInt64(int64(pr.Number)), pr.IsOpen, pr.IsMerged, pr.URL, formatTime(pr.UpdatedAt), nullTime(pr.ClosedAt),
		string(pr.ReviewStatus), nullTime(pr.ReviewStartedAt), reviewers, pr.ReviewCommentsCount,
		pr.ID,
	)
	if err != nil {
		return fmt.Errorf("update pull request %d: %w", pr.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("update pull request %d: %w", pr.ID, driven.ErrPRNotFound)
	}

	return nil
}

// ListAll returns all pull requests, oldest first.
func (r *PRRepo) ListAll(ctx context.Context) ([]model.PullRequest, error) {
	return r.queryPRs(ctx, prSelect+` ORDER BY p.created_at, p.id`)
}

// ListByStatus returns pull requests with the given review status, oldest first.
func (r *PRRepo) ListByStatus(ctx context.Context, status model.ReviewStatus) ([]model.PullRequest, error) {
	return r.queryPRs(ctx, prSelect+` WHERE p.review_status = ? ORDER BY p.created_at, p.id`, string(status))
}

func (r *PRRepo) queryPRs(ctx context.Context, query string, args ...any) ([]model.PullRequest, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pull requests: %w", err)
	}
	defer rows.Close()

	var prs []model.PullRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull requests: %w", err)
	}

	return prs, nil
}

func scanPR(s scanner) (*model.PullRequest, error) {
	var pr model.PullRequest
	var number sql.NullInt64
	var createdAt, updatedAt, status, reviewersJSON string
	var closedAt, startedAt sql.NullString

	err := s.Scan(
		&pr.ID, &pr.GitHubID, &number, &pr.Title, &pr.Body, &pr.AuthorID, &pr.RepositoryID,
		&pr.IsOpen, &pr.IsMerged, &pr.URL, &createdAt, &updatedAt, &closedAt,
		&status, &startedAt, &reviewersJSON, &pr.ReviewCommentsCount,
		&pr.RepoFullName, &pr.AuthorLogin, &pr.RepoFlagged,
	)
	if err != nil {
		return nil, err
	}

	pr.Number = int(number.Int64)
	pr.ReviewStatus = model.ReviewStatus(status)

	pr.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	pr.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	pr.ClosedAt, err = parseNullTime(closedAt)
	if err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}

	pr.ReviewStartedAt, err = parseNullTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse review_started_at: %w", err)
	}

	if err := json.Unmarshal([]byte(reviewersJSON), &pr.Reviewers); err != nil {
		return nil, fmt.Errorf("unmarshal reviewers: %w", err)
	}
	if pr.Reviewers == nil {
		pr.Reviewers = []string{}
	}

	return &pr, nil
}

func marshalReviewers(reviewers []string) (string, error) {
	if reviewers == nil {
		reviewers = []string{}
	}
	b, err := json.Marshal(reviewers)
	if err != nil {
		return "", fmt.Errorf("marshal reviewers: %w", err)
	}
	return string(b), nil
}
