package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/ericfisherdev/reviewpulse/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if _, err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// fixture holds the parent rows a pull request needs.
type fixture struct {
	user  model.User
	owner model.Owner
	repo  model.Repository
}

// seedFixture inserts a tracked user, an owner and a repository.
func seedFixture(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()

	user, err := NewUserRepo(db).Upsert(ctx, model.User{Login: "alice", GitHubID: 501, Name: "Alice"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	owner, err := NewOwnerRepo(db).Ensure(ctx, model.Owner{GitHubID: 900, Login: "acme", Kind: model.OwnerKindOrganization})
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}

	repo, err := NewRepoRepo(db).Ensure(ctx, model.Repository{GitHubID: 1200, Name: "web", OwnerID: owner.ID, OwnerLogin: owner.Login})
	if err != nil {
		t.Fatalf("seed repository: %v", err)
	}

	return fixture{user: user, owner: owner, repo: repo}
}
