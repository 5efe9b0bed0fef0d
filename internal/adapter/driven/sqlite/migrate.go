package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema means a previous migration failed halfway. The database has
// to be repaired by hand before the tool will touch it again.
var ErrDirtySchema = errors.New("schema is dirty")

// RunMigrations brings the schema up to the newest embedded migration and
// returns the resulting version.
func RunMigrations(db *sql.DB) (uint, error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, err
	}

	before, _, err := schemaVersion(m)
	if err != nil {
		return 0, err
	}

	var dirty migrate.ErrDirty
	switch err := m.Up(); {
	case errors.As(err, &dirty):
		return 0, fmt.Errorf("run migrations: version %d: %w", dirty.Version, ErrDirtySchema)
	case err != nil && !errors.Is(err, migrate.ErrNoChange):
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	after, _, err := schemaVersion(m)
	if err != nil {
		return 0, err
	}
	if after != before {
		slog.Info("schema migrated", "from", before, "to", after)
	}

	return after, nil
}

// SchemaVersion reports the applied schema version, or 0 on a fresh database.
func SchemaVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	return schemaVersion(m)
}

// newMigrator binds the embedded migrations to db. The migrator is never
// closed: closing it would close db.
func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("bind migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return m, nil
}

func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}
