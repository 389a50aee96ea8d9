// Package migrations applies the embedded SQL schema to a Postgres
// database at store startup. This is ambient setup (per SPEC_FULL.md's
// AMBIENT/DOMAIN STACK), not the excluded migration-tooling feature: there
// is no exposed command to generate or roll arbitrary migrations, only a
// fixed schema applied once when a store opens against a fresh database.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Apply runs every pending up migration against db. ErrNoChange is treated
// as success: the schema is already current.
func Apply(db *sql.DB) error {
	source, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return fmt.Errorf("migrations: load embedded source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrations: postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrations: new migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: apply: %w", err)
	}
	return nil
}
