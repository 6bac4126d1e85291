package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var fs embed.FS

// Run applies all pending migrations against db.
func Run(db *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// RunTo applies pending migrations up to and including version. Deployments
// that lag the latest schema are reproduced this way.
func RunTo(db *sql.DB, version int64) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.UpTo(db, ".", version); err != nil {
		return fmt.Errorf("running migrations to %d: %w", version, err)
	}
	return nil
}

func setup() error {
	goose.SetBaseFS(fs)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}
	return nil
}
