// Package store persists the campfire game in SQLite. It owns the singleton
// game state row and its conditional updates, plus the per-round
// submissions, options and votes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("already exists")

const timeLayout = "2006-01-02T15:04:05.000Z"

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db      *sql.DB
	stateID string
	caps    Capabilities
	logger  zerolog.Logger
}

// Open inspects the schema once and returns a store bound to the game state
// row stateID.
func Open(ctx context.Context, db *sql.DB, stateID string, logger zerolog.Logger) (*Store, error) {
	if stateID == "" {
		return nil, errors.New("game state id is required")
	}
	caps, err := inspectSchema(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("probing schema: %w", err)
	}

	logger = logger.With().Str("component", "store").Logger()
	if missing := caps.Missing(OptionalColumns...); len(missing) > 0 {
		logger.Warn().Strs("columns", missing).Msg("schema lags optional columns, related fields are not persisted")
	}

	return &Store{db: db, stateID: stateID, caps: caps, logger: logger}, nil
}

func (s *Store) Capabilities() Capabilities { return s.caps }

// StateID is the key of the singleton game state row.
func (s *Store) StateID() string { return s.stateID }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func newID() string { return uuid.NewString() }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nowUTC() string { return formatTime(time.Now()) }

// parseTime reads a timestamp column. The driver hands back TEXT columns that
// look like times as time.Time, and database/sql re-renders those as
// RFC 3339 with trailing zeros trimmed, so the fixed write layout is not
// enough to read them.
func parseTime(s string) (time.Time, error) {
	for _, layout := range readLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q", s)
}

// readLayouts lists accepted timestamp shapes. The space separated ones come
// from SQLite's own clock functions and the driver's string form.
var readLayouts = []string{
	time.RFC3339Nano,
	timeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
