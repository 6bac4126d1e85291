package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/twilner89/campfire-alpha/internal/game"
)

func scanProfile(sc interface{ Scan(...any) error }) (game.Profile, error) {
	var (
		p         game.Profile
		admin     int
		hash      sql.NullString
		createdAt string
	)
	if err := sc.Scan(&p.ID, &p.Username, &admin, &hash, &createdAt); err != nil {
		return p, err
	}
	p.IsAdmin = admin != 0
	p.PasswordHash = hash.String
	var err error
	p.CreatedAt, err = parseTime(createdAt)
	return p, err
}

func (s *Store) Profile(ctx context.Context, id string) (game.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, username, is_admin, password_hash, created_at
		FROM profiles WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *Store) ProfileByUsername(ctx context.Context, username string) (game.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT id, username, is_admin, password_hash, created_at
		FROM profiles WHERE username = ?
	`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// IsAdmin reports the admin flag of a profile. Unknown users are not admins.
func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin int
	err := s.db.QueryRowContext(ctx, `SELECT is_admin FROM profiles WHERE id = ?`, userID).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading admin flag: %w", err)
	}
	return admin != 0, nil
}

// UpsertProfile creates the profile or, when the username is taken, updates
// its admin flag and password hash. The stored profile is returned.
func (s *Store) UpsertProfile(ctx context.Context, p game.Profile) (game.Profile, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, is_admin, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			is_admin = excluded.is_admin,
			password_hash = COALESCE(excluded.password_hash, profiles.password_hash)
	`, p.ID, p.Username, boolInt(p.IsAdmin), nullable(p.PasswordHash), nowUTC())
	if err != nil {
		return game.Profile{}, fmt.Errorf("upserting profile: %w", err)
	}
	return s.ProfileByUsername(ctx, p.Username)
}

// HasAccess reports whether the user passed the access-code gate. Admins
// always have access. Without the has_access column only admins do.
func (s *Store) HasAccess(ctx context.Context, userID string) (bool, error) {
	accessCol := "0"
	if s.caps.Has(ColHasAccess) {
		accessCol = "has_access"
	}
	var admin, access int
	err := s.db.QueryRowContext(ctx,
		`SELECT is_admin, `+accessCol+` FROM profiles WHERE id = ?`, userID,
	).Scan(&admin, &access)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading access flag: %w", err)
	}
	return admin != 0 || access != 0, nil
}

// GrantAccess marks the profile as past the access-code gate.
func (s *Store) GrantAccess(ctx context.Context, userID string) error {
	if err := s.caps.Require(ColHasAccess); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET has_access = 1 WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("granting access: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
