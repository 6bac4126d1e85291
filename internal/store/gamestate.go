package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/twilner89/campfire-alpha/internal/game"
)

// GameState reads the singleton row. It returns ErrNotFound before genesis.
func (s *Store) GameState(ctx context.Context) (game.GameState, error) {
	return s.gameState(ctx, s.db)
}

func (s *Store) gameState(ctx context.Context, q execer) (game.GameState, error) {
	bibleCol := "NULL"
	if s.caps.Has(ColSeriesBibleID) {
		bibleCol = "current_series_bible_id"
	}

	var (
		st                 game.GameState
		phase              string
		episodeID, bibleID sql.NullString
		expiry, since      sql.NullString
		transitioning      int
		updatedAt          string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, phase, current_episode_id, `+bibleCol+`, phase_expiry,
		       is_transitioning, transitioning_since, updated_at
		FROM game_state
		WHERE id = ?
	`, s.stateID).Scan(&st.ID, &phase, &episodeID, &bibleID, &expiry, &transitioning, &since, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("reading game state: %w", err)
	}

	p, ok := game.ParsePhase(phase)
	if !ok {
		return st, fmt.Errorf("game state has unknown phase %q", phase)
	}
	st.Phase = p
	st.CurrentEpisodeID = episodeID.String
	st.CurrentSeriesBibleID = bibleID.String
	st.IsTransitioning = transitioning != 0
	if st.PhaseExpiry, err = parseNullTime(expiry); err != nil {
		return st, err
	}
	if st.TransitioningSince, err = parseNullTime(since); err != nil {
		return st, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return st, err
	}
	return st, nil
}

// CompareAndSwap writes set only if the row currently matches every field
// named in expect. It reports whether the row was updated.
func (s *Store) CompareAndSwap(ctx context.Context, expect, set game.Fields) (bool, error) {
	if set.Empty() {
		return false, errors.New("compare and swap with nothing to set")
	}
	assigns, args := s.assignments(set)
	conds, condArgs := s.conditions(expect)

	query := "UPDATE game_state SET " + strings.Join(assigns, ", ") + " WHERE " + strings.Join(conds, " AND ")
	result, err := s.db.ExecContext(ctx, query, append(args, condArgs...)...)
	if err != nil {
		return false, fmt.Errorf("conditional game state update: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conditional game state update: %w", err)
	}
	return n == 1, nil
}

// ForceUpdate writes set unconditionally, creating the row if it does not
// exist yet.
func (s *Store) ForceUpdate(ctx context.Context, set game.Fields) error {
	return s.forceUpdate(ctx, s.db, set)
}

func (s *Store) forceUpdate(ctx context.Context, q execer, set game.Fields) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO game_state (id, updated_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		s.stateID, nowUTC(),
	); err != nil {
		return fmt.Errorf("ensuring game state row: %w", err)
	}
	if set.Empty() {
		return nil
	}

	assigns, args := s.assignments(set)
	query := "UPDATE game_state SET " + strings.Join(assigns, ", ") + " WHERE id = ?"
	if _, err := q.ExecContext(ctx, query, append(args, s.stateID)...); err != nil {
		return fmt.Errorf("updating game state: %w", err)
	}
	return nil
}

// assignments renders the SET list for f. updated_at is always bumped.
func (s *Store) assignments(f game.Fields) ([]string, []any) {
	var (
		cols []string
		args []any
	)
	set := func(col string, v any) {
		if v == nil {
			cols = append(cols, col+" = NULL")
			return
		}
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}
	s.eachField(f, set)
	cols = append(cols, "updated_at = ?")
	args = append(args, nowUTC())
	return cols, args
}

// conditions renders the WHERE list for f, NULL-aware, always keyed on id.
func (s *Store) conditions(f game.Fields) ([]string, []any) {
	cols := []string{"id = ?"}
	args := []any{s.stateID}
	s.eachField(f, func(col string, v any) {
		if v == nil {
			cols = append(cols, col+" IS NULL")
			return
		}
		cols = append(cols, col+" = ?")
		args = append(args, v)
	})
	return cols, args
}

// eachField calls fn for every column f names, with nil standing for NULL.
// Fields whose column the schema lacks are skipped.
func (s *Store) eachField(f game.Fields, fn func(col string, v any)) {
	if f.Phase != nil {
		fn("phase", string(*f.Phase))
	}
	if f.EpisodeID != nil {
		fn("current_episode_id", nullable(*f.EpisodeID))
	}
	if f.SeriesBibleID != nil && s.caps.Has(ColSeriesBibleID) {
		fn("current_series_bible_id", nullable(*f.SeriesBibleID))
	}
	if f.PhaseExpiry != nil {
		fn("phase_expiry", nullableTime(*f.PhaseExpiry))
	}
	if f.IsTransitioning != nil {
		fn("is_transitioning", boolInt(*f.IsTransitioning))
	}
	if f.TransitioningSince != nil {
		fn("transitioning_since", nullableTime(*f.TransitioningSince))
	}
}
