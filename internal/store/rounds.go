package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twilner89/campfire-alpha/internal/game"
)

// Submissions

const submissionCols = `id, episode_id, user_id, content, heat, is_synthetic, created_at`

func scanSubmission(sc interface{ Scan(...any) error }) (game.Submission, error) {
	var (
		sub       game.Submission
		synthetic int
		createdAt string
	)
	if err := sc.Scan(&sub.ID, &sub.EpisodeID, &sub.UserID, &sub.Content, &sub.Heat, &synthetic, &createdAt); err != nil {
		return sub, err
	}
	sub.IsSynthetic = synthetic != 0
	t, err := parseTime(createdAt)
	if err != nil {
		return sub, err
	}
	sub.CreatedAt = t
	return sub, nil
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]game.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var subs []game.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreateSubmissions inserts subs in one transaction and returns them with
// their ids and timestamps filled in.
func (s *Store) CreateSubmissions(ctx context.Context, subs []game.Submission) ([]game.Submission, error) {
	out := make([]game.Submission, 0, len(subs))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, sub := range subs {
			sub.ID = newID()
			var createdAt string
			err := tx.QueryRowContext(ctx, `
				INSERT INTO submissions (id, episode_id, user_id, content, heat, is_synthetic, created_at)
				VALUES (?, ?, ?, ?, 0, ?, ?)
				RETURNING created_at
			`, sub.ID, sub.EpisodeID, sub.UserID, sub.Content, boolInt(sub.IsSynthetic), nowUTC()).Scan(&createdAt)
			if err != nil {
				return fmt.Errorf("inserting submission: %w", err)
			}
			if sub.CreatedAt, err = parseTime(createdAt); err != nil {
				return err
			}
			sub.Heat = 0
			out = append(out, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub game.Submission) (game.Submission, error) {
	subs, err := s.CreateSubmissions(ctx, []game.Submission{sub})
	if err != nil {
		return game.Submission{}, err
	}
	return subs[0], nil
}

func (s *Store) Submission(ctx context.Context, id string) (game.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return sub, ErrNotFound
	}
	return sub, err
}

// Submissions returns every non-empty submission for the episode, oldest
// first.
func (s *Store) Submissions(ctx context.Context, episodeID string) ([]game.Submission, error) {
	return s.querySubmissions(ctx, `
		SELECT `+submissionCols+` FROM submissions
		WHERE episode_id = ? AND trim(content) != ''
		ORDER BY created_at, rowid
	`, episodeID)
}

// RecentSubmissions returns up to limit submissions for the episode, newest
// first.
func (s *Store) RecentSubmissions(ctx context.Context, episodeID string, limit int) ([]game.Submission, error) {
	return s.querySubmissions(ctx, `
		SELECT `+submissionCols+` FROM submissions
		WHERE episode_id = ? AND trim(content) != ''
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, episodeID, limit)
}

// HottestSubmissions returns up to limit submissions for the episode by heat.
func (s *Store) HottestSubmissions(ctx context.Context, episodeID string, limit int) ([]game.Submission, error) {
	return s.querySubmissions(ctx, `
		SELECT `+submissionCols+` FROM submissions
		WHERE episode_id = ?
		ORDER BY heat DESC, created_at DESC, rowid DESC
		LIMIT ?
	`, episodeID, limit)
}

// SwapHeat sets a submission's heat to next only if it still equals
// expected.
func (s *Store) SwapHeat(ctx context.Context, id string, expected, next int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET heat = ? WHERE id = ? AND heat = ?`, next, id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("updating heat: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// Path options

func encodeSourceIDs(ids []string) (any, error) {
	if ids == nil {
		return nil, nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeSourceIDs(ns sql.NullString) ([]string, error) {
	if !ns.Valid {
		return nil, nil
	}
	ids := []string{}
	if err := json.Unmarshal([]byte(ns.String), &ids); err != nil {
		return nil, fmt.Errorf("decoding source submission ids: %w", err)
	}
	return ids, nil
}

func (s *Store) optionCols() string {
	if s.caps.Has(ColSourceSubmissionIDs) {
		return `id, episode_id, title, description, source_submission_ids, created_at`
	}
	return `id, episode_id, title, description, NULL, created_at`
}

func scanOption(sc interface{ Scan(...any) error }) (game.PathOption, error) {
	var (
		opt       game.PathOption
		sources   sql.NullString
		createdAt string
	)
	if err := sc.Scan(&opt.ID, &opt.EpisodeID, &opt.Title, &opt.Description, &sources, &createdAt); err != nil {
		return opt, err
	}
	var err error
	if opt.SourceSubmissionIDs, err = decodeSourceIDs(sources); err != nil {
		return opt, err
	}
	if opt.CreatedAt, err = parseTime(createdAt); err != nil {
		return opt, err
	}
	return opt, nil
}

// ReplaceOptions deletes the episode's options (and, through them, their
// votes) and inserts drafts in their place, in one transaction.
func (s *Store) ReplaceOptions(ctx context.Context, episodeID string, drafts []game.OptionDraft) ([]game.PathOption, error) {
	var out []game.PathOption
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.replaceOptions(ctx, tx, episodeID, drafts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OpenVoting replaces the episode's options and applies state in the same
// transaction, so a failed state write leaves the old options in place.
func (s *Store) OpenVoting(ctx context.Context, episodeID string, drafts []game.OptionDraft, state game.Fields) ([]game.PathOption, error) {
	var out []game.PathOption
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if out, err = s.replaceOptions(ctx, tx, episodeID, drafts); err != nil {
			return err
		}
		return s.forceUpdate(ctx, tx, state)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) replaceOptions(ctx context.Context, tx *sql.Tx, episodeID string, drafts []game.OptionDraft) ([]game.PathOption, error) {
	withSources := s.caps.Has(ColSourceSubmissionIDs)
	out := make([]game.PathOption, 0, len(drafts))

	if _, err := tx.ExecContext(ctx, `DELETE FROM path_options WHERE episode_id = ?`, episodeID); err != nil {
		return nil, fmt.Errorf("deleting options: %w", err)
	}

	for _, d := range drafts {
		opt := game.PathOption{
			ID:          newID(),
			EpisodeID:   episodeID,
			Title:       d.Title,
			Description: d.Description,
		}
		createdAt := nowUTC()

		var err error
		if withSources {
			opt.SourceSubmissionIDs = d.SourceSubmissionIDs
			var sources any
			if sources, err = encodeSourceIDs(d.SourceSubmissionIDs); err != nil {
				return nil, err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO path_options (id, episode_id, title, description, source_submission_ids, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, opt.ID, episodeID, opt.Title, opt.Description, sources, createdAt)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO path_options (id, episode_id, title, description, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, opt.ID, episodeID, opt.Title, opt.Description, createdAt)
		}
		if err != nil {
			return nil, fmt.Errorf("inserting option: %w", err)
		}
		if opt.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, nil
}

// Options returns the episode's options in insertion order.
func (s *Store) Options(ctx context.Context, episodeID string) ([]game.PathOption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+s.optionCols()+` FROM path_options
		WHERE episode_id = ?
		ORDER BY created_at, rowid
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("querying options: %w", err)
	}
	defer rows.Close()

	var opts []game.PathOption
	for rows.Next() {
		opt, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning option: %w", err)
		}
		opts = append(opts, opt)
	}
	return opts, rows.Err()
}

func (s *Store) Option(ctx context.Context, id string) (game.PathOption, error) {
	opt, err := scanOption(s.db.QueryRowContext(ctx,
		`SELECT `+s.optionCols()+` FROM path_options WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return opt, ErrNotFound
	}
	return opt, err
}

// Votes

// CastVote records a vote. A repeat of the same (user, option) pair is
// ignored and reported as not inserted.
func (s *Store) CastVote(ctx context.Context, userID, optionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO votes (id, user_id, option_id, created_at)
		VALUES (?, ?, ?, ?)
	`, newID(), userID, optionID, nowUTC())
	if err != nil {
		return false, fmt.Errorf("inserting vote: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// VoteCounts returns the number of votes for each option id that has any.
func (s *Store) VoteCounts(ctx context.Context, optionIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(optionIDs))
	if len(optionIDs) == 0 {
		return counts, nil
	}

	args := make([]any, len(optionIDs))
	for i, id := range optionIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT option_id, COUNT(*) FROM votes
		WHERE option_id IN (`+placeholders(len(optionIDs))+`)
		GROUP BY option_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("counting votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// PurgeRound deletes the episode's votes, options and submissions, in that
// order, in one transaction.
func (s *Store) PurgeRound(ctx context.Context, episodeID string) (game.PurgeCounts, error) {
	var pc game.PurgeCounts
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		steps := []struct {
			query string
			count *int64
		}{
			{`DELETE FROM votes WHERE option_id IN (SELECT id FROM path_options WHERE episode_id = ?)`, &pc.Votes},
			{`DELETE FROM path_options WHERE episode_id = ?`, &pc.Options},
			{`DELETE FROM submissions WHERE episode_id = ?`, &pc.Submissions},
		}
		for _, step := range steps {
			result, err := tx.ExecContext(ctx, step.query, episodeID)
			if err != nil {
				return fmt.Errorf("purging round: %w", err)
			}
			*step.count, _ = result.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return game.PurgeCounts{}, err
	}
	return pc, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
