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

func (s *Store) episodeCols() string {
	if s.caps.Has(ColCreditedAuthors) {
		return `id, season_num, episode_num, title, narrative, audio_url, credited_authors, created_at`
	}
	return `id, season_num, episode_num, title, narrative, audio_url, NULL, created_at`
}

func scanEpisode(sc interface{ Scan(...any) error }) (game.Episode, error) {
	var (
		ep        game.Episode
		audio     sql.NullString
		authors   sql.NullString
		createdAt string
	)
	if err := sc.Scan(&ep.ID, &ep.SeasonNum, &ep.EpisodeNum, &ep.Title, &ep.Narrative, &audio, &authors, &createdAt); err != nil {
		return ep, err
	}
	ep.AudioURL = audio.String
	if authors.Valid && authors.String != "" {
		if err := json.Unmarshal([]byte(authors.String), &ep.CreditedAuthors); err != nil {
			return ep, fmt.Errorf("decoding credited authors: %w", err)
		}
	}
	var err error
	ep.CreatedAt, err = parseTime(createdAt)
	return ep, err
}

func (s *Store) Episode(ctx context.Context, id string) (game.Episode, error) {
	ep, err := scanEpisode(s.db.QueryRowContext(ctx,
		`SELECT `+s.episodeCols()+` FROM episodes WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return ep, ErrNotFound
	}
	return ep, err
}

// LatestEpisode returns the episode with the highest (season, episode) pair.
func (s *Store) LatestEpisode(ctx context.Context) (game.Episode, error) {
	ep, err := scanEpisode(s.db.QueryRowContext(ctx, `
		SELECT `+s.episodeCols()+` FROM episodes
		ORDER BY season_num DESC, episode_num DESC
		LIMIT 1
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return ep, ErrNotFound
	}
	return ep, err
}

// EpisodeAt returns the episode with the given ordinals.
func (s *Store) EpisodeAt(ctx context.Context, season, episode int) (game.Episode, error) {
	ep, err := scanEpisode(s.db.QueryRowContext(ctx,
		`SELECT `+s.episodeCols()+` FROM episodes WHERE season_num = ? AND episode_num = ?`, season, episode,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return ep, ErrNotFound
	}
	return ep, err
}

// RecentEpisodes returns up to limit episodes, latest first.
func (s *Store) RecentEpisodes(ctx context.Context, limit int) ([]game.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+s.episodeCols()+` FROM episodes
		ORDER BY season_num DESC, episode_num DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}
	defer rows.Close()

	var out []game.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Store) insertEpisode(ctx context.Context, q execer, ep game.Episode) (game.Episode, error) {
	ep.ID = newID()
	createdAt := nowUTC()

	cols := []string{"id", "season_num", "episode_num", "title", "narrative", "audio_url", "created_at"}
	args := []any{ep.ID, ep.SeasonNum, ep.EpisodeNum, ep.Title, ep.Narrative, nullable(ep.AudioURL), createdAt}
	if s.caps.Has(ColCreditedAuthors) && ep.CreditedAuthors != nil {
		b, err := json.Marshal(ep.CreditedAuthors)
		if err != nil {
			return ep, err
		}
		cols = append(cols, "credited_authors")
		args = append(args, string(b))
	} else {
		ep.CreditedAuthors = nil
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO episodes (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders(len(cols))+`)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ep, fmt.Errorf("episode S%dE%d: %w", ep.SeasonNum, ep.EpisodeNum, ErrDuplicate)
		}
		return ep, fmt.Errorf("inserting episode: %w", err)
	}
	ep.CreatedAt, err = parseTime(createdAt)
	return ep, err
}

// PublishEpisode inserts ep and applies state to the game state row in the
// same transaction, so a failed state write leaves no orphan episode.
// Episode-valued fields in state are pointed at the new episode.
func (s *Store) PublishEpisode(ctx context.Context, ep game.Episode, state game.Fields) (game.Episode, error) {
	var out game.Episode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if out, err = s.insertEpisode(ctx, tx, ep); err != nil {
			return err
		}
		state.EpisodeID = game.Ptr(out.ID)
		return s.forceUpdate(ctx, tx, state)
	})
	if err != nil {
		return game.Episode{}, err
	}
	return out, nil
}

// Ignite starts a campaign: it stores the bible and the first episode and
// points the game state at both.
func (s *Store) Ignite(ctx context.Context, bible game.SeriesBible, ep game.Episode, state game.Fields) (game.SeriesBible, game.Episode, error) {
	var (
		outBible game.SeriesBible
		outEp    game.Episode
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if outBible, err = s.insertBible(ctx, tx, bible); err != nil {
			return err
		}
		if outEp, err = s.insertEpisode(ctx, tx, ep); err != nil {
			return err
		}
		state.EpisodeID = game.Ptr(outEp.ID)
		state.SeriesBibleID = game.Ptr(outBible.ID)
		return s.forceUpdate(ctx, tx, state)
	})
	if err != nil {
		return game.SeriesBible{}, game.Episode{}, err
	}
	return outBible, outEp, nil
}

// ResetCampaign applies state and then deletes all round data and episodes,
// plus the bibles when deleteBibles is set. The game state row itself is
// kept.
func (s *Store) ResetCampaign(ctx context.Context, state game.Fields, deleteBibles bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.forceUpdate(ctx, tx, state); err != nil {
			return err
		}
		tables := []string{"votes", "path_options", "submissions", "episodes"}
		if deleteBibles {
			tables = append(tables, "series_bibles")
		}
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
}

// EpisodeCount returns how many episodes have been published.
func (s *Store) EpisodeCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&n)
	return n, err
}

// Series bibles

func (s *Store) insertBible(ctx context.Context, q execer, b game.SeriesBible) (game.SeriesBible, error) {
	b.ID = newID()
	createdAt := nowUTC()
	content := string(b.Content)
	if content == "" {
		content = "{}"
	}

	cols := []string{"id", "title", "genre", "tone", "premise", "content", "created_at"}
	args := []any{b.ID, b.Title, b.Genre, b.Tone, b.Premise, content, createdAt}
	if s.caps.Has(ColIntroAudioURL) {
		cols = append(cols, "intro_audio_url")
		args = append(args, nullable(b.IntroAudioURL))
	} else {
		b.IntroAudioURL = ""
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO series_bibles (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders(len(cols))+`)`,
		args...,
	); err != nil {
		return b, fmt.Errorf("inserting series bible: %w", err)
	}
	b.Content = []byte(content)
	var err error
	b.CreatedAt, err = parseTime(createdAt)
	return b, err
}

func (s *Store) bibleQuery(where string) string {
	audioCol := "NULL"
	if s.caps.Has(ColIntroAudioURL) {
		audioCol = "intro_audio_url"
	}
	return `SELECT id, title, genre, tone, premise, content, ` + audioCol + `, created_at
		FROM series_bibles ` + where
}

func scanBible(sc interface{ Scan(...any) error }) (game.SeriesBible, error) {
	var (
		b         game.SeriesBible
		content   string
		audio     sql.NullString
		createdAt string
	)
	err := sc.Scan(&b.ID, &b.Title, &b.Genre, &b.Tone, &b.Premise, &content, &audio, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.Content = []byte(content)
	b.IntroAudioURL = audio.String
	b.CreatedAt, err = parseTime(createdAt)
	return b, err
}

func (s *Store) SeriesBible(ctx context.Context, id string) (game.SeriesBible, error) {
	return scanBible(s.db.QueryRowContext(ctx, s.bibleQuery(`WHERE id = ?`), id))
}

// LatestSeriesBible returns the most recently created bible.
func (s *Store) LatestSeriesBible(ctx context.Context) (game.SeriesBible, error) {
	return scanBible(s.db.QueryRowContext(ctx, s.bibleQuery(`ORDER BY created_at DESC, rowid DESC LIMIT 1`)))
}

// AuthorNames resolves the authors of the given submissions for episode
// credits. Synthetic submissions are skipped; a user without a profile is
// named by the first 8 characters of their id. Each name appears once, in
// the order of submissionIDs.
func (s *Store) AuthorNames(ctx context.Context, submissionIDs []string) ([]string, error) {
	if len(submissionIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(submissionIDs))
	for i, id := range submissionIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, p.username
		FROM submissions s
		LEFT JOIN profiles p ON p.id = s.user_id
		WHERE s.id IN (`+placeholders(len(submissionIDs))+`) AND s.is_synthetic = 0
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolving authors: %w", err)
	}
	defer rows.Close()

	bySubmission := make(map[string]string, len(submissionIDs))
	for rows.Next() {
		var (
			subID, userID string
			username      sql.NullString
		)
		if err := rows.Scan(&subID, &userID, &username); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(username.String)
		if name == "" {
			name = userID
			if len(name) > 8 {
				name = name[:8]
			}
		}
		bySubmission[subID] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var names []string
	seen := make(map[string]bool)
	for _, id := range submissionIDs {
		name, ok := bySubmission[id]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
