package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Columns the store reads or writes only when the schema has them.
const (
	ColSourceSubmissionIDs = "path_options.source_submission_ids"
	ColCreditedAuthors     = "episodes.credited_authors"
	ColSeriesBibleID       = "game_state.current_series_bible_id"
	ColIntroAudioURL       = "series_bibles.intro_audio_url"
	ColHasAccess           = "profiles.has_access"
)

var OptionalColumns = []string{
	ColSourceSubmissionIDs,
	ColCreditedAuthors,
	ColSeriesBibleID,
	ColIntroAudioURL,
	ColHasAccess,
}

// LockColumns must all exist for the phase engine to run.
var LockColumns = []string{
	"game_state.phase",
	"game_state.current_episode_id",
	"game_state.phase_expiry",
	"game_state.is_transitioning",
	"game_state.transitioning_since",
}

var inspectedTables = []string{
	"profiles", "series_bibles", "episodes", "submissions",
	"path_options", "votes", "game_state",
}

// Capabilities is the set of "table.column" names present in the schema.
type Capabilities map[string]bool

func (c Capabilities) Has(col string) bool { return c[col] }

// Missing returns the columns of cols that the schema lacks.
func (c Capabilities) Missing(cols ...string) []string {
	var out []string
	for _, col := range cols {
		if !c[col] {
			out = append(out, col)
		}
	}
	return out
}

func (c Capabilities) Require(cols ...string) error {
	if missing := c.Missing(cols...); len(missing) > 0 {
		return fmt.Errorf("schema is missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Columns lists every known column, sorted.
func (c Capabilities) Columns() []string {
	out := make([]string, 0, len(c))
	for col := range c {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

func inspectSchema(ctx context.Context, db *sql.DB) (Capabilities, error) {
	caps := Capabilities{}
	for _, table := range inspectedTables {
		rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
		if err != nil {
			return nil, fmt.Errorf("reading columns of %s: %w", table, err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			caps[table+"."+name] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return caps, nil
}
