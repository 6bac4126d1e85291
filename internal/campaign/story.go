package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/store"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

// Writer drafts the long-form story text an admin works from.
type Writer interface {
	Premises(ctx context.Context, in synth.PremiseInput) ([]string, error)
	Genesis(ctx context.Context, in synth.GenesisInput) (synth.Genesis, error)
	BeatSheet(ctx context.Context, in synth.BeatInput) (string, error)
	Script(ctx context.Context, beatSheet, canon string) (string, error)
	PolishForAudio(ctx context.Context, prose, canon string) (string, error)
}

func WithWriter(w Writer) Option {
	return func(s *Service) { s.writer = w }
}

const (
	canonEpisodeRunes = 1400
	recentCanon       = 4
	blockSeparator    = "\n\n====\n\n"
)

type PremiseInput struct {
	Title string
	Genre string
	Tone  string
}

// OraclePremises offers three premises for a campaign that has not been
// written yet.
func (s *Service) OraclePremises(ctx context.Context, in PremiseInput) ([]string, error) {
	if s.writer == nil {
		return nil, game.ErrNoWriter
	}
	in.Genre = strings.TrimSpace(in.Genre)
	in.Tone = strings.TrimSpace(in.Tone)
	if in.Genre == "" || in.Tone == "" {
		return nil, game.Reject(game.Invalid, "Genre and Tone are required.")
	}
	premises, err := s.writer.Premises(ctx, synth.PremiseInput{
		Title: strings.TrimSpace(in.Title),
		Genre: in.Genre,
		Tone:  in.Tone,
	})
	if err != nil {
		return nil, fmt.Errorf("consulting the oracle: %w", err)
	}
	return premises, nil
}

type GenesisInput struct {
	Title   string
	Genre   string
	Tone    string
	Premise string
}

type GenesisResult struct {
	Bible     game.SeriesBible
	Episode   game.Episode
	Storyform game.Storyform
	// Fallback is set when episode 1 was assembled without the backend.
	Fallback bool
}

// GenerateCampaign writes a storyform and episode 1 for the premise and
// ignites the campaign with them.
func (s *Service) GenerateCampaign(ctx context.Context, in GenesisInput) (GenesisResult, error) {
	if s.writer == nil {
		return GenesisResult{}, game.ErrNoWriter
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Tone = strings.TrimSpace(in.Tone)
	in.Premise = strings.TrimSpace(in.Premise)
	if in.Title == "" || in.Genre == "" || in.Tone == "" || in.Premise == "" {
		return GenesisResult{}, game.Reject(game.Invalid, "Title, Genre, Tone, and Premise are required.")
	}

	// Generation is slow and paid for, so refuse early when it would be
	// thrown away.
	n, err := s.store.EpisodeCount(ctx)
	if err != nil {
		return GenesisResult{}, fmt.Errorf("counting episodes: %w", err)
	}
	if n > 0 {
		return GenesisResult{}, game.ErrAlreadyIgnited
	}

	gen, err := s.writer.Genesis(ctx, synth.GenesisInput{Genre: in.Genre, Tone: in.Tone, Premise: in.Premise})
	if err != nil {
		return GenesisResult{}, fmt.Errorf("generating campaign: %w", err)
	}
	content, err := json.Marshal(gen.Storyform)
	if err != nil {
		return GenesisResult{}, fmt.Errorf("encoding storyform: %w", err)
	}

	bible, ep, err := s.IgniteCampaign(ctx, IgniteInput{
		Bible: game.SeriesBible{
			Title:   in.Title,
			Genre:   in.Genre,
			Tone:    in.Tone,
			Premise: in.Premise,
			Content: content,
		},
		Episode: game.Episode{
			Title:     in.Title + ": Episode 1",
			Narrative: gen.Episode,
		},
	})
	if err != nil {
		return GenesisResult{}, err
	}
	if gen.Fallback {
		s.logger.Warn().Str("episode_id", ep.ID).Msg("campaign ignited with the fallback opening")
	}
	return GenesisResult{Bible: bible, Episode: ep, Storyform: gen.Storyform, Fallback: gen.Fallback}, nil
}

// ActiveSeriesBible returns the bible the game points at, or the newest
// one when it points at none.
func (s *Service) ActiveSeriesBible(ctx context.Context) (game.SeriesBible, error) {
	st, err := s.state(ctx)
	if err != nil {
		return game.SeriesBible{}, err
	}
	var b game.SeriesBible
	if st.CurrentSeriesBibleID != "" {
		b, err = s.store.SeriesBible(ctx, st.CurrentSeriesBibleID)
	} else {
		b, err = s.store.LatestSeriesBible(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		return game.SeriesBible{}, game.ErrNoStoryBible
	}
	if err != nil {
		return game.SeriesBible{}, fmt.Errorf("loading series bible: %w", err)
	}
	return b, nil
}

// activeStoryform decodes the storyform of the active bible.
func (s *Service) activeStoryform(ctx context.Context) (game.Storyform, error) {
	b, err := s.ActiveSeriesBible(ctx)
	if err != nil {
		return game.Storyform{}, err
	}
	var form game.Storyform
	if err := json.Unmarshal(b.Content, &form); err != nil {
		return game.Storyform{}, game.ErrNoStoryBible
	}
	if err := form.Validate(); err != nil {
		return game.Storyform{}, game.Reject(game.Invalid, "The active story bible is not a storyform: %v.", err)
	}
	return form, nil
}

type ContinuityInput struct {
	WinningOptionID    string
	WinningTitle       string
	WinningDescription string
}

// ContinuityHeader assembles the canon packet the next episode is written
// against: the storyform summary, the canon rules, the winning option, the
// credited contributors and the text of episode 1 plus the latest four.
func (s *Service) ContinuityHeader(ctx context.Context, in ContinuityInput) (string, error) {
	form, err := s.activeStoryform(ctx)
	if err != nil {
		return "", err
	}

	canon, err := s.canonEpisodes(ctx)
	if err != nil {
		return "", err
	}

	blocks := []string{
		form.Summary(),
		canonRules,
		fmt.Sprintf("Winning option (ONLY allowed source of new canon this episode)\n- Title: %s\n- Description: %s",
			strings.TrimSpace(in.WinningTitle), strings.TrimSpace(in.WinningDescription)),
	}
	names, err := s.contributors(ctx, in.WinningOptionID)
	if err != nil {
		return "", err
	}
	if len(names) > 0 {
		blocks = append(blocks, contributorBlock(names))
	}
	blocks = append(blocks, "Canon episodes (recent + Episode 1)\n"+formatCanon(canon))
	return strings.Join(blocks, blockSeparator), nil
}

const canonRules = `Canon rules (STRICT)
1) NO-NEW-CANON-EXCEPT-VOTE: You may ONLY introduce new named characters, factions, locations, items, or major facts if they are explicitly present in the winning option above.
2) Everything else must remain consistent with the Story Bible and prior episodes.
3) If the winning option implies a new element, integrate it in a way that fits the bible's domains and dynamics and does not contradict established facts.
4) Do not retcon. Do not explain away contradictions; avoid them entirely.`

func contributorBlock(names []string) string {
	return fmt.Sprintf(`CONTRIBUTOR CREDIT (DO NOT BREAK THE FOURTH WALL)
The plot points for this episode were suggested by the following architects: %s.
IF their names sound in-world or fantasy-appropriate, subtly weave a nod to them into the narration (e.g., "The strategy of the tactician [Name]...").
IF their names are obvious gamer-tags, DO NOT use the name directly, but honor the spirit of their contribution.`, strings.Join(names, ", "))
}

// canonEpisodes returns S1E1 followed by the latest episodes, each once.
func (s *Service) canonEpisodes(ctx context.Context) ([]game.Episode, error) {
	var out []game.Episode
	first, err := s.store.EpisodeAt(ctx, 1, 1)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading episode 1: %w", err)
	default:
		out = append(out, first)
	}

	recent, err := s.store.RecentEpisodes(ctx, recentCanon)
	if err != nil {
		return nil, fmt.Errorf("loading recent episodes: %w", err)
	}
	for _, ep := range recent {
		if ep.ID != first.ID {
			out = append(out, ep)
		}
	}
	return out, nil
}

// contributors names the authors behind the winning option. A purged or
// unknown option credits nobody.
func (s *Service) contributors(ctx context.Context, optionID string) ([]string, error) {
	if optionID == "" {
		return nil, nil
	}
	opt, err := s.store.Option(ctx, optionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading winning option: %w", err)
	}
	return s.store.AuthorNames(ctx, opt.SourceSubmissionIDs)
}

func formatCanon(episodes []game.Episode) string {
	var parts []string
	for _, ep := range episodes {
		body := strings.TrimSpace(ep.Narrative)
		if body == "" {
			continue
		}
		if r := []rune(body); len(r) > canonEpisodeRunes {
			body = string(r[:canonEpisodeRunes]) + "…"
		}
		parts = append(parts, fmt.Sprintf("S%dE%d: %s\n%s", ep.SeasonNum, ep.EpisodeNum, ep.Title, body))
	}
	if len(parts) == 0 {
		return "(no narrative canon found)"
	}
	return strings.Join(parts, "\n\n---\n\n")
}

type BeatSheetInput struct {
	WinningText  string
	Canon        string
	Contributors []string
}

// DraftBeatSheet lays out the next episode's scenes.
func (s *Service) DraftBeatSheet(ctx context.Context, in BeatSheetInput) (string, error) {
	if s.writer == nil {
		return "", game.ErrNoWriter
	}
	if strings.TrimSpace(in.WinningText) == "" {
		return "", game.Reject(game.Invalid, "The winning submission is required.")
	}
	return s.writer.BeatSheet(ctx, synth.BeatInput{
		WinningText:  strings.TrimSpace(in.WinningText),
		Canon:        in.Canon,
		Contributors: in.Contributors,
	})
}

// DraftScript writes episode prose from a beat sheet.
func (s *Service) DraftScript(ctx context.Context, beatSheet, canon string) (string, error) {
	if s.writer == nil {
		return "", game.ErrNoWriter
	}
	if strings.TrimSpace(beatSheet) == "" {
		return "", game.Reject(game.Invalid, "A beat sheet is required.")
	}
	return s.writer.Script(ctx, beatSheet, canon)
}

// PolishForAudio rewrites prose for narration.
func (s *Service) PolishForAudio(ctx context.Context, prose, canon string) (string, error) {
	if s.writer == nil {
		return "", game.ErrNoWriter
	}
	if strings.TrimSpace(prose) == "" {
		return "", game.Reject(game.Invalid, "Text to polish is required.")
	}
	return s.writer.PolishForAudio(ctx, prose, canon)
}
