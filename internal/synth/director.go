package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ScenesPerEpisode is the number of scenes a beat sheet lays out.
const ScenesPerEpisode = 5

const (
	defaultSceneWords = 380
	defaultDraftWords = 1800
	maxContinuations  = 4
)

var (
	sceneHeaderRe = regexp.MustCompile(`(?im)^##\s*SCENE\s+\d+\s*:`)
	trustRe       = regexp.MustCompile(`(?i)Trust score:\s*([^\n]+)`)
	limitRe       = regexp.MustCompile(`(?i)Limit:\s*([^\n]+)`)
)

const momentumRules = `Forward momentum requirements (STRICT)
- Advance the story: make at least one irreversible change in the situation.
- Show a concrete step toward the Objective Story goal or a measurable slide toward the Consequence.
- Make the next beat feel like another turn of the Driver, increasing pressure toward the Limit.
- Push the Main Character at least once through the Influence Character's impact.
- Shift Relationship Story trust slightly (+1 or -1) through a specific interaction.`

type BeatInput struct {
	WinningText  string
	Canon        string
	Contributors []string
}

// BeatSheet lays out the next episode as five markdown scenes built on the
// winning option.
func (s *Synthesizer) BeatSheet(ctx context.Context, in BeatInput) (string, error) {
	prompt := fmt.Sprintf(`You are a showrunner acting as the Architect.

Canon packet: %s
Winning submission: %s
Contributors: %s

Every scene must be an event that changes the value charge in a character's life. Cut any scene whose value does not turn.

Use exactly this markdown shape, repeated for %d scenes:

## SCENE 1: [Title]
**Characters:** [List]
**Scene Goal:** [What does the protagonist of this scene want?]
**The Conflict:** [What stands in their way?]
**The Turn:** [Start value] -> [End value]
**Attribution:** [Name of a contributing architect to credit, or "None"]
**Action:** [Bullet points of the plot beats, cause and effect.]

Scene 1 turns from normalcy to the inciting incident. Scene %d turns from resolution to a new dilemma.
Prioritize event density. If the winning submission suggested a specific beat, include it.

Output ONLY the scene blueprint.`,
		in.Canon, in.WinningText, strings.Join(in.Contributors, ", "), ScenesPerEpisode, ScenesPerEpisode)

	reply, err := s.generate(ctx, "beat sheet", prompt)
	if err != nil {
		return "", fmt.Errorf("generating beat sheet: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// Script drafts the episode prose from a beat sheet, scene by scene when
// the sheet parses into five scenes and in one pass otherwise. Short drafts
// are continued up to four times.
func (s *Synthesizer) Script(ctx context.Context, beatSheet, canon string) (string, error) {
	scenes := splitScenes(beatSheet)
	if scenes == nil {
		s.logger.Info().Msg("beat sheet has no scene blueprint, drafting in one pass")
		return s.singlePassScript(ctx, beatSheet, canon)
	}

	trust := canonField(canon, trustRe)
	limit := canonField(canon, limitRe)

	var drafts []string
	tail := ""
	for i, scene := range scenes {
		prompt := fmt.Sprintf(`You are writing SCENE %d of %d.

BLUEPRINT (the turn):
%s

STORY SO FAR: %s
CONTEXT: %s
CANON LAWS: Trust score: %s, Limit: %s

Use active verbs over adjectives. The scene must pivot on the turn in the blueprint. Dialogue is action, never small talk. Describe sounds of movement and impact.
Write the full scene (about 400 words) and end with a hook into the next scene.
Output ONLY the scene text.`, i+1, len(scenes), scene, storySoFar(tail), orNone(canon), trust, limit)

		text, err := s.generate(ctx, fmt.Sprintf("scene %d", i+1), prompt)
		if err != nil {
			return "", fmt.Errorf("drafting scene %d: %w", i+1, err)
		}
		text, err = s.extend(ctx, strings.TrimSpace(text), s.sceneWords, func(tail string) string {
			return fmt.Sprintf(`Continue writing SCENE %d of %d.

STORY SO FAR (continue immediately from here):
...%s

BLUEPRINT (must still satisfy):
%s

CANON PACKET (do not contradict):
%s

Add at least 200 more words of the same scene. Do not restart, recap or summarize.
Output ONLY the continuation text.`, i+1, len(scenes), tail, scene, orNone(canon))
		})
		if err != nil {
			return "", fmt.Errorf("continuing scene %d: %w", i+1, err)
		}
		s.logger.Debug().Int("scene", i+1).Int("words", wordCount(text)).Msg("scene drafted")

		drafts = append(drafts, text)
		tail = lastWords(text, 200)
	}
	return strings.Join(drafts, "\n\n"), nil
}

func (s *Synthesizer) singlePassScript(ctx context.Context, beatSheet, canon string) (string, error) {
	prompt := fmt.Sprintf(`You are writing the next episode narration for an interactive story game.

Context:
%s

%s

Beat sheet:
%s

Write about 2,000 words of vivid prose narration that follows the beat sheet (at least %d words).
Write dialogue, action and sensory detail; do not summarize. Present tense preferred. No bullet points or headings.
Output ONLY the prose.`, orNone(canon), momentumRules, beatSheet, s.draftWords)

	text, err := s.generate(ctx, "draft", prompt)
	if err != nil {
		return "", fmt.Errorf("drafting episode: %w", err)
	}
	return s.extend(ctx, strings.TrimSpace(text), s.draftWords, func(tail string) string {
		return fmt.Sprintf(`Continue writing the episode.

STORY SO FAR (continue immediately from here):
...%s

Context:
%s

Beat sheet:
%s

Continue with at least 350 more words. Do not restart or recap.
Output ONLY the continuation prose.`, tail, orNone(canon), beatSheet)
	})
}

// extend asks for continuations until text reaches minWords or the
// continuation budget runs out.
func (s *Synthesizer) extend(ctx context.Context, text string, minWords int, prompt func(tail string) string) (string, error) {
	for i := 0; i < maxContinuations && wordCount(text) < minWords; i++ {
		extra, err := s.generate(ctx, "continuation", prompt(lastWords(text, 150)))
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text + "\n\n" + strings.TrimSpace(extra))
	}
	return text, nil
}

// PolishForAudio rewrites prose for text-to-speech delivery.
func (s *Synthesizer) PolishForAudio(ctx context.Context, prose, canon string) (string, error) {
	prompt := fmt.Sprintf(`You are a voice director for a cinematic audio drama.

Context (do not change names or facts implied by this):
%s

Rewrite the input text for text-to-speech performance.
1. No XML tags or markup of any kind.
2. Use ellipses for suspenseful pauses and double line breaks for long dramatic pauses. Use commas to give long sentences room to breathe.
3. Never use ALL CAPS. Use exclamation marks sparingly.
4. Action scenes get short, clipped sentences. Lore and mystery get flowing, slower ones.
5. Turn purely visual descriptions into auditory ones.

Input text:
%s

Output ONLY the rewritten text, without markdown or headings.`, orNone(canon), prose)

	reply, err := s.generate(ctx, "audio polish", prompt)
	if err != nil {
		return "", fmt.Errorf("polishing for audio: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// splitScenes cuts a beat sheet at its "## SCENE n:" headers. It returns
// nil unless at least five scenes are found, and keeps the first five.
func splitScenes(beatSheet string) []string {
	text := strings.TrimSpace(beatSheet)
	locs := sceneHeaderRe.FindAllStringIndex(text, -1)
	if len(locs) < ScenesPerEpisode {
		return nil
	}
	scenes := make([]string, 0, ScenesPerEpisode)
	for i := 0; i < ScenesPerEpisode; i++ {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		scenes = append(scenes, strings.TrimSpace(text[locs[i][0]:end]))
	}
	return scenes
}

func canonField(canon string, re *regexp.Regexp) string {
	if m := re.FindStringSubmatch(canon); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			return v
		}
	}
	return "(unknown)"
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func storySoFar(tail string) string {
	if tail == "" {
		return "(start of episode)"
	}
	return "..." + tail
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
