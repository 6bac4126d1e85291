package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/textgen"
)

// PremiseCount is how many campaign premises the oracle offers.
const PremiseCount = 3

type PremiseInput struct {
	Title string
	Genre string
	Tone  string
}

// Premises asks for three short, ironic campaign premises.
func (s *Synthesizer) Premises(ctx context.Context, in PremiseInput) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d short, irony-laden campaign premises for a serialized interactive story.\n\nConstraints:\n", PremiseCount)
	if in.Title != "" {
		fmt.Fprintf(&b, "- Title: %s\n", in.Title)
	}
	fmt.Fprintf(&b, "- Genre: %s\n- Tone: %s\n", in.Genre, in.Tone)
	b.WriteString("- Each premise should be 1-2 sentences.\n- Make them high-concept with a twist of irony.\n\n")
	fmt.Fprintf(&b, "Return ONLY valid JSON: an array of exactly %d strings.", PremiseCount)

	reply, err := s.generate(ctx, "premises", b.String())
	if err != nil {
		return nil, fmt.Errorf("generating premises: %w", err)
	}
	return parsePremises(reply)
}

func parsePremises(reply string) ([]string, error) {
	raw, err := extractArray(reply)
	if err != nil {
		return nil, err
	}
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding premises: %w", err)
	}
	var out []string
	for _, v := range items {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) != PremiseCount {
		return nil, fmt.Errorf("expected %d premises, got %d", PremiseCount, len(out))
	}
	return out, nil
}

type GenesisInput struct {
	Genre   string
	Tone    string
	Premise string
}

// Genesis is a generated storyform plus the first episode's prose.
// Fallback is set when the episode text was assembled locally because the
// backend was unavailable.
type Genesis struct {
	Storyform game.Storyform
	Episode   string
	Fallback  bool
}

// Genesis builds a storyform for the premise and writes episode 1 from it.
// A storyform that fails validation gets one repair pass.
func (s *Synthesizer) Genesis(ctx context.Context, in GenesisInput) (Genesis, error) {
	reply, err := s.generate(ctx, "storyform", storyformPrompt(in))
	if err != nil {
		return Genesis{}, fmt.Errorf("generating storyform: %w", err)
	}

	form, firstErr := parseStoryform(reply)
	if firstErr != nil {
		s.logger.Warn().Err(firstErr).Msg("storyform invalid, asking for a repair")
		repaired, err := s.generate(ctx, "storyform repair", repairPrompt(in, reply, firstErr))
		if err != nil {
			return Genesis{}, fmt.Errorf("repairing storyform: %w", err)
		}
		var secondErr error
		if form, secondErr = parseStoryform(repaired); secondErr != nil {
			return Genesis{}, fmt.Errorf("storyform generation failed: first pass: %v; second pass: %w", firstErr, secondErr)
		}
	}

	out := Genesis{Storyform: form}
	text, err := s.generate(ctx, "episode 1", episodeOnePrompt(form))
	switch {
	case err != nil && textgen.IsTransient(err):
		s.logger.Warn().Err(err).Msg("episode 1 generation unavailable, using the fallback opening")
		out.Episode = fallbackEpisodeOne(form, in)
		out.Fallback = true
	case err != nil:
		return Genesis{}, fmt.Errorf("generating episode 1: %w", err)
	default:
		out.Episode = strings.TrimSpace(text)
	}
	if len([]rune(out.Episode)) <= 20 {
		return Genesis{}, errors.New("episode 1 generation returned no prose")
	}
	return out, nil
}

// parseStoryform reads the first JSON object in reply and validates it.
func parseStoryform(reply string) (game.Storyform, error) {
	text := strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return game.Storyform{}, errors.New("reply holds no JSON object")
	}

	var form game.Storyform
	if err := json.Unmarshal([]byte(text[start:end+1]), &form); err != nil {
		return game.Storyform{}, fmt.Errorf("decoding storyform: %w", err)
	}
	if err := form.Validate(); err != nil {
		return game.Storyform{}, err
	}
	return form, nil
}

const storyformKeys = "objective_story, main_character, influence_character, relationship_story, driver, limit, outcome, judgment, active_facts, inventory"

func storyformPrompt(in GenesisInput) string {
	return fmt.Sprintf(`You are a Dramatica Theory Expert. Construct a complete Grand Argument Story based on the premise below.
1. Assign the 4 Domains (Universe, Physics, Psychology, Mind) with no duplicates across throughlines.
2. Select the Dynamics (Driver, Limit, Resolve) that fit the genre and tone.
3. Identify the root Problem and Solution elements.

Input:
- Genre: %s
- Tone: %s
- Premise: %s

Return ONLY a JSON object. The root object MUST contain these exact keys: %s.
objective_story has domain, concern, issue, problem, solution, goal, consequence.
main_character has name, domain, resolve (Change|Steadfast), growth (Start|Stop), approach (Do-er|Be-er), crucial_flaw.
influence_character has name, domain, unique_ability, impact.
relationship_story has domain, dynamic, trust_score (0-100), catalyst.
driver is Action|Decision, limit is Timelock|Optionlock, outcome is Success|Failure, judgment is Good|Bad.
active_facts and inventory are arrays of strings.
You MAY include a "cast" object mapping character names to {"role", "voice_dna", "key_phrases"}.
Do not wrap the object in markdown.`, in.Genre, in.Tone, in.Premise, storyformKeys)
}

func repairPrompt(in GenesisInput, raw string, problem error) string {
	return fmt.Sprintf(`The JSON below was meant to be a Dramatica storyform but it is invalid: %v.

Rewrite it so the root object has exactly these keys: %s, and every field is filled.
Keep the story intent. Genre: %s. Tone: %s. Premise: %s.

JSON:
%s

Return ONLY the corrected JSON object.`, problem, storyformKeys, in.Genre, in.Tone, in.Premise, truncateRunes(raw, 6000))
}

func episodeOnePrompt(form game.Storyform) string {
	formJSON, _ := json.Marshal(form)
	return fmt.Sprintf(`Using this storyform, write Episode 1 (the Inciting Incident). If driver is "Action", start with an event. If driver is "Decision", start with a choice.

Storyform JSON:
%s

Constraints:
- Write in present tense.
- About 250-400 words.
- No headings.
- Output ONLY the prose.`, formJSON)
}

// fallbackEpisodeOne assembles a serviceable opening from the storyform
// alone.
func fallbackEpisodeOne(form game.Storyform, in GenesisInput) string {
	mc := form.MainCharacter.Name
	ic := form.InfluenceCharacter.Name

	opener := "It starts with a choice that should be simple, until it is not."
	if form.Driver == "Action" {
		opener = "The first sign arrives without warning, and it is unmistakably real."
	}

	paragraphs := []string{
		opener,
		fmt.Sprintf("%s has been living inside the premise long enough that it feels normal: %s. But tonight the pattern breaks. The pressure around the shared goal, %s, tightens like a knot.",
			mc, strings.TrimSpace(in.Premise), form.ObjectiveStory.Goal),
		fmt.Sprintf("%s appears at exactly the wrong moment, carrying the kind of certainty that makes other people dangerous. Between them the relationship is already in motion (%s), and small words land like sparks near dry tinder.",
			ic, form.RelationshipStory.Dynamic),
		fmt.Sprintf("Rumors harden into facts. A door that used to open now stays shut. The tone is %s and the genre is %s, but the stakes are concrete: fail, and %s.",
			strings.TrimSpace(in.Tone), strings.TrimSpace(in.Genre), form.ObjectiveStory.Consequence),
		fmt.Sprintf("%s makes the first move. It does not work the way %s expects. %s pushes back, not with force, but with the kind of influence that changes the shape of a decision.",
			mc, mc, ic),
		"By the time the scene ends there is no unchosen path left. The story has ignited.",
	}
	return strings.Join(paragraphs, "\n\n")
}
