package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domains are the four Dramatica throughline domains.
var Domains = []string{"Universe", "Physics", "Psychology", "Mind"}

// Storyform is the structured series bible kept in SeriesBible.Content.
// Keys follow the JSON the text generator is asked for.
type Storyform struct {
	ObjectiveStory struct {
		Domain      string `json:"domain"`
		Concern     string `json:"concern"`
		Issue       string `json:"issue"`
		Problem     string `json:"problem"`
		Solution    string `json:"solution"`
		Goal        string `json:"goal"`
		Consequence string `json:"consequence"`
	} `json:"objective_story"`
	MainCharacter struct {
		Name        string `json:"name"`
		Domain      string `json:"domain"`
		Resolve     string `json:"resolve"`
		Growth      string `json:"growth"`
		Approach    string `json:"approach"`
		CrucialFlaw string `json:"crucial_flaw"`
	} `json:"main_character"`
	InfluenceCharacter struct {
		Name          string `json:"name"`
		Domain        string `json:"domain"`
		UniqueAbility string `json:"unique_ability"`
		Impact        string `json:"impact"`
	} `json:"influence_character"`
	RelationshipStory struct {
		Domain     string  `json:"domain"`
		Dynamic    string  `json:"dynamic"`
		TrustScore float64 `json:"trust_score"`
		Catalyst   string  `json:"catalyst"`
	} `json:"relationship_story"`
	Cast map[string]CastMember `json:"cast,omitempty"`

	Driver   string `json:"driver"`
	Limit    string `json:"limit"`
	Outcome  string `json:"outcome"`
	Judgment string `json:"judgment"`

	ActiveFacts []string `json:"active_facts"`
	Inventory   []string `json:"inventory"`
}

type CastMember struct {
	Role       string   `json:"role"`
	VoiceDNA   string   `json:"voice_dna"`
	KeyPhrases []string `json:"key_phrases"`
}

// Validate checks the storyform is complete: every named field set, four
// distinct known domains, and a trust score within 0..100.
func (s Storyform) Validate() error {
	required := []struct{ path, v string }{
		{"objective_story.concern", s.ObjectiveStory.Concern},
		{"objective_story.issue", s.ObjectiveStory.Issue},
		{"objective_story.problem", s.ObjectiveStory.Problem},
		{"objective_story.solution", s.ObjectiveStory.Solution},
		{"objective_story.goal", s.ObjectiveStory.Goal},
		{"objective_story.consequence", s.ObjectiveStory.Consequence},
		{"main_character.name", s.MainCharacter.Name},
		{"main_character.crucial_flaw", s.MainCharacter.CrucialFlaw},
		{"influence_character.name", s.InfluenceCharacter.Name},
		{"influence_character.unique_ability", s.InfluenceCharacter.UniqueAbility},
		{"influence_character.impact", s.InfluenceCharacter.Impact},
		{"relationship_story.dynamic", s.RelationshipStory.Dynamic},
		{"relationship_story.catalyst", s.RelationshipStory.Catalyst},
	}
	for _, r := range required {
		if strings.TrimSpace(r.v) == "" {
			return fmt.Errorf("storyform: %s is required", r.path)
		}
	}

	choices := []struct {
		path, v string
		allowed []string
	}{
		{"main_character.resolve", s.MainCharacter.Resolve, []string{"Change", "Steadfast"}},
		{"main_character.growth", s.MainCharacter.Growth, []string{"Start", "Stop"}},
		{"main_character.approach", s.MainCharacter.Approach, []string{"Do-er", "Be-er"}},
		{"driver", s.Driver, []string{"Action", "Decision"}},
		{"limit", s.Limit, []string{"Timelock", "Optionlock"}},
		{"outcome", s.Outcome, []string{"Success", "Failure"}},
		{"judgment", s.Judgment, []string{"Good", "Bad"}},
	}
	for _, c := range choices {
		if !contains(c.allowed, c.v) {
			return fmt.Errorf("storyform: %s must be one of %s", c.path, strings.Join(c.allowed, ", "))
		}
	}

	domains := []string{
		s.ObjectiveStory.Domain,
		s.MainCharacter.Domain,
		s.InfluenceCharacter.Domain,
		s.RelationshipStory.Domain,
	}
	seen := make(map[string]bool, len(domains))
	for _, d := range domains {
		if !contains(Domains, d) {
			return fmt.Errorf("storyform: domain %q must be one of %s", d, strings.Join(Domains, ", "))
		}
		seen[d] = true
	}
	if len(seen) != len(domains) {
		return errors.New("storyform: throughline domains must be unique across OS/MC/IC/RS")
	}

	if ts := s.RelationshipStory.TrustScore; ts < 0 || ts > 100 {
		return errors.New("storyform: relationship_story.trust_score must be between 0 and 100")
	}
	if s.ActiveFacts == nil || s.Inventory == nil {
		return errors.New("storyform: active_facts and inventory must be arrays")
	}
	return nil
}

// Summary renders the storyform as the canon block handed to the writer.
func (s Storyform) Summary() string {
	var b strings.Builder
	b.WriteString("Dramatica / NCP Canon Summary\n\n")

	obj := s.ObjectiveStory
	fmt.Fprintf(&b, "Objective Story\n- Domain: %s\n- Goal: %s\n- Consequence: %s\n- Problem -> Solution: %s -> %s\n- Concern: %s\n- Issue: %s\n\n",
		obj.Domain, obj.Goal, obj.Consequence, obj.Problem, obj.Solution, obj.Concern, obj.Issue)

	mc := s.MainCharacter
	fmt.Fprintf(&b, "Main Character\n- Name: %s\n- Domain: %s\n- Resolve / Growth / Approach: %s / %s / %s\n- Crucial flaw: %s\n\n",
		mc.Name, mc.Domain, mc.Resolve, mc.Growth, mc.Approach, mc.CrucialFlaw)

	ic := s.InfluenceCharacter
	fmt.Fprintf(&b, "Influence Character\n- Name: %s\n- Domain: %s\n- Unique ability: %s\n- Impact: %s\n\n",
		ic.Name, ic.Domain, ic.UniqueAbility, ic.Impact)

	rs := s.RelationshipStory
	fmt.Fprintf(&b, "Relationship Story\n- Domain: %s\n- Dynamic: %s\n- Trust score: %g\n- Catalyst: %s\n",
		rs.Domain, rs.Dynamic, rs.TrustScore, rs.Catalyst)

	if names := s.castNames(); len(names) > 0 {
		b.WriteString("\nCast / Voice DNA\n")
		for _, name := range names {
			c := s.Cast[name]
			role := orUnknown(c.Role, "(role unknown)")
			dna := orUnknown(c.VoiceDNA, "(voice DNA unknown)")
			phrases := trimmed(c.KeyPhrases)
			phraseText := "(none)"
			if len(phrases) > 0 {
				phraseText = strings.Join(phrases, " | ")
			}
			fmt.Fprintf(&b, "- %s (%s): %s Key phrases: %s\n", strings.TrimSpace(name), role, dna, phraseText)
		}
	}

	fmt.Fprintf(&b, "\nDynamics\n- Driver: %s\n- Limit: %s\n- Outcome / Judgment: %s / %s\n\n",
		s.Driver, s.Limit, s.Outcome, s.Judgment)
	fmt.Fprintf(&b, "World State\n- Active facts: %s\n- Inventory: %s",
		strings.Join(s.ActiveFacts, " | "), strings.Join(s.Inventory, " | "))
	return b.String()
}

func (s Storyform) castNames() []string {
	names := make([]string, 0, len(s.Cast))
	for name := range s.Cast {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func orUnknown(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}

func trimmed(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
