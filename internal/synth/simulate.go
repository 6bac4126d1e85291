package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MaxSuggestionRunes bounds a single simulated suggestion.
const MaxSuggestionRunes = 500

var listMarkerRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// Simulator writes stand-in listener suggestions, for seeding quiet rounds
// and rehearsing the vote.
type Simulator struct {
	gen Generator
}

func NewSimulator(gen Generator) *Simulator {
	return &Simulator{gen: gen}
}

type SuggestInput struct {
	Premise      string
	EpisodeTitle string
	Narrative    string
	Count        int
}

// Suggest returns up to in.Count suggestions.
func (s *Simulator) Suggest(ctx context.Context, in SuggestInput) ([]string, error) {
	if in.Count <= 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write %d short, varied suggestions from listeners of a serialized campfire story about what should happen next.\n", in.Count)
	if in.Premise != "" {
		fmt.Fprintf(&b, "Premise: %s\n", in.Premise)
	}
	if in.EpisodeTitle != "" {
		fmt.Fprintf(&b, "Latest episode: %s\n", in.EpisodeTitle)
	}
	if in.Narrative != "" {
		fmt.Fprintf(&b, "Episode text:\n%s\n", truncateRunes(in.Narrative, 4000))
	}
	b.WriteString("Each suggestion is one or two sentences. Reply with only a JSON array of strings.")

	reply, err := s.gen.Generate(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("generating suggestions: %w", err)
	}
	return parseSuggestions(reply, in.Count), nil
}

// parseSuggestions reads a JSON string array, falling back to one
// suggestion per non-empty line.
func parseSuggestions(reply string, limit int) []string {
	var lines []string
	if raw, err := extractArray(reply); err == nil {
		if err := json.Unmarshal([]byte(raw), &lines); err != nil {
			lines = nil
		}
	}
	if lines == nil {
		for _, line := range strings.Split(reply, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			lines = append(lines, listMarkerRe.ReplaceAllString(line, ""))
		}
	}

	out := make([]string, 0, limit)
	for _, l := range lines {
		l = strings.Trim(strings.TrimSpace(l), `"`)
		if l == "" {
			continue
		}
		out = append(out, truncateRunes(l, MaxSuggestionRunes))
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
