package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/twilner89/campfire-alpha/internal/game"
)

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

type parsedDraft struct {
	title       string
	description string
	indices     []int
}

// extractArray returns the JSON array inside reply: the body of the first
// code fence if there is one, else the text between the first '[' and the
// last ']'.
func extractArray(reply string) (string, error) {
	text := strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "[") && json.Valid([]byte(text)) {
		return text, nil
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", errors.New("reply holds no JSON array")
	}
	return text[start : end+1], nil
}

func parseDrafts(reply string) ([]parsedDraft, error) {
	raw, err := extractArray(reply)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding array: %w", err)
	}
	if len(items) != game.OptionsPerRound {
		return nil, fmt.Errorf("expected %d options, got %d", game.OptionsPerRound, len(items))
	}

	out := make([]parsedDraft, 0, len(items))
	for i, item := range items {
		title := strings.TrimSpace(stringField(item, "title", "Title"))
		desc := strings.TrimSpace(stringField(item, "description", "Description"))
		if title == "" || desc == "" {
			return nil, fmt.Errorf("option %d lacks a title or description", i+1)
		}
		out = append(out, parsedDraft{
			title:       title,
			description: desc,
			indices:     indexField(item, "source_indices", "sourceIndices", "SourceIndices"),
		})
	}
	return out, nil
}

func stringField(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := item[k].(string); ok {
			return s
		}
	}
	return ""
}

// indexField reads an array of indices, accepting numbers and numeric
// strings. Fractions are floored; anything else is skipped.
func indexField(item map[string]any, keys ...string) []int {
	for _, k := range keys {
		arr, ok := item[k].([]any)
		if !ok {
			continue
		}
		var out []int
		for _, v := range arr {
			var f float64
			switch n := v.(type) {
			case float64:
				f = n
			case string:
				parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
				if err != nil {
					continue
				}
				f = parsed
			default:
				continue
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			out = append(out, int(math.Floor(f)))
		}
		return out
	}
	return nil
}
