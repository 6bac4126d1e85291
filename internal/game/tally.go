package game

import "sort"

type OptionCount struct {
	OptionID string `json:"optionId"`
	Title    string `json:"title,omitempty"`
	Votes    int    `json:"votes"`
}

// Tally returns a count for every id in optionIDs, zero for those nobody
// voted for. Counts for ids outside optionIDs are ignored.
func Tally(optionIDs []string, observed map[string]int) map[string]int {
	counts := make(map[string]int, len(optionIDs))
	for _, id := range optionIDs {
		counts[id] = observed[id]
	}
	return counts
}

// Rank orders options by votes, most first. Equal counts keep the order of
// optionIDs.
func Rank(optionIDs []string, counts map[string]int) []OptionCount {
	ranked := make([]OptionCount, 0, len(optionIDs))
	for _, id := range optionIDs {
		ranked = append(ranked, OptionCount{OptionID: id, Votes: counts[id]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Votes > ranked[j].Votes
	})
	return ranked
}

// RankOptions ranks stored options and carries their titles along.
func RankOptions(options []PathOption, observed map[string]int) []OptionCount {
	ids := make([]string, len(options))
	titles := make(map[string]string, len(options))
	for i, o := range options {
		ids[i] = o.ID
		titles[o.ID] = o.Title
	}
	ranked := Rank(ids, Tally(ids, observed))
	for i := range ranked {
		ranked[i].Title = titles[ranked[i].OptionID]
	}
	return ranked
}
