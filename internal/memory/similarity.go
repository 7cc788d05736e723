package memory

import "sort"

// Merge combines per-query result lists into one list ordered by score,
// keeping only the first (highest-ranked) occurrence of each memory ID.
func Merge(lists ...[]Scored) []Scored {
	var all []Scored
	for _, l := range lists {
		all = append(all, l...)
	}
	sortScored(all)

	seen := make(map[string]bool, len(all))
	out := make([]Scored, 0, len(all))
	for _, s := range all {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

// sortScored sorts by score descending; ties keep their input order.
func sortScored(results []Scored) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
