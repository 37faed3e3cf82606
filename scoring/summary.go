package scoring

import (
	"sort"

	"mealscore"
)

// TagCount is how often one tag appears in a population.
type TagCount struct {
	TagKey string `json:"tag_key"`
	Count  int    `json:"count"`
}

// CohortSummary aggregates a population for leaderboard-style display.
type CohortSummary struct {
	Entities  int                                `json:"entities"`
	MeanScore float64                            `json:"mean_score"`
	TopTags   map[mealscore.Category][]TagCount `json:"top_tags"`
	// Dropped counts tag references that are no longer in the taxonomy.
	Dropped int `json:"dropped"`
}

// SummarizeCohort counts tags per category and averages scores. Tag keys
// the taxonomy does not know are skipped rather than reported.
func SummarizeCohort(history []mealscore.Assessment, lookup CategoryLookup) CohortSummary {
	summary := CohortSummary{
		Entities: len(history),
		TopTags:  make(map[mealscore.Category][]TagCount),
	}
	if len(history) == 0 {
		return summary
	}

	counts := make(map[mealscore.Category]map[string]int)
	var total float64
	for _, a := range history {
		total += a.MetabolicScore
		seen := make(map[string]struct{}, len(a.TagKeys))
		for _, t := range a.TagKeys {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}

			cat, ok := lookup.CategoryOf(t)
			if !ok {
				summary.Dropped++
				continue
			}
			if counts[cat] == nil {
				counts[cat] = make(map[string]int)
			}
			counts[cat][t]++
		}
	}
	summary.MeanScore = total / float64(len(history))

	for cat, byTag := range counts {
		list := make([]TagCount, 0, len(byTag))
		for k, n := range byTag {
			list = append(list, TagCount{TagKey: k, Count: n})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Count != list[j].Count {
				return list[i].Count > list[j].Count
			}
			return list[i].TagKey < list[j].TagKey
		})
		summary.TopTags[cat] = list
	}
	return summary
}
