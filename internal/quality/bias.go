// Package quality reviews how a project is being specified rather than
// what it specifies: biased question phrasing, coverage gaps, and bad
// working patterns in the activity history. Every function here is pure
// over a read snapshot.
package quality

import (
	"math"
	"sort"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
)

// BiasMatch is one bias pattern found in a text.
type BiasMatch struct {
	Kind    string  `json:"kind"`
	Pattern string  `json:"pattern"`
	Weight  float64 `json:"weight"`
	Excerpt string  `json:"excerpt"`
}

// BiasResult is the lint result for a single text.
type BiasResult struct {
	Score   float64     `json:"bias_score"`
	Matches []BiasMatch `json:"matches,omitempty"`
}

// LintText scores text against the bias patterns. Each pattern counts
// once; the score is 1 - Π(1 - weight) over matched patterns, so it stays
// in [0, 1] and grows with every independent signal.
func LintText(text string, table *rules.Bias) BiasResult {
	var res BiasResult
	keep := 1.0
	for i := range table.Patterns {
		p := &table.Patterns[i]
		re := p.Regexp()
		if re == nil {
			continue
		}
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		keep *= 1 - p.Weight
		res.Matches = append(res.Matches, BiasMatch{
			Kind:    p.Kind,
			Pattern: p.Pattern,
			Weight:  p.Weight,
			Excerpt: text[loc[0]:loc[1]],
		})
	}
	res.Score = clamp01(round4(1 - keep))
	return res
}

// BiasSummary aggregates bias over the recorded questions and
// recommendations of a project.
type BiasSummary struct {
	Score   float64        `json:"bias_score"`
	Samples int            `json:"samples"`
	ByKind  map[string]int `json:"matches_by_kind,omitempty"`
	// Worst lists up to three activity ids with the highest scores.
	Worst []int64 `json:"worst_activity_ids,omitempty"`
}

// ProjectBias lints every question and recommendation in activities and
// averages the scores. It returns ErrInsufficientData when there is
// nothing to lint.
func ProjectBias(activities []model.Activity, table *rules.Bias) (BiasSummary, error) {
	type scored struct {
		id    int64
		score float64
	}
	var all []scored
	summary := BiasSummary{ByKind: make(map[string]int)}
	var total float64

	for _, a := range activities {
		if a.Kind != model.ActivityQuestion && a.Kind != model.ActivityRecommendation {
			continue
		}
		res := LintText(a.Content, table)
		total += res.Score
		for _, m := range res.Matches {
			summary.ByKind[m.Kind]++
		}
		all = append(all, scored{a.ID, res.Score})
	}
	if len(all) == 0 {
		return BiasSummary{}, ErrInsufficientData
	}

	summary.Samples = len(all)
	summary.Score = round4(total / float64(len(all)))

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	for _, s := range all {
		if s.score == 0 || len(summary.Worst) == 3 {
			break
		}
		summary.Worst = append(summary.Worst, s.id)
	}
	if len(summary.ByKind) == 0 {
		summary.ByKind = nil
	}
	return summary, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
