// Package maturity scores how complete a project's specifications are.
//
// The calculator is a pure function over a snapshot of current,
// non-deleted specifications: same input, bit-identical output. Category
// checklists come from rules.Adequacy so they can change without code
// changes.
package maturity

import (
	"math"
	"sort"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
)

// Weights assigns a relative weight to each category for the overall
// score. Missing categories default to 1.
type Weights map[model.Category]float64

// Weight returns the weight for c, defaulting to 1.
func (w Weights) Weight(c model.Category) float64 {
	if v, ok := w[c]; ok && v >= 0 {
		return v
	}
	return 1
}

// Report is the result of one calculation.
type Report struct {
	Overall    float64                  `json:"overall"`
	ByCategory []model.CategoryMaturity `json:"by_category"`
}

// Category returns the row for c. Every report holds all categories.
func (r Report) Category(c model.Category) model.CategoryMaturity {
	if i := model.CategoryIndex(c); i >= 0 && i < len(r.ByCategory) {
		return r.ByCategory[i]
	}
	return model.CategoryMaturity{Category: c}
}

// Calculate scores every category and the weighted overall score.
// Only active specs (current and not deleted) are counted; anything else
// in specs is ignored.
func Calculate(specs []model.Specification, table rules.Adequacy, weights Weights) Report {
	grouped := groupActive(specs)

	report := Report{ByCategory: make([]model.CategoryMaturity, 0, len(model.Categories))}
	var weighted, totalWeight float64

	for _, cat := range model.Categories {
		row := scoreCategory(cat, grouped[cat], table.Categories[cat], table.ConfidenceFloor)
		report.ByCategory = append(report.ByCategory, row)

		w := weights.Weight(cat)
		weighted += row.Completeness * w
		totalWeight += w
	}

	if totalWeight > 0 {
		report.Overall = round2(weighted / totalWeight)
	}
	return report
}

// Satisfy fills RequiredMinimum and Satisfied on every row for a gate
// threshold. It returns a copy; the input report is not modified.
func Satisfy(r Report, requiredMinimum float64) Report {
	out := Report{Overall: r.Overall, ByCategory: make([]model.CategoryMaturity, len(r.ByCategory))}
	for i, row := range r.ByCategory {
		row.RequiredMinimum = requiredMinimum
		row.Satisfied = row.Completeness >= requiredMinimum
		out.ByCategory[i] = row
	}
	return out
}

// Lowest returns the n lowest-scoring categories, ascending. Ties keep
// canonical category order.
func Lowest(r Report, n int) []model.CategoryMaturity {
	rows := make([]model.CategoryMaturity, len(r.ByCategory))
	copy(rows, r.ByCategory)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Completeness < rows[j].Completeness
	})
	if n < 0 {
		n = 0
	}
	if n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

func groupActive(specs []model.Specification) map[model.Category][]model.Specification {
	grouped := make(map[model.Category][]model.Specification, len(model.Categories))
	for _, s := range specs {
		if !s.Active() {
			continue
		}
		grouped[s.Category] = append(grouped[s.Category], s)
	}
	for cat := range grouped {
		list := grouped[cat]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return grouped
}

func scoreCategory(cat model.Category, specs []model.Specification, rule rules.CategoryRule, floor float64) model.CategoryMaturity {
	row := model.CategoryMaturity{Category: cat, SpecCount: len(specs)}

	countCap := rule.CountCap
	if countCap < 1 {
		countCap = 1
	}
	countRatio := float64(min(len(specs), countCap)) / float64(countCap)

	if len(rule.Subtopics) == 0 {
		row.Completeness = round2(100 * countRatio)
		return row
	}

	covered := 0
	for _, topic := range rule.Subtopics {
		if topicCovered(topic, specs, floor) {
			covered++
		} else {
			row.MissingTopics = append(row.MissingTopics, topic.Name)
		}
	}
	topicRatio := float64(covered) / float64(len(rule.Subtopics))

	row.Completeness = round2(rule.CountWeight*countRatio + (100-rule.CountWeight)*topicRatio)
	return row
}

func topicCovered(topic rules.Subtopic, specs []model.Specification, floor float64) bool {
	for _, s := range specs {
		if s.Confidence < floor {
			continue
		}
		content := strings.ToLower(s.Content)
		for _, kw := range topic.Keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
