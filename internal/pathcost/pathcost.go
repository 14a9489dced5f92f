// Package pathcost ranks candidate implementation paths by expected cost.
package pathcost

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

// Candidate is one path the user could take.
type Candidate struct {
	Name               string  `json:"name"`
	DirectCost         float64 `json:"direct_cost"`
	FailureProbability float64 `json:"failure_probability"`
	ReworkCost         float64 `json:"rework_cost"`
}

// Ranked is a candidate with its expected cost and 1-based rank.
type Ranked struct {
	Candidate
	ExpectedCost float64 `json:"expected_cost"`
	Rank         int     `json:"rank"`
}

// ExpectedCost is direct + p(failure) * rework.
func (c Candidate) ExpectedCost() float64 {
	return c.DirectCost + c.FailureProbability*c.ReworkCost
}

// Validate checks a single candidate.
func (c Candidate) Validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return model.Invalid("name", "candidate name is required")
	case !finite(c.DirectCost) || c.DirectCost < 0:
		return model.Invalid("direct_cost", fmt.Sprintf("%s: must be a non-negative number", c.Name))
	case !finite(c.ReworkCost) || c.ReworkCost < 0:
		return model.Invalid("rework_cost", fmt.Sprintf("%s: must be a non-negative number", c.Name))
	case !finite(c.FailureProbability) || c.FailureProbability < 0 || c.FailureProbability > 1:
		return model.Invalid("failure_probability", fmt.Sprintf("%s: must be between 0 and 1", c.Name))
	}
	return nil
}

// Rank orders candidates by ascending expected cost. Ties go to the lower
// failure probability, then to the name. The input is not modified.
func Rank(candidates []Candidate) ([]Ranked, error) {
	if len(candidates) == 0 {
		return nil, model.Invalid("candidates", "at least one candidate is required")
	}
	seen := make(map[string]bool, len(candidates))
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, model.Invalid("name", fmt.Sprintf("duplicate candidate %q", c.Name))
		}
		seen[c.Name] = true
		out = append(out, Ranked{Candidate: c, ExpectedCost: c.ExpectedCost()})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ExpectedCost != b.ExpectedCost {
			return a.ExpectedCost < b.ExpectedCost
		}
		if a.FailureProbability != b.FailureProbability {
			return a.FailureProbability < b.FailureProbability
		}
		return a.Name < b.Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// RequiresExplicitChoice states the decision policy: below threshold the
// ranking is advisory, at or above it the caller must have the user pick
// a path explicitly. Nothing in this package enforces it.
func RequiresExplicitChoice(maturity, threshold float64) bool {
	return maturity >= threshold
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
