package quality

import (
	"errors"

	"github.com/Nireus79/Socrates2-sub000/internal/maturity"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
)

// Status of one report section.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
	StatusFailed           Status = "failed"
)

// DefaultCoverageN is how many gaps coverage reports when not told.
const DefaultCoverageN = 3

// Input is the read snapshot a quality analysis runs over.
type Input struct {
	History   History
	Maturity  maturity.Report
	Bias      *rules.Bias
	CoverageN int
	Checks    []Check
}

// BiasSection reports project-level bias.
type BiasSection struct {
	Status  Status       `json:"status"`
	Summary *BiasSummary `json:"summary,omitempty"`
}

// CoverageSection lists the weakest categories, weakest first: what to
// ask about next.
type CoverageSection struct {
	Status Status                   `json:"status"`
	Lowest []model.CategoryMaturity `json:"lowest,omitempty"`
}

// PatternResult is the outcome of one bad-pattern check.
type PatternResult struct {
	Check   string   `json:"check"`
	Status  Status   `json:"status"`
	Finding *Finding `json:"finding,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Report is the full quality analysis. Sections are independent: one
// section lacking data never hides the others.
type Report struct {
	Bias     BiasSection     `json:"bias"`
	Coverage CoverageSection `json:"coverage"`
	Patterns []PatternResult `json:"bad_patterns"`
}

// Analyze runs all three analyses.
func Analyze(in Input) Report {
	var r Report

	summary, err := ProjectBias(in.History.Activities, in.Bias)
	if err != nil {
		r.Bias.Status = StatusInsufficientData
	} else {
		r.Bias = BiasSection{Status: StatusOK, Summary: &summary}
	}

	r.Coverage = Coverage(in.Maturity, in.CoverageN)

	checks := in.Checks
	if checks == nil {
		checks = DefaultChecks()
	}
	for _, c := range checks {
		r.Patterns = append(r.Patterns, runCheck(c, in.History))
	}
	return r
}

// Coverage returns the n lowest-scoring categories. A project with no
// specifications at all has nothing to rank yet.
func Coverage(m maturity.Report, n int) CoverageSection {
	if n <= 0 {
		n = DefaultCoverageN
	}
	total := 0
	for _, row := range m.ByCategory {
		total += row.SpecCount
	}
	if total == 0 {
		return CoverageSection{Status: StatusInsufficientData}
	}
	return CoverageSection{Status: StatusOK, Lowest: maturity.Lowest(m, n)}
}

func runCheck(c Check, h History) PatternResult {
	res := PatternResult{Check: c.Name()}
	f, err := c.Run(h)
	switch {
	case errors.Is(err, ErrInsufficientData):
		res.Status = StatusInsufficientData
	case err != nil:
		res.Status = StatusFailed
		res.Error = err.Error()
	default:
		res.Status = StatusOK
		res.Finding = f
	}
	return res
}
