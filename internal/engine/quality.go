package engine

import (
	"context"
	"log/slog"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pathcost"
	"github.com/Nireus79/Socrates2-sub000/internal/quality"
)

// AnalyzeQuality runs bias, coverage and bad-pattern analysis over a
// project's current state. Each section degrades on its own.
func (e *Engine) AnalyzeQuality(ctx context.Context, projectID string) (*quality.Report, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}
	snap, err := e.store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	acts, err := e.store.ListActivities(ctx, projectID, e.opts.ActivityWindow)
	if err != nil {
		return nil, err
	}

	tables := e.tables.Load()
	report := quality.Analyze(quality.Input{
		History: quality.History{
			Phase:      snap.Project.Phase,
			Activities: acts,
			Specs:      snap.Specs,
		},
		Maturity:  e.score(snap.Specs),
		Bias:      &tables.Bias,
		CoverageN: e.opts.CoverageN,
	})
	return &report, nil
}

// LintText scores one question or recommendation for bias.
func (e *Engine) LintText(text string) (quality.BiasResult, error) {
	if trim(text) == "" {
		return quality.BiasResult{}, model.Invalid("text", "is required")
	}
	return quality.LintText(text, &e.tables.Load().Bias), nil
}

// RecordResult is the stored activity plus, for questions and
// recommendations, its bias lint.
type RecordResult struct {
	Activity model.Activity      `json:"activity"`
	Bias     *quality.BiasResult `json:"bias,omitempty"`
}

// RecordActivity appends to a project's activity history, which the
// bad-pattern checks read.
func (e *Engine) RecordActivity(ctx context.Context, a model.Activity) (*RecordResult, error) {
	if err := requireID("project_id", a.ProjectID); err != nil {
		return nil, err
	}
	if err := model.ValidateActivityKind(a.Kind); err != nil {
		return nil, err
	}
	if a.Kind == model.ActivityPhaseChange {
		return nil, model.Invalid("kind", "phase changes are recorded by advance and revert")
	}
	if a.Category != "" {
		cat, err := model.ParseCategory(string(a.Category))
		if err != nil {
			return nil, err
		}
		a.Category = cat
	}
	a.Target = trim(a.Target)
	if trim(a.Content) == "" && a.Target == "" {
		return nil, model.Invalid("content", "content or target is required")
	}
	a.CreatedAt = now()

	id, err := e.store.AddActivity(ctx, a)
	if err != nil {
		return nil, err
	}
	a.ID = id

	out := &RecordResult{Activity: a}
	if a.Kind == model.ActivityQuestion || a.Kind == model.ActivityRecommendation {
		b := quality.LintText(a.Content, &e.tables.Load().Bias)
		out.Bias = &b
		if len(b.Matches) > 0 {
			e.logger.Debug("biased phrasing recorded",
				slog.String("project", a.ProjectID),
				slog.Int64("activity", id),
				slog.Float64("bias_score", b.Score))
		}
	}
	return out, nil
}

// PathRecommendation is the ranked list plus the decision policy that
// applies to it.
type PathRecommendation struct {
	Ranked []pathcost.Ranked `json:"ranked"`
	// Maturity and Threshold are set when a project was given.
	Maturity  *float64 `json:"maturity,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	// RequiresExplicitChoice is true once the project's maturity reaches
	// the threshold of its next transition; below it the ranking is
	// advisory.
	RequiresExplicitChoice bool `json:"requires_explicit_choice"`
}

// RecommendPaths ranks candidates by expected cost. projectID is
// optional; when given, the decision policy for that project's next
// transition is reported alongside the ranking.
func (e *Engine) RecommendPaths(ctx context.Context, projectID string, candidates []pathcost.Candidate) (*PathRecommendation, error) {
	ranked, err := pathcost.Rank(candidates)
	if err != nil {
		return nil, err
	}
	out := &PathRecommendation{Ranked: ranked}
	if trim(projectID) == "" {
		return out, nil
	}

	snap, err := e.store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	overall := e.score(snap.Specs).Overall
	_, threshold := e.gateTarget(snap.Project.Phase)
	out.Maturity = &overall
	out.Threshold = &threshold
	out.RequiresExplicitChoice = pathcost.RequiresExplicitChoice(overall, threshold)
	return out, nil
}
