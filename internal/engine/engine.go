// Package engine ties the specification store to the analysis packages.
//
// An Engine is constructed once per process with its store, rule tables
// and optional classifier injected. Every write to a project runs under
// that project's lock and completes its cascade (fact extraction,
// conflict scan, maturity recompute, one write transaction) before it
// returns. Writes to different projects run in parallel.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Nireus79/Socrates2-sub000/internal/classifier"
	"github.com/Nireus79/Socrates2-sub000/internal/conflict"
	"github.com/Nireus79/Socrates2-sub000/internal/maturity"
	"github.com/Nireus79/Socrates2-sub000/internal/metrics"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pipeline"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/Nireus79/Socrates2-sub000/internal/store"
)

// Store is the persistence the engine needs. *store.Store implements it.
type Store interface {
	CreateProject(ctx context.Context, id, name string) (*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	SetPhase(ctx context.Context, projectID string, from, to model.Phase, note string) error

	GetSpecification(ctx context.Context, id string) (*model.Specification, error)
	GetCurrent(ctx context.Context, lineageID string) (*model.Specification, error)
	GetLineage(ctx context.Context, lineageID string) ([]model.Specification, error)
	ListCurrent(ctx context.Context, projectID string, category model.Category) ([]model.Specification, error)
	Snapshot(ctx context.Context, projectID string) (*store.Snapshot, error)
	ApplyCascade(ctx context.Context, c store.Cascade) (*store.CascadeResult, error)

	GetConflict(ctx context.Context, id string) (*model.Conflict, error)
	ListConflicts(ctx context.Context, projectID string, status model.ConflictStatus) ([]model.Conflict, error)
	UpdateConflictResolution(ctx context.Context, c model.Conflict) error

	AddActivity(ctx context.Context, a model.Activity) (int64, error)
	ListActivities(ctx context.Context, projectID string, limit int) ([]model.Activity, error)
}

// Options are the tunables injected at construction. Zero values take
// the documented defaults.
type Options struct {
	Logger     *slog.Logger
	Classifier classifier.Classifier
	Weights    maturity.Weights
	Thresholds pipeline.Thresholds
	Conflict   conflict.Settings
	// CoverageN is how many gaps the quality report lists (default 3).
	CoverageN int
	// ActivityWindow bounds how much history the quality checks read
	// (default 500 most recent entries).
	ActivityWindow int
}

// Engine is the specification maturity, conflict and gate engine.
type Engine struct {
	store    Store
	tables   atomic.Pointer[rules.Tables]
	detector *conflict.Detector
	locks    *projectLocks
	logger   *slog.Logger
	opts     Options
}

// New creates an engine. tables must be a validated rule set.
func New(st Store, tables *rules.Tables, opts Options) (*Engine, error) {
	if st == nil {
		return nil, errors.New("engine: store is required")
	}
	if tables == nil {
		return nil, errors.New("engine: rule tables are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Thresholds == nil {
		opts.Thresholds = pipeline.DefaultThresholds()
	}
	if opts.CoverageN <= 0 {
		opts.CoverageN = 3
	}
	if opts.ActivityWindow <= 0 {
		opts.ActivityWindow = 500
	}

	e := &Engine{
		store:    st,
		detector: conflict.NewDefaultDetector(opts.Classifier, opts.Logger),
		locks:    newProjectLocks(),
		logger:   opts.Logger,
		opts:     opts,
	}
	e.detector.OnClassifierFallback(func(err error) {
		reason := "error"
		var timeout *model.ExternalServiceTimeout
		switch {
		case errors.Is(err, classifier.ErrDisabled):
			reason = "disabled"
		case errors.As(err, &timeout):
			reason = "timeout"
		}
		metrics.ClassifierFallback(reason)
	})
	e.tables.Store(tables)
	return e, nil
}

// Tables returns the active rule tables.
func (e *Engine) Tables() *rules.Tables {
	return e.tables.Load()
}

// ReloadRules swaps the rule tables. Readers see either the old or the
// new set, never a mix. Stored maturity rows are refreshed on each
// project's next write; reads always score with the active tables.
func (e *Engine) ReloadRules(tables *rules.Tables) error {
	if tables == nil {
		err := errors.New("engine: nil rule tables")
		metrics.RulesReloaded(err)
		return err
	}
	e.tables.Store(tables)
	metrics.RulesReloaded(nil)
	e.logger.Info("rule tables replaced")
	return nil
}

// Detector exposes the conflict detector so callers can register extra
// rule families before serving.
func (e *Engine) Detector() *conflict.Detector {
	return e.detector
}

// ─── Projects ────────────────────────────────────────────────────────────────

// CreateProject starts a project in the discovery phase.
func (e *Engine) CreateProject(ctx context.Context, name string) (*model.Project, error) {
	name = trim(name)
	if name == "" {
		return nil, model.Invalid("name", "project name is required")
	}
	p, err := e.store.CreateProject(ctx, newID(), name)
	if err != nil {
		return nil, err
	}
	e.logger.Info("project created", slog.String("project", p.ID), slog.String("name", name))
	return p, nil
}

// GetProject returns a project by id.
func (e *Engine) GetProject(ctx context.Context, id string) (*model.Project, error) {
	if err := requireID("project_id", id); err != nil {
		return nil, err
	}
	return e.store.GetProject(ctx, id)
}

// ListProjects returns every project.
func (e *Engine) ListProjects(ctx context.Context) ([]model.Project, error) {
	return e.store.ListProjects(ctx)
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// MaturityView is the getMaturity response: the project's scores with
// satisfied computed against the next phase's required minimum.
type MaturityView struct {
	ProjectID       string                   `json:"project_id"`
	Phase           model.Phase              `json:"phase"`
	Target          model.Phase              `json:"target,omitempty"`
	RequiredMinimum float64                  `json:"required_minimum"`
	Overall         float64                  `json:"overall"`
	ByCategory      []model.CategoryMaturity `json:"by_category"`
}

// GetMaturity scores a project's current specifications. Two calls over
// an unchanged specification set return identical results.
func (e *Engine) GetMaturity(ctx context.Context, projectID string) (*MaturityView, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}
	snap, err := e.store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	target, required := e.gateTarget(snap.Project.Phase)
	report := maturity.Satisfy(e.score(snap.Specs), required)
	return &MaturityView{
		ProjectID:       projectID,
		Phase:           snap.Project.Phase,
		Target:          target,
		RequiredMinimum: required,
		Overall:         report.Overall,
		ByCategory:      report.ByCategory,
	}, nil
}

// ListConflicts returns a project's conflicts, optionally filtered by
// status ("" for all).
func (e *Engine) ListConflicts(ctx context.Context, projectID, status string) ([]model.Conflict, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}
	st, err := model.ParseConflictStatus(status)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.store.ListConflicts(ctx, projectID, st)
}

// GetConflict returns one conflict.
func (e *Engine) GetConflict(ctx context.Context, id string) (*model.Conflict, error) {
	if err := requireID("conflict_id", id); err != nil {
		return nil, err
	}
	return e.store.GetConflict(ctx, id)
}

// ListSpecifications returns a project's current specifications,
// optionally for a single category.
func (e *Engine) ListSpecifications(ctx context.Context, projectID, category string) ([]model.Specification, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}
	var cat model.Category
	if trim(category) != "" {
		c, err := model.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		cat = c
	}
	if _, err := e.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.store.ListCurrent(ctx, projectID, cat)
}

// History returns every version of a lineage, oldest first, including
// superseded and deleted ones.
func (e *Engine) History(ctx context.Context, lineageID string) ([]model.Specification, error) {
	if err := requireID("lineage_id", lineageID); err != nil {
		return nil, err
	}
	return e.store.GetLineage(ctx, lineageID)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// score runs the pure maturity calculation with the active tables.
func (e *Engine) score(specs []model.Specification) maturity.Report {
	return maturity.Calculate(specs, e.tables.Load().Adequacy, e.opts.Weights)
}

// gateTarget is the phase the project would advance to and its required
// minimum. A project in the final phase is measured against its own
// phase's threshold.
func (e *Engine) gateTarget(phase model.Phase) (model.Phase, float64) {
	target := pipeline.Next(phase)
	if target == "" {
		return "", pipeline.RequiredMinimum(phase, e.opts.Thresholds)
	}
	return target, pipeline.RequiredMinimum(target, e.opts.Thresholds)
}

func requireID(field, id string) error {
	if trim(id) == "" {
		return model.Invalid(field, "is required")
	}
	return nil
}
