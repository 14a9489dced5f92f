package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/conflict"
	"github.com/Nireus79/Socrates2-sub000/internal/maturity"
	"github.com/Nireus79/Socrates2-sub000/internal/metrics"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/Nireus79/Socrates2-sub000/internal/store"
	"github.com/google/uuid"
)

// AddInput is one statement from the statement producer.
type AddInput struct {
	ProjectID  string  `json:"project_id"`
	Category   string  `json:"category"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// SupersedeInput replaces the current version of a lineage. Empty
// Source and nil Confidence keep the previous version's values.
type SupersedeInput struct {
	LineageID  string   `json:"lineage_id"`
	Content    string   `json:"content"`
	Source     string   `json:"source,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// WriteResult is what a write returns once its cascade is committed.
type WriteResult struct {
	Specification *model.Specification `json:"specification,omitempty"`
	Opened        []model.Conflict     `json:"opened_conflicts"`
	Warnings      []Warning            `json:"warnings,omitempty"`
	Maturity      MaturityView         `json:"maturity"`
}

// Warning is a contradiction inside the written statement itself. It is
// not stored: a conflict always involves two specifications.
type Warning struct {
	Type     model.ConflictType `json:"type"`
	Severity model.Severity     `json:"severity"`
	Reason   string             `json:"reason"`
}

// AddSpecification stores a new statement as version 1 of a new lineage
// and runs the cascade. Content the analyzer cannot read is stored with
// the unanalyzed flag and skipped by conflict detection.
func (e *Engine) AddSpecification(ctx context.Context, in AddInput) (*WriteResult, error) {
	if err := requireID("project_id", in.ProjectID); err != nil {
		return nil, err
	}
	cat, err := model.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	src, err := parseSource(in.Source)
	if err != nil {
		return nil, err
	}
	if err := validateStatement(in.Content, in.Confidence); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(in.ProjectID)
	defer unlock()

	start := time.Now()
	snap, err := e.store.Snapshot(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}

	sp := model.Specification{
		ID:         newID(),
		ProjectID:  in.ProjectID,
		LineageID:  newID(),
		Category:   cat,
		Content:    in.Content,
		Source:     src,
		Confidence: in.Confidence,
		Version:    1,
		IsCurrent:  true,
		CreatedAt:  now(),
	}
	res, err := e.cascade(ctx, snap, store.Cascade{ProjectID: in.ProjectID, Insert: &sp})
	metrics.ObserveCascade("add", start, err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("specification added",
		slog.String("project", in.ProjectID),
		slog.String("lineage", sp.LineageID),
		slog.String("category", string(cat)),
		slog.Int("opened_conflicts", len(res.Opened)),
		slog.Bool("unanalyzed", sp.Unanalyzed))
	return &res.WriteResult, nil
}

// Supersede writes version N+1 of a lineage and retires version N.
// Superseding a deleted lineage is an InvalidStateError.
func (e *Engine) Supersede(ctx context.Context, in SupersedeInput) (*WriteResult, error) {
	if err := requireID("lineage_id", in.LineageID); err != nil {
		return nil, err
	}
	cur, err := e.store.GetCurrent(ctx, in.LineageID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(cur.ProjectID)
	defer unlock()

	start := time.Now()
	snap, err := e.store.Snapshot(ctx, cur.ProjectID)
	if err != nil {
		return nil, err
	}
	// Re-read under the lock: another writer may have moved the lineage.
	prev, err := e.currentVersion(ctx, snap, in.LineageID)
	if err != nil {
		return nil, err
	}

	src := prev.Source
	if trim(in.Source) != "" {
		if src, err = parseSource(in.Source); err != nil {
			return nil, err
		}
	}
	confidence := prev.Confidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	if err := validateStatement(in.Content, confidence); err != nil {
		return nil, err
	}

	sp := model.Specification{
		ID:         newID(),
		ProjectID:  prev.ProjectID,
		LineageID:  prev.LineageID,
		Category:   prev.Category,
		Content:    in.Content,
		Source:     src,
		Confidence: confidence,
		Version:    prev.Version + 1,
		IsCurrent:  true,
		CreatedAt:  now(),
	}
	res, err := e.cascade(ctx, snap, store.Cascade{ProjectID: prev.ProjectID, Insert: &sp, Supersedes: prev.ID})
	metrics.ObserveCascade("supersede", start, err)
	if err != nil {
		return nil, err
	}
	e.logger.Info("specification superseded",
		slog.String("project", prev.ProjectID),
		slog.String("lineage", sp.LineageID),
		slog.Int("version", sp.Version),
		slog.Int("opened_conflicts", len(res.Opened)))
	return &res.WriteResult, nil
}

// SoftDelete marks the current version of a lineage deleted. It stays
// in the store for audit but no longer counts toward maturity or takes
// part in conflict scans.
func (e *Engine) SoftDelete(ctx context.Context, lineageID string) (*WriteResult, error) {
	if err := requireID("lineage_id", lineageID); err != nil {
		return nil, err
	}
	cur, err := e.store.GetCurrent(ctx, lineageID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(cur.ProjectID)
	defer unlock()

	start := time.Now()
	snap, err := e.store.Snapshot(ctx, cur.ProjectID)
	if err != nil {
		return nil, err
	}
	prev, err := e.currentVersion(ctx, snap, lineageID)
	if err != nil {
		return nil, err
	}

	res, err := e.cascade(ctx, snap, store.Cascade{ProjectID: prev.ProjectID, Delete: prev.ID})
	metrics.ObserveCascade("delete", start, err)
	if err != nil {
		return nil, err
	}
	deleted, err := e.store.GetSpecification(ctx, prev.ID)
	if err != nil {
		return nil, err
	}
	res.Specification = deleted
	e.logger.Info("specification deleted",
		slog.String("project", prev.ProjectID),
		slog.String("lineage", lineageID))
	return &res.WriteResult, nil
}

// RescanResult reports a full rescan.
type RescanResult struct {
	Opened  []model.Conflict `json:"opened_conflicts"`
	Skipped int              `json:"already_recorded"`
}

// Rescan compares every pair of current specifications again. Conflicts
// already recorded in any status are not recreated, so repeating a
// rescan over unchanged specifications opens nothing.
func (e *Engine) Rescan(ctx context.Context, projectID string) (*RescanResult, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(projectID)
	defer unlock()

	start := time.Now()
	snap, err := e.store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res, err := e.cascade(ctx, snap, store.Cascade{ProjectID: projectID})
	metrics.ObserveCascade("rescan", start, err)
	if err != nil {
		return nil, err
	}
	return &RescanResult{Opened: res.Opened, Skipped: res.skipped}, nil
}

// currentVersion finds the active version of a lineage in snap.
func (e *Engine) currentVersion(ctx context.Context, snap *store.Snapshot, lineageID string) (*model.Specification, error) {
	for i := range snap.Specs {
		if snap.Specs[i].LineageID == lineageID {
			return &snap.Specs[i], nil
		}
	}
	cur, err := e.store.GetCurrent(ctx, lineageID)
	if err != nil {
		return nil, err
	}
	if cur.DeletedAt != nil {
		return nil, model.InvalidState("lineage %s was deleted at %s", lineageID, *cur.DeletedAt)
	}
	return nil, model.InvalidState("lineage %s has no current version", lineageID)
}

// ─── Cascade ─────────────────────────────────────────────────────────────────

type cascadeResult struct {
	WriteResult
	skipped int
}

// cascade analyzes, scans and scores on top of snap and commits c with
// the results. The caller holds the project lock. With c.Insert set the
// scan is incremental (new spec against the rest); with nothing inserted
// or deleted it is a full rescan; a pure delete opens no conflicts.
func (e *Engine) cascade(ctx context.Context, snap *store.Snapshot, c store.Cascade) (*cascadeResult, error) {
	tables := e.tables.Load()

	// The specification set after this write.
	after := make([]model.Specification, 0, len(snap.Specs)+1)
	for _, sp := range snap.Specs {
		if sp.ID == c.Supersedes || sp.ID == c.Delete {
			continue
		}
		after = append(after, sp)
	}

	var subject *conflict.Analyzed
	if c.Insert != nil {
		facts, err := conflict.Analyze(*c.Insert, tables)
		if err != nil {
			if !errors.Is(err, conflict.ErrUnanalyzable) {
				return nil, err
			}
			c.Insert.Unanalyzed = true
			metrics.UnanalyzedSpec()
			e.logger.Warn("specification stored unanalyzed",
				slog.String("project", c.ProjectID),
				slog.String("lineage", c.Insert.LineageID),
				slog.String("reason", err.Error()))
		} else {
			subject = &conflict.Analyzed{Spec: *c.Insert, Facts: facts}
		}
		after = append(after, *c.Insert)
	}

	var warnings []Warning
	if subject != nil {
		for _, f := range conflict.Inspect(subject, tables, e.opts.Conflict) {
			warnings = append(warnings, Warning{Type: f.Type, Severity: f.Severity, Reason: f.Reason})
		}
	}

	fullRescan := c.Insert == nil && c.Delete == ""
	if subject != nil || fullRescan {
		analyzed := e.analyzeAll(after, tables, subject)
		findings := e.detector.Scan(ctx, conflict.Input{
			Subject:  subject,
			Specs:    analyzed,
			Phase:    snap.Project.Phase,
			Tables:   tables,
			Settings: e.opts.Conflict,
		})
		at := now()
		for _, f := range findings {
			c.Conflicts = append(c.Conflicts, model.Conflict{
				ID:        newID(),
				ProjectID: c.ProjectID,
				Type:      f.Type,
				Severity:  f.Severity,
				Involved:  f.Refs,
				Status:    model.StatusOpen,
				Reason:    f.Reason,
				DedupeKey: f.DedupeKey(),
				CreatedAt: at,
			})
		}
	}

	// Pure and uninterrupted: no I/O between snapshot and write.
	target, required := e.gateTarget(snap.Project.Phase)
	report := maturity.Satisfy(maturity.Calculate(after, tables.Adequacy, e.opts.Weights), required)
	c.Maturity = report.ByCategory
	c.Overall = report.Overall
	c.At = now()

	written, err := e.store.ApplyCascade(ctx, c)
	if err != nil {
		return nil, err
	}
	for _, cf := range written.Opened {
		metrics.ConflictOpened(string(cf.Type), string(cf.Severity))
	}

	res := &cascadeResult{
		WriteResult: WriteResult{
			Specification: c.Insert,
			Opened:        nonNilConflicts(written.Opened),
			Warnings:      warnings,
			Maturity: MaturityView{
				ProjectID:       c.ProjectID,
				Phase:           snap.Project.Phase,
				Target:          target,
				RequiredMinimum: required,
				Overall:         report.Overall,
				ByCategory:      report.ByCategory,
			},
		},
		skipped: written.Skipped,
	}
	return res, nil
}

// analyzeAll extracts facts for every analyzable spec. The subject, when
// present, replaces its own entry so its facts are computed once.
func (e *Engine) analyzeAll(specs []model.Specification, tables *rules.Tables, subject *conflict.Analyzed) []conflict.Analyzed {
	out := make([]conflict.Analyzed, 0, len(specs))
	for _, sp := range specs {
		if subject != nil && sp.ID == subject.Spec.ID {
			out = append(out, *subject)
			continue
		}
		if sp.Unanalyzed {
			continue
		}
		facts, err := conflict.Analyze(sp, tables)
		if err != nil {
			// Stored before a rule change made it unreadable; leave it out
			// of this scan.
			e.logger.Debug("skipping unanalyzable specification", slog.String("spec", sp.ID), slog.String("error", err.Error()))
			continue
		}
		out = append(out, conflict.Analyzed{Spec: sp, Facts: facts})
	}
	return out
}

// ─── Validation ──────────────────────────────────────────────────────────────

func parseSource(s string) (model.Source, error) {
	s = trim(s)
	if s == "" {
		return model.SourceUserStated, nil
	}
	src := model.Source(strings.ReplaceAll(strings.ToLower(s), "-", "_"))
	if err := model.ValidateSource(src); err != nil {
		return "", err
	}
	return src, nil
}

func validateStatement(content string, confidence float64) error {
	if trim(content) == "" {
		return model.Invalid("content", "is required")
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return model.Invalid("confidence", "must be between 0 and 1")
	}
	return nil
}

func nonNilConflicts(c []model.Conflict) []model.Conflict {
	if c == nil {
		return []model.Conflict{}
	}
	return c
}

func newID() string {
	return uuid.NewString()
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
