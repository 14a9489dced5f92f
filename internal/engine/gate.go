package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Nireus79/Socrates2-sub000/internal/conflict"
	"github.com/Nireus79/Socrates2-sub000/internal/metrics"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pipeline"
	"github.com/Nireus79/Socrates2-sub000/internal/store"
)

// CanAdvance evaluates the phase gate without changing anything. An
// empty target means the next phase.
func (e *Engine) CanAdvance(ctx context.Context, projectID, target string) (*pipeline.GateResult, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}
	snap, err := e.store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	in, err := e.gateInput(snap, target)
	if err != nil {
		return nil, err
	}
	res := pipeline.Evaluate(in)
	metrics.GateDecision(string(in.Target), res.Allowed)
	return &res, nil
}

// AdvanceResult is the outcome of a successful transition.
type AdvanceResult struct {
	Project    *model.Project      `json:"project"`
	Transition pipeline.Transition `json:"transition"`
	Gate       pipeline.GateResult `json:"gate"`
}

// Advance moves a project to target (default: the next phase) if every
// guard passes. A denied transition returns *model.GateBlockedError
// carrying the blockers; nothing is changed.
func (e *Engine) Advance(ctx context.Context, projectID, target string) (*AdvanceResult, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(projectID)
	defer unlock()

	snap, err := e.store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	in, err := e.gateInput(snap, target)
	if err != nil {
		return nil, err
	}

	tr, gate, err := pipeline.Advance(in)
	metrics.GateDecision(string(in.Target), gate.Allowed)
	if err != nil {
		e.logger.Info("phase transition blocked",
			slog.String("project", projectID),
			slog.String("from", string(in.From)),
			slog.String("target", string(in.Target)),
			slog.Int("blockers", len(gate.Blockers)))
		return nil, err
	}

	if err := e.store.SetPhase(ctx, projectID, tr.From, tr.To, "gate passed"); err != nil {
		return nil, err
	}
	p, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("phase advanced",
		slog.String("project", projectID),
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)))
	return &AdvanceResult{Project: p, Transition: tr, Gate: gate}, nil
}

// RevertResult is the outcome of a revert.
type RevertResult struct {
	Project    *model.Project      `json:"project"`
	Transition pipeline.Transition `json:"transition"`
}

// Revert moves a project back to an earlier phase (default: the previous
// one). It has no gate.
func (e *Engine) Revert(ctx context.Context, projectID, target, reason string) (*RevertResult, error) {
	if err := requireID("project_id", projectID); err != nil {
		return nil, err
	}
	var to model.Phase
	if trim(target) != "" {
		p, err := model.ParsePhase(target)
		if err != nil {
			return nil, err
		}
		to = p
	}

	unlock := e.locks.lock(projectID)
	defer unlock()

	p, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tr, err := pipeline.Revert(p.Phase, to)
	if err != nil {
		return nil, err
	}
	note := trim(reason)
	if note == "" {
		note = "reverted"
	}
	if err := e.store.SetPhase(ctx, projectID, tr.From, tr.To, note); err != nil {
		return nil, err
	}
	if p, err = e.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	e.logger.Info("phase reverted",
		slog.String("project", projectID),
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)))
	return &RevertResult{Project: p, Transition: tr}, nil
}

func (e *Engine) gateInput(snap *store.Snapshot, target string) (pipeline.GateInput, error) {
	from := snap.Project.Phase
	var to model.Phase
	if trim(target) == "" {
		to = pipeline.Next(from)
		if to == "" {
			return pipeline.GateInput{}, model.InvalidState("project %s is already in the final phase (%s)", snap.Project.ID, from)
		}
	} else {
		p, err := model.ParsePhase(target)
		if err != nil {
			return pipeline.GateInput{}, err
		}
		to = p
	}
	return pipeline.GateInput{
		From:       from,
		Target:     to,
		Maturity:   e.score(snap.Specs),
		Conflicts:  snap.Conflicts,
		Thresholds: e.opts.Thresholds,
	}, nil
}

// ─── Conflicts ───────────────────────────────────────────────────────────────

// ResolveConflict records the user's decision on an open conflict. It
// fails with NotFoundError for an unknown id and InvalidStateError when
// the conflict is not open. A resolved conflict is never recreated by
// later scans.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, res model.Resolution) (*model.Conflict, error) {
	if err := requireID("conflict_id", conflictID); err != nil {
		return nil, err
	}
	c, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(c.ProjectID)
	defer unlock()

	// Re-read under the lock.
	if c, err = e.store.GetConflict(ctx, conflictID); err != nil {
		return nil, err
	}
	closed, err := conflict.Resolve(*c, res, now())
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateConflictResolution(ctx, closed); err != nil {
		return nil, fmt.Errorf("saving resolution: %w", err)
	}
	metrics.ConflictClosed(string(closed.Status))
	e.logger.Info("conflict closed",
		slog.String("project", closed.ProjectID),
		slog.String("conflict", closed.ID),
		slog.String("status", string(closed.Status)),
		slog.String("decision", string(closed.Resolution.Decision)))
	return &closed, nil
}
