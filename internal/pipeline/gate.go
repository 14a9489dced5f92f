// Package pipeline - phase gate.
//
// A project moves discovery → analysis → design → implementation, one
// phase at a time. Moving forward passes through a gate: every category
// must meet the target phase's required minimum, no open conflict of
// severity high or above may exist, and before implementation every
// compatibility conflict must be resolved (an override is not enough).
// Moving backward is always allowed.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/maturity"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

// PhaseOrder defines the sequential phases.
var PhaseOrder = []model.Phase{
	model.PhaseDiscovery,
	model.PhaseAnalysis,
	model.PhaseDesign,
	model.PhaseImplementation,
}

// PhaseIndex returns the position of a phase, or -1 if unknown.
func PhaseIndex(p model.Phase) int {
	for i, x := range PhaseOrder {
		if x == p {
			return i
		}
	}
	return -1
}

// Next returns the phase after p, or "" when p is last or unknown.
func Next(p model.Phase) model.Phase {
	i := PhaseIndex(p)
	if i < 0 || i+1 >= len(PhaseOrder) {
		return ""
	}
	return PhaseOrder[i+1]
}

// Previous returns the phase before p, or "" when p is first or unknown.
func Previous(p model.Phase) model.Phase {
	if i := PhaseIndex(p); i > 0 {
		return PhaseOrder[i-1]
	}
	return ""
}

// Thresholds maps a target phase to the completeness every category must
// reach to enter it.
type Thresholds map[model.Phase]float64

// DefaultThresholds returns the required minimum per target phase.
func DefaultThresholds() Thresholds {
	return Thresholds{
		model.PhaseAnalysis:       60,
		model.PhaseDesign:         100,
		model.PhaseImplementation: 100,
	}
}

// RequiredMinimum returns the threshold for entering target. Phases
// without an explicit value fall back to the defaults.
func RequiredMinimum(target model.Phase, th Thresholds) float64 {
	if v, ok := th[target]; ok {
		return v
	}
	return DefaultThresholds()[target]
}

// GateInput is a consistent snapshot of everything the gate reads.
type GateInput struct {
	From       model.Phase
	Target     model.Phase
	Maturity   maturity.Report
	Conflicts  []model.Conflict
	Thresholds Thresholds
}

// GateResult is the outcome of Evaluate.
type GateResult struct {
	From            model.Phase              `json:"from"`
	Target          model.Phase              `json:"target"`
	Allowed         bool                     `json:"allowed"`
	RequiredMinimum float64                  `json:"required_minimum"`
	Blockers        []model.Blocker          `json:"blockers"`
	Categories      []model.CategoryMaturity `json:"categories"`
}

// Evaluate applies every guard and collects all blockers rather than
// stopping at the first, so the caller can show the full list of next
// steps. It performs no mutation.
func Evaluate(in GateInput) GateResult {
	required := RequiredMinimum(in.Target, in.Thresholds)
	satisfied := maturity.Satisfy(in.Maturity, required)
	res := GateResult{
		From:            in.From,
		Target:          in.Target,
		RequiredMinimum: required,
		Blockers:        []model.Blocker{},
		Categories:      satisfied.ByCategory,
	}

	if b, ok := checkOrder(in.From, in.Target); !ok {
		res.Blockers = append(res.Blockers, b)
	}

	for _, row := range satisfied.ByCategory {
		if row.Satisfied {
			continue
		}
		reason := fmt.Sprintf("%s is %.2f%% complete; %s requires %.2f%%", row.Category, row.Completeness, in.Target, required)
		if len(row.MissingTopics) > 0 {
			reason += " (missing: " + strings.Join(row.MissingTopics, ", ") + ")"
		}
		res.Blockers = append(res.Blockers, model.Blocker{
			Kind:     model.BlockerCategory,
			Category: row.Category,
			Reason:   reason,
		})
	}

	listed := make(map[string]bool)
	for _, c := range in.Conflicts {
		if !c.Blocking() {
			continue
		}
		listed[c.ID] = true
		res.Blockers = append(res.Blockers, model.Blocker{
			Kind:       model.BlockerConflict,
			ConflictID: c.ID,
			Reason:     fmt.Sprintf("open %s %s conflict: %s", c.Severity, c.Type, c.Reason),
		})
	}

	if in.From == model.PhaseDesign && in.Target == model.PhaseImplementation {
		for _, c := range in.Conflicts {
			if c.Type != model.ConflictCompatibility || c.Status == model.StatusResolved || listed[c.ID] {
				continue
			}
			res.Blockers = append(res.Blockers, model.Blocker{
				Kind:       model.BlockerCompatibility,
				ConflictID: c.ID,
				Reason:     fmt.Sprintf("compatibility conflict is %s; it must be resolved before implementation: %s", c.Status, c.Reason),
			})
		}
	}

	res.Allowed = len(res.Blockers) == 0
	return res
}

func checkOrder(from, target model.Phase) (model.Blocker, bool) {
	next := Next(from)
	switch {
	case PhaseIndex(from) < 0:
		return model.Blocker{Kind: model.BlockerPhaseOrder, Reason: fmt.Sprintf("unknown current phase %q", from)}, false
	case next == "":
		return model.Blocker{Kind: model.BlockerPhaseOrder, Reason: fmt.Sprintf("%s is the final phase", from)}, false
	case target != next:
		return model.Blocker{Kind: model.BlockerPhaseOrder, Reason: fmt.Sprintf("from %s the only forward phase is %s, not %s", from, next, target)}, false
	}
	return model.Blocker{}, true
}

// Transition records a phase change.
type Transition struct {
	From model.Phase `json:"from"`
	To   model.Phase `json:"to"`
	At   string      `json:"at"`
}

// Advance evaluates the gate and returns the transition if it is
// allowed, or a *model.GateBlockedError carrying every blocker.
func Advance(in GateInput) (Transition, GateResult, error) {
	res := Evaluate(in)
	if !res.Allowed {
		return Transition{}, res, &model.GateBlockedError{From: in.From, Target: in.Target, Blockers: res.Blockers}
	}
	return Transition{From: in.From, To: in.Target, At: timeNow().UTC().Format(time.RFC3339)}, res, nil
}

// Revert moves a project back to an earlier phase. An empty target means
// the previous phase. Revert has no gate.
func Revert(from, target model.Phase) (Transition, error) {
	if PhaseIndex(from) < 0 {
		return Transition{}, model.Invalid("phase", fmt.Sprintf("unknown current phase %q", from))
	}
	if target == "" {
		target = Previous(from)
		if target == "" {
			return Transition{}, model.InvalidState("project is already in the first phase (%s)", from)
		}
	}
	if PhaseIndex(target) < 0 {
		return Transition{}, model.Invalid("target", fmt.Sprintf("unknown phase %q", target))
	}
	if PhaseIndex(target) >= PhaseIndex(from) {
		return Transition{}, model.InvalidState("revert target %s is not before %s", target, from)
	}
	return Transition{From: from, To: target, At: timeNow().UTC().Format(time.RFC3339)}, nil
}
