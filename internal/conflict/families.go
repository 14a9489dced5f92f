package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/classifier"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pipeline"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
)

// pairFindings folds several issues found between the same specs into one
// finding per pair, keeping the highest severity and every reason.
type pairFindings struct {
	typ   model.ConflictType
	order []string
	byKey map[string]*Finding
}

func newPairFindings(t model.ConflictType) *pairFindings {
	return &pairFindings{typ: t, byKey: make(map[string]*Finding)}
}

func (p *pairFindings) add(sev model.Severity, reason string, specs ...*Analyzed) {
	refs := refsOf(specs...)
	key := model.DedupeKey(p.typ, refs)
	if f, ok := p.byKey[key]; ok {
		if sev.Rank() > f.Severity.Rank() {
			f.Severity = sev
		}
		f.Reason += "; " + reason
		return
	}
	p.order = append(p.order, key)
	p.byKey[key] = &Finding{Type: p.typ, Severity: sev, Refs: refs, Reason: reason}
}

func (p *pairFindings) list() []Finding {
	out := make([]Finding, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, *p.byKey[k])
	}
	return out
}

// --- technology ---

// TechnologyRule flags technology pairs listed as incompatible, and
// single-writer datastores paired with concurrency above the threshold.
type TechnologyRule struct{}

func (TechnologyRule) Type() model.ConflictType { return model.ConflictTechnology }

func (TechnologyRule) Detect(_ context.Context, in Input) []Finding {
	catalog := &in.Tables.Technology
	threshold := concurrencyThreshold(catalog, in.Settings)

	found := newPairFindings(model.ConflictTechnology)
	in.pairs(func(x, y *Analyzed) {
		technologyIssues(catalog, threshold, x, y, func(sev model.Severity, reason string) {
			found.add(sev, reason, x, y)
		})
	})
	return found.list()
}

// Inspect reports technology contradictions stated inside a single spec,
// such as a single-writer datastore and its own concurrency target. A
// conflict needs two specs, so these are returned as findings over the
// one spec for the caller to surface as warnings.
func Inspect(a *Analyzed, tables *rules.Tables, s Settings) []Finding {
	catalog := &tables.Technology
	found := newPairFindings(model.ConflictTechnology)
	technologyIssues(catalog, concurrencyThreshold(catalog, s), a, a, func(sev model.Severity, reason string) {
		found.add(sev, reason, a)
	})
	return found.list()
}

func concurrencyThreshold(catalog *rules.Technology, s Settings) int {
	if s.ConcurrencyOverride > 0 {
		return s.ConcurrencyOverride
	}
	return catalog.ConcurrencyThreshold
}

// technologyIssues calls emit for every technology problem between x and
// y. x and y may be the same spec.
func technologyIssues(catalog *rules.Technology, threshold int, x, y *Analyzed, emit func(model.Severity, string)) {
	for _, inc := range catalog.Incompatibilities {
		if mentionsAcross(x, y, inc.A, inc.B) {
			emit(inc.Severity, fmt.Sprintf("%s with %s: %s", inc.A, inc.B, inc.Reason))
		}
	}
	pairs := [][2]*Analyzed{{x, y}, {y, x}}
	if x == y {
		pairs = pairs[:1]
	}
	for _, pair := range pairs {
		store, load := pair[0], pair[1]
		if load.Facts.Concurrency <= threshold {
			continue
		}
		for _, m := range store.Facts.Technologies {
			tech := catalog.Lookup(m.Name)
			if tech == nil || !tech.SingleWriter {
				continue
			}
			sev := model.SeverityHigh
			if load.Facts.Concurrency >= 10*threshold {
				sev = model.SeverityCritical
			}
			emit(sev, fmt.Sprintf("%s supports a single writer but %d concurrent users are expected (threshold %d)",
				m.Name, load.Facts.Concurrency, threshold))
		}
	}
}

func mentionsAcross(x, y *Analyzed, a, b string) bool {
	_, xa := x.Facts.Mentions(a)
	_, xb := x.Facts.Mentions(b)
	_, ya := y.Facts.Mentions(a)
	_, yb := y.Facts.Mentions(b)
	return (xa && yb) || (xb && ya)
}

// --- requirement ---

// RequirementRule flags requirement specs taking opposite stances on a
// contradiction concept. When no concept applies it can ask a Classifier;
// classifier failures are logged and the pair is left to the rules alone.
type RequirementRule struct {
	Classifier classifier.Classifier
	Logger     *slog.Logger
	// OnFallback is called once per scan when the classifier fails.
	OnFallback func(err error)
}

func (*RequirementRule) Type() model.ConflictType { return model.ConflictRequirement }

func (r *RequirementRule) Detect(ctx context.Context, in Input) []Finding {
	table := &in.Tables.Contradictions
	threshold := table.ClassifierThreshold
	if in.Settings.ClassifierThreshold > 0 {
		threshold = in.Settings.ClassifierThreshold
	}

	// The classifier is only consulted for incremental scans; a rescan
	// would cost one call per pair.
	useClassifier := r.Classifier != nil && in.Subject != nil
	found := newPairFindings(model.ConflictRequirement)

	// Calls run one after another under the project lock, so the whole
	// classifier phase shares one deadline.
	budget := in.Settings.ClassifierBudget
	if budget <= 0 {
		budget = DefaultClassifierBudget
	}
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	in.pairs(func(x, y *Analyzed) {
		if !table.AppliesTo(x.Spec.Category) || !table.AppliesTo(y.Spec.Category) {
			return
		}
		hit := false
		for _, c := range table.Concepts {
			px, py := x.Facts.Polarity[c.Name], y.Facts.Polarity[c.Name]
			if px != PolarityNone && py != PolarityNone && px != py {
				found.add(c.Severity, fmt.Sprintf("requirements disagree on %s", c.Name), x, y)
				hit = true
			}
		}
		if hit || !useClassifier || ctx.Err() != nil {
			return
		}
		if err := cctx.Err(); err != nil {
			useClassifier = false
			r.fallback(&model.ExternalServiceTimeout{Service: "contradiction classifier budget", Err: err})
			return
		}

		score, err := r.Classifier.Contradiction(cctx, x.Spec.Content, y.Spec.Content)
		if err != nil {
			useClassifier = false
			r.fallback(err)
			return
		}
		if score >= threshold {
			sev := model.SeverityMedium
			if score >= 0.95 {
				sev = model.SeverityHigh
			}
			found.add(sev, fmt.Sprintf("requirements likely contradict (classifier score %.2f)", score), x, y)
		}
	})
	return found.list()
}

func (r *RequirementRule) fallback(err error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !errors.Is(err, classifier.ErrDisabled) {
		var timeout *model.ExternalServiceTimeout
		if errors.As(err, &timeout) {
			logger.Warn("contradiction classifier timed out, using rules only", slog.String("service", timeout.Service))
		} else {
			logger.Warn("contradiction classifier failed, using rules only", slog.String("error", err.Error()))
		}
	}
	if r.OnFallback != nil {
		r.OnFallback(err)
	}
}

// --- timeline ---

// TimelineRule compares total estimated effort with what the team can
// deliver in the stated timeline. The finding is keyed on the team and
// timeline specs, so effort specs added later do not open another one.
type TimelineRule struct{}

func (TimelineRule) Type() model.ConflictType { return model.ConflictTimeline }

func (TimelineRule) Detect(_ context.Context, in Input) []Finding {
	hoursPerWeek := in.Settings.HoursPerWeek
	if hoursPerWeek <= 0 {
		hoursPerWeek = 40
	}

	var effortSpecs []*Analyzed
	var effort float64
	var team, timeline *Analyzed
	for i := range in.Specs {
		s := &in.Specs[i]
		if s.Facts.EffortHours > 0 {
			effortSpecs = append(effortSpecs, s)
			effort += s.Facts.EffortHours
		}
		if s.Facts.TeamSize > 0 && newer(s, team) {
			team = s
		}
		if s.Facts.TimelineWeeks > 0 && newer(s, timeline) {
			timeline = s
		}
	}
	if len(effortSpecs) == 0 || team == nil || timeline == nil {
		return nil
	}

	capacity := float64(team.Facts.TeamSize) * timeline.Facts.TimelineWeeks * hoursPerWeek
	ratio := effort / capacity
	if ratio <= 1 {
		return nil
	}

	involved := append(append([]*Analyzed{}, effortSpecs...), team, timeline)
	return []Finding{{
		Type:     model.ConflictTimeline,
		Severity: overrunSeverity(ratio),
		Refs:     refsOf(involved...),
		Anchors:  refsOf(team, timeline),
		Reason: fmt.Sprintf("estimated effort of %.0f hours exceeds capacity of %.0f hours (%d people x %.1f weeks x %.0f h/week), overrun %.0f%%",
			effort, capacity, team.Facts.TeamSize, timeline.Facts.TimelineWeeks, hoursPerWeek, (ratio-1)*100),
	}}
}

func overrunSeverity(ratio float64) model.Severity {
	switch {
	case ratio > 2:
		return model.SeverityCritical
	case ratio > 1.5:
		return model.SeverityHigh
	case ratio > 1.2:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// newer reports whether s was stated after cur (ties broken by id).
func newer(s, cur *Analyzed) bool {
	if cur == nil {
		return true
	}
	if s.Spec.CreatedAt != cur.Spec.CreatedAt {
		return s.Spec.CreatedAt > cur.Spec.CreatedAt
	}
	return s.Spec.ID > cur.Spec.ID
}

// --- resource ---

// ResourceRule flags skills the chosen stack needs that no team statement
// covers. Each finding is keyed on the spec that needs the skills.
type ResourceRule struct{}

func (ResourceRule) Type() model.ConflictType { return model.ConflictResource }

func (ResourceRule) Detect(_ context.Context, in Input) []Finding {
	available := make(map[string]bool)
	var teamSpecs []*Analyzed
	for i := range in.Specs {
		s := &in.Specs[i]
		if len(s.Facts.AvailableSkills) == 0 {
			continue
		}
		teamSpecs = append(teamSpecs, s)
		for _, skill := range s.Facts.AvailableSkills {
			available[skill] = true
		}
	}
	if len(teamSpecs) == 0 {
		return nil
	}

	var out []Finding
	for i := range in.Specs {
		s := &in.Specs[i]
		var missing []string
		for _, skill := range s.Facts.RequiredSkills {
			if !available[skill] {
				missing = append(missing, skill)
			}
		}
		if len(missing) == 0 {
			continue
		}
		sort.Strings(missing)
		sev := model.SeverityMedium
		if len(missing) >= 3 {
			sev = model.SeverityHigh
		}
		involved := append([]*Analyzed{s}, teamSpecs...)
		out = append(out, Finding{
			Type:     model.ConflictResource,
			Severity: sev,
			Refs:     refsOf(involved...),
			Anchors:  refsOf(s),
			Reason:   fmt.Sprintf("team lacks required skills: %s", strings.Join(missing, ", ")),
		})
	}
	return out
}

// --- compatibility ---

// CompatibilityRule checks version requirements between technologies. It
// only runs once the project has reached design, when versions are
// expected to be pinned.
type CompatibilityRule struct{}

func (CompatibilityRule) Type() model.ConflictType { return model.ConflictCompatibility }

func (CompatibilityRule) Detect(_ context.Context, in Input) []Finding {
	if pipeline.PhaseIndex(in.Phase) < pipeline.PhaseIndex(model.PhaseDesign) {
		return nil
	}
	reqs := in.Tables.Technology.Compatibility

	found := newPairFindings(model.ConflictCompatibility)
	in.pairs(func(x, y *Analyzed) {
		for _, pair := range [][2]*Analyzed{{x, y}, {y, x}} {
			user, dep := pair[0], pair[1]
			for _, req := range reqs {
				if _, ok := user.Facts.Mentions(req.Technology); !ok {
					continue
				}
				m, ok := dep.Facts.Mentions(req.Requires)
				if !ok || m.Version == "" {
					continue
				}
				have, ok := rules.ParseVersion(m.Version)
				if !ok {
					continue
				}
				// Validated at load time.
				need, _ := rules.ParseVersion(req.MinVersion)
				if have.Less(need) {
					found.add(req.Severity, fmt.Sprintf("%s requires %s %s or later, but %s is specified",
						req.Technology, req.Requires, req.MinVersion, m.Version), user, dep)
				}
			}
		}
	})
	return found.list()
}
