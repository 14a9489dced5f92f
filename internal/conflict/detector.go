package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/classifier"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
)

// Finding is a conflict a rule detected. The engine turns findings into
// stored conflicts; a finding whose dedupe key already exists is dropped.
type Finding struct {
	Type     model.ConflictType
	Severity model.Severity
	Refs     []model.SpecRef
	// Anchors, when set, are the subset of Refs that identify the finding
	// across scans. Aggregate findings use it so that one more
	// contributing spec does not open a second conflict.
	Anchors []model.SpecRef
	Reason  string
}

// DedupeKey identifies the finding across scans.
func (f Finding) DedupeKey() string {
	if len(f.Anchors) > 0 {
		return model.DedupeKey(f.Type, f.Anchors)
	}
	return model.DedupeKey(f.Type, f.Refs)
}

// DefaultClassifierBudget bounds the classifier phase of one scan when
// Settings leaves it unset.
const DefaultClassifierBudget = 10 * time.Second

// Settings are the tunable numbers rule families read.
type Settings struct {
	HoursPerWeek        float64
	ConcurrencyOverride int
	ClassifierThreshold float64
	// ClassifierBudget caps the total time one scan waits on the
	// classifier.
	ClassifierBudget time.Duration
}

// Input is everything a rule sees during one scan.
type Input struct {
	// Subject is the new or changed spec. Nil means a full rescan: every
	// pair of current specs is compared.
	Subject *Analyzed
	// Specs holds every active, analyzable spec of the project,
	// including Subject.
	Specs    []Analyzed
	Phase    model.Phase
	Tables   *rules.Tables
	Settings Settings
}

// involves reports whether a finding over refs should be kept for this
// scan: always on a full rescan, otherwise only if the subject takes part.
func (in Input) involves(refs []model.SpecRef) bool {
	if in.Subject == nil {
		return true
	}
	for _, r := range refs {
		if r.SpecID == in.Subject.Spec.ID {
			return true
		}
	}
	return false
}

// pairs calls fn for every pair to compare: (subject, other) for an
// incremental scan, every unordered pair for a rescan.
func (in Input) pairs(fn func(x, y *Analyzed)) {
	if in.Subject != nil {
		for i := range in.Specs {
			if in.Specs[i].Spec.ID == in.Subject.Spec.ID {
				continue
			}
			fn(in.Subject, &in.Specs[i])
		}
		return
	}
	for i := range in.Specs {
		for j := i + 1; j < len(in.Specs); j++ {
			fn(&in.Specs[i], &in.Specs[j])
		}
	}
}

// Rule is one conflict family.
type Rule interface {
	Type() model.ConflictType
	Detect(ctx context.Context, in Input) []Finding
}

// Detector runs an ordered list of rules.
type Detector struct {
	rules  []Rule
	logger *slog.Logger
}

// NewDetector returns a detector with the given rules.
func NewDetector(logger *slog.Logger, rules ...Rule) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{rules: rules, logger: logger}
}

// NewDefaultDetector registers the five built-in families. c may be nil
// to disable the classifier fallback.
func NewDefaultDetector(c classifier.Classifier, logger *slog.Logger) *Detector {
	d := NewDetector(logger)
	d.Register(TechnologyRule{})
	d.Register(&RequirementRule{Classifier: c, Logger: d.logger})
	d.Register(TimelineRule{})
	d.Register(ResourceRule{})
	d.Register(CompatibilityRule{})
	return d
}

// OnClassifierFallback installs fn on every registered RequirementRule.
// Not safe to call concurrently with Scan.
func (d *Detector) OnClassifierFallback(fn func(error)) {
	for _, r := range d.rules {
		if rr, ok := r.(*RequirementRule); ok {
			rr.OnFallback = fn
		}
	}
}

// Register appends a rule family. Not safe to call concurrently with Scan.
func (d *Detector) Register(r Rule) {
	d.rules = append(d.rules, r)
}

// Rules returns the registered conflict types in order.
func (d *Detector) Rules() []model.ConflictType {
	out := make([]model.ConflictType, 0, len(d.rules))
	for _, r := range d.rules {
		out = append(out, r.Type())
	}
	return out
}

// Scan runs every rule and returns the distinct findings, sorted by
// dedupe key. Findings over fewer than two specs are dropped; Inspect
// covers contradictions inside one spec. A rule that panics is logged and
// skipped so one bad rule cannot take down the cascade.
func (d *Detector) Scan(ctx context.Context, in Input) []Finding {
	seen := make(map[string]bool)
	var out []Finding

	for _, r := range d.rules {
		for _, f := range d.runRule(ctx, r, in) {
			if len(f.Refs) < 2 || !in.involves(f.Refs) {
				continue
			}
			sortRefs(f.Refs)
			sortRefs(f.Anchors)
			key := f.DedupeKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DedupeKey() < out[j].DedupeKey() })
	return out
}

func (d *Detector) runRule(ctx context.Context, r Rule, in Input) (findings []Finding) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("conflict rule panicked",
				slog.String("rule", string(r.Type())),
				slog.String("panic", fmt.Sprint(p)))
			findings = nil
		}
	}()
	return r.Detect(ctx, in)
}

func sortRefs(refs []model.SpecRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].LineageID != refs[j].LineageID {
			return refs[i].LineageID < refs[j].LineageID
		}
		return refs[i].Version < refs[j].Version
	})
}

func refsOf(specs ...*Analyzed) []model.SpecRef {
	seen := make(map[string]bool, len(specs))
	out := make([]model.SpecRef, 0, len(specs))
	for _, s := range specs {
		if seen[s.Spec.ID] {
			continue
		}
		seen[s.Spec.ID] = true
		out = append(out, s.Spec.Ref())
	}
	return out
}
