package quality

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

// ErrInsufficientData is returned by a check that has too little history
// to say anything. The report marks the section instead of failing.
var ErrInsufficientData = errors.New("insufficient data")

// History is what bad-pattern checks read. Activities are in recording
// order (oldest first).
type History struct {
	Phase      model.Phase
	Activities []model.Activity
	Specs      []model.Specification
}

func (h History) ofKind(kinds ...model.ActivityKind) []model.Activity {
	var out []model.Activity
	for _, a := range h.Activities {
		for _, k := range kinds {
			if a.Kind == k {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Finding is a detected bad pattern.
type Finding struct {
	Check    string         `json:"check"`
	Severity model.Severity `json:"severity"`
	Message  string         `json:"message"`
	Evidence []int64        `json:"evidence_activity_ids,omitempty"`
}

// Check is a pluggable bad-pattern heuristic. Run returns (nil, nil) when
// the history looks healthy.
type Check interface {
	Name() string
	Run(h History) (*Finding, error)
}

// DefaultChecks returns the built-in checks in report order.
func DefaultChecks() []Check {
	return []Check{
		TestWeakening{MinChanges: 3, Repeats: 2},
		ScopeCreep{MinFeatures: 3, MaxUnscoped: 3},
		TunnelVision{MinQuestions: 5, Window: 10, Share: 0.6},
		PrematureOptimization{MinSamples: 5, Share: 0.4},
	}
}

// --- test weakening ---

var weakeningRe = regexp.MustCompile(`(?i)\b(skip(?:ped|s)?|disabled?|comment(?:ed)? out|remove[ds]? (?:the )?assert(?:ion)?s?|loosen(?:ed)?|relax(?:ed)?|increase[ds]? (?:the )?tolerance|xfail|t\.skip|mark(?:ed)? (?:as )?flaky|delete[ds]? (?:the )?test)`)

// TestWeakening flags a test that keeps being weakened instead of the
// code under test being fixed.
type TestWeakening struct {
	MinChanges int
	Repeats    int
}

func (TestWeakening) Name() string { return "test_weakening" }

func (c TestWeakening) Run(h History) (*Finding, error) {
	changes := h.ofKind(model.ActivityTestChange)
	if len(changes) < c.MinChanges {
		return nil, ErrInsufficientData
	}

	byTarget := make(map[string][]int64)
	for _, a := range changes {
		if !weakeningRe.MatchString(a.Content) {
			continue
		}
		target := strings.ToLower(strings.TrimSpace(a.Target))
		if target == "" {
			target = "(unnamed)"
		}
		byTarget[target] = append(byTarget[target], a.ID)
	}

	var worst string
	for target, ids := range byTarget {
		if len(ids) < c.Repeats {
			continue
		}
		if worst == "" || len(ids) > len(byTarget[worst]) || (len(ids) == len(byTarget[worst]) && target < worst) {
			worst = target
		}
	}
	if worst == "" {
		return nil, nil
	}

	ids := byTarget[worst]
	sev := model.SeverityMedium
	if len(ids) > c.Repeats {
		sev = model.SeverityHigh
	}
	return &Finding{
		Check:    c.Name(),
		Severity: sev,
		Message:  fmt.Sprintf("test %q was weakened %d times; fix the underlying defect instead", worst, len(ids)),
		Evidence: ids,
	}, nil
}

// --- scope creep ---

// ScopeCreep flags features added that no functional requirement
// mentions.
type ScopeCreep struct {
	MinFeatures int
	MaxUnscoped int
}

func (ScopeCreep) Name() string { return "scope_creep" }

func (c ScopeCreep) Run(h History) (*Finding, error) {
	features := h.ofKind(model.ActivityFeatureAdded)
	if len(features) < c.MinFeatures {
		return nil, ErrInsufficientData
	}

	var scope []string
	for _, s := range h.Specs {
		if s.Active() && (s.Category == model.CategoryFunctional || s.Category == model.CategoryGoals) {
			scope = append(scope, strings.ToLower(s.Content))
		}
	}

	var unscoped []int64
	for _, f := range features {
		text := f.Target
		if text == "" {
			text = f.Content
		}
		if !inScope(text, scope) {
			unscoped = append(unscoped, f.ID)
		}
	}
	if len(unscoped) < c.MaxUnscoped {
		return nil, nil
	}

	sev := model.SeverityMedium
	if len(unscoped)*2 > len(features) {
		sev = model.SeverityHigh
	}
	return &Finding{
		Check:    c.Name(),
		Severity: sev,
		Message:  fmt.Sprintf("%d of %d added features are not covered by any recorded requirement", len(unscoped), len(features)),
		Evidence: unscoped,
	}, nil
}

var wordRe = regexp.MustCompile(`[a-z][a-z0-9-]{3,}`)

var stopwords = map[string]bool{
	"with": true, "that": true, "this": true, "from": true, "have": true,
	"will": true, "should": true, "must": true, "into": true, "user": true,
	"users": true, "feature": true, "add": true, "added": true, "support": true,
}

// inScope reports whether any significant word of text appears in scope.
func inScope(text string, scope []string) bool {
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] {
			continue
		}
		for _, s := range scope {
			if strings.Contains(s, w) {
				return true
			}
		}
	}
	return false
}

// --- tunnel vision ---

// TunnelVision flags recent questioning that keeps circling one category
// while others stay unexplored.
type TunnelVision struct {
	MinQuestions int
	Window       int
	Share        float64
}

func (TunnelVision) Name() string { return "tunnel_vision" }

func (c TunnelVision) Run(h History) (*Finding, error) {
	var tagged []model.Activity
	for _, a := range h.ofKind(model.ActivityQuestion) {
		if a.Category != "" {
			tagged = append(tagged, a)
		}
	}
	if len(tagged) < c.MinQuestions {
		return nil, ErrInsufficientData
	}
	if len(tagged) > c.Window {
		tagged = tagged[len(tagged)-c.Window:]
	}

	counts := make(map[model.Category]int)
	for _, a := range tagged {
		counts[a.Category]++
	}
	cats := make([]model.Category, 0, len(counts))
	for cat := range counts {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return model.CategoryIndex(cats[i]) < model.CategoryIndex(cats[j])
	})

	top := cats[0]
	share := float64(counts[top]) / float64(len(tagged))
	if share < c.Share {
		return nil, nil
	}

	var evidence []int64
	for _, a := range tagged {
		if a.Category == top {
			evidence = append(evidence, a.ID)
		}
	}
	return &Finding{
		Check:    c.Name(),
		Severity: model.SeverityLow,
		Message:  fmt.Sprintf("%d of the last %d questions were about %s", counts[top], len(tagged), top),
		Evidence: evidence,
	}, nil
}

// --- premature optimization ---

var optimizationRe = regexp.MustCompile(`(?i)\b(optimi[sz](?:e|ed|ation|ing)|performance|latency|throughput|cach(?:e|ing)|shard(?:ing)?|microseconds?|benchmark|scal(?:e|ing|ability))\b`)

// PrematureOptimization flags questions and recommendations dominated by
// performance concerns before design has started.
type PrematureOptimization struct {
	MinSamples int
	Share      float64
}

func (PrematureOptimization) Name() string { return "premature_optimization" }

func (c PrematureOptimization) Run(h History) (*Finding, error) {
	if h.Phase != model.PhaseDiscovery && h.Phase != model.PhaseAnalysis {
		return nil, nil
	}
	samples := h.ofKind(model.ActivityQuestion, model.ActivityRecommendation)
	if len(samples) < c.MinSamples {
		return nil, ErrInsufficientData
	}

	var hits []int64
	for _, a := range samples {
		if optimizationRe.MatchString(a.Content) {
			hits = append(hits, a.ID)
		}
	}
	if float64(len(hits))/float64(len(samples)) < c.Share {
		return nil, nil
	}
	return &Finding{
		Check:    c.Name(),
		Severity: model.SeverityMedium,
		Message:  fmt.Sprintf("%d of %d questions and recommendations focus on performance during %s", len(hits), len(samples), h.Phase),
		Evidence: hits,
	}, nil
}
