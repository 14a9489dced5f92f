// Package model holds the domain types shared by every engine component:
// specifications, conflicts, category maturity, project phases, and the
// error taxonomy returned to callers.
//
// Enums are string-typed so they serialize cleanly to SQLite and MCP
// tool output. Each enum has a closed set of values and a Parse/Validate
// helper; unknown values are rejected with a ValidationError.
package model

import (
	"fmt"
	"strings"
)

// --- Category enum ---

// Category is one of the closed set of topic categories a specification
// can belong to. The set only changes with an engine upgrade.
type Category string

const (
	CategoryGoals           Category = "goals"
	CategoryFunctional      Category = "functional_requirements"
	CategoryTechnology      Category = "technology"
	CategoryConstraints     Category = "constraints"
	CategoryTeam            Category = "team"
	CategoryTimeline        Category = "timeline"
	CategoryDeployment      Category = "deployment"
	CategorySuccessCriteria Category = "success_criteria"
	CategoryTesting         Category = "testing"
	CategoryOperability     Category = "operability"
)

// Categories lists every category in canonical order. Everything that
// iterates categories (scoring, reports, blockers) uses this order so
// results are deterministic.
var Categories = []Category{
	CategoryGoals,
	CategoryFunctional,
	CategoryTechnology,
	CategoryConstraints,
	CategoryTeam,
	CategoryTimeline,
	CategoryDeployment,
	CategorySuccessCriteria,
	CategoryTesting,
	CategoryOperability,
}

var categoryIndex = func() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for i, c := range Categories {
		m[c] = i
	}
	return m
}()

// CategoryIndex returns the canonical position of c, or -1 if unknown.
func CategoryIndex(c Category) int {
	if i, ok := categoryIndex[c]; ok {
		return i
	}
	return -1
}

// ParseCategory normalizes and validates a category name.
// "Functional Requirements", "functional-requirements" and
// "functional_requirements" all parse to CategoryFunctional.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	c := Category(norm)
	if _, ok := categoryIndex[c]; !ok {
		return "", &InvalidCategoryError{Value: s}
	}
	return c, nil
}

// --- Source enum ---

// Source records how a specification was obtained.
type Source string

const (
	SourceUserStated Source = "user_stated"
	SourceDerived    Source = "derived"
	SourceInferred   Source = "inferred"
)

var validSources = map[Source]bool{
	SourceUserStated: true,
	SourceDerived:    true,
	SourceInferred:   true,
}

// ValidateSource returns a ValidationError if the source is not recognized.
func ValidateSource(s Source) error {
	if !validSources[s] {
		return Invalid("source", fmt.Sprintf("%q must be one of: user_stated, derived, inferred", s))
	}
	return nil
}

// --- Severity enum ---

// Severity ranks how serious a conflict is. Severities are ordered.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of the severity (0 for unknown values).
func (s Severity) Rank() int { return severityRank[s] }

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank() && s.Rank() > 0
}

// ValidateSeverity returns a ValidationError if the severity is not recognized.
func ValidateSeverity(s Severity) error {
	if _, ok := severityRank[s]; !ok {
		return Invalid("severity", fmt.Sprintf("%q must be one of: low, medium, high, critical", s))
	}
	return nil
}

// --- Conflict type enum ---

// ConflictType names the rule family that detected a conflict.
type ConflictType string

const (
	ConflictTechnology    ConflictType = "technology"
	ConflictRequirement   ConflictType = "requirement"
	ConflictTimeline      ConflictType = "timeline"
	ConflictResource      ConflictType = "resource"
	ConflictCompatibility ConflictType = "compatibility"
)

var validConflictTypes = map[ConflictType]bool{
	ConflictTechnology:    true,
	ConflictRequirement:   true,
	ConflictTimeline:      true,
	ConflictResource:      true,
	ConflictCompatibility: true,
}

// ValidateConflictType returns a ValidationError if t is not recognized.
func ValidateConflictType(t ConflictType) error {
	if !validConflictTypes[t] {
		return Invalid("type", fmt.Sprintf("%q must be one of: technology, requirement, timeline, resource, compatibility", t))
	}
	return nil
}

// --- Conflict status enum ---

// ConflictStatus tracks a conflict through its lifecycle.
type ConflictStatus string

const (
	StatusOpen       ConflictStatus = "open"
	StatusResolved   ConflictStatus = "resolved"
	StatusOverridden ConflictStatus = "overridden"
)

// ParseConflictStatus validates a status filter. Empty input returns
// ("", nil), meaning "no filter".
func ParseConflictStatus(s string) (ConflictStatus, error) {
	switch st := ConflictStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return "", nil
	case StatusOpen, StatusResolved, StatusOverridden:
		return st, nil
	default:
		return "", Invalid("status", fmt.Sprintf("%q must be one of: open, resolved, overridden", s))
	}
}

// --- Resolution decision enum ---

// Decision is the user's choice when resolving a conflict.
type Decision string

const (
	DecisionKeepOld    Decision = "keep_old"
	DecisionUseNew     Decision = "use_new"
	DecisionManualEdit Decision = "manual_edit"
	DecisionBothValid  Decision = "both_valid"
)

// ParseDecision accepts both snake_case and kebab-case spellings
// ("use-new" and "use_new").
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch d {
	case DecisionKeepOld, DecisionUseNew, DecisionManualEdit, DecisionBothValid:
		return d, nil
	default:
		return "", Invalid("decision", fmt.Sprintf("%q must be one of: keep_old, use_new, manual_edit, both_valid", s))
	}
}

// --- Phase enum ---

// Phase is a project lifecycle phase.
type Phase string

const (
	PhaseDiscovery      Phase = "discovery"
	PhaseAnalysis       Phase = "analysis"
	PhaseDesign         Phase = "design"
	PhaseImplementation Phase = "implementation"
)

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(strings.ToLower(strings.TrimSpace(s))); p {
	case PhaseDiscovery, PhaseAnalysis, PhaseDesign, PhaseImplementation:
		return p, nil
	default:
		return "", Invalid("phase", fmt.Sprintf("%q must be one of: discovery, analysis, design, implementation", s))
	}
}
