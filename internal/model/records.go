package model

import (
	"fmt"
	"sort"
	"strings"
)

// Specification is one captured statement. Specifications are never
// edited in place: a change creates a new version in the same lineage.
type Specification struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	LineageID    string   `json:"lineage_id"`
	Category     Category `json:"category"`
	Content      string   `json:"content"`
	Source       Source   `json:"source"`
	Confidence   float64  `json:"confidence"`
	Version      int      `json:"version"`
	IsCurrent    bool     `json:"is_current"`
	SupersededBy *string  `json:"superseded_by,omitempty"`
	DeletedAt    *string  `json:"deleted_at,omitempty"`
	Unanalyzed   bool     `json:"unanalyzed"`
	CreatedAt    string   `json:"created_at"`
}

// Active reports whether the spec participates in scoring and scanning:
// it must be the current version of its lineage and not deleted.
func (s Specification) Active() bool {
	return s.IsCurrent && s.DeletedAt == nil
}

// Ref returns the version-pinned reference used by conflicts.
func (s Specification) Ref() SpecRef {
	return SpecRef{SpecID: s.ID, LineageID: s.LineageID, Version: s.Version}
}

// SpecRef pins a conflict participant to the version that was current
// when the conflict was detected.
type SpecRef struct {
	SpecID    string `json:"spec_id"`
	LineageID string `json:"lineage_id"`
	Version   int    `json:"version"`
}

// String renders the ref as lineage@version.
func (r SpecRef) String() string {
	return fmt.Sprintf("%s@%d", r.LineageID, r.Version)
}

// Resolution is the user's recorded answer to a conflict.
type Resolution struct {
	Decision  Decision `json:"decision"`
	Rationale string   `json:"rationale,omitempty"`
	// Override records the conflict as overridden (accepted as-is) rather
	// than resolved. Overridden conflicts stop blocking the gate but stay
	// visible for audit.
	Override bool `json:"override,omitempty"`
}

// Conflict is a detected incompatibility between two or more specifications.
type Conflict struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	Type       ConflictType   `json:"type"`
	Severity   Severity       `json:"severity"`
	Involved   []SpecRef      `json:"involved"`
	Status     ConflictStatus `json:"status"`
	Reason     string         `json:"reason"`
	Resolution *Resolution    `json:"resolution,omitempty"`
	DedupeKey  string         `json:"dedupe_key"`
	CreatedAt  string         `json:"created_at"`
	ResolvedAt *string        `json:"resolved_at,omitempty"`
}

// Blocking reports whether the conflict blocks forward phase transitions.
func (c Conflict) Blocking() bool {
	return c.Status == StatusOpen && c.Severity.AtLeast(SeverityHigh)
}

// InvolvedSpecIDs returns the spec ids in the conflict, in stored order.
func (c Conflict) InvolvedSpecIDs() []string {
	ids := make([]string, 0, len(c.Involved))
	for _, r := range c.Involved {
		ids = append(ids, r.SpecID)
	}
	return ids
}

// DedupeKey builds the identity of a conflict from its type and the
// set of pinned participants. Order of refs does not matter.
func DedupeKey(t ConflictType, refs []SpecRef) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.String())
	}
	sort.Strings(parts)
	return string(t) + ":" + strings.Join(parts, ",")
}

// CategoryMaturity is the completeness of one category for one project.
type CategoryMaturity struct {
	Category        Category `json:"category"`
	SpecCount       int      `json:"spec_count"`
	Completeness    float64  `json:"completeness_percent"`
	RequiredMinimum float64  `json:"required_minimum"`
	Satisfied       bool     `json:"satisfied"`
	MissingTopics   []string `json:"missing_topics,omitempty"`
}

// Project is the unit every specification, conflict and maturity row
// belongs to.
type Project struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Phase         Phase   `json:"phase"`
	MaturityScore float64 `json:"maturity_score"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// ActivityKind classifies an entry in the project's activity history.
type ActivityKind string

const (
	ActivityQuestion       ActivityKind = "question"
	ActivityRecommendation ActivityKind = "recommendation"
	ActivityAnswer         ActivityKind = "answer"
	ActivityTestChange     ActivityKind = "test_change"
	ActivityCodeChange     ActivityKind = "code_change"
	ActivityFeatureAdded   ActivityKind = "feature_added"
	ActivityPhaseChange    ActivityKind = "phase_change"
)

var validActivityKinds = map[ActivityKind]bool{
	ActivityQuestion:       true,
	ActivityRecommendation: true,
	ActivityAnswer:         true,
	ActivityTestChange:     true,
	ActivityCodeChange:     true,
	ActivityFeatureAdded:   true,
	ActivityPhaseChange:    true,
}

// ValidateActivityKind returns a ValidationError for unknown kinds.
func ValidateActivityKind(k ActivityKind) error {
	if !validActivityKinds[k] {
		return Invalid("kind", fmt.Sprintf("%q must be one of: question, recommendation, answer, test_change, code_change, feature_added, phase_change", k))
	}
	return nil
}

// Activity is one event in the conversation/activity history that the
// bad-pattern checks read. Category and Target are optional tags.
type Activity struct {
	ID        int64        `json:"id"`
	ProjectID string       `json:"project_id"`
	Kind      ActivityKind `json:"kind"`
	Category  Category     `json:"category,omitempty"`
	Target    string       `json:"target,omitempty"`
	Content   string       `json:"content"`
	CreatedAt string       `json:"created_at"`
}
