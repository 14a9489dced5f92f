// Package rules loads the engine's rule tables: category adequacy
// checklists, the technology catalog, contradiction concepts, and bias
// patterns.
//
// Tables are data, not code. Defaults are embedded in the binary; a rules
// directory can override any table file. Every table is validated against
// a fixed schema at load time so malformed rule data fails fast instead
// of silently misclassifying specifications.
package rules

import (
	"regexp"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

// Table file names inside a rules directory.
const (
	AdequacyFile       = "adequacy.yaml"
	TechnologyFile     = "technology.yaml"
	ContradictionsFile = "contradictions.yaml"
	BiasFile           = "bias.yaml"
)

// Tables is the full, validated rule set. A Tables value is immutable
// after Load returns; reloading produces a new value.
type Tables struct {
	Adequacy       Adequacy       `yaml:"adequacy" json:"adequacy"`
	Technology     Technology     `yaml:"technology" json:"technology"`
	Contradictions Contradictions `yaml:"contradictions" json:"contradictions"`
	Bias           Bias           `yaml:"bias" json:"bias"`
}

// --- Adequacy ---

// Adequacy holds one checklist per category.
type Adequacy struct {
	ConfidenceFloor float64                         `yaml:"confidence_floor" json:"confidence_floor" validate:"gte=0,lte=1"`
	Categories      map[model.Category]CategoryRule `yaml:"categories" json:"categories" validate:"required,dive"`
}

// CategoryRule describes how a single category is scored.
type CategoryRule struct {
	CountCap    int        `yaml:"count_cap" json:"count_cap" validate:"gte=1"`
	CountWeight float64    `yaml:"count_weight" json:"count_weight" validate:"gte=0,lte=100"`
	Subtopics   []Subtopic `yaml:"subtopics" json:"subtopics,omitempty" validate:"dive"`
}

// Subtopic is one expected aspect of a category.
type Subtopic struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Keywords []string `yaml:"keywords" json:"keywords" validate:"required,min=1,dive,required"`
}

// --- Technology ---

// Technology is the catalog of known technologies plus the pairwise
// incompatibility and version-compatibility tables.
type Technology struct {
	ConcurrencyThreshold int                  `yaml:"concurrency_threshold" json:"concurrency_threshold" validate:"gte=1"`
	Technologies         []Tech               `yaml:"technologies" json:"technologies" validate:"required,min=1,dive"`
	Incompatibilities    []Incompatibility    `yaml:"incompatibilities" json:"incompatibilities" validate:"dive"`
	Compatibility        []VersionRequirement `yaml:"compatibility" json:"compatibility" validate:"dive"`

	byName map[string]*Tech
}

// Tech is one catalog entry.
type Tech struct {
	Name         string   `yaml:"name" json:"name" validate:"required"`
	Aliases      []string `yaml:"aliases" json:"aliases" validate:"required,min=1,dive,required"`
	Skill        string   `yaml:"skill" json:"skill" validate:"required"`
	Kind         string   `yaml:"kind" json:"kind" validate:"required,oneof=datastore language framework library platform"`
	SingleWriter bool     `yaml:"single_writer" json:"single_writer,omitempty"`

	patterns []*regexp.Regexp
}

// Incompatibility flags two technologies that should not be combined.
type Incompatibility struct {
	A        string         `yaml:"a" json:"a" validate:"required"`
	B        string         `yaml:"b" json:"b" validate:"required,nefield=A"`
	Severity model.Severity `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
	Reason   string         `yaml:"reason" json:"reason" validate:"required"`
}

// VersionRequirement says Technology needs Requires at MinVersion or later.
type VersionRequirement struct {
	Technology string         `yaml:"technology" json:"technology" validate:"required"`
	Requires   string         `yaml:"requires" json:"requires" validate:"required,nefield=Technology"`
	MinVersion string         `yaml:"min_version" json:"min_version" validate:"required"`
	Severity   model.Severity `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
}

// Lookup returns the catalog entry for name, or nil.
func (t *Technology) Lookup(name string) *Tech {
	return t.byName[name]
}

// Patterns returns the compiled alias matchers. Each pattern captures an
// optional version in group 1.
func (t *Tech) Patterns() []*regexp.Regexp {
	return t.patterns
}

// --- Contradictions ---

// Contradictions configures the requirement conflict family.
type Contradictions struct {
	Categories          []model.Category `yaml:"categories" json:"categories" validate:"required,min=1"`
	ClassifierThreshold float64          `yaml:"classifier_threshold" json:"classifier_threshold" validate:"gt=0,lte=1"`
	Concepts            []Concept        `yaml:"concepts" json:"concepts" validate:"dive"`
}

// Concept is a pair of opposing phrase lists.
type Concept struct {
	Name     string         `yaml:"name" json:"name" validate:"required"`
	Severity model.Severity `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
	A        []string       `yaml:"a" json:"a" validate:"required,min=1,dive,required"`
	B        []string       `yaml:"b" json:"b" validate:"required,min=1,dive,required"`
}

// AppliesTo reports whether specs of category c take part in the
// requirement family.
func (c *Contradictions) AppliesTo(cat model.Category) bool {
	for _, x := range c.Categories {
		if x == cat {
			return true
		}
	}
	return false
}

// --- Bias ---

// Bias holds the question/recommendation lint patterns.
type Bias struct {
	Patterns []BiasPattern `yaml:"patterns" json:"patterns" validate:"required,min=1,dive"`
}

// BiasPattern is one weighted regular expression.
type BiasPattern struct {
	Kind    string  `yaml:"kind" json:"kind" validate:"required,oneof=solution_bias technology_first leading_question"`
	Pattern string  `yaml:"pattern" json:"pattern" validate:"required"`
	Weight  float64 `yaml:"weight" json:"weight" validate:"gt=0,lte=1"`

	re *regexp.Regexp
}

// Regexp returns the compiled pattern.
func (p *BiasPattern) Regexp() *regexp.Regexp {
	return p.re
}
