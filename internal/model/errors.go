package model

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports bad input: unknown enum values, missing fields,
// out-of-range numbers. Nothing is persisted when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid is shorthand for a ValidationError on field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InvalidCategoryError is the ValidationError for a category outside the
// closed enumeration.
type InvalidCategoryError struct {
	Value string
}

func (e *InvalidCategoryError) Error() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return fmt.Sprintf("validation: category: %q must be one of: %s", e.Value, strings.Join(names, ", "))
}

// As lets errors.As(err, **ValidationError) match an invalid category.
func (e *InvalidCategoryError) As(target any) bool {
	if v, ok := target.(**ValidationError); ok {
		*v = &ValidationError{Field: "category", Message: fmt.Sprintf("%q is not a known category", e.Value)}
		return true
	}
	return false
}

// NotFoundError reports an unknown project, specification, or conflict id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NotFound is shorthand for a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidStateError reports an operation on a record in the wrong state:
// resolving a conflict that is not open, superseding a version that is
// no longer current.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Message
}

// InvalidState is shorthand for an InvalidStateError.
func InvalidState(format string, args ...any) error {
	return &InvalidStateError{Message: fmt.Sprintf(format, args...)}
}

// BlockerKind classifies why a phase transition was denied.
type BlockerKind string

const (
	BlockerCategory      BlockerKind = "category"
	BlockerConflict      BlockerKind = "conflict"
	BlockerCompatibility BlockerKind = "compatibility"
	BlockerPhaseOrder    BlockerKind = "phase_order"
)

// Blocker is one unmet guard, phrased so a front end can show it as a
// next step.
type Blocker struct {
	Kind       BlockerKind `json:"kind"`
	Category   Category    `json:"category,omitempty"`
	ConflictID string      `json:"conflict_id,omitempty"`
	Reason     string      `json:"reason"`
}

// GateBlockedError is the structured denial of a phase transition. It is
// an expected outcome, not an internal failure; use IsGateBlocked to tell
// the two apart.
type GateBlockedError struct {
	From     Phase
	Target   Phase
	Blockers []Blocker
}

func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("cannot advance from %s to %s: %d blocker(s)", e.From, e.Target, len(e.Blockers))
}

// IsGateBlocked reports whether err is (or wraps) a GateBlockedError.
func IsGateBlocked(err error) bool {
	var g *GateBlockedError
	return errors.As(err, &g)
}

// ExternalServiceTimeout reports that an optional external helper did not
// answer in time. Callers log it and degrade; it never reaches end users.
type ExternalServiceTimeout struct {
	Service string
	Err     error
}

func (e *ExternalServiceTimeout) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Service, e.Err)
}

func (e *ExternalServiceTimeout) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError,
// including InvalidCategoryError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsInvalidState reports whether err is (or wraps) an InvalidStateError.
func IsInvalidState(err error) bool {
	var s *InvalidStateError
	return errors.As(err, &s)
}
