package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed or inconsistent input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrRoundingTolerance marks a derived quantity that could not be
	// represented within the allowed rounding error.
	ErrRoundingTolerance = errors.New("rounding tolerance exceeded")
	// ErrAmbiguity marks an under-constrained lookup. Never retried.
	ErrAmbiguity = errors.New("ambiguous match")
	// ErrConflict marks a materialization collision with existing content.
	ErrConflict = errors.New("conflict")
	// ErrRepositoryUnavailable marks an infrastructure failure talking to
	// the terminology repository. Callers may retry the whole request.
	ErrRepositoryUnavailable = errors.New("terminology repository unavailable")
)

// ValidationError reports input that is rejected before any repository call.
type ValidationError struct {
	Reason     string
	Branch     string
	TypeID     string
	ConceptIDs []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason + describe(e.Branch, e.TypeID, e.ConceptIDs)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError formats a ValidationError without location details.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// RoundingToleranceError is the validation error raised when snapping a
// derived total would move it by more than the allowed relative error.
type RoundingToleranceError struct {
	Concentration string
	Quantity      string
	Exact         string
	Rounded       string
}

func (e *RoundingToleranceError) Error() string {
	return fmt.Sprintf(
		"rounding tolerance exceeded: %s x %s = %s cannot be rounded to %s",
		e.Concentration, e.Quantity, e.Exact, e.Rounded,
	)
}

func (e *RoundingToleranceError) Unwrap() []error {
	return []error{ErrValidation, ErrRoundingTolerance}
}

// AmbiguityKind distinguishes why a lookup could not settle on one concept.
type AmbiguityKind string

const (
	NoMatch            AmbiguityKind = "no match"
	MultipleMatches    AmbiguityKind = "multiple matches"
	AmbiguousSelection AmbiguityKind = "ambiguous selection"
	TooManyMatches     AmbiguityKind = "too many matches"
)

// AmbiguityError reports a lookup that matched zero, several or too many
// concepts.
type AmbiguityError struct {
	Kind       AmbiguityKind
	Branch     string
	Query      string
	ConceptIDs []string
	Total      int
	Limit      int
}

func (e *AmbiguityError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Kind == TooManyMatches {
		fmt.Fprintf(&b, " (%d > %d)", e.Total, e.Limit)
	}
	if e.Query != "" {
		b.WriteString(" for query ")
		b.WriteString(e.Query)
	}
	b.WriteString(describe(e.Branch, "", e.ConceptIDs))
	return b.String()
}

func (e *AmbiguityError) Unwrap() error { return ErrAmbiguity }

// ConflictError reports a materialization that collides with existing
// repository content. Concepts created before the conflict are kept.
type ConflictError struct {
	Reason     string
	Branch     string
	ConceptIDs []string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason + describe(e.Branch, "", e.ConceptIDs)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// RepositoryError wraps a transport or server failure of a repository call.
type RepositoryError struct {
	Op         string
	Branch     string
	StatusCode int
	Err        error
}

func (e *RepositoryError) Error() string {
	msg := fmt.Sprintf("repository %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + describe(e.Branch, "", nil)
}

func (e *RepositoryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRepositoryUnavailable}
	}
	return []error{ErrRepositoryUnavailable, e.Err}
}

func describe(branch, typeID string, ids []string) string {
	parts := make([]string, 0, 3)
	if branch != "" {
		parts = append(parts, "branch="+branch)
	}
	if typeID != "" {
		parts = append(parts, "type="+typeID)
	}
	if len(ids) > 0 {
		parts = append(parts, "concepts="+strings.Join(ids, ","))
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " ") + "]"
}
