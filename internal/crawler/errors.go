package crawler

import (
	"errors"
	"fmt"
)

// Budget validation errors.
var (
	errBudgetActions        = errors.New("stop budget: max actions must be > 0")
	errBudgetWallClock      = errors.New("stop budget: max wall clock must be > 0")
	errBudgetWindow         = errors.New("stop budget: plateau window must be > 0")
	errBudgetWindowTooLarge = errors.New("stop budget: plateau window must be smaller than max actions")
	errBudgetThreshold      = errors.New("stop budget: plateau threshold must be >= 0")
)

// ErrFatalPrecondition marks failures that abort a run before its first step
// (no seeds, no admissible seed). Everything past that point degrades and
// continues instead.
var ErrFatalPrecondition = errors.New("fatal precondition")

// FetchErrorKind classifies fetch collaborator failures.
type FetchErrorKind string

// Fetch failure classes.
const (
	FetchTimeout FetchErrorKind = "timeout"
	FetchNetwork FetchErrorKind = "network"
	FetchBlocked FetchErrorKind = "blocked"
)

// FetchError wraps a failed fetch attempt with its classification.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ReflectErrorKind classifies reflect collaborator failures.
type ReflectErrorKind string

// Reflect failure classes.
const (
	ReflectMalformedOutput    ReflectErrorKind = "malformed_output"
	ReflectServiceUnavailable ReflectErrorKind = "service_unavailable"
)

// ReflectError wraps a failed reflect call with its classification.
type ReflectError struct {
	Kind ReflectErrorKind
	Err  error
}

func (e *ReflectError) Error() string {
	return fmt.Sprintf("reflect (%s): %v", e.Kind, e.Err)
}

func (e *ReflectError) Unwrap() error {
	return e.Err
}
