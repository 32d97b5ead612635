package core

import (
	"errors"
	"fmt"
	"strings"
)

// Resolution error taxonomy. Every failure produced by the engine wraps one of
// these sentinels, so callers can classify failures with errors.Is.
var (
	// ErrInvalidReference is returned for malformed references (e.g. an empty path).
	ErrInvalidReference = errors.New("invalid reference")
	// ErrPathNotFound is returned when a path is absent from the mapping or layout.
	ErrPathNotFound = errors.New("path not found")
	// ErrAmbiguousProperty is returned when a concept has several properties,
	// none designated as default, and none was requested.
	ErrAmbiguousProperty = errors.New("ambiguous property")
	// ErrInvalidSelfReference is returned when self is used without an active object.
	ErrInvalidSelfReference = errors.New("invalid self reference")
	// ErrUnknownResult is returned when a result name is absent from the recipe.
	ErrUnknownResult = errors.New("unknown result")
	// ErrCyclicResultReference is returned when result resolution re-enters
	// a result that is already being evaluated.
	ErrCyclicResultReference = errors.New("cyclic result reference")
	// ErrCyclicConceptReference is returned when a concept definition
	// (directly or indirectly) refers to itself.
	ErrCyclicConceptReference = errors.New("cyclic concept reference")
	// ErrShapeMismatch is returned when arrays that must align do not.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// ResolutionError records which reference failed to resolve and why.
type ResolutionError struct {
	Ref Reference
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// DriverError wraps a failure of the data cube while fetching a layer.
type DriverError struct {
	Locator *LayerLocator
	Err     error
}

func (e *DriverError) Error() string {
	source := ""
	if e.Locator != nil {
		source = e.Locator.Source
	}
	return fmt.Sprintf("data cube fetch of %q failed: %v", source, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// VerbError wraps a failure of the verb engine. Step is the zero-based
// position of the verb in its chain.
type VerbError struct {
	Verb string
	Step int
	Err  error
}

func (e *VerbError) Error() string {
	return fmt.Sprintf("verb %q (step %d) failed: %v", e.Verb, e.Step, e.Err)
}

func (e *VerbError) Unwrap() error {
	return e.Err
}

// pathNotFound builds an ErrPathNotFound error for the given index and path.
func pathNotFound(index string, path []string, detail string) error {
	msg := fmt.Sprintf("%s has no entry %q", index, strings.Join(path, "/"))
	if detail != "" {
		msg += ": " + detail
	}
	return fmt.Errorf("%w: %s", ErrPathNotFound, msg)
}

// PathNotFound returns an ErrPathNotFound error describing a failed index lookup.
// Index implementations use it so that lookup failures read consistently.
func PathNotFound(index string, path []string) error {
	return pathNotFound(index, path, "")
}
