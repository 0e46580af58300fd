package resolver

import (
	"errors"
	"fmt"
)

// ErrNotPresent reports that a local source does not hold a name. It is the
// only local failure that lets resolution fall through to the ambient resolver.
var ErrNotPresent = errors.New("artifact not present")

// ErrNotFound matches NotFoundError via errors.Is.
var ErrNotFound = errors.New("artifact not found")

// NotFoundError means no resolver in a chain knows the name.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %q", e.Name)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidArtifactError means a source holds a definition for Name that could
// not be loaded.
type InvalidArtifactError struct {
	Name     string
	Location string
	Err      error
}

func (e InvalidArtifactError) Error() string {
	return fmt.Sprintf("invalid artifact %q in %s: %v", e.Name, e.Location, e.Err)
}

func (e InvalidArtifactError) Unwrap() error {
	return e.Err
}

// InvalidNameError means a source cannot map a name to any of its
// locations. Such a name is absent from that source, so the error matches
// ErrNotPresent and resolution falls through to later sources and the host.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e InvalidNameError) Error() string {
	return fmt.Sprintf("invalid artifact name %q: %s", e.Name, e.Reason)
}

func (e InvalidNameError) Unwrap() error {
	return ErrNotPresent
}

// TypeMismatchError means ResolveAs could not convert an artifact value.
type TypeMismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("artifact type mismatch for %q: expected=%s actual=%s",
		e.Name, e.Expected, e.Actual)
}

// IsNotPresent reports whether err signals local absence.
func IsNotPresent(err error) bool {
	return errors.Is(err, ErrNotPresent)
}
