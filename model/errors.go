package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is returned when adding an object whose ID is already
// present in the graph.
var ErrDuplicateID = errors.New("duplicate object ID")

// ErrUnknownObject is returned when an operation references an ID with no
// corresponding object in the graph.
var ErrUnknownObject = errors.New("unknown object")

// ErrInvalidObject is returned when an object is structurally unusable
// (nil, or missing its identifier).
var ErrInvalidObject = errors.New("invalid object")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while
// preserving the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
