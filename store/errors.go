// Package store provides sentinel errors for versioned-store operations.
// All errors can be checked using errors.Is() for programmatic handling.
package store

import (
	"errors"
	"fmt"
)

// Common sentinel errors that can be checked with errors.Is().
// These wrap underlying go-git errors while providing a stable API for consumers.

// ErrInvalidOptions is returned when store options or operation arguments
// are missing or malformed.
var ErrInvalidOptions = errors.New("invalid options")

// ErrRepository is returned when the versioned-store backend fails
// internally (unreadable object database, broken references, etc.).
var ErrRepository = errors.New("repository error")

// ErrEmptyCommit is returned when a commit is requested but nothing is
// staged and empty commits were not explicitly allowed.
var ErrEmptyCommit = errors.New("nothing to commit")

// ErrAuthRequired is returned when an operation requires authentication
// but no credentials were provided or available.
var ErrAuthRequired = errors.New("authentication required")

// ErrAuthFailed is returned when authentication was attempted but failed
// (invalid credentials, expired tokens, etc.).
var ErrAuthFailed = errors.New("authentication failed")

// ErrNetwork is returned when a remote operation fails at the transport
// level (unreachable host, broken connection, protocol failure).
var ErrNetwork = errors.New("network failure")

// ErrNotFastForward is returned when a push cannot be performed as a
// fast-forward and would overwrite remote history.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrNoRemote is returned when an operation needs a configured remote and
// the repository has none.
var ErrNoRemote = errors.New("no remote configured")

// ErrUncommittedChanges is returned when an operation requires a clean
// working copy but uncommitted changes are present. Resetting over such
// changes would destroy work, so the caller must commit or discard first.
var ErrUncommittedChanges = errors.New("uncommitted changes in working copy")

// ErrUnbornHead is returned when the repository has no commits yet and an
// operation needs one.
var ErrUnbornHead = errors.New("repository has no commits")

// ErrResolveFailed is returned when a revision specification cannot be
// resolved to a valid commit hash.
var ErrResolveFailed = errors.New("cannot resolve revision")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
