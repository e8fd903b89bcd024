package snapshot

import (
	"errors"
	"fmt"
)

// ErrCorruptSnapshot is returned when a snapshot cannot be loaded back into
// a model: a file is unparsable, the manifest is missing, a file's recorded
// ID disagrees with its path, or a relation references an identifier with no
// corresponding file.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

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
