package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a configuration file or value cannot
// be used (unparseable YAML, contradictory proxy rules, etc.).
var ErrInvalidConfig = errors.New("invalid configuration")

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
