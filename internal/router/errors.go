package router

import (
	"errors"
	"fmt"
)

// UnrecognizedCommandError is returned for a slash command the router does not know.
type UnrecognizedCommandError struct{ Command string }

func (e *UnrecognizedCommandError) Error() string {
	return fmt.Sprintf("unrecognized command %q", e.Command)
}

func IsUnrecognizedCommand(err error) bool {
	var t *UnrecognizedCommandError
	return errors.As(err, &t)
}

// MissingArgumentError is returned when a command lacks its required argument.
type MissingArgumentError struct {
	Command  string
	Argument string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Command, e.Argument)
}

func IsMissingArgument(err error) bool {
	var t *MissingArgumentError
	return errors.As(err, &t)
}

// FeatureDisabledError is returned when a request needs a component that is
// switched off in configuration.
type FeatureDisabledError struct{ Feature string }

func (e *FeatureDisabledError) Error() string { return e.Feature + " is disabled" }

func IsFeatureDisabled(err error) bool {
	var t *FeatureDisabledError
	return errors.As(err, &t)
}
