package dokkuApi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAppNotFound is the sentinel error for missing Dokku applications.
var ErrAppNotFound = errors.New("app not found")

// NotFoundError indicates the target Dokku application/resource does not exist.
type NotFoundError struct {
	Command string
	Err     error
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	if e.Command != "" {
		return fmt.Sprintf("%s: not found: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("not found: %v", e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsNotFoundError returns true when err is (or wraps) a NotFoundError.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return errors.Is(err, ErrAppNotFound)
}

// CommandFailure is a Dokku command that ran and exited non-zero.
type CommandFailure struct {
	Command  string
	ExitCode int
	// Stderr holds the last lines written to stderr.
	Stderr string
}

func (e *CommandFailure) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// AsCommandFailure unwraps err into a CommandFailure when it carries one.
func AsCommandFailure(err error) (*CommandFailure, bool) {
	var failure *CommandFailure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

// TransientRemoteError marks a failure to reach the Dokku host at all. Jobs
// failing with it are redelivered instead of being failed.
type TransientRemoteError struct {
	Command string
	Err     error
}

func (e *TransientRemoteError) Error() string {
	return fmt.Sprintf("transient failure running %s: %v", e.Command, e.Err)
}

func (e *TransientRemoteError) Unwrap() error { return e.Err }

// Temporary lets the job engine retry without importing this package.
func (e *TransientRemoteError) Temporary() bool { return true }

func IsTransientError(err error) bool {
	var transient *TransientRemoteError
	return errors.As(err, &transient)
}

// Dokku reports missing apps and services as "App <name> does not exist".
func isNotFoundOutput(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "does not exist")
}
