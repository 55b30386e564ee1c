package executor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDiscoveryFailed is recorded when the loader could not enumerate a
	// module's functions. The module keeps an empty function table.
	ErrDiscoveryFailed = errors.New("discovery failed")

	// ErrFunctionNotFound is returned when invoking a name that was not
	// discovered.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrArgumentMismatch is returned when a function declares parameters
	// but was invoked without arguments.
	ErrArgumentMismatch = errors.New("argument mismatch")

	// ErrInvocationFailed is returned when the runner exits non-zero or
	// times out.
	ErrInvocationFailed = errors.New("invocation failed")

	// ErrUnknownLanguage is returned when no registered language handles a
	// project language or file extension.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrInProcessUnsupported tells the caller to fall back to the loader
	// and runner contracts.
	ErrInProcessUnsupported = errors.New("in-process execution unsupported")
)

// ArgumentError names the parameters a function expects.
type ArgumentError struct {
	Function string
	Params   []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s() expects arguments: %s", e.Function, strings.Join(e.Params, ", "))
}

// Is reports ErrArgumentMismatch.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrArgumentMismatch
}
