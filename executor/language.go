package executor

import (
	"context"

	"github.com/caffeineduck/runit/function"
)

// Script is a loader or runner script shipped with a language.
type Script struct {
	// Name is the file name the script is installed under.
	Name string

	// Source is the script body.
	Source []byte
}

// Language binds the loader and runner contracts to one source language.
// Implement this interface to add support for new languages.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "python",
	// "javascript"). It is also the value of the project "language" field.
	Name() string

	// Extensions returns the file extensions handled by this language,
	// including the leading dot.
	Extensions() []string

	// Interpreter returns the default interpreter command. It may carry
	// flags separated by spaces, e.g. "python3 -u".
	Interpreter() string

	// Loader prints the functions exported by a module:
	//
	//	interpreter loader module
	Loader() Script

	// Runner executes one function from a module and prints its result:
	//
	//	interpreter runner module function [json-args]
	Runner() Script
}

// InProcess is implemented by languages that can discover and call
// functions without spawning an interpreter. Implementations wrap
// ErrInProcessUnsupported when a module cannot be handled in process, in
// which case the loader and runner contracts are used instead.
type InProcess interface {
	Discover(ctx context.Context, module string) (function.Table, error)
	Invoke(ctx context.Context, module, name string, args []string) (string, error)
}
