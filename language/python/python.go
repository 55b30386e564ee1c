// Package python provides the Python language for runit.
package python

import (
	_ "embed"

	"github.com/caffeineduck/runit/executor"
)

//go:embed loader.py
var loader []byte

//go:embed runner.py
var runner []byte

// Python implements the executor.Language interface for Python modules.
type Python struct{}

// New returns a Python language.
func New() *Python {
	return &Python{}
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Extensions returns ".py".
func (p *Python) Extensions() []string {
	return []string{".py"}
}

// Interpreter returns "python3".
func (p *Python) Interpreter() string {
	return "python3"
}

// Loader returns the script printing a module's functions and parameters.
func (p *Python) Loader() executor.Script {
	return executor.Script{Name: "loader.py", Source: loader}
}

// Runner returns the script calling one function. Coroutine functions are
// run to completion.
func (p *Python) Runner() executor.Script {
	return executor.Script{Name: "runner.py", Source: runner}
}
