// Package javascript provides the JavaScript (Node.js, CommonJS) language
// for runit.
package javascript

import (
	_ "embed"

	"github.com/caffeineduck/runit/executor"
)

//go:embed loader.js
var loader []byte

//go:embed runner.js
var runner []byte

// JavaScript implements the executor.Language interface for CommonJS
// modules run by Node.js.
type JavaScript struct{}

// New returns a JavaScript language.
func New() *JavaScript {
	return &JavaScript{}
}

// Name returns "javascript".
func (j *JavaScript) Name() string {
	return "javascript"
}

// Extensions returns ".js" and ".cjs".
func (j *JavaScript) Extensions() []string {
	return []string{".js", ".cjs"}
}

// Interpreter returns "node".
func (j *JavaScript) Interpreter() string {
	return "node"
}

// Loader returns the script printing the functions in module.exports.
func (j *JavaScript) Loader() executor.Script {
	return executor.Script{Name: "loader.js", Source: loader}
}

// Runner returns the script calling one exported function. Returned
// promises are awaited.
func (j *JavaScript) Runner() executor.Script {
	return executor.Script{Name: "runner.js", Source: runner}
}
