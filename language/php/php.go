// Package php provides the PHP language for runit.
package php

import (
	_ "embed"

	"github.com/caffeineduck/runit/executor"
)

//go:embed loader.php
var loader []byte

//go:embed runner.php
var runner []byte

// PHP implements the executor.Language interface for PHP files.
type PHP struct{}

// New returns a PHP language.
func New() *PHP {
	return &PHP{}
}

func (p *PHP) Name() string         { return "php" }
func (p *PHP) Extensions() []string { return []string{".php"} }
func (p *PHP) Interpreter() string  { return "php" }

func (p *PHP) Loader() executor.Script {
	return executor.Script{Name: "loader.php", Source: loader}
}

func (p *PHP) Runner() executor.Script {
	return executor.Script{Name: "runner.php", Source: runner}
}
