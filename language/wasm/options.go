package wasm

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option configures a WASM language.
type Option func(*config)

type config struct {
	timeout          time.Duration
	memoryLimitPages uint32
	cacheDir         string
	logger           hclog.Logger
}

func defaultConfig() config {
	return config{
		timeout: 30 * time.Second,
		logger:  hclog.NewNullLogger(),
	}
}

// WithTimeout bounds every in-process call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMemoryLimit sets the maximum memory available to modules, in 64KB
// pages. Zero keeps the wazero default (4GB).
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithCompilationCache persists compiled modules in dir across restarts.
func WithCompilationCache(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
