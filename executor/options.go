package executor

import (
	"runtime"
	"sync"

	"github.com/caffeineduck/runit/cache"
	"github.com/caffeineduck/runit/sandbox"
	"github.com/hashicorp/go-hclog"
)

// Option configures a Module or a Multi.
type Option func(*config)

type config struct {
	cache       *cache.Cache
	backend     sandbox.Backend
	tools       *Tools
	logger      hclog.Logger
	runtime     string
	parallelism int
}

var (
	sharedCache   = sync.OnceValue(func() *cache.Cache { return cache.New() })
	sharedTools   = sync.OnceValue(func() *Tools { return NewTools(DefaultToolsDir()) })
	sharedBackend = sync.OnceValue(func() sandbox.Backend {
		return sandbox.NewPool(sandbox.NewLocal(), DefaultWorkers())
	})
)

// DefaultWorkers is the default size of the invocation pool.
func DefaultWorkers() int {
	return 2 * runtime.GOMAXPROCS(0)
}

func defaultConfig() config {
	return config{
		logger:      hclog.NewNullLogger(),
		parallelism: runtime.GOMAXPROCS(0),
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cache == nil {
		cfg.cache = sharedCache()
	}
	if cfg.tools == nil {
		cfg.tools = sharedTools()
	}
	if cfg.backend == nil {
		cfg.backend = sharedBackend()
	}
	return cfg
}

// WithCache sets the function metadata cache. Adapters without one share a
// process-wide cache.
func WithCache(c *cache.Cache) Option {
	return func(cfg *config) {
		cfg.cache = c
	}
}

// WithBackend sets the isolation backend used for loader and runner calls.
// The default is a pool of local processes.
func WithBackend(b sandbox.Backend) Option {
	return func(cfg *config) {
		cfg.backend = b
	}
}

// WithTools sets where loader and runner scripts are installed.
func WithTools(t *Tools) Option {
	return func(cfg *config) {
		cfg.tools = t
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRuntime overrides the interpreter of a single-language project.
// RUNIT_RUNTIME_<LANGUAGE> still takes precedence.
func WithRuntime(interpreter string) Option {
	return func(cfg *config) {
		cfg.runtime = interpreter
	}
}

// WithParallelism bounds how many files a Multi discovers at once.
func WithParallelism(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.parallelism = n
		}
	}
}
