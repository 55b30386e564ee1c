package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caffeineduck/runit/cache"
	"github.com/caffeineduck/runit/function"
	"github.com/caffeineduck/runit/sandbox"
	"github.com/hashicorp/go-hclog"
)

// Dispatcher is the callable surface of a project: a single Module or a
// Multi spanning a directory.
type Dispatcher interface {
	// Functions returns a copy of the discovered function table.
	Functions() function.Table

	// Invoke calls name with positional args and returns its raw output.
	Invoke(ctx context.Context, name string, args ...string) (string, error)

	// Err reports why discovery came up short, if it did.
	Err() error
}

// Module is the callable surface of one source file.
type Module struct {
	path    string
	lang    Language
	tc      sandbox.Toolchain
	backend sandbox.Backend
	cache   *cache.Cache
	log     hclog.Logger

	mu    sync.RWMutex
	table function.Table
	err   error
}

// NewModule resolves filename to an absolute path and discovers its
// functions. A discovery failure is not returned: the module is usable with
// an empty table and Err reports the cause.
func NewModule(ctx context.Context, filename string, lang Language, opts ...Option) (*Module, error) {
	m, err := newModule(filename, lang, newConfig(opts))
	if err != nil {
		return nil, err
	}
	m.Discover(ctx)
	return m, nil
}

func newModule(filename string, lang Language, cfg config) (*Module, error) {
	path, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", filename, err)
	}

	tc, err := cfg.tools.Toolchain(lang, cfg.runtime)
	if err != nil {
		return nil, fmt.Errorf("%s toolchain: %w", lang.Name(), err)
	}

	return &Module{
		path:    path,
		lang:    lang,
		tc:      tc,
		backend: cfg.backend,
		cache:   cfg.cache,
		log:     cfg.logger.With("module", filepath.Base(path), "language", lang.Name()),
		table:   function.Table{},
	}, nil
}

// Path returns the absolute module path.
func (m *Module) Path() string { return m.path }

// Language returns the module's language.
func (m *Module) Language() Language { return m.lang }

// Toolchain returns the interpreter and scripts used for this module.
func (m *Module) Toolchain() sandbox.Toolchain { return m.tc }

// Err returns the error of the last discovery, if any.
func (m *Module) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Functions returns a copy of the function table.
func (m *Module) Functions() function.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Clone()
}

// Discover refreshes the function table. A cached table is used while the
// file is unchanged and the cache TTL has not elapsed. Loader failures are
// cached as an empty table; backend failures are not cached.
func (m *Module) Discover(ctx context.Context) (function.Table, error) {
	table, err := m.discover(ctx)
	if err != nil {
		m.log.Warn("discovery failed", "error", err)
		table = function.Table{}
	}

	m.mu.Lock()
	m.table = table
	m.err = err
	m.mu.Unlock()

	return table.Clone(), err
}

func (m *Module) discover(ctx context.Context) (function.Table, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	mtime := info.ModTime()

	if table, ok := m.cache.Lookup(m.path, mtime); ok {
		m.log.Trace("discovery cache hit", "functions", len(table))
		return table, nil
	}

	start := time.Now()
	table, err := m.load(ctx)
	if err != nil {
		if !isInfrastructure(err) && !errors.Is(err, sandbox.ErrTimeout) {
			m.cache.Put(m.path, mtime, function.Table{})
		}
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}

	m.cache.Put(m.path, mtime, table)
	m.log.Debug("discovered functions", "functions", table.Names(), "duration", time.Since(start))
	return table, nil
}

func (m *Module) load(ctx context.Context) (function.Table, error) {
	if ip, ok := m.lang.(InProcess); ok {
		table, err := ip.Discover(ctx, m.path)
		if err == nil {
			return table, nil
		}
		if !errors.Is(err, ErrInProcessUnsupported) {
			return nil, err
		}
		m.log.Debug("in-process discovery unavailable, using loader", "error", err)
	}

	out, err := m.backend.RunLoader(ctx, m.tc, m.path)
	if err != nil {
		return nil, err
	}
	return function.Parse(out)
}

// Invoke calls a discovered function. Arguments are passed positionally in
// the order given. A function that declares parameters requires at least
// one argument; otherwise the arguments are passed as supplied.
func (m *Module) Invoke(ctx context.Context, name string, args ...string) (string, error) {
	m.mu.RLock()
	fn, ok := m.table.Get(name)
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	if fn.RequiresArgs() && len(args) == 0 {
		return "", &ArgumentError{Function: fn.Name, Params: fn.Params}
	}

	start := time.Now()
	out, err := m.call(ctx, name, args)
	m.log.Debug("invoked function", "function", name, "args", len(args), "duration", time.Since(start), "error", err)
	return out, err
}

func (m *Module) call(ctx context.Context, name string, args []string) (string, error) {
	if ip, ok := m.lang.(InProcess); ok {
		out, err := ip.Invoke(ctx, m.path, name, args)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrInProcessUnsupported) {
			return "", invocationError(err)
		}
	}

	out, err := m.backend.RunRunner(ctx, m.tc, m.path, name, args...)
	if err != nil {
		return "", invocationError(err)
	}
	return out, nil
}

// invocationError wraps function-level failures in ErrInvocationFailed.
// Backend and cancellation errors pass through untouched.
func invocationError(err error) error {
	if isInfrastructure(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvocationFailed, err)
}

func isInfrastructure(err error) bool {
	return errors.Is(err, sandbox.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
