package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/caffeineduck/runit/function"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// Collision records a function name exported by more than one file.
type Collision struct {
	Name    string `json:"name"`
	Kept    string `json:"kept"`
	Dropped string `json:"dropped"`
}

// Multi presents every supported file of a directory as one namespace.
//
// Files are merged in lexical order. When two files export the same name,
// the later file wins and the collision is logged and kept in Collisions.
type Multi struct {
	dir         string
	modules     []*Module
	parallelism int
	log         hclog.Logger

	mu         sync.RWMutex
	owners     map[string]*Module
	table      function.Table
	collisions []Collision
}

// NewMulti lists the files of dir handled by registry and discovers their
// functions. Files that fail discovery contribute no functions.
func NewMulti(ctx context.Context, dir string, registry *Registry, opts ...Option) (*Multi, error) {
	cfg := newConfig(opts)
	// A project runtime names a single interpreter; each file here uses its
	// own language default or environment override.
	cfg.runtime = ""

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	m := &Multi{
		dir:         abs,
		parallelism: cfg.parallelism,
		log:         cfg.logger.Named("multi"),
		owners:      make(map[string]*Module),
		table:       function.Table{},
	}

	// os.ReadDir sorts by file name.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		lang, ok := registry.ForFile(entry.Name())
		if !ok {
			continue
		}
		mod, err := newModule(filepath.Join(abs, entry.Name()), lang, cfg)
		if err != nil {
			return nil, err
		}
		m.modules = append(m.modules, mod)
	}

	m.Discover(ctx)
	return m, nil
}

// Dir returns the absolute project directory.
func (m *Multi) Dir() string { return m.dir }

// Modules returns the per-file adapters in merge order.
func (m *Multi) Modules() []*Module { return m.modules }

// Discover discovers every file in parallel and rebuilds the merged table.
func (m *Multi) Discover(ctx context.Context) function.Table {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for _, mod := range m.modules {
		g.Go(func() error {
			if _, err := mod.Discover(gctx); err != nil {
				m.log.Warn("skipping file", "file", filepath.Base(mod.Path()), "error", err)
			}
			return nil
		})
	}
	g.Wait()

	owners := make(map[string]*Module)
	table := function.Table{}
	var collisions []Collision

	for _, mod := range m.modules {
		tc := mod.Toolchain()
		fns := mod.Functions().WithOrigin(mod.Path(), tc.Interpreter, tc.Loader, tc.Runner)
		for _, name := range fns.Names() {
			if prev, ok := owners[name]; ok {
				c := Collision{Name: name, Kept: mod.Path(), Dropped: prev.Path()}
				collisions = append(collisions, c)
				m.log.Warn("function defined in several files, last one wins",
					"function", name, "kept", filepath.Base(c.Kept), "dropped", filepath.Base(c.Dropped))
			}
			owners[name] = mod
			table[name] = fns[name]
		}
	}

	m.mu.Lock()
	m.owners = owners
	m.table = table
	m.collisions = collisions
	m.mu.Unlock()

	return table.Clone()
}

// Functions returns a copy of the merged table.
func (m *Multi) Functions() function.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Clone()
}

// Err joins the discovery errors of the files that contributed nothing.
func (m *Multi) Err() error {
	var errs []error
	for _, mod := range m.modules {
		if err := mod.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collisions returns the name collisions found by the last discovery.
func (m *Multi) Collisions() []Collision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Collision(nil), m.collisions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs name in the file that owns it.
func (m *Multi) Invoke(ctx context.Context, name string, args ...string) (string, error) {
	m.mu.RLock()
	owner, ok := m.owners[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return owner.Invoke(ctx, name, args...)
}
