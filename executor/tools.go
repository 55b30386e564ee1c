package executor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caffeineduck/runit/sandbox"
)

// Tools installs the embedded loader and runner scripts on disk so that
// interpreters, local or containerized, can execute them.
type Tools struct {
	dir string

	mu        sync.Mutex
	installed map[string][2]string
}

// NewTools creates an installer rooted at dir.
func NewTools(dir string) *Tools {
	return &Tools{
		dir:       dir,
		installed: make(map[string][2]string),
	}
}

// DefaultToolsDir returns $XDG_CACHE_HOME/runit/tools, falling back to the
// home directory and then the temp directory.
func DefaultToolsDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "runit", "tools")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "runit", "tools")
	}
	return filepath.Join(os.TempDir(), "runit-tools")
}

// Dir returns the installation root.
func (t *Tools) Dir() string { return t.dir }

// Install writes the scripts of lang under Dir()/<language> and returns
// their paths. Scripts already on disk with identical content are kept.
func (t *Tools) Install(lang Language) (loader, runner string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if paths, ok := t.installed[lang.Name()]; ok {
		return paths[0], paths[1], nil
	}

	dir := filepath.Join(t.dir, lang.Name())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create tools dir: %w", err)
	}

	loader, err = writeScript(dir, lang.Loader())
	if err != nil {
		return "", "", err
	}
	runner, err = writeScript(dir, lang.Runner())
	if err != nil {
		return "", "", err
	}

	t.installed[lang.Name()] = [2]string{loader, runner}
	return loader, runner, nil
}

// Toolchain resolves the interpreter for lang and installs its scripts.
// The interpreter is taken from RUNIT_RUNTIME_<LANGUAGE>, then runtime,
// then the language default.
func (t *Tools) Toolchain(lang Language, runtime string) (sandbox.Toolchain, error) {
	loader, runner, err := t.Install(lang)
	if err != nil {
		return sandbox.Toolchain{}, err
	}
	return sandbox.Toolchain{
		Interpreter: Interpreter(lang, runtime),
		Loader:      loader,
		Runner:      runner,
	}, nil
}

// Interpreter returns the interpreter command for lang.
func Interpreter(lang Language, runtime string) string {
	if v := strings.TrimSpace(os.Getenv(RuntimeEnv(lang))); v != "" {
		return v
	}
	if runtime = strings.TrimSpace(runtime); runtime != "" {
		return runtime
	}
	return lang.Interpreter()
}

// RuntimeEnv returns the environment variable overriding the interpreter
// of lang, e.g. RUNIT_RUNTIME_PYTHON.
func RuntimeEnv(lang Language) string {
	name := strings.ToUpper(lang.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	return "RUNIT_RUNTIME_" + name
}

func writeScript(dir string, s Script) (string, error) {
	path := filepath.Join(dir, s.Name)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, s.Source) {
		return path, nil
	}

	tmp, err := os.CreateTemp(dir, "."+s.Name+".*")
	if err != nil {
		return "", fmt.Errorf("install %s: %w", s.Name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(s.Source); err != nil {
		tmp.Close()
		return "", fmt.Errorf("install %s: %w", s.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("install %s: %w", s.Name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("install %s: %w", s.Name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install %s: %w", s.Name, err)
	}
	return path, nil
}
