// Package langtest runs language scripts against real interpreters in
// tests. Tests are skipped when the interpreter is not installed.
package langtest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/runit/cache"
	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/sandbox"
)

// RequireInterpreter skips the test unless the interpreter of lang is on
// PATH, and returns its command.
func RequireInterpreter(t testing.TB, lang executor.Language) string {
	t.Helper()
	interpreter := executor.Interpreter(lang, "")
	fields := strings.Fields(interpreter)
	if len(fields) == 0 {
		t.Skipf("no %s interpreter configured", lang.Name())
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		t.Skipf("%s not installed", fields[0])
	}
	return interpreter
}

// Module writes source to a temp file named filename and opens it with a
// local backend and private cache.
func Module(t testing.TB, lang executor.Language, filename, source string) *executor.Module {
	t.Helper()
	RequireInterpreter(t, lang)

	dir := t.TempDir()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := executor.NewModule(ctx, path, lang,
		executor.WithBackend(sandbox.NewLocal(sandbox.WithTimeout(20*time.Second))),
		executor.WithCache(cache.New()),
		executor.WithTools(executor.NewTools(t.TempDir())),
	)
	if err != nil {
		t.Fatalf("open module: %v", err)
	}
	return m
}

// Invoke calls name on m with a bounded context.
func Invoke(t testing.TB, m *executor.Module, name string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return m.Invoke(ctx, name, args...)
}
