// Package bench measures where invocation time goes: discovery with and
// without the cache, one interpreter process per call, in-process WASM and
// the HTTP layer on top.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/caffeineduck/runit/cache"
	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/language/python"
	"github.com/caffeineduck/runit/language/wasm"
	"github.com/caffeineduck/runit/project"
	"github.com/caffeineduck/runit/sandbox"
	"github.com/caffeineduck/runit/server"
)

const pythonSource = `
def add(a, b):
    return int(a) + int(b)

def index():
    return {"status": "ok"}
`

// arith exports add(i32, i32) -> i32 and answer() -> i32.
var arith = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0b, 0x02, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x03, 0x02, 0x00, 0x01,
	0x07, 0x10, 0x02, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00, 0x06, 0x61, 0x6e, 0x73, 0x77, 0x65, 0x72, 0x00, 0x01,
	0x0a, 0x0e, 0x02, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b, 0x04, 0x00, 0x41, 0x2a, 0x0b,
}

func requirePython(tb testing.TB) {
	tb.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		tb.Skip("python3 not installed")
	}
}

func writeFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatal(err)
	}
	return path
}

func options(tb testing.TB, c *cache.Cache) []executor.Option {
	return []executor.Option{
		executor.WithCache(c),
		executor.WithTools(executor.NewTools(tb.TempDir())),
		executor.WithBackend(sandbox.NewLocal()),
	}
}

// --- Discovery ---

func BenchmarkDiscovery_Cold(b *testing.B) {
	requirePython(b)
	path := writeFile(b, "app.py", []byte(pythonSource))
	lang := python.New()
	tools := executor.NewTools(b.TempDir())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := executor.NewModule(context.Background(), path, lang,
			executor.WithCache(cache.New()), executor.WithTools(tools), executor.WithBackend(sandbox.NewLocal()))
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDiscovery_Warm(b *testing.B) {
	requirePython(b)
	path := writeFile(b, "app.py", []byte(pythonSource))
	lang := python.New()
	opts := options(b, cache.New())

	// First discovery fills the cache.
	if _, err := executor.NewModule(context.Background(), path, lang, opts...); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		executor.NewModule(context.Background(), path, lang, opts...)
	}
}

// --- Invocation ---

func BenchmarkInvoke_Python(b *testing.B) {
	requirePython(b)
	path := writeFile(b, "app.py", []byte(pythonSource))
	m, err := executor.NewModule(context.Background(), path, python.New(), options(b, cache.New())...)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Invoke(context.Background(), "add", "1", "2"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkInvoke_WASM(b *testing.B) {
	path := writeFile(b, "arith.wasm", arith)
	w, err := wasm.New()
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	m, err := executor.NewModule(context.Background(), path, w, options(b, cache.New())...)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Invoke(context.Background(), "add", "1", "2"); err != nil {
			b.Fatal(err)
		}
	}
}

// --- HTTP layer ---

// echoBackend answers without starting a process, isolating server cost.
type echoBackend struct{}

func (echoBackend) Name() string { return "echo" }

func (echoBackend) RunLoader(context.Context, sandbox.Toolchain, string) (string, error) {
	return `{"index": []}`, nil
}

func (echoBackend) RunRunner(context.Context, sandbox.Toolchain, string, string, ...string) (string, error) {
	return `{'status': 'ok'}`, nil
}

func BenchmarkServer_Overhead(b *testing.B) {
	dir := b.TempDir()
	if _, err := project.Init(dir, "bench", "python"); err != nil {
		b.Fatal(err)
	}

	cfg := server.DefaultConfig()
	cfg.Dir = dir
	srv, err := server.New(cfg, executor.NewRegistry(python.New()),
		server.WithBackend(echoBackend{}),
		server.WithTools(executor.NewTools(b.TempDir())),
	)
	if err != nil {
		b.Fatal(err)
	}
	defer srv.Close()
	handler := srv.Handler()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			b.Fatalf("status %d", rec.Code)
		}
	}
}

// =============================================================================
// COMPARISON
// =============================================================================

func TestComparison(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping comparison in short mode")
	}

	type result struct {
		name string
		cold time.Duration
		warm time.Duration
	}
	var results []result

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}
	runs := 3
	ctx := context.Background()

	if _, err := exec.LookPath("python3"); err == nil {
		path := writeFile(t, "app.py", []byte(pythonSource))
		opts := options(t, cache.New())
		lang := python.New()

		var m *executor.Module
		cold := measure(1, func() { m, _ = executor.NewModule(ctx, path, lang, opts...) })
		warm := measure(runs, func() { executor.NewModule(ctx, path, lang, opts...) })
		if m == nil {
			t.Fatal("python module did not open")
		}
		results = append(results, result{"python discovery", cold, warm})

		invoke := measure(runs, func() { m.Invoke(ctx, "add", "1", "2") })
		results = append(results, result{"python invoke", invoke, invoke})
	}

	w, err := wasm.New()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	path := writeFile(t, "arith.wasm", arith)
	opts := options(t, cache.New())

	var m *executor.Module
	cold := measure(1, func() { m, _ = executor.NewModule(ctx, path, w, opts...) })
	warm := measure(runs, func() { executor.NewModule(ctx, path, w, opts...) })
	if m == nil {
		t.Fatal("wasm module did not open")
	}
	results = append(results, result{"wasm discovery", cold, warm})

	first := measure(1, func() { m.Invoke(ctx, "add", "1", "2") })
	invoke := measure(runs, func() { m.Invoke(ctx, "add", "1", "2") })
	results = append(results, result{"wasm invoke", first, invoke})

	fmt.Println("┌────────────────────────┬───────────┬───────────┐")
	fmt.Println("│ Step                   │ Cold      │ Warm      │")
	fmt.Println("├────────────────────────┼───────────┼───────────┤")
	for _, r := range results {
		fmt.Printf("│ %-22s │ %9s │ %9s │\n", r.name, formatDuration(r.cold), formatDuration(r.warm))
	}
	fmt.Println("└────────────────────────┴───────────┴───────────┘")
	fmt.Println()

	t.Log("Comparison complete - see stdout for results")
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
}
