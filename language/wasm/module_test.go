package wasm_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/caffeineduck/runit/cache"
	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/internal/langtest"
	"github.com/caffeineduck/runit/language/wasm"
	"github.com/caffeineduck/runit/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackend struct {
	sandbox.Backend
	loads, runs atomic.Int32
}

func (b *countingBackend) RunLoader(ctx context.Context, tc sandbox.Toolchain, module string) (string, error) {
	b.loads.Add(1)
	return b.Backend.RunLoader(ctx, tc, module)
}

func (b *countingBackend) RunRunner(ctx context.Context, tc sandbox.Toolchain, module, fn string, args ...string) (string, error) {
	b.runs.Add(1)
	return b.Backend.RunRunner(ctx, tc, module, fn, args...)
}

func open(t *testing.T, lang *wasm.WASM, backend sandbox.Backend, name string, code []byte) *executor.Module {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, code, 0o644))

	m, err := executor.NewModule(context.Background(), path, lang,
		executor.WithBackend(backend),
		executor.WithCache(cache.New()),
		executor.WithTools(executor.NewTools(t.TempDir())),
	)
	require.NoError(t, err)
	return m
}

func TestModuleInProcess(t *testing.T) {
	lang, err := wasm.New()
	require.NoError(t, err)
	defer lang.Close()

	backend := &countingBackend{Backend: sandbox.NewLocal()}
	m := open(t, lang, backend, "arith.wasm", arithModule)
	require.NoError(t, m.Err())

	out, err := m.Invoke(context.Background(), "add", "40", "2")
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	_, err = m.Invoke(context.Background(), "add")
	assert.ErrorIs(t, err, executor.ErrArgumentMismatch)

	assert.Zero(t, backend.loads.Load())
	assert.Zero(t, backend.runs.Load())
}

func TestModuleFallsBackToNode(t *testing.T) {
	lang, err := wasm.New()
	require.NoError(t, err)
	defer lang.Close()
	langtest.RequireInterpreter(t, lang)

	backend := &countingBackend{Backend: sandbox.NewLocal()}
	m := open(t, lang, backend, "hosted.wasm", hostedModule)
	require.NoError(t, m.Err())
	assert.Equal(t, []string{"p0"}, m.Functions()["twice"].Params)

	out, err := m.Invoke(context.Background(), "twice", "21")
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	assert.Equal(t, int32(1), backend.loads.Load())
	assert.Equal(t, int32(1), backend.runs.Load())
}

var arithModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0b, 0x02, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x03, 0x02, 0x00, 0x01,
	0x07, 0x10, 0x02, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00, 0x06, 0x61, 0x6e, 0x73, 0x77, 0x65, 0x72, 0x00, 0x01,
	0x0a, 0x0e, 0x02, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b, 0x04, 0x00, 0x41, 0x2a, 0x0b,
}

var hostedModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0a, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x02, 0x0b, 0x01, 0x03, 0x65, 0x6e, 0x76, 0x03, 0x6c, 0x6f, 0x67, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x01,
	0x07, 0x09, 0x01, 0x05, 0x74, 0x77, 0x69, 0x63, 0x65, 0x00, 0x01,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x41, 0x02, 0x6c, 0x0b,
}
