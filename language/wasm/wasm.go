// Package wasm provides the WebAssembly language for runit.
//
// Modules are compiled and called in process with wazero. Exported
// functions take and return numbers; arguments are parsed according to
// the parameter types and results are printed in decimal. Modules that
// import anything beyond WASI are handed to the Node.js loader and runner
// scripts instead.
package wasm

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/function"
	"github.com/caffeineduck/runit/sandbox"
	"github.com/hashicorp/go-hclog"
	jsoniter "github.com/json-iterator/go"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

//go:embed loader.js
var loader []byte

//go:embed runner.js
var runner []byte

// WASM implements executor.Language and executor.InProcess.
type WASM struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	timeout time.Duration
	log     hclog.Logger

	mu       sync.Mutex
	compiled map[string]*compiledModule
	closed   bool
}

// compiledModule is one compilation of a file. refs counts the calls
// holding it; a stale module is closed once refs drops to zero.
type compiledModule struct {
	mtime  time.Time
	module wazero.CompiledModule
	refs   int
	stale  bool
	closed bool
}

// New creates a WebAssembly language with its own wazero runtime.
func New(opts ...Option) (*WASM, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	if cfg.cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create compilation cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &WASM{
		runtime:  rt,
		cache:    cache,
		timeout:  cfg.timeout,
		log:      cfg.logger,
		compiled: make(map[string]*compiledModule),
	}, nil
}

// Name returns "wasm".
func (w *WASM) Name() string { return "wasm" }

// Extensions returns ".wasm".
func (w *WASM) Extensions() []string { return []string{".wasm"} }

// Interpreter returns "node", used when a module cannot run in process.
func (w *WASM) Interpreter() string { return "node" }

// Loader returns the Node.js loader used as a fallback.
func (w *WASM) Loader() executor.Script {
	return executor.Script{Name: "loader.js", Source: loader}
}

// Runner returns the Node.js runner used as a fallback.
func (w *WASM) Runner() executor.Script {
	return executor.Script{Name: "runner.js", Source: runner}
}

// Discover lists the exported functions of module. Parameter names come
// from the name section when present, otherwise p0, p1, ...
func (w *WASM) Discover(ctx context.Context, module string) (function.Table, error) {
	c, err := w.compile(ctx, module)
	if err != nil {
		return nil, err
	}
	defer w.release(c)

	table := function.Table{}
	for name, def := range c.module.ExportedFunctions() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		table[name] = function.Descriptor{Name: name, Params: paramNames(def)}
	}
	return table, nil
}

// Invoke instantiates module and calls name with args parsed by parameter
// type. Anything the module writes to stdout precedes the result.
func (w *WASM) Invoke(ctx context.Context, module, name string, args []string) (string, error) {
	c, err := w.compile(ctx, module)
	if err != nil {
		return "", err
	}
	defer w.release(c)

	def, ok := c.module.ExportedFunctions()[name]
	if !ok || strings.HasPrefix(name, "_") {
		return "", fmt.Errorf("function %s not exported", name)
	}
	params, err := encodeParams(def, args)
	if err != nil {
		return "", err
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	config := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithName("").
		WithStartFunctions("_initialize")

	mod, err := w.runtime.InstantiateModule(ctx, c.module, config)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: instantiate %s: %v", executor.ErrInProcessUnsupported, module, err)
	}
	defer mod.Close(context.Background())

	start := time.Now()
	results, err := mod.ExportedFunction(name).Call(ctx, params...)
	w.log.Trace("wasm call finished", "function", name, "duration", time.Since(start), "error", err)
	if err != nil {
		return "", callError(ctx, err, &stdout, &stderr)
	}

	out := strings.TrimSpace(stdout.String())
	result, err := decodeResults(def, results)
	if err != nil {
		return "", err
	}
	if out != "" && result != "" {
		return out + "\n" + result, nil
	}
	return out + result, nil
}

// Close releases the runtime and every compiled module.
func (w *WASM) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	ctx := context.Background()

	var errs []error
	if err := w.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if w.cache != nil {
		if err := w.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	w.compiled = nil

	return errors.Join(errs...)
}

// compile returns the compiled module for path, recompiling when the file
// changed. The caller must release it. Load failures wrap
// executor.ErrInProcessUnsupported.
func (w *WASM) compile(ctx context.Context, path string) (*compiledModule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", executor.ErrInProcessUnsupported, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("%w: runtime closed", executor.ErrInProcessUnsupported)
	}
	old, ok := w.compiled[path]
	if ok && old.mtime.Equal(info.ModTime()) {
		old.refs++
		return old, nil
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", executor.ErrInProcessUnsupported, err)
	}
	compiled, err := w.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %v", executor.ErrInProcessUnsupported, path, err)
	}
	if err := checkImports(compiled); err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("%w: %s: %v", executor.ErrInProcessUnsupported, path, err)
	}

	if old != nil {
		old.stale = true
		w.closeIdle(ctx, old)
	}
	c := &compiledModule{mtime: info.ModTime(), module: compiled, refs: 1}
	w.compiled[path] = c
	w.log.Debug("compiled wasm module", "path", path)
	return c, nil
}

// release drops a reference taken by compile.
func (w *WASM) release(c *compiledModule) {
	w.mu.Lock()
	defer w.mu.Unlock()

	c.refs--
	if !w.closed {
		w.closeIdle(context.Background(), c)
	}
}

// closeIdle closes a replaced module nobody holds. Callers hold w.mu.
func (w *WASM) closeIdle(ctx context.Context, c *compiledModule) {
	if !c.stale || c.refs > 0 || c.closed {
		return
	}
	c.closed = true
	if err := c.module.Close(ctx); err != nil {
		w.log.Warn("close replaced wasm module", "error", err)
	}
}

// checkImports rejects modules needing host functions other than WASI.
func checkImports(compiled wazero.CompiledModule) error {
	for _, def := range compiled.ImportedFunctions() {
		if mod, name, _ := def.Import(); mod != wasi_snapshot_preview1.ModuleName {
			return fmt.Errorf("imports %s.%s", mod, name)
		}
	}
	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		mod, name, _ := mems[0].Import()
		return fmt.Errorf("imports memory %s.%s", mod, name)
	}
	return nil
}

func paramNames(def api.FunctionDefinition) []string {
	types := def.ParamTypes()
	names := def.ParamNames()
	params := make([]string, len(types))
	for i := range types {
		if i < len(names) && names[i] != "" {
			params[i] = names[i]
		} else {
			params[i] = "p" + strconv.Itoa(i)
		}
	}
	return params
}

func encodeParams(def api.FunctionDefinition, args []string) ([]uint64, error) {
	types := def.ParamTypes()
	if len(args) != len(types) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", def.Name(), len(types), len(args))
	}

	params := make([]uint64, len(args))
	for i, arg := range args {
		arg = strings.TrimSpace(arg)
		var err error
		switch types[i] {
		case api.ValueTypeI32:
			var v int64
			v, err = strconv.ParseInt(arg, 10, 32)
			params[i] = api.EncodeI32(int32(v))
		case api.ValueTypeI64:
			var v int64
			v, err = strconv.ParseInt(arg, 10, 64)
			params[i] = api.EncodeI64(v)
		case api.ValueTypeF32:
			var v float64
			v, err = strconv.ParseFloat(arg, 32)
			params[i] = api.EncodeF32(float32(v))
		case api.ValueTypeF64:
			var v float64
			v, err = strconv.ParseFloat(arg, 64)
			params[i] = api.EncodeF64(v)
		default:
			err = fmt.Errorf("unsupported type %s", api.ValueTypeName(types[i]))
		}
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, def.Name(), err)
		}
	}
	return params, nil
}

func decodeResults(def api.FunctionDefinition, results []uint64) (string, error) {
	types := def.ResultTypes()
	values := make([]any, len(results))
	for i, r := range results {
		switch types[i] {
		case api.ValueTypeI32:
			values[i] = api.DecodeI32(r)
		case api.ValueTypeI64:
			values[i] = int64(r)
		case api.ValueTypeF32:
			values[i] = api.DecodeF32(r)
		case api.ValueTypeF64:
			values[i] = api.DecodeF64(r)
		default:
			return "", fmt.Errorf("unsupported result type %s", api.ValueTypeName(types[i]))
		}
	}

	switch len(values) {
	case 0:
		return "", nil
	case 1:
		return fmt.Sprint(values[0]), nil
	default:
		return jsoniter.MarshalToString(values)
	}
}

func callError(ctx context.Context, err error, stdout, stderr *bytes.Buffer) error {
	if ctxErr := contextError(ctx); ctxErr != nil {
		return ctxErr
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return &sandbox.ExitError{
			Code:   int(exitErr.ExitCode()),
			Stderr: strings.TrimSpace(stderr.String()),
			Stdout: strings.TrimSpace(stdout.String()),
		}
	}
	return err
}

func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return sandbox.ErrTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return nil
}
