package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Local runs the interpreter as a child process of the runtime.
type Local struct {
	timeout time.Duration
	env     []string
	log     hclog.Logger
}

// NewLocal creates a local process backend.
func NewLocal(opts ...Option) *Local {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Local{
		timeout: cfg.timeout,
		env:     cfg.env,
		log:     cfg.logger,
	}
}

// Name returns "local".
func (l *Local) Name() string { return "local" }

// RunLoader runs `interpreter loader module`.
func (l *Local) RunLoader(ctx context.Context, tc Toolchain, module string) (string, error) {
	return l.run(ctx, filepath.Dir(module), loaderArgs(tc, module))
}

// RunRunner runs `interpreter runner module function [args]`.
func (l *Local) RunRunner(ctx context.Context, tc Toolchain, module, function string, args ...string) (string, error) {
	argv, err := runnerArgs(tc, module, function, args)
	if err != nil {
		return "", err
	}
	return l.run(ctx, filepath.Dir(module), argv)
}

func (l *Local) run(ctx context.Context, dir string, argv []string) (string, error) {
	if len(argv) == 0 || argv[0] == "" {
		return "", fmt.Errorf("%w: no interpreter configured", ErrUnavailable)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), l.env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	l.log.Trace("process finished", "argv", argv, "duration", time.Since(start), "error", err)

	return collect(ctx, err, l.timeout, &stdout, &stderr)
}

// collect maps the outcome of a finished command onto the backend contract.
func collect(ctx context.Context, err error, timeout time.Duration, stdout, stderr *bytes.Buffer) (string, error) {
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return "", ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", &ExitError{
			Code:   exitErr.ExitCode(),
			Stderr: strings.TrimSpace(stderr.String()),
			Stdout: strings.TrimSpace(stdout.String()),
		}
	}

	return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
}
