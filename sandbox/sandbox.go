// Package sandbox runs the loader and runner contracts of a language, either
// as a local child process or inside a throwaway container.
//
// Both backends present the same textual contract: standard output is the
// result, standard error plus a non-zero exit status is the error. A [Pool]
// bounds how many invocations run at once regardless of backend.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrTimeout is returned when an invocation outlives its deadline.
	ErrTimeout = errors.New("invocation timed out")

	// ErrUnavailable marks infrastructure failures: the interpreter or the
	// container engine could not be started, or no worker slot was free.
	ErrUnavailable = errors.New("execution backend unavailable")
)

// ExitError is returned when the interpreter exits with a non-zero status.
// Its message is the process's standard error, verbatim.
type ExitError struct {
	Code   int
	Stderr string
	Stdout string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	if e.Stdout != "" {
		return e.Stdout
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Toolchain is the interpreter plus the loader and runner scripts of one
// language. Interpreter may carry extra flags separated by spaces; it is
// split into discrete arguments and never passed through a shell.
type Toolchain struct {
	Interpreter string
	Loader      string
	Runner      string
}

// Backend executes the loader and runner contracts.
type Backend interface {
	// RunLoader prints the functions exported by module.
	RunLoader(ctx context.Context, tc Toolchain, module string) (string, error)

	// RunRunner executes function from module with positional args.
	RunRunner(ctx context.Context, tc Toolchain, module, function string, args ...string) (string, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// Option configures a backend.
type Option func(*config)

type config struct {
	timeout      time.Duration
	env          []string
	logger       hclog.Logger
	dockerBinary string
	network      string
	mounts       []string
	breakerTrips uint32
	breakerCool  time.Duration
	queueTimeout time.Duration
}

func defaultConfig() config {
	return config{
		timeout:      30 * time.Second,
		logger:       hclog.NewNullLogger(),
		dockerBinary: "docker",
		network:      "none",
		breakerTrips: 5,
		breakerCool:  30 * time.Second,
	}
}

// WithTimeout bounds every invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithEnv adds KEY=VALUE pairs to the invocation environment.
func WithEnv(env ...string) Option {
	return func(c *config) {
		c.env = append(c.env, env...)
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

// WithDockerBinary overrides the container engine CLI (default "docker").
func WithDockerBinary(bin string) Option {
	return func(c *config) {
		if bin != "" {
			c.dockerBinary = bin
		}
	}
}

// WithNetwork sets the container network mode (default "none").
func WithNetwork(network string) Option {
	return func(c *config) {
		c.network = network
	}
}

// WithMount bind-mounts an extra host directory read-only into containers.
func WithMount(dir string) Option {
	return func(c *config) {
		c.mounts = append(c.mounts, dir)
	}
}

// WithBreaker sets how many consecutive engine failures open the circuit
// and how long it stays open.
func WithBreaker(trips uint32, cooldown time.Duration) Option {
	return func(c *config) {
		c.breakerTrips = trips
		c.breakerCool = cooldown
	}
}

// WithQueueTimeout bounds how long a Pool caller waits for a free worker.
func WithQueueTimeout(d time.Duration) Option {
	return func(c *config) {
		c.queueTimeout = d
	}
}

func loaderArgs(tc Toolchain, module string) []string {
	argv := strings.Fields(tc.Interpreter)
	return append(argv, tc.Loader, module)
}

func runnerArgs(tc Toolchain, module, function string, args []string) ([]string, error) {
	argv := strings.Fields(tc.Interpreter)
	argv = append(argv, tc.Runner, module, function)
	if len(args) == 0 {
		return argv, nil
	}
	blob, err := EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	return append(argv, blob), nil
}

// EncodeArgs serializes positional arguments into the single blob the
// runner contract accepts: a JSON array of strings.
func EncodeArgs(args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	blob, err := jsoniter.MarshalToString(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}
	return blob, nil
}
