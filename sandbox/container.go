package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/sony/gobreaker"
)

// exitEngineFailure is the status docker run uses for its own failures,
// as opposed to the status of the contained command.
const exitEngineFailure = 125

// Container runs each invocation in a fresh container of the project's
// image. The module directory and the script directories are bind-mounted
// read-only at the same paths, so the argv is identical to the local one.
// The container is removed when the call completes or is cancelled.
type Container struct {
	image   string
	docker  string
	network string
	mounts  []string
	env     []string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	log     hclog.Logger
}

// NewContainer creates a container backend for image (typically the
// project id).
func NewContainer(image string, opts ...Option) *Container {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Container{
		image:   image,
		docker:  cfg.dockerBinary,
		network: cfg.network,
		mounts:  cfg.mounts,
		env:     cfg.env,
		timeout: cfg.timeout,
		log:     cfg.logger,
	}

	trips := cfg.breakerTrips
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "container:" + image,
		Timeout: cfg.breakerCool,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return trips > 0 && counts.ConsecutiveFailures >= trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("container engine circuit changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

// Name returns "container".
func (c *Container) Name() string { return "container" }

// RunLoader runs the loader inside a container.
func (c *Container) RunLoader(ctx context.Context, tc Toolchain, module string) (string, error) {
	return c.run(ctx, tc, module, loaderArgs(tc, module))
}

// RunRunner runs the runner inside a container.
func (c *Container) RunRunner(ctx context.Context, tc Toolchain, module, function string, args ...string) (string, error) {
	argv, err := runnerArgs(tc, module, function, args)
	if err != nil {
		return "", err
	}
	return c.run(ctx, tc, module, argv)
}

func (c *Container) run(ctx context.Context, tc Toolchain, module string, argv []string) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.exec(ctx, tc, module, argv)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Container) exec(ctx context.Context, tc Toolchain, module string, argv []string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	name := "runit-" + uuid.NewString()
	dockerArgs := c.dockerArgs(name, tc, module, argv)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.docker, dockerArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		c.remove(name)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitEngineFailure && ctx.Err() == nil {
		c.log.Error("container engine failed", "image", c.image, "stderr", stderr.String())
		return "", fmt.Errorf("%w: %s", ErrUnavailable, bytes.TrimSpace(stderr.Bytes()))
	}

	return collect(ctx, err, c.timeout, &stdout, &stderr)
}

// dockerArgs builds `docker run` arguments for one invocation.
func (c *Container) dockerArgs(name string, tc Toolchain, module string, argv []string) []string {
	workdir := filepath.Dir(module)
	args := []string{"run", "--rm", "-i", "--name", name, "--workdir", workdir}
	if c.network != "" {
		args = append(args, "--network", c.network)
	}

	for _, dir := range c.volumes(tc, module) {
		args = append(args, "--volume", dir+":"+dir+":ro")
	}
	for _, env := range c.env {
		args = append(args, "--env", env)
	}

	args = append(args, c.image)
	return append(args, argv...)
}

func (c *Container) volumes(tc Toolchain, module string) []string {
	seen := map[string]bool{}
	for _, dir := range append([]string{filepath.Dir(module)}, c.mounts...) {
		seen[dir] = true
	}
	for _, script := range []string{tc.Loader, tc.Runner} {
		if script != "" {
			seen[filepath.Dir(script)] = true
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// remove force-removes a container left behind by a cancelled call.
func (c *Container) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if out, err := exec.CommandContext(ctx, c.docker, "rm", "--force", name).CombinedOutput(); err != nil {
		c.log.Warn("failed to remove container", "name", name, "error", err, "output", string(out))
	}
}
