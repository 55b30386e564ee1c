package project

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// PackagesDir is where Python dependencies are installed, relative to the
// project directory. The Python loader and runner add it to sys.path.
const PackagesDir = ".packages"

// Ecosystem installs the dependencies declared by one manifest file.
type Ecosystem struct {
	Name     string
	Manifest string
	Command  func(dir string) []string
}

// Ecosystems are the package managers runit knows about.
var Ecosystems = []Ecosystem{
	{
		Name:     "pip",
		Manifest: "requirements.txt",
		Command: func(dir string) []string {
			return []string{"python3", "-m", "pip", "install", "--quiet", "--upgrade",
				"--target", filepath.Join(dir, PackagesDir), "-r", "requirements.txt"}
		},
	},
	{
		Name:     "npm",
		Manifest: "package.json",
		Command: func(string) []string {
			return []string{"npm", "install", "--no-audit", "--no-fund"}
		},
	},
	{
		Name:     "composer",
		Manifest: "composer.json",
		Command: func(string) []string {
			return []string{"composer", "install", "--no-interaction"}
		},
	},
}

// InstallResult is the outcome of one ecosystem's installation.
type InstallResult struct {
	Ecosystem string
	Output    string
	Duration  time.Duration
	Err       error
}

// CommandRunner runs argv in dir and returns its combined output.
type CommandRunner func(ctx context.Context, dir string, argv []string) ([]byte, error)

// InstallOption configures InstallDependencies.
type InstallOption func(*installConfig)

type installConfig struct {
	logger hclog.Logger
	run    CommandRunner
	python string
}

// WithInstallLogger sets the logger.
func WithInstallLogger(l hclog.Logger) InstallOption {
	return func(c *installConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCommandRunner replaces process execution.
func WithCommandRunner(run CommandRunner) InstallOption {
	return func(c *installConfig) {
		c.run = run
	}
}

// WithPython sets the interpreter used to run pip.
func WithPython(interpreter string) InstallOption {
	return func(c *installConfig) {
		c.python = interpreter
	}
}

// InstallDependencies installs, in parallel, the dependencies of every
// ecosystem whose manifest exists in dir. A failing ecosystem does not stop
// the others; its error is reported in its result.
func InstallDependencies(ctx context.Context, dir string, opts ...InstallOption) []InstallResult {
	cfg := installConfig{
		logger: hclog.NewNullLogger(),
		run:    runCommand,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var pending []Ecosystem
	for _, eco := range Ecosystems {
		if _, err := os.Stat(filepath.Join(dir, eco.Manifest)); err == nil {
			pending = append(pending, eco)
		}
	}

	results := make([]InstallResult, len(pending))
	var g errgroup.Group
	for i, eco := range pending {
		g.Go(func() error {
			argv := eco.Command(dir)
			if eco.Name == "pip" && cfg.python != "" {
				argv = append(strings.Fields(cfg.python), argv[1:]...)
			}

			log := cfg.logger.With("ecosystem", eco.Name)
			log.Info("installing dependencies", "manifest", eco.Manifest)

			start := time.Now()
			out, err := cfg.run(ctx, dir, argv)
			results[i] = InstallResult{
				Ecosystem: eco.Name,
				Output:    strings.TrimSpace(string(out)),
				Duration:  time.Since(start),
			}
			if err != nil {
				results[i].Err = fmt.Errorf("%s: %w", eco.Name, err)
				log.Error("dependency installation failed", "error", err, "output", results[i].Output)
				return nil
			}
			log.Info("dependencies installed", "duration", results[i].Duration)
			return nil
		})
	}
	g.Wait()

	return results
}

func runCommand(ctx context.Context, dir string, argv []string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
