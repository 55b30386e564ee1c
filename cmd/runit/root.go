package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/language/javascript"
	"github.com/caffeineduck/runit/language/php"
	"github.com/caffeineduck/runit/language/python"
	"github.com/caffeineduck/runit/language/wasm"
	"github.com/caffeineduck/runit/project"
)

var rootCmd = &cobra.Command{
	Use:   "runit",
	Short: "Serve plain Python, JavaScript and PHP functions over HTTP",
	Long: `runit - Turn the functions of a source file into HTTP endpoints.

A project is a directory with a runit.json descriptor and a start file.
Every top-level function of the start file becomes callable as
/{function}/{format}, with request parameters passed as positional
arguments. Multi-language projects expose every supported file at once.

Supported languages: python (.py), javascript (.js, .cjs), php (.php),
wasm (.wasm).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("dir", "C", ".", "Project directory")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			color.NoColor = true
		}
	}
}

func newLogger(cmd *cobra.Command) hclog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")
	return hclog.New(&hclog.LoggerOptions{
		Name:       "runit",
		Level:      hclog.LevelFromString(level),
		Output:     cmd.ErrOrStderr(),
		JSONFormat: asJSON,
		Color:      hclog.AutoColor,
	})
}

// newRegistry registers every supported language. WASM is skipped when its
// runtime cannot start.
func newRegistry(log hclog.Logger) *executor.Registry {
	registry := executor.NewRegistry(python.New(), javascript.New(), php.New())

	opts := []wasm.Option{wasm.WithLogger(log.Named("wasm"))}
	if cacheDir, err := os.UserCacheDir(); err == nil {
		opts = append(opts, wasm.WithCompilationCache(filepath.Join(cacheDir, "runit", "wasm")))
	}
	w, err := wasm.New(opts...)
	if err != nil {
		log.Warn("wasm support disabled", "error", err)
		return registry
	}
	registry.Register(w)
	return registry
}

func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("dir")
	return dir
}

// openProject loads the project in --dir and discovers its functions.
func openProject(ctx context.Context, cmd *cobra.Command, registry *executor.Registry, log hclog.Logger) (*project.Descriptor, executor.Dispatcher, error) {
	desc, err := project.Load(projectDir(cmd))
	if err != nil {
		return nil, nil, err
	}
	if err := desc.Validate(registry); err != nil {
		return nil, nil, err
	}

	d, err := registry.Open(ctx, desc.Language, desc.Dir(), desc.StartFile,
		executor.WithRuntime(desc.Runtime),
		executor.WithLogger(log.Named("executor")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", desc.Name, err)
	}
	return desc, d, nil
}
