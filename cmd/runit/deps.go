package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/project"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage the project's dependencies",
	Long: `Install and inspect the dependencies declared by the project.

Each manifest found in the project directory is installed with its own
package manager:
  requirements.txt   pip, into .packages/ (added to sys.path at runtime)
  package.json       npm
  composer.json      composer`,
}

var depsInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install dependencies from every manifest",
	Args:  cobra.NoArgs,
	RunE:  runDepsInstall,
}

var depsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed Python packages",
	Args:  cobra.NoArgs,
	RunE:  runDepsList,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove [packages...]",
	Short: "Remove installed Python packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDepsRemove,
}

var depsCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
}

var depsCacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the installed loader and runner scripts",
	Args:  cobra.NoArgs,
	RunE:  runDepsCacheClear,
}

func init() {
	depsInstallCmd.Flags().String("python", "", "Python interpreter used for pip (default: project runtime)")

	depsCacheCmd.AddCommand(depsCacheClearCmd)
	depsCmd.AddCommand(depsInstallCmd, depsListCmd, depsRemoveCmd, depsCacheCmd)
	rootCmd.AddCommand(depsCmd)
}

func runDepsInstall(cmd *cobra.Command, args []string) error {
	dir := projectDir(cmd)
	opts := []project.InstallOption{project.WithInstallLogger(newLogger(cmd).Named("deps"))}

	python, _ := cmd.Flags().GetString("python")
	if python == "" {
		if desc, err := project.Load(dir); err == nil && desc.Language == "python" {
			python = desc.Runtime
		}
	}
	if python != "" {
		opts = append(opts, project.WithPython(python))
	}

	results := project.InstallDependencies(cmd.Context(), dir, opts...)
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No dependency manifests found.")
		return nil
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", color.RedString("✗"), r.Ecosystem, r.Err)
			if r.Output != "" {
				fmt.Fprintln(out, strings.TrimSpace(r.Output))
			}
			continue
		}
		fmt.Fprintf(out, "%s %s (%s)\n", color.GreenString("✓"), r.Ecosystem, r.Duration.Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d installations failed", failed, len(results))
	}
	return nil
}

func packagesDir(cmd *cobra.Command) string {
	return filepath.Join(projectDir(cmd), project.PackagesDir)
}

func runDepsList(cmd *cobra.Command, args []string) error {
	dir := packagesDir(cmd)
	out := cmd.OutOrStdout()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		fmt.Fprintln(out, "No packages installed.")
		return nil
	}
	if err != nil {
		return err
	}

	var names []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".dist-info")
		if entry.IsDir() && ok {
			names = append(names, strings.Replace(name, "-", " ", 1))
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No packages installed.")
		return nil
	}

	fmt.Fprintf(out, "Packages in %s:\n", dir)
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func runDepsRemove(cmd *cobra.Command, args []string) error {
	for _, pkg := range args {
		if !validPackageName(pkg) {
			return fmt.Errorf("invalid package name %q", pkg)
		}
	}

	dir := packagesDir(cmd)
	entries, _ := os.ReadDir(dir)

	for _, pkg := range args {
		if err := os.RemoveAll(filepath.Join(dir, pkg)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to remove %s: %v\n", pkg, err)
			continue
		}
		prefix := strings.ReplaceAll(pkg, "-", "_") + "-"
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), prefix) && strings.HasSuffix(entry.Name(), ".dist-info") {
				os.RemoveAll(filepath.Join(dir, entry.Name()))
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", pkg)
	}
	return nil
}

// validPackageName reports whether pkg names a single entry inside the
// packages directory.
func validPackageName(pkg string) bool {
	return filepath.IsLocal(pkg) && !strings.ContainsAny(pkg, `/\`) && pkg != "."
}

func runDepsCacheClear(cmd *cobra.Command, args []string) error {
	dir := executor.DefaultToolsDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear %s: %w", dir, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
	return nil
}
