package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/runit/project"
)

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Create a new project",
	Long: `Create a project in --dir (default: a new directory named after the
project) with a runit.json descriptor, a starter file and a 404 page.

Languages: ` + strings.Join(scaffoldLanguages(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringP("lang", "l", "python", "Project language")
	initCmd.Flags().String("runtime", "", "Interpreter to run the project with, e.g. python3.12")
	initCmd.Flags().String("author", "", "Author name")
	initCmd.Flags().String("email", "", "Author email")
	initCmd.Flags().String("description", "", "Project description")
	rootCmd.AddCommand(initCmd)
}

func scaffoldLanguages() []string {
	langs := make([]string, 0, len(project.StarterFiles))
	for lang := range project.StarterFiles {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func runInit(cmd *cobra.Command, args []string) error {
	name := args[0]
	dir := name
	if cmd.Flags().Changed("dir") {
		dir = projectDir(cmd)
	}

	lang, _ := cmd.Flags().GetString("lang")
	runtime, _ := cmd.Flags().GetString("runtime")
	author, _ := cmd.Flags().GetString("author")
	email, _ := cmd.Flags().GetString("email")
	description, _ := cmd.Flags().GetString("description")

	var opts []project.InitOption
	if runtime != "" {
		opts = append(opts, project.WithRuntime(runtime))
	}
	if author != "" || email != "" {
		opts = append(opts, project.WithAuthor(author, email))
	}
	if description != "" {
		opts = append(opts, project.WithDescription(description))
	}

	desc, err := project.Init(dir, name, lang, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s created %s project %s in %s\n", color.GreenString("✓"), desc.Language, desc.Name, dir)
	fmt.Fprintf(out, "\n  cd %s\n  runit deps install\n  runit serve\n\n", filepath.Clean(dir))
	fmt.Fprintf(out, "Then open http://127.0.0.1:5000/ to call index() from %s.\n", desc.StartFile)
	return nil
}
