package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/runit/executor"
)

var functionsCmd = &cobra.Command{
	Use:     "functions",
	Aliases: []string{"ls"},
	Short:   "List the functions the project exposes",
	Args:    cobra.NoArgs,
	RunE:    runFunctions,
}

func init() {
	functionsCmd.Flags().Bool("json", false, "Print the function table as JSON")
	rootCmd.AddCommand(functionsCmd)
}

func runFunctions(cmd *cobra.Command, args []string) error {
	log := newLogger(cmd)
	registry := newRegistry(log)
	defer registry.Close()

	desc, d, err := openProject(cmd.Context(), cmd, registry, log)
	if err != nil {
		return err
	}
	table := d.Functions()
	out := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := jsoniter.MarshalIndent(table, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	bold := color.New(color.Bold).SprintFunc()
	name := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(out, "%s %s\n", bold(desc.Name), dim("("+desc.Language+")"))
	if len(table) == 0 {
		fmt.Fprintln(out, "  no functions found")
		if err := d.Err(); err != nil {
			fmt.Fprintf(out, "  %s %v\n", color.RedString("error:"), err)
		}
		return nil
	}

	for _, fn := range table.Names() {
		f := table[fn]
		line := fmt.Sprintf("  %s(%s)", name(f.Name), strings.Join(f.Params, ", "))
		if f.Module != "" {
			line += "  " + dim(filepath.Base(f.Module))
		}
		fmt.Fprintln(out, line)
	}

	if m, ok := d.(*executor.Multi); ok {
		for _, c := range m.Collisions() {
			fmt.Fprintf(out, "%s %s defined in %s and %s, using %s\n", color.YellowString("warning:"),
				c.Name, filepath.Base(c.Dropped), filepath.Base(c.Kept), filepath.Base(c.Kept))
		}
	}
	return nil
}
