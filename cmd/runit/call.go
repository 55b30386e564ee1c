package main

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/runit/server"
)

var callCmd = &cobra.Command{
	Use:   "call <function> [args...]",
	Short: "Invoke one function and print its result",
	Long: `Invoke a function of the project without starting a server.

Arguments are passed positionally, as strings:
  runit call greet Ada
  runit call add 1 2

With --json the result is decoded the way the server does and printed as
the JSON response envelope.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().Bool("json", false, "Print the JSON response envelope")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	log := newLogger(cmd)
	registry := newRegistry(log)
	defer registry.Close()

	_, d, err := openProject(cmd.Context(), cmd, registry, log)
	if err != nil {
		return err
	}

	out, err := d.Invoke(cmd.Context(), args[0], args[1:]...)
	asJSON, _ := cmd.Flags().GetBool("json")
	if !asJSON {
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}

	resp := server.Response{Status: true, Data: server.Decode(out)}
	if err != nil {
		resp = server.Response{Message: err.Error()}
	}
	data, err := jsoniter.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
