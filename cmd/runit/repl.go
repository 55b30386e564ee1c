package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/server"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Call the project's functions interactively",
	Long: `Start an interactive session against the project.

Each line is a function name followed by its arguments; quote arguments
containing spaces:
  >>> greet "Ada Lovelace"
  >>> add 1 2

Commands:
  :functions   List functions (Tab completes names)
  :reload      Rediscover functions after editing files

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.runit_history)")
	rootCmd.AddCommand(replCmd)
}

// replSession holds the current dispatcher so completion sees reloads.
type replSession struct {
	mu sync.RWMutex
	d  executor.Dispatcher
}

func (s *replSession) get() executor.Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d
}

func (s *replSession) set(d executor.Dispatcher) {
	s.mu.Lock()
	s.d = d
	s.mu.Unlock()
}

func (s *replSession) names(string) []string {
	return s.get().Functions().Names()
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".runit_history")
	}

	log := newLogger(cmd)
	registry := newRegistry(log)
	defer registry.Close()

	ctx := cmd.Context()
	desc, d, err := openProject(ctx, cmd, registry, log)
	if err != nil {
		return err
	}
	session := &replSession{d: d}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      readline.NewPrefixCompleter(readline.PcItemDynamic(session.names)),
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintf(rl.Stderr(), "runit %s REPL for %s (type 'exit' to quit, Ctrl+D to exit)\n", desc.Language, desc.Name)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		fields, err := splitArgs(line)
		if err != nil {
			fmt.Fprintln(rl.Stderr(), color.RedString("Error: %v", err))
			continue
		}
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return nil
		case ":functions", ":ls":
			table := session.get().Functions()
			for _, name := range table.Names() {
				fmt.Fprintf(out, "  %s\n", table[name].Signature())
			}
			continue
		case ":reload":
			_, d, err := openProject(ctx, cmd, registry, log)
			if err != nil {
				fmt.Fprintln(rl.Stderr(), color.RedString("Error: %v", err))
				continue
			}
			session.set(d)
			fmt.Fprintf(out, "%d functions\n", len(d.Functions()))
			continue
		}

		result, err := session.get().Invoke(ctx, fields[0], fields[1:]...)
		if err != nil {
			fmt.Fprintln(rl.Stderr(), color.RedString("Error: %v", err))
			continue
		}
		printResult(out, result)
	}
}

func printResult(w io.Writer, result string) {
	switch v := server.Decode(result).(type) {
	case string:
		fmt.Fprint(w, v)
		if !strings.HasSuffix(v, "\n") {
			fmt.Fprintln(w)
		}
	default:
		fmt.Fprintf(w, "%s\n", strings.TrimSpace(result))
	}
}

// splitArgs splits a line on whitespace, honouring single and double
// quotes and backslash escapes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		escaped bool
		inArg   bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inArg = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inArg = r, true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		current.WriteRune('\\')
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
