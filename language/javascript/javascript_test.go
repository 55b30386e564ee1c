package javascript

import (
	"errors"
	"strings"
	"testing"

	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/internal/langtest"
	"github.com/caffeineduck/runit/sandbox"
)

func TestScriptsEmbedded(t *testing.T) {
	lang := New()
	if !strings.Contains(string(lang.Loader().Source), "module") {
		t.Error("loader not embedded")
	}
	if !strings.Contains(string(lang.Runner().Source), "await fn(...args)") {
		t.Error("runner does not spread arguments")
	}
}

func TestLanguage(t *testing.T) {
	lang := New()
	if lang.Name() != "javascript" {
		t.Errorf("Name() = %q", lang.Name())
	}
	if lang.Interpreter() != "node" {
		t.Errorf("Interpreter() = %q", lang.Interpreter())
	}
}

const app = `
function index () { return 'Yay, JavaScript works' }
const add = (a, b) => Number(a) + Number(b)
async function later (name) { return { hello: name } }
function boom () { throw new Error('kaput') }
function counter () { return [0, 1, 2] }
module.exports = { index, add, later, boom, counter, _hidden () {} }
`

func TestDiscover(t *testing.T) {
	m := langtest.Module(t, New(), "main.js", app)
	if err := m.Err(); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	table := m.Functions()
	if got := strings.Join(table.Names(), ","); got != "add,boom,counter,index,later" {
		t.Fatalf("functions = %s", got)
	}
	if params := strings.Join(table["add"].Params, ","); params != "a,b" {
		t.Errorf("add params = %s", params)
	}
}

func TestInvoke(t *testing.T) {
	m := langtest.Module(t, New(), "main.js", app)

	tests := []struct {
		fn   string
		args []string
		want string
	}{
		{"index", nil, "Yay, JavaScript works"},
		{"add", []string{"40", "2"}, "42"},
		{"later", []string{"node"}, `{"hello":"node"}`},
		{"counter", nil, "[0,1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			out, err := langtest.Invoke(t, m, tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != tt.want {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestInvokeError(t *testing.T) {
	m := langtest.Module(t, New(), "main.js", app)

	_, err := langtest.Invoke(t, m, "boom")
	var exitErr *sandbox.ExitError
	if !errors.Is(err, executor.ErrInvocationFailed) || !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %v", err)
	}
	if !strings.Contains(exitErr.Stderr, "kaput") {
		t.Errorf("stderr = %q", exitErr.Stderr)
	}
}
