package function

import (
	"sort"
	"strings"
)

// Descriptor describes one discovered function.
type Descriptor struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`

	// Set for functions routed through an aggregator.
	Module      string `json:"module,omitempty"`
	Interpreter string `json:"interpreter,omitempty"`
	Loader      string `json:"loader,omitempty"`
	Runner      string `json:"runner,omitempty"`
}

// Signature renders the descriptor as name(a, b).
func (d Descriptor) Signature() string {
	return d.Name + "(" + strings.Join(d.Params, ", ") + ")"
}

// RequiresArgs reports whether the function declares any parameter.
func (d Descriptor) RequiresArgs() bool {
	return len(d.Params) > 0
}

// Table maps function names to their descriptors.
type Table map[string]Descriptor

// Get returns the descriptor registered under name.
func (t Table) Get(name string) (Descriptor, bool) {
	d, ok := t[name]
	return d, ok
}

// Names returns the function names in lexical order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy that shares no slices with t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for name, d := range t {
		d.Params = append([]string(nil), d.Params...)
		out[name] = d
	}
	return out
}

// WithOrigin returns a copy of t where every descriptor carries the module
// and toolchain that owns it.
func (t Table) WithOrigin(module, interpreter, loader, runner string) Table {
	out := t.Clone()
	for name, d := range out {
		d.Module = module
		d.Interpreter = interpreter
		d.Loader = loader
		d.Runner = runner
		out[name] = d
	}
	return out
}
