// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"iter"
	"sort"
)

// Display hints a Printer may return.
const (
	HintNone   = ""
	HintArray  = "array"
	HintMap    = "map"
	HintString = "string"
)

// A Printer renders one value for display. The display layer calls
// Summary for the headline and ranges over Children for the elements.
type Printer interface {
	DisplayHint() string
	Summary() (string, error)
	// Children yields the labelled elements of the value. A non-nil
	// error ends the sequence and the display fails.
	Children() iter.Seq2[Child, error]
}

// A Child is one labelled element produced by a Printer.
type Child struct {
	Name  string
	Value Value
}

// A PrinterLookup chooses a Printer for a value, if it has one.
type PrinterLookup interface {
	Lookup(v Value) (Printer, bool)
}

// A Function is a callable evaluable in the host's expression language,
// as in $name(arg, ...).
type Function func(h Host, args []Value) (Value, error)

// A Registry holds the printers and functions extensions register at
// load time.
type Registry struct {
	printers  []PrinterLookup
	functions map[string]Function
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]Function)}
}

// AddPrinters registers a printer collection. Collections registered
// later take precedence.
func (r *Registry) AddPrinters(p PrinterLookup) {
	r.printers = append(r.printers, p)
}

// AddFunction registers fn under name.
func (r *Registry) AddFunction(name string, fn Function) error {
	if _, dup := r.functions[name]; dup {
		return fmt.Errorf("function $%s already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// Printer returns the Printer for v from the most recently registered
// collection that has one.
func (r *Registry) Printer(v Value) (Printer, bool) {
	for i := len(r.printers) - 1; i >= 0; i-- {
		if p, ok := r.printers[i].Lookup(v); ok {
			return p, true
		}
	}
	return nil, false
}

// Function returns the function registered under name.
func (r *Registry) Function(name string) (Function, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Functions returns the names of the registered functions, sorted.
func (r *Registry) Functions() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
