// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package percpu

import (
	"errors"
	"fmt"
)

// ErrNotPerCPU is returned when the argument is not a per-CPU cell.
var ErrNotPerCPU = errors.New("not a static_percpu")

// A ParseError is returned when the key cannot be recovered from the
// type of a cell.
type ParseError struct {
	TypeString string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse type string %q", e.TypeString)
}

// A SymbolError is returned when a symbol the resolver needs is not in
// the symbol table.
type SymbolError struct {
	Name string
	What string // "per-CPU key", "per-CPU region start", ...
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("failed to find %s %q", e.What, e.Name)
}
