// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package percpu resolves static per-CPU variables.
//
// A static_percpu<T, &key, ...> cell names a variable that has one copy
// per CPU. The linker gathers every key into one prototype region that
// starts at __percpu_start; at boot each CPU gets its own copy of the
// region, whose base is recorded in percpu_offsets[cpu]. The live copy
// of a variable for CPU c is therefore at
//
//	percpu_offsets[c] + (&key - &__percpu_start)
//
// Every call looks the symbols and the offset table up again: the
// inferior may have run, or been replaced, since the last call.
package percpu

import (
	"fmt"
	"strings"

	"github.com/xv6kit/kview/core"
	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/ktype"
)

// Config names the kernel symbols and types the resolver relies on.
type Config struct {
	// CellPrefix is the prefix of the tag of per-CPU cell types.
	CellPrefix string
	// AnchorSymbol marks the start of the prototype region.
	AnchorSymbol string
	// OffsetTable is the array of per-CPU region bases.
	OffsetTable string
}

// DefaultConfig returns the names used by the xv6 kernel.
func DefaultConfig() Config {
	return Config{
		CellPrefix:   "static_percpu<",
		AnchorSymbol: "__percpu_start",
		OffsetTable:  "percpu_offsets",
	}
}

// A Resolver computes the address of a CPU's copy of a per-CPU cell
// and returns the value there.
type Resolver struct {
	cfg  Config
	keys KeyExtractor
}

// NewResolver returns a Resolver. If keys is nil the key is recovered
// with DefaultKeyPattern.
func NewResolver(cfg Config, keys KeyExtractor) *Resolver {
	if keys == nil {
		x, err := NewPatternExtractor(DefaultKeyPattern)
		if err != nil {
			panic(err)
		}
		keys = x
	}
	return &Resolver{cfg: cfg, keys: keys}
}

// Invoke implements the host function $percpu(cell [, cpu]). Without
// a CPU argument the CPU of the selected thread is used; threads are
// numbered from 1 and CPUs from 0.
func (r *Resolver) Invoke(h host.Host, args []host.Value) (host.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return host.Value{}, fmt.Errorf("$percpu takes 1 or 2 arguments, got %d", len(args))
	}
	cell := args[0]
	if err := r.check(cell); err != nil {
		return host.Value{}, err
	}
	var cpu int64
	if len(args) == 2 {
		n, err := args[1].Int()
		if err != nil {
			return host.Value{}, fmt.Errorf("CPU number: %w", err)
		}
		cpu = n
	} else {
		t, err := h.SelectedThread()
		if err != nil {
			return host.Value{}, fmt.Errorf("no CPU given: %w", err)
		}
		cpu = int64(t.Num - 1)
	}
	return r.Resolve(h, cell, cpu)
}

// Resolve returns the copy of cell belonging to cpu. The CPU number is
// not checked against the size of the offset table.
func (r *Resolver) Resolve(h host.Host, cell host.Value, cpu int64) (host.Value, error) {
	if err := r.check(cell); err != nil {
		return host.Value{}, err
	}
	cellType := cell.Type().Strip()

	name, err := r.keys.ExtractKey(cellType)
	if err != nil {
		return host.Value{}, err
	}
	key, ok := h.LookupGlobal(name)
	if !ok {
		return host.Value{}, &SymbolError{Name: name, What: "per-CPU key"}
	}
	start, ok := h.LookupGlobal(r.cfg.AnchorSymbol)
	if !ok {
		return host.Value{}, &SymbolError{Name: r.cfg.AnchorSymbol, What: "per-CPU region start"}
	}
	offset := key.Addr.Sub(start.Addr)

	base, err := r.cpuBase(h, cpu)
	if err != nil {
		return host.Value{}, err
	}

	// The key is the prototype copy of the variable, so it has the
	// variable's type.
	typ := key.Type
	if typ == nil {
		if typ, err = cellType.TemplateArgument(0); err != nil {
			return host.Value{}, fmt.Errorf("per-CPU key %q has no type: %w", name, err)
		}
	}
	return host.Pointer(h, typ, base.Add(offset)).Deref()
}

// check is a cheap structural guard on the type of cell. It is not a
// full type check: template parameters may be mangled or dropped.
func (r *Resolver) check(cell host.Value) error {
	t := cell.Type().Strip()
	if t == nil || !strings.HasPrefix(t.Tag, r.cfg.CellPrefix) {
		return fmt.Errorf("%w: %s", ErrNotPerCPU, cell.Type())
	}
	return nil
}

// cpuBase returns percpu_offsets[cpu].
func (r *Resolver) cpuBase(h host.Host, cpu int64) (core.Address, error) {
	tab, ok := h.LookupGlobal(r.cfg.OffsetTable)
	if !ok {
		return 0, &SymbolError{Name: r.cfg.OffsetTable, What: "per-CPU offset table"}
	}
	if tab.Type == nil {
		// No debug information: treat it as an array of pointers.
		ptrSize := int64(h.Arch().PointerSize)
		tab.Type = ktype.ArrayOf(ktype.PointerTo(nil, ptrSize), 0)
	}
	e, err := tab.Value(h).Index(cpu)
	if err != nil {
		return 0, fmt.Errorf("indexing %s: %w", r.cfg.OffsetTable, err)
	}
	base, err := e.Uint()
	if err != nil {
		return 0, fmt.Errorf("reading %s[%d]: %w", r.cfg.OffsetTable, cpu, err)
	}
	return core.Address(base), nil
}
