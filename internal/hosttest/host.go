// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hosttest provides an in-memory introspection host for tests:
// a sparse memory image, a symbol table and a thread list that tests
// can change between calls.
package hosttest

import (
	"errors"

	"github.com/xv6kit/kview/arch"
	"github.com/xv6kit/kview/core"
	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/ktype"
)

// Commonly used types.
var (
	Int    = ktype.NewInt("int", 4)
	Long   = ktype.NewInt("long", 8)
	Uint64 = ktype.NewUint("unsigned long", 8)
	Char   = ktype.NewInt("char", 1)
)

// A Host is a fake host.Host.
type Host struct {
	arch    arch.Architecture
	mem     map[core.Address]byte
	syms    map[string]*host.Symbol
	threads []host.Thread
	sel     int // index into threads, -1 if none

	// Lookups records every LookupGlobal call, in order.
	Lookups []string
}

var _ host.Host = (*Host)(nil)

// New returns an empty amd64 host with no threads.
func New() *Host {
	return &Host{
		arch: arch.AMD64,
		mem:  make(map[core.Address]byte),
		syms: make(map[string]*host.Symbol),
		sel:  -1,
	}
}

func (h *Host) Arch() arch.Architecture {
	return h.arch
}

func (h *Host) LookupGlobal(name string) (*host.Symbol, bool) {
	h.Lookups = append(h.Lookups, name)
	s, ok := h.syms[name]
	if !ok {
		return nil, false
	}
	c := *s
	return &c, true
}

func (h *Host) SelectedThread() (host.Thread, error) {
	if h.sel < 0 {
		return host.Thread{}, errors.New("no thread selected")
	}
	return h.threads[h.sel], nil
}

func (h *Host) ReadMemory(a core.Address, b []byte) error {
	for i := range b {
		x, ok := h.mem[a.Add(int64(i))]
		if !ok {
			return &core.ReadError{Addr: a, Len: int64(len(b))}
		}
		b[i] = x
	}
	return nil
}

// Write stores b at address a.
func (h *Host) Write(a core.Address, b []byte) {
	for i, x := range b {
		h.mem[a.Add(int64(i))] = x
	}
}

// PutUint stores x as a size-byte integer at address a.
func (h *Host) PutUint(a core.Address, size int, x uint64) {
	b := make([]byte, size)
	h.arch.PutUintN(b, x)
	h.Write(a, b)
}

// PutPtr stores the pointer p at address a.
func (h *Host) PutPtr(a, p core.Address) {
	h.PutUint(a, h.arch.PointerSize, uint64(p))
}

// Define adds (or replaces) a global symbol.
func (h *Host) Define(name string, a core.Address, t *ktype.Type) {
	h.syms[name] = &host.Symbol{Name: name, Addr: a, Type: t}
}

// Undefine removes a global symbol.
func (h *Host) Undefine(name string) {
	delete(h.syms, name)
}

// AddThread appends a thread numbered after the existing ones and
// selects it if no thread is selected yet.
func (h *Host) AddThread() {
	h.threads = append(h.threads, host.Thread{Num: len(h.threads) + 1})
	if h.sel < 0 {
		h.sel = 0
	}
}

// Threads returns the threads of the host.
func (h *Host) Threads() ([]host.Thread, error) {
	return append([]host.Thread(nil), h.threads...), nil
}

// SelectThread selects the thread with 1-based number num.
func (h *Host) SelectThread(num int) {
	for i, t := range h.threads {
		if t.Num == num {
			h.sel = i
			return
		}
	}
	panic("no such thread")
}

// Ptr returns a pointer type to t for this host.
func (h *Host) Ptr(t *ktype.Type) *ktype.Type {
	return ktype.PointerTo(t, int64(h.arch.PointerSize))
}
