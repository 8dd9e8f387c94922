// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host provides the interface to the introspection host: the
// debugging environment that owns the inspected machine's memory,
// symbol table and threads. Extensions see the host only through this
// interface, so they can be run against a core dump, a live stub or a
// fake.
package host

import (
	"github.com/xv6kit/kview/arch"
	"github.com/xv6kit/kview/core"
	"github.com/xv6kit/kview/ktype"
)

// Host is the set of primitives an extension may use. All methods are
// read-only. Implementations must answer every call from the current
// state of the inferior; callers do not cache results between calls.
type Host interface {
	// LookupGlobal returns the global symbol with the given name.
	// The Type of the returned symbol may be nil if no debug
	// information describes it.
	LookupGlobal(name string) (*Symbol, bool)

	// SelectedThread returns the thread the user has selected.
	SelectedThread() (Thread, error)

	// ReadMemory fills b with the bytes at address a.
	ReadMemory(a core.Address, b []byte) error

	// Arch describes the inferior's pointer size and byte order.
	Arch() arch.Architecture
}

// A Symbol is a global symbol: a name bound to an address.
type Symbol struct {
	Name string
	Addr core.Address
	Type *ktype.Type
}

// A Thread is a thread of the inferior as the host numbers it.
// Num is 1-based.
type Thread struct {
	Num int
	PC  core.Address
	SP  core.Address
}

// Value returns the value of the symbol: an lvalue of the symbol's type
// at the symbol's address.
func (s *Symbol) Value(h Host) Value {
	return At(h, s.Type, s.Addr)
}
