// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"errors"
	"fmt"

	"github.com/xv6kit/kview/core"
	"github.com/xv6kit/kview/ktype"
)

// A Value is a typed value of the inferior. It is either an lvalue,
// which names memory at an address and reads it on demand, or an
// rvalue, which carries its bytes with it (integer literals, the
// result of taking an address).
//
// Values are cheap to copy and hold no state beyond their location;
// every read goes to the host.
type Value struct {
	h    Host
	typ  *ktype.Type
	addr core.Address
	lval bool
	imm  []byte
}

// ErrNoType is returned when an operation needs the type of a value
// that has no debug information.
var ErrNoType = errors.New("value has no type information")

// At returns the lvalue of type t at address a.
func At(h Host, t *ktype.Type, a core.Address) Value {
	return Value{h: h, typ: t, addr: a, lval: true}
}

// Immediate returns an rvalue of type t holding b.
func Immediate(h Host, t *ktype.Type, b []byte) Value {
	return Value{h: h, typ: t, imm: b}
}

// Int returns an rvalue of a pointer-sized signed integer type holding n.
func Int(h Host, n int64) Value {
	a := h.Arch()
	b := make([]byte, a.PointerSize)
	a.PutUintN(b, uint64(n))
	return Immediate(h, ktype.NewInt("long", int64(a.PointerSize)), b)
}

// Pointer returns an rvalue of type pointer to elem holding address a.
func Pointer(h Host, elem *ktype.Type, a core.Address) Value {
	return PointerOfType(h, ktype.PointerTo(elem, int64(h.Arch().PointerSize)), a)
}

// PointerOfType returns an rvalue of pointer type t holding address a.
func PointerOfType(h Host, t *ktype.Type, a core.Address) Value {
	ar := h.Arch()
	b := make([]byte, ar.PointerSize)
	ar.PutUintN(b, uint64(a))
	return Immediate(h, t, b)
}

// IsValid reports whether v is a value rather than the zero Value.
func (v Value) IsValid() bool {
	return v.h != nil
}

// Host returns the host v reads from.
func (v Value) Host() Host {
	return v.h
}

// Type returns the type of v. It may be nil for untyped symbols.
func (v Value) Type() *ktype.Type {
	return v.typ
}

// Address returns the address of v, if v is an lvalue.
func (v Value) Address() (core.Address, bool) {
	return v.addr, v.lval
}

// Bytes returns the contents of v.
func (v Value) Bytes() ([]byte, error) {
	if !v.lval {
		return v.imm, nil
	}
	if v.typ == nil {
		return nil, ErrNoType
	}
	if !v.typ.HasSize() {
		return nil, fmt.Errorf("type %s has no size", v.typ)
	}
	b := make([]byte, v.typ.Size)
	if err := v.h.ReadMemory(v.addr, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Uint returns the value of v as an unsigned integer.
// v must have an integer, enum, bool or pointer type.
func (v Value) Uint() (uint64, error) {
	b, err := v.intBytes()
	if err != nil {
		return 0, err
	}
	a := v.h.Arch()
	return a.UintN(b), nil
}

// Int returns the value of v as a signed integer. Unsigned types are
// zero-extended, signed types sign-extended.
func (v Value) Int() (int64, error) {
	b, err := v.intBytes()
	if err != nil {
		return 0, err
	}
	a := v.h.Arch()
	if v.typ.IsSigned() {
		return a.IntN(b), nil
	}
	return int64(a.UintN(b)), nil
}

func (v Value) intBytes() ([]byte, error) {
	if v.typ == nil {
		return nil, ErrNoType
	}
	if !v.typ.IsInteger() {
		return nil, fmt.Errorf("value of type %s is not an integer", v.typ)
	}
	switch v.typ.Size {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("integer type %s has unsupported size %d", v.typ, v.typ.Size)
	}
	b, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	if int64(len(b)) != v.typ.Size {
		return nil, fmt.Errorf("value of type %s has %d bytes, want %d", v.typ, len(b), v.typ.Size)
	}
	return b, nil
}

// Field returns the named field of struct or union value v.
func (v Value) Field(name string) (Value, error) {
	if v.typ == nil {
		return Value{}, ErrNoType
	}
	f, err := v.typ.Field(name)
	if err != nil {
		return Value{}, err
	}
	if v.lval {
		return At(v.h, f.Type, v.addr.Add(f.Off)), nil
	}
	if !f.Type.HasSize() || f.Off+f.Type.Size > int64(len(v.imm)) {
		return Value{}, fmt.Errorf("field %s of %s is out of range", name, v.typ)
	}
	return Immediate(v.h, f.Type, v.imm[f.Off:f.Off+f.Type.Size]), nil
}

// Cast reinterprets the storage of v as type t.
func (v Value) Cast(t *ktype.Type) Value {
	v.typ = t
	return v
}

// AddressOf returns a pointer to v. v must be an lvalue.
func (v Value) AddressOf() (Value, error) {
	if !v.lval {
		return Value{}, fmt.Errorf("attempt to take address of value not located in memory")
	}
	return Pointer(v.h, v.typ, v.addr), nil
}

// Deref returns the value v points to.
func (v Value) Deref() (Value, error) {
	if v.typ == nil {
		return Value{}, ErrNoType
	}
	s := v.typ.Strip()
	if s.Kind != ktype.KindPtr {
		return Value{}, fmt.Errorf("attempt to take contents of a non-pointer value of type %s", v.typ)
	}
	p, err := v.Uint()
	if err != nil {
		return Value{}, err
	}
	if s.Elem == nil {
		return Value{}, fmt.Errorf("attempt to take contents of a void pointer")
	}
	return At(v.h, s.Elem, core.Address(p)), nil
}

// Add advances pointer v by n elements.
func (v Value) Add(n int64) (Value, error) {
	if v.typ == nil {
		return Value{}, ErrNoType
	}
	s := v.typ.Strip()
	if s.Kind != ktype.KindPtr {
		return Value{}, fmt.Errorf("pointer arithmetic on non-pointer type %s", v.typ)
	}
	if !s.Elem.HasSize() {
		return Value{}, fmt.Errorf("pointer arithmetic on pointer to type %s with no size", s.Elem)
	}
	p, err := v.Uint()
	if err != nil {
		return Value{}, err
	}
	return PointerOfType(v.h, v.typ, core.Address(p).Add(n*s.Elem.Size)), nil
}

// Index returns element i of array or pointer v. Indexes are not
// checked against the array length.
func (v Value) Index(i int64) (Value, error) {
	if v.typ == nil {
		return Value{}, ErrNoType
	}
	s := v.typ.Strip()
	switch s.Kind {
	case ktype.KindPtr:
		p, err := v.Add(i)
		if err != nil {
			return Value{}, err
		}
		return p.Deref()
	case ktype.KindArray:
		if !s.Elem.HasSize() {
			return Value{}, fmt.Errorf("array element type %s has no size", s.Elem)
		}
		off := i * s.Elem.Size
		if v.lval {
			return At(v.h, s.Elem, v.addr.Add(off)), nil
		}
		if off < 0 || off+s.Elem.Size > int64(len(v.imm)) {
			return Value{}, fmt.Errorf("index %d out of range for %s", i, v.typ)
		}
		return Immediate(v.h, s.Elem, v.imm[off:off+s.Elem.Size]), nil
	}
	return Value{}, fmt.Errorf("cannot subscript value of type %s", v.typ)
}
