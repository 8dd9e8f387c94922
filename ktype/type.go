// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ktype describes the types of kernel objects, as recovered
// from the DWARF of a kernel image.
package ktype

import (
	"fmt"
	"strings"
)

// A Type is the representation of the type of a kernel object.
// Types are not necessarily canonical: two equal DWARF types may be
// represented by different *Type values.
type Type struct {
	// Name is the printed form of the type, e.g.
	// "static_vector<int, 16>" or "cpu *".
	Name string
	// Tag is the tag name of a struct, class, union or enum type,
	// and empty for all other kinds.
	Tag  string
	Kind Kind
	// Size is the size in bytes of the type, or -1 if the type has
	// no defined size (void, incomplete types, functions).
	Size int64

	// Fields only valid for a subset of kinds.
	Elem         *Type         // for Kind{Ptr,Array,Typedef}. nil for void *.
	Count        int64         // for KindArray
	Fields       []Field       // for Kind{Struct,Union}
	Enumerators  []Enumerator  // for KindEnum
	TemplateArgs []TemplateArg // for instantiated class templates
}

type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindEnum
	KindPtr
	KindArray
	KindStruct
	KindUnion
	KindFunc
	KindTypedef // includes const and volatile qualifiers
)

func (k Kind) String() string {
	return [...]string{
		"KindNone",
		"KindBool",
		"KindInt",
		"KindUint",
		"KindFloat",
		"KindEnum",
		"KindPtr",
		"KindArray",
		"KindStruct",
		"KindUnion",
		"KindFunc",
		"KindTypedef",
	}[k]
}

// A Field represents a single field of a struct or union type.
type Field struct {
	Name string
	Off  int64
	Type *Type
}

// An Enumerator is one named value of an enum type.
type Enumerator struct {
	Name string
	Val  int64
}

// A TemplateArg is one argument of a class template instantiation.
// Type arguments have IsType set and a Type. Value arguments
// carry either a constant (HasValue) or an address (HasAddr); Symbol is
// the name of the symbol at Addr, when one is known.
type TemplateArg struct {
	Name   string
	IsType bool
	Type   *Type

	HasValue bool
	Value    int64

	HasAddr bool
	Addr    uint64
	Symbol  string
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	return t.Name
}

// Strip follows typedefs and qualifiers to the underlying type.
func (t *Type) Strip() *Type {
	for t != nil && t.Kind == KindTypedef {
		t = t.Elem
	}
	return t
}

// HasSize reports whether objects of type t have a defined size.
func (t *Type) HasSize() bool {
	return t != nil && t.Size >= 0
}

// TemplateArgument returns the type of the i'th template argument of t.
// It fails if t has fewer arguments or if argument i is a value.
func (t *Type) TemplateArgument(i int) (*Type, error) {
	s := t.Strip()
	if s == nil || i < 0 || i >= len(s.TemplateArgs) {
		return nil, fmt.Errorf("type %s has no template argument %d", t, i)
	}
	a := s.TemplateArgs[i]
	if !a.IsType {
		return nil, fmt.Errorf("template argument %d of %s is not a type", i, t)
	}
	return a.Type, nil
}

// Field returns the field of struct or union t with the given name.
func (t *Type) Field(name string) (*Field, error) {
	s := t.Strip()
	if s == nil || (s.Kind != KindStruct && s.Kind != KindUnion) {
		return nil, fmt.Errorf("type %s is not a structure or union", t)
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("type %s has no field named %s", t, name)
}

// HasField reports whether t is a struct or union with a field called name.
func (t *Type) HasField(name string) bool {
	_, err := t.Field(name)
	return err == nil
}

// IsInteger reports whether values of t can be read as integers.
func (t *Type) IsInteger() bool {
	s := t.Strip()
	if s == nil {
		return false
	}
	switch s.Kind {
	case KindBool, KindInt, KindUint, KindEnum, KindPtr:
		return true
	}
	return false
}

// IsSigned reports whether t is a signed integer or enum type.
func (t *Type) IsSigned() bool {
	s := t.Strip()
	return s != nil && (s.Kind == KindInt || s.Kind == KindEnum)
}

// NewInt returns a signed integer type.
func NewInt(name string, size int64) *Type {
	return &Type{Name: name, Kind: KindInt, Size: size}
}

// NewUint returns an unsigned integer type.
func NewUint(name string, size int64) *Type {
	return &Type{Name: name, Kind: KindUint, Size: size}
}

// PointerTo returns a pointer type to elem. A nil elem means void.
func PointerTo(elem *Type, ptrSize int64) *Type {
	name := "void *"
	if elem != nil {
		name = elem.Name + " *"
		if strings.HasSuffix(elem.Name, "*") {
			name = elem.Name + "*"
		}
	}
	return &Type{Name: name, Kind: KindPtr, Size: ptrSize, Elem: elem}
}

// ArrayOf returns an array type of n elements of elem.
func ArrayOf(elem *Type, n int64) *Type {
	size := int64(-1)
	if elem.HasSize() {
		size = elem.Size * n
	}
	return &Type{Name: fmt.Sprintf("%s [%d]", elem.Name, n), Kind: KindArray, Size: size, Elem: elem, Count: n}
}

// NewStruct returns a struct type with the given tag, size and fields.
func NewStruct(tag string, size int64, fields ...Field) *Type {
	return &Type{Name: tag, Tag: tag, Kind: KindStruct, Size: size, Fields: fields}
}
