// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ktype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	i := NewInt("int", 4)
	p := PointerTo(i, 8)
	assert.Equal(t, "int *", p.String())
	assert.Equal(t, "int **", PointerTo(p, 8).String())
	assert.Equal(t, "void *", PointerTo(nil, 8).String())
	assert.Equal(t, int64(8), p.Size)

	a := ArrayOf(i, 16)
	assert.Equal(t, "int [16]", a.String())
	assert.Equal(t, int64(64), a.Size)
	assert.Equal(t, int64(16), a.Count)
	assert.False(t, ArrayOf(&Type{Name: "incomplete", Size: -1}, 4).HasSize())

	s := NewStruct("proc", 8, Field{Name: "pid", Type: i})
	assert.Equal(t, "proc", s.Tag)
	assert.True(t, s.HasField("pid"))
}

func TestStrip(t *testing.T) {
	s := NewStruct("cpu", 16)
	td := &Type{Name: "cpu_t", Kind: KindTypedef, Size: 16, Elem: s}
	c := &Type{Name: "const cpu_t", Kind: KindTypedef, Size: 16, Elem: td}
	assert.Same(t, s, c.Strip())
	assert.Same(t, s, s.Strip())

	var void *Type
	assert.Nil(t, void.Strip())
	assert.Equal(t, "void", void.String())
	assert.False(t, void.HasSize())

	voidTypedef := &Type{Name: "nothing", Kind: KindTypedef}
	assert.False(t, voidTypedef.IsInteger())
	assert.False(t, voidTypedef.IsSigned())
}

func TestIntegerKinds(t *testing.T) {
	tests := []struct {
		typ             *Type
		integer, signed bool
	}{
		{NewInt("int", 4), true, true},
		{NewUint("unsigned", 4), true, false},
		{&Type{Name: "bool", Kind: KindBool, Size: 1}, true, false},
		{&Type{Name: "procstate", Kind: KindEnum, Size: 4}, true, true},
		{PointerTo(nil, 8), true, false},
		{&Type{Name: "double", Kind: KindFloat, Size: 8}, false, false},
		{NewStruct("cpu", 16), false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.integer, tt.typ.IsInteger(), tt.typ.Name)
		assert.Equal(t, tt.signed, tt.typ.IsSigned(), tt.typ.Name)
	}
}

func TestFieldErrors(t *testing.T) {
	_, err := NewInt("int", 4).Field("x")
	assert.ErrorContains(t, err, "not a structure or union")
	_, err = NewStruct("cpu", 16).Field("x")
	assert.ErrorContains(t, err, "no field named x")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "KindStruct", KindStruct.String())
	assert.Equal(t, "KindTypedef", KindTypedef.String())
}
