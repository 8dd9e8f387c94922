// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntN(t *testing.T) {
	a := AMD64
	tests := []struct {
		buf []byte
		u   uint64
		i   int64
	}{
		{[]byte{0xff}, 0xff, -1},
		{[]byte{0x7f}, 0x7f, 127},
		{[]byte{0xfe, 0xff}, 0xfffe, -2},
		{[]byte{0xfb, 0xff, 0xff, 0xff}, 0xfffffffb, -5},
		{[]byte{1, 0, 0, 0, 0, 0, 0, 0x80}, 0x8000000000000001, -0x7fffffffffffffff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.u, a.UintN(tt.buf), "% x", tt.buf)
		assert.Equal(t, tt.i, a.IntN(tt.buf), "% x", tt.buf)
	}
}

func TestPutUintN(t *testing.T) {
	be := Architecture{Name: "be", PointerSize: 4, ByteOrder: binary.BigEndian}
	b := make([]byte, 4)
	be.PutUintN(b, 0x11223344)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, b)
	assert.Equal(t, uint64(0x11223344), be.UintN(b))

	a := X86
	a.PutUintN(b, 0x1_0000_0005)
	assert.Equal(t, []byte{5, 0, 0, 0}, b, "high bits are dropped")

	assert.Panics(t, func() { a.UintN(make([]byte, 3)) })
	assert.Panics(t, func() { a.PutUintN(make([]byte, 16), 0) })
}

func TestByName(t *testing.T) {
	a, ok := ByName("riscv64")
	assert.True(t, ok)
	assert.Equal(t, 8, a.PointerSize)
	_, ok = ByName("mips")
	assert.False(t, ok)
}
