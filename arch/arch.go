// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch describes the machines whose kernels can be inspected:
// how wide a pointer is and which way round integers are stored.
package arch

import (
	"encoding/binary"
	"fmt"
)

// An Architecture is the data layout of a machine.
type Architecture struct {
	Name        string // as reported by core.Process.Arch
	PointerSize int
	ByteOrder   binary.ByteOrder
}

var (
	AMD64   = Architecture{Name: "amd64", PointerSize: 8, ByteOrder: binary.LittleEndian}
	X86     = Architecture{Name: "386", PointerSize: 4, ByteOrder: binary.LittleEndian}
	ARM64   = Architecture{Name: "arm64", PointerSize: 8, ByteOrder: binary.LittleEndian}
	RISCV64 = Architecture{Name: "riscv64", PointerSize: 8, ByteOrder: binary.LittleEndian}
)

var known = []Architecture{AMD64, X86, ARM64, RISCV64}

// ByName returns the architecture called name.
func ByName(name string) (Architecture, bool) {
	for _, a := range known {
		if a.Name == name {
			return a, true
		}
	}
	return Architecture{}, false
}

// UintN decodes buf as an unsigned integer. len(buf) must be 1, 2, 4 or 8.
func (a *Architecture) UintN(buf []byte) uint64 {
	switch n := len(buf); n {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(a.ByteOrder.Uint16(buf))
	case 4:
		return uint64(a.ByteOrder.Uint32(buf))
	case 8:
		return a.ByteOrder.Uint64(buf)
	default:
		panic(fmt.Sprintf("arch: no %d-byte integers", n))
	}
}

// IntN decodes buf as a two's complement integer, sign-extending it.
func (a *Architecture) IntN(buf []byte) int64 {
	shift := 64 - 8*uint(len(buf))
	return int64(a.UintN(buf)<<shift) >> shift
}

// PutUintN encodes the low len(buf) bytes of x into buf.
func (a *Architecture) PutUintN(buf []byte, x uint64) {
	switch n := len(buf); n {
	case 1:
		buf[0] = byte(x)
	case 2:
		a.ByteOrder.PutUint16(buf, uint16(x))
	case 4:
		a.ByteOrder.PutUint32(buf, uint32(x))
	case 8:
		a.ByteOrder.PutUint64(buf, x)
	default:
		panic(fmt.Sprintf("arch: no %d-byte integers", n))
	}
}
