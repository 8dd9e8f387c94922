// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import "fmt"

// A ReadError is returned when the inferior is not readable at
// the address requested.
type ReadError struct {
	Addr Address
	Len  int64
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("cannot access memory at address %#x (%d bytes)", uint64(e.Addr), e.Len)
}

// ReadAt reads len(b) bytes at address a in the inferior
// and stores them in b.
func (p *Process) ReadAt(b []byte, a Address) error {
	start, n := a, int64(len(b))
	for len(b) > 0 {
		m := p.findMapping(a)
		if m == nil || m.perm&Read == 0 {
			return &ReadError{Addr: start, Len: n}
		}
		k := copy(b, m.contents[a.Sub(m.min):])
		b = b[k:]
		a = a.Add(int64(k))
	}
	return nil
}

// ReadUint8 returns a uint8 read from address a of the inferior.
func (p *Process) ReadUint8(a Address) (uint8, error) {
	var buf [1]byte
	if err := p.ReadAt(buf[:], a); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint32 returns a uint32 read from address a of the inferior.
func (p *Process) ReadUint32(a Address) (uint32, error) {
	var buf [4]byte
	if err := p.ReadAt(buf[:], a); err != nil {
		return 0, err
	}
	return p.byteOrder.Uint32(buf[:]), nil
}

// ReadUint64 returns a uint64 read from address a of the inferior.
func (p *Process) ReadUint64(a Address) (uint64, error) {
	var buf [8]byte
	if err := p.ReadAt(buf[:], a); err != nil {
		return 0, err
	}
	return p.byteOrder.Uint64(buf[:]), nil
}

// ReadPtr returns a pointer loaded from address a of the inferior.
func (p *Process) ReadPtr(a Address) (Address, error) {
	if p.ptrSize == 4 {
		x, err := p.ReadUint32(a)
		return Address(x), err
	}
	x, err := p.ReadUint64(a)
	return Address(x), err
}
