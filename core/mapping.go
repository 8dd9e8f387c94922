// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"os"
)

// A Mapping is a page-aligned range of the inferior's address space
// with uniform permissions and a single backing source.
type Mapping struct {
	min, max Address
	perm     Perm

	f   *os.File // nil for zero-filled memory
	off int64    // offset of min in f

	contents []byte // len is max-min
}

// Min returns the lowest virtual address of the mapping.
func (m *Mapping) Min() Address { return m.min }

// Max returns the virtual address of the byte just beyond the mapping.
func (m *Mapping) Max() Address { return m.max }

// Size returns the length of the mapping in bytes.
func (m *Mapping) Size() int64 { return m.max.Sub(m.min) }

// Perm returns the permissions on the mapping.
func (m *Mapping) Perm() Perm { return m.perm }

// Source returns the file the mapping is read from and the offset of
// its first byte, or "", 0 for zero-filled memory.
func (m *Mapping) Source() (string, int64) {
	if m.f == nil {
		return "", 0
	}
	return m.f.Name(), m.off
}

// A Perm is a set of access rights to a Mapping.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
)

// String returns the permissions in ls(1) style, e.g. "r-x".
func (p Perm) String() string {
	s := [3]byte{'-', '-', '-'}
	for i, bit := range [...]Perm{Read, Write, Exec} {
		if p&bit != 0 {
			s[i] = "rwx"[i]
		}
	}
	return string(s[:])
}

// splicedMemory is a list of non-overlapping mappings. A mapping added
// later replaces whatever parts of earlier ones it covers, which is how
// the dump comes to shadow the kernel image.
type splicedMemory struct {
	mappings []*Mapping
}

func (s *splicedMemory) Add(min, max Address, perm Perm, f *os.File, off int64) {
	if min >= max {
		return
	}
	kept := s.mappings[:0:0]
	for _, m := range s.mappings {
		if m.max <= min || max <= m.min {
			kept = append(kept, m)
			continue
		}
		// Keep whatever sticks out on either side.
		if m.min < min {
			kept = append(kept, &Mapping{min: m.min, max: min, perm: m.perm, f: m.f, off: m.off})
		}
		if max < m.max {
			tail := &Mapping{min: max, max: m.max, perm: m.perm, f: m.f}
			if m.f != nil {
				tail.off = m.off + max.Sub(m.min)
			}
			kept = append(kept, tail)
		}
	}
	s.mappings = append(kept, &Mapping{min: min, max: max, perm: perm, f: f, off: off})
}

// A pageTable finds the mapping holding a 4K page. It is a radix tree
// over the 52-bit page number, four levels of 13 bits each.
type pageTable struct {
	root *pageNode
}

const (
	pageShift  = 12
	levelBits  = 13
	pageLevels = 4
	levelMask  = 1<<levelBits - 1
)

// A pageNode is an interior node (dirs set) or a leaf (pages set).
type pageNode struct {
	dirs  []*pageNode
	pages []*Mapping
}

func newPageNode(leaf bool) *pageNode {
	if leaf {
		return &pageNode{pages: make([]*Mapping, 1<<levelBits)}
	}
	return &pageNode{dirs: make([]*pageNode, 1<<levelBits)}
}

// index returns the slot for page at the given level; level 0 is the leaf.
func index(page uint64, level int) uint64 {
	return page >> (level * levelBits) & levelMask
}

func (t *pageTable) lookup(a Address) *Mapping {
	page := uint64(a) >> pageShift
	n := t.root
	for level := pageLevels - 1; n != nil; level-- {
		if level == 0 {
			return n.pages[index(page, 0)]
		}
		n = n.dirs[index(page, level)]
	}
	return nil
}

func (t *pageTable) insert(a Address, m *Mapping) {
	page := uint64(a) >> pageShift
	if t.root == nil {
		t.root = newPageNode(false)
	}
	n := t.root
	for level := pageLevels - 1; level > 0; level-- {
		i := index(page, level)
		if n.dirs[i] == nil {
			n.dirs[i] = newPageNode(level == 1)
		}
		n = n.dirs[i]
	}
	n.pages[index(page, 0)] = m
}

func (p *Process) findMapping(a Address) *Mapping {
	return p.pages.lookup(a)
}

// addMapping enters every page of m into the page table. m must be
// page-aligned at both ends.
func (p *Process) addMapping(m *Mapping) error {
	const page = 1 << pageShift
	if m.min%page != 0 || m.max%page != 0 {
		return fmt.Errorf("mapping [%x %x] is not aligned to %d bytes", m.min, m.max, page)
	}
	for a := m.min; a < m.max; a += page {
		p.pages.insert(a, m)
	}
	return nil
}
