// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xv6kit/kview/internal/elftest"
)

const kernBase = 0xffffffff80000000

func page(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 0x1000)
}

func kernel() *elftest.File {
	text := page(0x90)
	data := page(0)
	copy(data, "initial")
	return &elftest.File{
		Type: elf.ET_EXEC,
		Segments: []elftest.Segment{
			{Vaddr: kernBase + 0x1000, Flags: elf.PF_R | elf.PF_X, Data: text},
			{Vaddr: kernBase + 0x2000, Flags: elf.PF_R | elf.PF_W, Data: data, Memsz: 0x3000},
		},
		Symbols: []elftest.Symbol{
			{Name: "main", Value: kernBase + 0x1000},
			{Name: "greeting", Value: kernBase + 0x2000, Size: 8},
			{Name: "ncpu", Value: kernBase + 0x3000, Size: 4},
		},
	}
}

func TestPermString(t *testing.T) {
	assert.Equal(t, "r-x", (Read | Exec).String())
	assert.Equal(t, "rw-", (Read | Write).String())
	assert.Equal(t, "---", Perm(0).String())
}

func TestSplicedMemory(t *testing.T) {
	var s splicedMemory
	s.Add(0x1000, 0x4000, Read, nil, 0)
	s.Add(0x2000, 0x3000, Read|Write, nil, 0)
	s.Add(0x5000, 0x5000, Read, nil, 0) // empty, ignored

	type span struct {
		min, max Address
		perm     Perm
	}
	var got []span
	for _, m := range s.mappings {
		got = append(got, span{m.min, m.max, m.perm})
	}
	assert.ElementsMatch(t, []span{
		{0x1000, 0x2000, Read},
		{0x3000, 0x4000, Read},
		{0x2000, 0x3000, Read | Write},
	}, got)
}

func TestPageTable(t *testing.T) {
	var p Process
	m := &Mapping{min: kernBase, max: kernBase + 0x2000, perm: Read}
	require.NoError(t, p.addMapping(m))

	assert.Same(t, m, p.findMapping(kernBase))
	assert.Same(t, m, p.findMapping(kernBase+0x1fff))
	assert.Nil(t, p.findMapping(kernBase+0x2000))
	assert.Nil(t, p.findMapping(0x1000))

	assert.Error(t, p.addMapping(&Mapping{min: 0x10, max: 0x1000}))
	assert.Error(t, p.addMapping(&Mapping{min: 0x1000, max: 0x1010}))
}

func TestImage(t *testing.T) {
	p, err := Image(elftest.Write(t, "kernel", kernel()))
	require.NoError(t, err)
	defer p.Close()

	assert.False(t, p.IsCore())
	assert.Equal(t, "amd64", p.Arch())
	assert.Equal(t, int64(8), p.PtrSize())
	assert.Empty(t, p.Threads())

	syms, err := p.Symbols()
	require.NoError(t, err)
	assert.Equal(t, Address(kernBase+0x2000), syms["greeting"])

	b := make([]byte, 7)
	require.NoError(t, p.ReadAt(b, kernBase+0x2000))
	assert.Equal(t, "initial", string(b))

	// .bss reads as zero.
	n, err := p.ReadUint32(kernBase + 0x3000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)

	x, err := p.ReadUint8(kernBase + 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x90), x)

	_, err = p.ReadUint64(kernBase + 0x5000)
	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, Address(kernBase+0x5000), re.Addr)
	assert.True(t, p.Readable(kernBase+0x4fff))
	assert.False(t, p.ReadableN(kernBase+0x4ff0, 0x20))

	_, err = p.DWARF()
	assert.Error(t, err, "the test image has no debug information")
}

func TestCore(t *testing.T) {
	live := page(0)
	copy(live, "running")
	live[0x1000-8] = 4 // last word of the page
	dump := &elftest.File{
		Type: elf.ET_CORE,
		Segments: []elftest.Segment{
			{Vaddr: kernBase + 0x2000, Flags: elf.PF_R | elf.PF_W, Data: live},
		},
		Threads: []elftest.Thread{
			{Pid: 1, PC: kernBase + 0x1010, SP: kernBase + 0x2ff0},
			{Pid: 2, PC: kernBase + 0x1020, SP: kernBase + 0x2fe0},
		},
	}
	exe := elftest.Write(t, "kernel", kernel())
	p, err := Core(elftest.Write(t, "vmcore", dump), exe)
	require.NoError(t, err)
	defer p.Close()

	assert.True(t, p.IsCore())
	threads := p.Threads()
	require.Len(t, threads, 2)
	for i, th := range threads {
		assert.Equal(t, i+1, th.Num())
		assert.Equal(t, uint64(i+1), th.Pid())
		assert.Equal(t, dump.Threads[i].PC, uint64(th.PC()))
		assert.Equal(t, dump.Threads[i].SP, uint64(th.SP()))
	}

	// The dump shadows the image.
	b := make([]byte, 7)
	require.NoError(t, p.ReadAt(b, kernBase+0x2000))
	assert.Equal(t, "running", string(b))
	v, err := p.ReadUint64(kernBase + 0x2ff8)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), v)
	ptr, err := p.ReadPtr(kernBase + 0x2ff8)
	require.NoError(t, err)
	assert.Equal(t, Address(4), ptr)

	// Text the dump does not carry comes from the image.
	x, err := p.ReadUint8(kernBase + 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x90), x)
}

func TestCoreRejectsImage(t *testing.T) {
	path := elftest.Write(t, "kernel", kernel())
	_, err := Core(path, "")
	assert.ErrorContains(t, err, "not a core file")
}

func TestCoreWithoutImage(t *testing.T) {
	dump := &elftest.File{
		Type: elf.ET_CORE,
		Segments: []elftest.Segment{
			{Vaddr: kernBase + 0x2000, Flags: elf.PF_R | elf.PF_W, Data: page(7)},
		},
		Threads: []elftest.Thread{{Pid: 1, PC: kernBase + 0x1000, SP: kernBase + 0x2800}},
	}
	p, err := Core(elftest.Write(t, "vmcore", dump), "")
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Symbols()
	assert.Error(t, err)
	_, err = p.DWARF()
	assert.Error(t, err)
	assert.Len(t, p.Threads(), 1)
	assert.Empty(t, p.Warnings())

	x, err := p.ReadUint8(kernBase + 0x2abc)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), x)
	assert.False(t, p.Readable(kernBase+0x1000))
}

func TestCoreMissingData(t *testing.T) {
	// The dump holds only text, so the image's writable data is stale.
	dump := &elftest.File{
		Type: elf.ET_CORE,
		Segments: []elftest.Segment{
			{Vaddr: kernBase + 0x1000, Flags: elf.PF_R | elf.PF_X, Data: page(0xcc)},
		},
	}
	p, err := Core(elftest.Write(t, "vmcore", dump), elftest.Write(t, "kernel", kernel()))
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Warnings(), 1)
	assert.Contains(t, p.Warnings()[0], "missing from dump")
	b := make([]byte, 7)
	require.NoError(t, p.ReadAt(b, kernBase+0x2000))
	assert.Equal(t, "initial", string(b))
	x, err := p.ReadUint8(kernBase + 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xcc), x)
	assert.Empty(t, p.Threads())
}
