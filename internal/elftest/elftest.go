// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elftest writes small little-endian ELF64 files for tests:
// kernel images with a symbol table, and core dumps with PT_LOAD
// segments and NT_PRSTATUS notes.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const pageSize = 0x1000

// A Segment is a PT_LOAD segment. Memsz defaults to len(Data).
type Segment struct {
	Vaddr uint64
	Flags elf.ProgFlag
	Data  []byte
	Memsz uint64
}

// A Symbol is an absolute global data symbol.
type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
}

// A File describes an ELF file to write.
type File struct {
	Type     elf.Type    // ET_EXEC or ET_CORE
	Machine  elf.Machine // defaults to EM_X86_64
	Segments []Segment
	Symbols  []Symbol
	// Threads adds one amd64 NT_PRSTATUS note per element, holding the
	// thread's pid, and rip and rsp set to PC and SP.
	Threads []Thread
}

// A Thread is the register state recorded for one thread or vCPU.
type Thread struct {
	Pid    uint32
	PC, SP uint64
}

var le = binary.LittleEndian

// Bytes returns the encoded file.
func (f *File) Bytes() []byte {
	machine := f.Machine
	if machine == 0 {
		machine = elf.EM_X86_64
	}
	notes := f.notes()
	nprog := len(f.Segments)
	if len(notes) > 0 {
		nprog++
	}

	var body bytes.Buffer
	const ehsize, phentsize, shentsize = 64, 56, 64
	phoff := uint64(ehsize)
	body.Write(make([]byte, ehsize+nprog*phentsize))

	var progs []elf.Prog64
	if len(notes) > 0 {
		off := uint64(body.Len())
		body.Write(notes)
		progs = append(progs, elf.Prog64{
			Type: uint32(elf.PT_NOTE), Off: off, Filesz: uint64(len(notes)), Align: 4,
		})
	}
	for _, s := range f.Segments {
		pad(&body, pageSize)
		off := uint64(body.Len())
		body.Write(s.Data)
		memsz := s.Memsz
		if memsz == 0 {
			memsz = uint64(len(s.Data))
		}
		progs = append(progs, elf.Prog64{
			Type: uint32(elf.PT_LOAD), Flags: uint32(s.Flags), Off: off,
			Vaddr: s.Vaddr, Paddr: s.Vaddr, Filesz: uint64(len(s.Data)), Memsz: memsz, Align: pageSize,
		})
	}

	var shoff uint64
	var shnum, shstrndx uint16
	if len(f.Symbols) > 0 {
		shoff, shnum, shstrndx = f.writeSections(&body)
	}

	b := body.Bytes()
	hdr := elf.Header64{
		Type:      uint16(f.Type),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(nprog),
		Shentsize: shentsize,
		Shnum:     shnum,
		Shstrndx:  shstrndx,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var hb bytes.Buffer
	binary.Write(&hb, le, &hdr)
	for i := range progs {
		binary.Write(&hb, le, &progs[i])
	}
	copy(b, hb.Bytes())
	return b
}

// writeSections appends .symtab, .strtab and .shstrtab and the section
// header table.
func (f *File) writeSections(body *bytes.Buffer) (shoff uint64, shnum, shstrndx uint16) {
	strtab := []byte{0}
	var syms bytes.Buffer
	binary.Write(&syms, le, &elf.Sym64{})
	for _, s := range f.Symbols {
		name := uint32(len(strtab))
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
		binary.Write(&syms, le, &elf.Sym64{
			Name:  name,
			Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT),
			Shndx: uint16(elf.SHN_ABS),
			Value: s.Value,
			Size:  s.Size,
		})
	}
	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")

	pad(body, 8)
	symOff := uint64(body.Len())
	body.Write(syms.Bytes())
	strOff := uint64(body.Len())
	body.Write(strtab)
	shstrOff := uint64(body.Len())
	body.Write(shstrtab)
	pad(body, 8)
	shoff = uint64(body.Len())

	shdrs := []elf.Section64{
		{},
		{Name: 1, Type: uint32(elf.SHT_SYMTAB), Off: symOff, Size: uint64(syms.Len()), Link: 2, Info: 1, Addralign: 8, Entsize: 24},
		{Name: 9, Type: uint32(elf.SHT_STRTAB), Off: strOff, Size: uint64(len(strtab)), Addralign: 1},
		{Name: 17, Type: uint32(elf.SHT_STRTAB), Off: shstrOff, Size: uint64(len(shstrtab)), Addralign: 1},
	}
	for i := range shdrs {
		binary.Write(body, le, &shdrs[i])
	}
	return shoff, uint16(len(shdrs)), 3
}

// notes encodes one CORE NT_PRSTATUS note per thread, laid out like the
// amd64 struct elf_prstatus.
func (f *File) notes() []byte {
	var b bytes.Buffer
	for _, t := range f.Threads {
		desc := make([]byte, 336)
		le.PutUint32(desc[32:], t.Pid)
		const regs = 112
		le.PutUint64(desc[regs+16*8:], t.PC) // rip
		le.PutUint64(desc[regs+19*8:], t.SP) // rsp
		name := []byte("CORE\x00\x00\x00\x00")
		binary.Write(&b, le, [3]uint32{5, uint32(len(desc)), uint32(elf.NT_PRSTATUS)})
		b.Write(name)
		b.Write(desc)
	}
	return b.Bytes()
}

func pad(b *bytes.Buffer, align int) {
	if n := b.Len() % align; n != 0 {
		b.Write(make([]byte, align-n))
	}
}

// Write writes f to a file in a temporary directory and returns its path.
func Write(t testing.TB, name string, f *File) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
