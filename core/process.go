// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The core library is used to process ELF kernel dumps and ELF kernel
// images. You can open a dump and read from addresses in the machine
// that was dumped, called the "inferior". Some ancillary information
// about the inferior is also provided: architecture, symbols, DWARF and
// the register state of each virtual CPU.
//
// There's nothing language-specific about this library. See ../target
// for the next layer up, which attaches types to symbols.
//
// The Read* operations all return a *ReadError if the inferior is not
// readable at the address requested.
package core

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// A Process represents the state of the machine that was dumped, or,
// for a process opened with Image, the state of a kernel image before
// it boots.
type Process struct {
	exe  *os.File // kernel image, nil if not given
	core *os.File // dump, nil for images

	memory  splicedMemory
	pages   pageTable
	threads []*Thread // virtual CPUs, in note order

	arch      string
	ptrSize   int64
	byteOrder binary.ByteOrder

	syms     map[string]Address // empty without a kernel image
	symErr   error
	dwarf    *dwarf.Data
	dwarfErr error

	warnings []string
}

// Mappings returns the virtual memory mappings of p, sorted by address.
func (p *Process) Mappings() []*Mapping {
	return p.memory.mappings
}

// Readable reports whether the address a is readable.
func (p *Process) Readable(a Address) bool {
	m := p.findMapping(a)
	return m != nil && m.perm&Read != 0
}

// ReadableN reports whether the n bytes starting at address a are readable.
func (p *Process) ReadableN(a Address, n int64) bool {
	for n > 0 {
		m := p.findMapping(a)
		if m == nil || m.perm&Read == 0 {
			return false
		}
		k := m.max.Sub(a)
		n -= k
		a = a.Add(k)
	}
	return true
}

// Threads returns the virtual CPUs of the inferior. Images have none.
func (p *Process) Threads() []*Thread {
	return p.threads
}

// Arch returns the Go name of the inferior's architecture, e.g. "amd64".
func (p *Process) Arch() string {
	return p.arch
}

// PtrSize returns the size in bytes of a pointer in the inferior.
func (p *Process) PtrSize() int64 {
	return p.ptrSize
}

func (p *Process) ByteOrder() binary.ByteOrder {
	return p.byteOrder
}

// DWARF returns the debug information of the kernel image. A missing or
// unreadable image is reported here rather than when p is opened.
func (p *Process) DWARF() (*dwarf.Data, error) {
	return p.dwarf, p.dwarfErr
}

// Symbols returns a mapping from name to inferior address, along with
// any error encountered during reading the symbol information.
// (There may be both an error and some returned symbols.)
func (p *Process) Symbols() (map[string]Address, error) {
	return p.syms, p.symErr
}

// IsCore reports whether p was loaded from a dump.
func (p *Process) IsCore() bool {
	return p.core != nil
}

// Warnings returns the problems found while loading that did not
// prevent it.
func (p *Process) Warnings() []string {
	return p.warnings
}

func (p *Process) warnf(format string, args ...interface{}) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// mapFile returns length bytes of f at offset. It is replaced by mmap
// where the platform has it.
var mapFile = func(f *os.File, offset int64, length int) ([]byte, error) {
	return readFile(f, offset, int64(length))
}

// Core opens the kernel dump coreFile. exePath names the kernel image
// the dump was taken from; it supplies symbols, debug information and
// the contents of memory the dump left out (kernel text, usually). It
// may be empty, in which case only raw memory and threads are available.
func Core(coreFile, exePath string) (*Process, error) {
	p := &Process{}
	if err := p.readCore(coreFile, exePath); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Image opens the kernel image at exePath. Its memory is the loadable
// contents of the image, as they would be before the kernel boots;
// zero-filled regions (like .bss) read as zero.
func Image(exePath string) (*Process, error) {
	p := &Process{}
	if err := p.readImage(exePath); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Process) readCore(coreFile, exePath string) error {
	var err error
	if p.core, err = os.Open(coreFile); err != nil {
		return fmt.Errorf("failed to open core file: %v", err)
	}
	if exePath != "" {
		if p.exe, err = os.Open(exePath); err != nil {
			return fmt.Errorf("failed to open kernel image: %v", err)
		}
	}

	dump, err := elf.NewFile(p.core)
	if err != nil {
		return err
	}
	if dump.Type != elf.ET_CORE {
		return fmt.Errorf("%s is not a core file", coreFile)
	}
	if err := p.setArch(dump); err != nil {
		return err
	}

	// Image segments go in first so that the dump shadows them.
	var image *elf.File
	if p.exe != nil {
		if image, err = elf.NewFile(p.exe); err != nil {
			return err
		}
		if image.Machine != dump.Machine {
			p.warnf("kernel image is for %s but the dump is for %s", image.Machine, dump.Machine)
		}
		p.addSegments(p.exe, image)
	}
	p.addSegments(p.core, dump)
	for _, prog := range dump.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}
		if err := p.readNotes(io.NewSectionReader(p.core, int64(prog.Off), int64(prog.Filesz))); err != nil {
			return err
		}
	}

	p.readDebugInfo(image)
	return p.buildMemory()
}

func (p *Process) readImage(exePath string) error {
	var err error
	if p.exe, err = os.Open(exePath); err != nil {
		return fmt.Errorf("failed to open kernel image: %v", err)
	}
	image, err := elf.NewFile(p.exe)
	if err != nil {
		return err
	}
	if err := p.setArch(image); err != nil {
		return err
	}
	p.addSegments(p.exe, image)
	p.readDebugInfo(image)
	return p.buildMemory()
}

// Close releases the files backing p. Memory read from p before Close
// must not be used afterwards.
func (p *Process) Close() error {
	var errs []error
	for _, f := range []*os.File{p.core, p.exe} {
		if f != nil {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

var machines = map[elf.Machine]string{
	elf.EM_386:     "386",
	elf.EM_X86_64:  "amd64",
	elf.EM_ARM:     "arm",
	elf.EM_AARCH64: "arm64",
	elf.EM_RISCV:   "riscv64",
}

func (p *Process) setArch(e *elf.File) error {
	switch e.Class {
	case elf.ELFCLASS32:
		p.ptrSize = 4
	case elf.ELFCLASS64:
		p.ptrSize = 8
	default:
		return fmt.Errorf("unknown elf class %s", e.Class)
	}
	arch, ok := machines[e.Machine]
	if !ok {
		return fmt.Errorf("unknown arch %s", e.Machine)
	}
	p.arch = arch
	p.byteOrder = e.ByteOrder
	return nil
}

// addSegments adds a mapping for each PT_LOAD segment of e, backed by f.
func (p *Process) addSegments(f *os.File, e *elf.File) {
	const page = 1 << 12
	for _, prog := range e.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		var perm Perm
		if prog.Flags&elf.PF_R != 0 {
			perm |= Read
		}
		if prog.Flags&elf.PF_W != 0 {
			perm |= Write
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= Exec
		}
		if perm == 0 {
			continue
		}

		// QEMU and the kernel linker script both produce page-aligned
		// segments, but a hand-built image need not. Widen to whole
		// pages, moving the file offset down with the start.
		start, off := Address(prog.Vaddr), int64(prog.Off)
		if pad := int64(start % page); pad != 0 && pad <= off {
			start, off = start.Add(-pad), off-pad
		}
		end := Address(prog.Vaddr).Add(int64(prog.Memsz)).Align(page)
		filled := Address(prog.Vaddr).Add(int64(prog.Filesz)).Align(page)
		if filled > end {
			filled = end
		}

		if prog.Filesz > 0 {
			p.memory.Add(start, filled, perm, f, off)
		}
		if filled < end {
			// The tail has no file data (.bss).
			p.memory.Add(filled.Max(start), end, perm, nil, 0)
		}
	}
}

// buildMemory merges adjacent mappings, loads their contents and
// builds the page table.
func (p *Process) buildMemory() error {
	ms := p.memory.mappings
	if len(ms) == 0 {
		return fmt.Errorf("no loadable memory found")
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].min < ms[j].min })
	merged := ms[:1]
	for _, m := range ms[1:] {
		last := merged[len(merged)-1]
		if m.min == last.max && m.perm == last.perm && m.f == last.f && (m.f == nil || m.off == last.off+last.Size()) {
			last.max = m.max
			continue
		}
		merged = append(merged, m)
	}
	p.memory.mappings = merged

	for _, m := range merged {
		if err := p.load(m); err != nil {
			return err
		}
		if err := p.addMapping(m); err != nil {
			return err
		}
	}
	return nil
}

// load fills in the contents of m.
func (p *Process) load(m *Mapping) error {
	size := m.Size()
	switch {
	case m.f == nil:
		m.contents = make([]byte, size)
	case m.f == p.core:
		// Dump offsets need not be aligned to the host's pages, so map
		// whole pages around the segment and trim.
		hostPage := int64(os.Getpagesize())
		lo := m.off - m.off%hostPage
		hi := m.off + size
		if r := hi % hostPage; r != 0 {
			hi += hostPage - r
		}
		data, err := mapFile(m.f, lo, int(hi-lo))
		if err != nil {
			return fmt.Errorf("can't memory map %s at %x: %v", m.f.Name(), lo, err)
		}
		m.contents = data[m.off-lo : m.off-lo+size]
	default:
		// Image segments are read, not mapped. Writable ones may have
		// changed since boot when the dump lacks them.
		data, err := readFile(m.f, m.off, size)
		if err != nil {
			return fmt.Errorf("can't read %s at %x: %v", m.f.Name(), m.off, err)
		}
		if m.perm&Write != 0 && p.core != nil {
			p.warnf("writeable data at [%x %x] missing from dump; using the kernel image's initial contents", m.min, m.max)
		}
		m.contents = data
	}
	return nil
}

// readFile reads n bytes at off in f. Bytes past the end of f read as zero.
func readFile(f *os.File, off, n int64) ([]byte, error) {
	data := make([]byte, n)
	if _, err := f.ReadAt(data, off); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}

// readNotes reads the notes of a PT_NOTE segment. Only the CORE
// NT_PRSTATUS notes are used; QEMU adds its own register notes, and a
// process dump's file and auxv notes mean nothing for a kernel.
func (p *Process) readNotes(r io.Reader) error {
	align4 := func(n uint32) int64 { return int64(n+3) &^ 3 }
	for {
		var hdr [3]uint32 // namesz, descsz, type
		if err := binary.Read(r, p.byteOrder, &hdr); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("truncated note")
		}
		name := make([]byte, align4(hdr[0]))
		desc := make([]byte, align4(hdr[1]))
		if _, err := io.ReadFull(r, name); err != nil {
			return fmt.Errorf("truncated note")
		}
		// The last descriptor may omit its padding.
		if n, err := io.ReadFull(r, desc); err != nil && n < int(hdr[1]) {
			return fmt.Errorf("truncated note")
		}
		if hdr[0] == 0 || string(name[:hdr[0]-1]) != "CORE" || elf.NType(hdr[2]) != elf.NT_PRSTATUS {
			continue
		}
		if err := p.readPRStatus(desc[:hdr[1]]); err != nil {
			return fmt.Errorf("reading NT_PRSTATUS: %v", err)
		}
	}
}

// prStatusLayout describes where struct elf_prstatus keeps the thread
// ID and the general registers, and which of those are the PC and SP.
type prStatusLayout struct {
	pidOff  int
	regOff  int
	nregs   int
	pcIndex int
	spIndex int
}

// Register numberings are listed in sys/user.h of each architecture.
var prStatusLayouts = map[string]prStatusLayout{
	// amd64: r15 r14 r13 r12 rbp rbx r11 r10 r9 r8 rax rcx rdx rsi rdi
	// orig_rax rip cs eflags rsp ss fs_base gs_base ds es fs gs
	"amd64": {pidOff: 32, regOff: 112, nregs: 27, pcIndex: 16, spIndex: 19},
	// 386: ebx ecx edx esi edi ebp eax ds es fs gs orig_eax eip cs
	// eflags esp ss
	"386": {pidOff: 24, regOff: 72, nregs: 17, pcIndex: 12, spIndex: 15},
	// arm64: x0-x30 sp pc pstate
	"arm64": {pidOff: 32, regOff: 112, nregs: 34, pcIndex: 32, spIndex: 31},
	// riscv64: pc ra sp gp ...
	"riscv64": {pidOff: 32, regOff: 112, nregs: 32, pcIndex: 0, spIndex: 2},
}

// readPRStatus adds the thread described by one NT_PRSTATUS note. QEMU's
// dump-guest-memory writes one per virtual CPU, in CPU order.
func (p *Process) readPRStatus(desc []byte) error {
	t := &Thread{num: len(p.threads) + 1}
	p.threads = append(p.threads, t)
	l, ok := prStatusLayouts[p.arch]
	if !ok {
		p.warnf("registers for %s threads are not decoded", p.arch)
		return nil
	}
	w := int(p.ptrSize)
	if len(desc) < l.regOff+l.nregs*w {
		return fmt.Errorf("prstatus too short: %d bytes", len(desc))
	}
	t.pid = uint64(p.byteOrder.Uint32(desc[l.pidOff:]))
	reg := func(i int) Address {
		r := desc[l.regOff+i*w:]
		if w == 4 {
			return Address(p.byteOrder.Uint32(r))
		}
		return Address(p.byteOrder.Uint64(r))
	}
	t.pc = reg(l.pcIndex)
	t.sp = reg(l.spIndex)
	return nil
}

// readDebugInfo reads symbols and DWARF from the kernel image. Problems
// are recorded for Symbols and DWARF to report; they do not stop loading.
func (p *Process) readDebugInfo(image *elf.File) {
	p.syms = map[string]Address{}
	if image == nil {
		p.symErr = errors.New("no kernel image")
		p.dwarfErr = p.symErr
		return
	}
	if syms, err := image.Symbols(); err != nil {
		p.symErr = fmt.Errorf("can't read symbols from %s: %v", p.exe.Name(), err)
	} else {
		addSymbols(p.syms, syms)
	}
	if p.dwarf, p.dwarfErr = image.DWARF(); p.dwarfErr != nil {
		p.dwarfErr = fmt.Errorf("can't read DWARF info from %s: %v", p.exe.Name(), p.dwarfErr)
	}
}

// addSymbols adds named symbols to m. Global symbols win over local
// ones of the same name; otherwise the first one seen is kept.
func addSymbols(m map[string]Address, syms []elf.Symbol) {
	global := map[string]bool{}
	for _, s := range syms {
		if s.Name == "" || elf.ST_TYPE(s.Info) == elf.STT_SECTION || elf.ST_TYPE(s.Info) == elf.STT_FILE {
			continue
		}
		isGlobal := elf.ST_BIND(s.Info) != elf.STB_LOCAL
		if _, ok := m[s.Name]; ok && (global[s.Name] || !isGlobal) {
			continue
		}
		m[s.Name] = Address(s.Value)
		global[s.Name] = isGlobal
	}
}
