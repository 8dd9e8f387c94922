// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

// A Thread represents an OS thread of the inferior. In a kernel dump
// taken by a hypervisor each thread is one virtual CPU.
type Thread struct {
	num int     // 1-based, in note order
	pid uint64  // thread ID
	pc  Address // program counter
	sp  Address // stack pointer
}

// Num returns the 1-based number of the thread, in the order the
// threads appear in the core file.
func (t *Thread) Num() int {
	return t.num
}

// Pid returns the thread ID recorded in the core.
func (t *Thread) Pid() uint64 {
	return t.pid
}

func (t *Thread) PC() Address {
	return t.pc
}

func (t *Thread) SP() Address {
	return t.sp
}
