// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xv6kit/kview/internal/config"
	"github.com/xv6kit/kview/internal/hosttest"
	"github.com/xv6kit/kview/ktype"
)

// machine is a hosttest.Host whose thread selection can fail, as a
// target's does.
type machine struct {
	*hosttest.Host
}

func (m machine) SelectThread(num int) error {
	threads, _ := m.Threads()
	if num < 1 || num > len(threads) {
		return fmt.Errorf("no thread %d", num)
	}
	m.Host.SelectThread(num)
	return nil
}

// newTestSession returns a session over a two-CPU machine with an
// array of struct cpu and a per-CPU cell pcpu whose copies hold 5 and 6.
func newTestSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	h := hosttest.New()
	h.AddThread()
	h.AddThread()

	cpu := ktype.NewStruct("cpu", 8,
		ktype.Field{Name: "id", Off: 0, Type: hosttest.Int},
		ktype.Field{Name: "ncli", Off: 4, Type: hosttest.Int},
	)
	h.Define("cpus", 0x4000, ktype.ArrayOf(cpu, 2))
	h.PutUint(0x4000, 4, 0)
	h.PutUint(0x4004, 4, 1)
	h.PutUint(0x4008, 4, 1)
	h.PutUint(0x400c, 4, 0)

	h.Define("__percpu_start", 0x1000, nil)
	h.Define("mycpu_key", 0x1008, hosttest.Int)
	h.Define("percpu_offsets", 0x2000, ktype.ArrayOf(hosttest.Uint64, 2))
	h.PutUint(0x2000, 8, 0x10000)
	h.PutUint(0x2008, 8, 0x20000)
	h.PutUint(0x10008, 4, 5)
	h.PutUint(0x20008, 4, 6)
	h.Define("pcpu", 0x3000, ktype.NewStruct("static_percpu<int, &mycpu_key, false>", 1))

	t.Setenv("HOME", t.TempDir())
	c, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	s, err := newSession(machine{h}, c, zerolog.Nop())
	require.NoError(t, err)
	var out bytes.Buffer
	s.out = &out
	return s, &out
}

func TestShellPrint(t *testing.T) {
	s, out := newTestSession(t)
	require.NoError(t, s.exec("print cpus[1]"))
	require.NoError(t, s.exec("  p cpus[0].ncli + 1 "))
	require.NoError(t, s.exec("p $percpu(pcpu)"))
	assert.Equal(t, "{id = 1, ncli = 0}\n2\n5\n", out.String())
}

func TestShellPerCPU(t *testing.T) {
	s, out := newTestSession(t)
	require.NoError(t, s.exec("percpu pcpu, 1"))
	require.NoError(t, s.exec("percpu pcpu,0"))
	require.NoError(t, s.exec("thread 2"))
	require.NoError(t, s.exec("percpu pcpu"))
	require.NoError(t, s.exec("thread"))
	assert.Equal(t, "6\n5\n6\ncurrent thread is 2 (cpu 1)\n", out.String())
}

func TestShellPerCPUExpressions(t *testing.T) {
	s, out := newTestSession(t)
	// The CPU argument may contain spaces, operators and nested commas.
	require.NoError(t, s.exec("percpu pcpu, cpus[0].id + 1"))
	require.NoError(t, s.exec("percpu pcpu, cpus[1] . id - 1"))
	require.NoError(t, s.exec("percpu pcpu, $percpu(pcpu, 0) - 4"))
	assert.Equal(t, "6\n5\n6\n", out.String())
}

func TestShellThreads(t *testing.T) {
	s, out := newTestSession(t)
	require.NoError(t, s.exec("thread 2"))
	require.NoError(t, s.threads())
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "thread")
	assert.NotContains(t, string(lines[1]), "*")
	assert.Contains(t, string(lines[2]), "*")
}

func TestShellErrors(t *testing.T) {
	s, out := newTestSession(t)
	assert.NoError(t, s.exec(""))
	assert.ErrorContains(t, s.exec("print"), "missing expression")
	assert.ErrorContains(t, s.exec("percpu"), "usage")
	assert.ErrorContains(t, s.exec("percpu pcpu 1"), "syntax error")
	assert.ErrorContains(t, s.exec("percpu pcpu, 1, 2"), "takes 1 or 2 arguments")
	assert.ErrorContains(t, s.exec("percpu cpus"), "not a static_percpu")
	assert.ErrorContains(t, s.exec("thread 0"), "bad thread number")
	assert.ErrorContains(t, s.exec("thread 9"), "no thread 9")
	assert.ErrorContains(t, s.exec("frobnicate"), "unknown command")
	assert.ErrorContains(t, s.exec("p nosuch"), `no symbol "nosuch"`)
	assert.Equal(t, errQuit, s.exec("quit"))
	assert.Empty(t, out.String(), "failed commands print nothing")

	require.NoError(t, s.exec("help"))
	assert.Contains(t, out.String(), "percpu <cell>[, cpu]")
}

func TestShellRead(t *testing.T) {
	s, out := newTestSession(t)
	require.NoError(t, s.exec("read/8 &cpus[1]"))
	require.NoError(t, s.exec("read/0x10 0x4000"))
	assert.Equal(t, "4008: 01 00 00 00 00 00 00 00\n"+
		"4000: 00 00 00 00 01 00 00 00 01 00 00 00 00 00 00 00\n", out.String())

	out.Reset()
	assert.ErrorContains(t, s.exec("read"), "missing address")
	assert.ErrorContains(t, s.exec("read/0 cpus"), "bad byte count")
	assert.ErrorContains(t, s.exec("read/0x14 0x4000"), "cannot access memory")
	assert.ErrorContains(t, s.exec("print/4 cpus"), "takes no /count")
	assert.ErrorContains(t, s.exec("mappings"), "no memory map")
	assert.Empty(t, out.String())
}
