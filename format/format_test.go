// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package format_test

import (
	"iter"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xv6kit/kview/core"
	"github.com/xv6kit/kview/format"
	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/internal/hosttest"
	"github.com/xv6kit/kview/ktype"
	"github.com/xv6kit/kview/printers"
	"github.com/xv6kit/kview/xv6"
)

var procstate = &ktype.Type{
	Name: "procstate", Tag: "procstate", Kind: ktype.KindEnum, Size: 4,
	Enumerators: []ktype.Enumerator{{Name: "UNUSED", Val: 0}, {Name: "RUNNING", Val: 3}},
}

func sprint(t *testing.T, reg *host.Registry, v host.Value) string {
	t.Helper()
	s, err := format.Value(reg, v)
	require.NoError(t, err)
	return s
}

func TestScalars(t *testing.T) {
	h := hosttest.New()
	proc := ktype.NewStruct("proc", 16)
	double := &ktype.Type{Name: "double", Kind: ktype.KindFloat, Size: 8}
	float := &ktype.Type{Name: "float", Kind: ktype.KindFloat, Size: 4}
	pid := &ktype.Type{Name: "pid_t", Kind: ktype.KindTypedef, Size: 4, Elem: hosttest.Int}
	boolean := &ktype.Type{Name: "bool", Kind: ktype.KindBool, Size: 1}

	h.PutUint(0x100, 4, uint64(0xfffffffb)) // -5
	h.PutUint(0x108, 8, 7)
	h.PutUint(0x110, 1, 1)
	h.PutUint(0x114, 4, 3)
	h.PutUint(0x118, 4, 9)
	h.PutUint(0x11c, 1, 'A')
	h.PutPtr(0x120, 0x4000)
	h.PutPtr(0x128, 0)
	h.PutUint(0x130, 8, math.Float64bits(1.5))
	h.PutUint(0x138, 4, uint64(math.Float32bits(0.25)))

	tests := []struct {
		typ  *ktype.Type
		addr core.Address
		want string
	}{
		{hosttest.Int, 0x100, "-5"},
		{pid, 0x100, "-5"},
		{hosttest.Uint64, 0x108, "7"},
		{boolean, 0x110, "true"},
		{procstate, 0x114, "RUNNING"},
		{procstate, 0x118, "9"},
		{hosttest.Char, 0x11c, "65 'A'"},
		{h.Ptr(proc), 0x120, "(proc *) 0x4000"},
		{h.Ptr(proc), 0x128, "(proc *) 0x0"},
		{double, 0x130, "1.5"},
		{float, 0x138, "0.25"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sprint(t, nil, host.At(h, tt.typ, tt.addr)), "%s at %#x", tt.typ, tt.addr)
	}
	assert.Equal(t, "12", sprint(t, nil, host.Int(h, 12)))
}

func TestStructAndArray(t *testing.T) {
	h := hosttest.New()
	proc := ktype.NewStruct("proc", 16)
	proc.Fields = []ktype.Field{
		{Name: "pid", Off: 0, Type: hosttest.Int},
		{Name: "state", Off: 4, Type: procstate},
		{Name: "parent", Off: 8, Type: h.Ptr(proc)},
	}
	h.PutUint(0x1000, 4, 1)
	h.PutUint(0x1004, 4, 3)
	h.PutPtr(0x1008, 0)
	assert.Equal(t, "{pid = 1, state = RUNNING, parent = (proc *) 0x0}",
		sprint(t, nil, host.At(h, proc, 0x1000)))

	for i := 0; i < 3; i++ {
		h.PutUint(core.Address(0x2000+4*i), 4, uint64(i+1))
	}
	arr := host.At(h, ktype.ArrayOf(hosttest.Int, 3), 0x2000)
	assert.Equal(t, "{[0] = 1, [1] = 2, [2] = 3}", sprint(t, nil, arr))

	s, err := format.NewPrinter(nil, format.Options{MaxElements: 2}).Sprint(arr)
	require.NoError(t, err)
	assert.Equal(t, "{[0] = 1, [1] = 2, ...}", s)
}

// vector writes a static_vector<int, 4> holding elems at a.
func vector(h *hosttest.Host, a core.Address, elems ...int) *ktype.Type {
	data := ktype.ArrayOf(hosttest.Char, 16)
	t := ktype.NewStruct("static_vector<int, 4>", 24,
		ktype.Field{Name: "data_", Off: 0, Type: data},
		ktype.Field{Name: "size_", Off: 16, Type: hosttest.Uint64},
	)
	t.TemplateArgs = []ktype.TemplateArg{
		{Name: "T", IsType: true, Type: hosttest.Int},
		{Name: "N", HasValue: true, Value: 4},
	}
	for i, x := range elems {
		h.PutUint(a.Add(int64(4*i)), 4, uint64(x))
	}
	h.PutUint(a.Add(16), 8, uint64(len(elems)))
	return t
}

func TestPrettyPrinter(t *testing.T) {
	reg := host.NewRegistry()
	require.NoError(t, xv6.Register(reg, xv6.DefaultConfig()))
	h := hosttest.New()

	vt := vector(h, 0x3000, 1, 2, 3)
	v := host.At(h, vt, 0x3000)
	assert.Equal(t, "static_vector<int, 4> of length 3 = {[0] = 1, [1] = 2, [2] = 3}", sprint(t, reg, v))

	s, err := format.NewPrinter(reg, format.Options{MaxElements: 2}).Sprint(v)
	require.NoError(t, err)
	assert.Equal(t, "static_vector<int, 4> of length 3 = {[0] = 1, [1] = 2, ...}", s)

	vector(h, 0x3100)
	assert.Equal(t, "static_vector<int, 4> of length 0", sprint(t, reg, host.At(h, vt, 0x3100)))

	// Printers apply to nested values too.
	holder := ktype.NewStruct("runq", 32,
		ktype.Field{Name: "n", Off: 0, Type: hosttest.Int},
		ktype.Field{Name: "q", Off: 8, Type: vt},
	)
	h.PutUint(0x3200, 4, 2)
	vector(h, 0x3208, 7, 8)
	assert.Equal(t, "{n = 2, q = static_vector<int, 4> of length 2 = {[0] = 7, [1] = 8}}",
		sprint(t, reg, host.At(h, holder, 0x3200)))
}

func TestNoPartialOutput(t *testing.T) {
	h := hosttest.New()
	pair := ktype.NewStruct("pair", 8,
		ktype.Field{Name: "a", Off: 0, Type: hosttest.Int},
		ktype.Field{Name: "b", Off: 4, Type: hosttest.Int},
	)
	h.PutUint(0x5000, 4, 1) // b is unmapped

	p := format.NewPrinter(nil, format.DefaultOptions())
	s, err := p.Sprint(host.At(h, pair, 0x5000))
	var re *core.ReadError
	assert.ErrorAs(t, err, &re)
	assert.Empty(t, s)

	// A vector whose length runs past readable memory fails as a whole.
	reg := host.NewRegistry()
	require.NoError(t, xv6.Register(reg, xv6.DefaultConfig()))
	vt := vector(h, 0x6000, 1, 2)
	h.PutUint(0x6010, 8, 100)
	s, err = format.Value(reg, host.At(h, vt, 0x6000))
	assert.ErrorAs(t, err, &re)
	assert.Empty(t, s)

	_, err = p.Sprint(host.At(h, nil, 0x5000))
	assert.ErrorIs(t, err, host.ErrNoType)

	// The printer is reusable after an error.
	s, err = p.Sprint(host.At(h, hosttest.Int, 0x5000))
	require.NoError(t, err)
	assert.Equal(t, "1", s)
}

// table prints a fixed summary and children under a display hint.
type table struct {
	hint     string
	summary  string
	children []host.Child
}

func (t *table) DisplayHint() string { return t.hint }
func (t *table) Summary() (string, error) { return t.summary, nil }

func (t *table) Children() iter.Seq2[host.Child, error] {
	return func(yield func(host.Child, error) bool) {
		for _, c := range t.children {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestDisplayHints(t *testing.T) {
	h := hosttest.New()
	one, two := host.Int(h, 1), host.Int(h, 2)
	var printer *table
	pp := printers.NewCollection("test")
	require.NoError(t, pp.Add("table", `^table$`, func(host.Value) host.Printer { return printer }))
	reg := host.NewRegistry()
	reg.AddPrinters(pp)
	v := host.At(h, ktype.NewStruct("table", 4), 0x100)

	tests := []struct {
		name string
		p    *table
		max  int
		want string
	}{
		{"map", &table{hint: host.HintMap, summary: "map with 2 elements", children: []host.Child{
			{Name: "[0]", Value: one}, {Name: "[1]", Value: two},
			{Name: "[2]", Value: two}, {Name: "[3]", Value: one},
		}}, 0, "map with 2 elements = {[1] = 2, [2] = 1}"},
		{"map elided", &table{hint: host.HintMap, summary: "m", children: []host.Child{
			{Name: "k", Value: one}, {Name: "v", Value: two},
			{Name: "k", Value: two}, {Name: "v", Value: one},
		}}, 1, "m = {[1] = 2, ...}"},
		{"empty map", &table{hint: host.HintMap, summary: "m"}, 0, "m"},
		{"string", &table{hint: host.HintString, summary: `say "hi"`}, 0, `"say \"hi\""`},
		{"no hint", &table{summary: "t", children: []host.Child{{Name: "a", Value: one}}}, 0, "t = {a = 1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			printer = tt.p
			s, err := format.NewPrinter(reg, format.Options{MaxElements: tt.max}).Sprint(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}

	printer = &table{hint: host.HintMap, summary: "m", children: []host.Child{{Name: "k", Value: one}}}
	s, err := format.Value(reg, v)
	assert.ErrorContains(t, err, "key without a value")
	assert.Empty(t, s)
}
