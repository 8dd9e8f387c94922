// Copyright 2014 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package format renders values of the inspected machine for display,
// using registered pretty-printers where one matches and the value's
// type otherwise.
package format

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/ktype"
)

// DefaultMaxElements is the default limit on the number of elements
// printed for an array or a pretty-printed container.
const DefaultMaxElements = 200

// Options control rendering.
type Options struct {
	// MaxElements bounds the elements printed per array or container.
	// Zero or less means no limit.
	MaxElements int
}

// DefaultOptions returns the default rendering options.
func DefaultOptions() Options {
	return Options{MaxElements: DefaultMaxElements}
}

// A Printer renders values as text. It can be reused after each
// printing operation, but is not safe for concurrent use.
type Printer struct {
	reg  *host.Registry
	opts Options
	err  error // Sticky error value.
	buf  bytes.Buffer
}

// NewPrinter returns a Printer that consults reg for pretty-printers.
// reg may be nil.
func NewPrinter(reg *host.Registry, opts Options) *Printer {
	return &Printer{reg: reg, opts: opts}
}

// Value renders v with the default options.
func Value(reg *host.Registry, v host.Value) (string, error) {
	return NewPrinter(reg, DefaultOptions()).Sprint(v)
}

// Sprint renders v. If any part of v cannot be read, Sprint returns
// the error and no partial output.
func (p *Printer) Sprint(v host.Value) (string, error) {
	p.err = nil
	p.buf.Reset()
	p.printValue(v)
	if p.err != nil {
		return "", p.err
	}
	return p.buf.String(), nil
}

// printf prints to buf.
func (p *Printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(&p.buf, format, args...)
}

// setErr sets the sticky error, if not already set.
func (p *Printer) setErr(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *Printer) printValue(v host.Value) {
	if p.err != nil {
		return
	}
	if p.reg != nil {
		if pp, ok := p.reg.Printer(v); ok {
			p.printPretty(pp)
			return
		}
	}
	t := v.Type()
	if t == nil {
		p.setErr(host.ErrNoType)
		return
	}
	s := t.Strip()
	if s == nil {
		p.setErr(fmt.Errorf("cannot print value of type %s", t))
		return
	}
	switch s.Kind {
	case ktype.KindBool:
		n, err := v.Uint()
		if err != nil {
			p.setErr(err)
			return
		}
		p.printf("%t", n != 0)
	case ktype.KindInt, ktype.KindUint:
		p.printInt(v, s)
	case ktype.KindEnum:
		n, err := v.Int()
		if err != nil {
			p.setErr(err)
			return
		}
		for _, e := range s.Enumerators {
			if e.Val == n {
				p.printf("%s", e.Name)
				return
			}
		}
		p.printf("%d", n)
	case ktype.KindFloat:
		p.printFloat(v, s)
	case ktype.KindPtr:
		a, err := v.Uint()
		if err != nil {
			p.setErr(err)
			return
		}
		p.printf("(%s) %#x", t, a)
	case ktype.KindArray:
		p.printArray(v, s)
	case ktype.KindStruct, ktype.KindUnion:
		p.printStruct(v, s)
	case ktype.KindFunc:
		a, ok := v.Address()
		if !ok {
			p.setErr(fmt.Errorf("function value of type %s has no address", t))
			return
		}
		p.printf("{%s} %#x", t, uint64(a))
	default:
		p.setErr(fmt.Errorf("cannot print value of type %s", t))
	}
}

func (p *Printer) printInt(v host.Value, s *ktype.Type) {
	if s.Kind == ktype.KindUint {
		n, err := v.Uint()
		if err != nil {
			p.setErr(err)
			return
		}
		p.printf("%d", n)
		if s.Size == 1 {
			p.printf(" %s", strconv.QuoteRuneToASCII(rune(n)))
		}
		return
	}
	n, err := v.Int()
	if err != nil {
		p.setErr(err)
		return
	}
	p.printf("%d", n)
	if s.Size == 1 {
		p.printf(" %s", strconv.QuoteRuneToASCII(rune(uint8(n))))
	}
}

func (p *Printer) printFloat(v host.Value, s *ktype.Type) {
	b, err := v.Bytes()
	if err != nil {
		p.setErr(err)
		return
	}
	a := v.Host().Arch()
	switch {
	case s.Size == 4 && len(b) == 4:
		p.printf("%g", math.Float32frombits(uint32(a.UintN(b))))
	case s.Size == 8 && len(b) == 8:
		p.printf("%g", math.Float64frombits(a.UintN(b)))
	default:
		p.setErr(fmt.Errorf("unsupported floating point size %d", s.Size))
	}
}

func (p *Printer) printArray(v host.Value, s *ktype.Type) {
	p.printf("{")
	n := s.Count
	for i := int64(0); i < n; i++ {
		if i > 0 {
			p.printf(", ")
		}
		if p.elided(i) {
			break
		}
		e, err := v.Index(i)
		if err != nil {
			p.setErr(err)
			return
		}
		p.printf("[%d] = ", i)
		p.printValue(e)
		if p.err != nil {
			return
		}
	}
	p.printf("}")
}

func (p *Printer) printStruct(v host.Value, s *ktype.Type) {
	p.printf("{")
	for i, f := range s.Fields {
		if i > 0 {
			p.printf(", ")
		}
		fv, err := v.Field(f.Name)
		if err != nil {
			p.setErr(err)
			return
		}
		if f.Name != "" {
			p.printf("%s = ", f.Name)
		}
		p.printValue(fv)
		if p.err != nil {
			return
		}
	}
	p.printf("}")
}

// printPretty prints the summary of a pretty-printed value followed by
// its children, if it has any. The display hint picks the layout: a
// string summary is quoted, and the children of a map alternate between
// keys and values, printed as "[key] = value". Otherwise each child
// is printed as "name = value".
func (p *Printer) printPretty(pp host.Printer) {
	hint := pp.DisplayHint()
	summary, err := pp.Summary()
	if err != nil {
		p.setErr(err)
		return
	}
	if hint == host.HintString {
		p.printf("%s", strconv.Quote(summary))
	} else {
		p.printf("%s", summary)
	}
	i := int64(0)
	for c, err := range pp.Children() {
		if err != nil {
			p.setErr(err)
			return
		}
		isKey := hint == host.HintMap && i%2 == 0
		switch {
		case i == 0:
			p.printf(" = {")
		case isKey:
			p.printf(", ")
		case hint == host.HintMap:
			p.printf("] = ")
		default:
			p.printf(", ")
		}
		// Map entries are counted as pairs.
		n := i
		if hint == host.HintMap {
			n = i / 2
		}
		if (isKey || hint != host.HintMap) && p.elided(n) {
			break
		}
		switch {
		case isKey:
			p.printf("[")
		case hint != host.HintMap:
			p.printf("%s = ", c.Name)
		}
		p.printValue(c.Value)
		if p.err != nil {
			return
		}
		i++
	}
	if hint == host.HintMap && i%2 == 1 {
		p.setErr(fmt.Errorf("map printer for %s yielded a key without a value", summary))
		return
	}
	if i > 0 {
		p.printf("}")
	}
}

// elided reports whether element i is past the element limit, and if
// so prints the elision marker.
func (p *Printer) elided(i int64) bool {
	if p.opts.MaxElements <= 0 || i < int64(p.opts.MaxElements) {
		return false
	}
	p.printf("...")
	return true
}
