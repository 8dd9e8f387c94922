// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eval evaluates C-like expressions against the current state of
// an introspection host.
//
// The language covers what is needed to reach kernel data from globals:
// identifiers (optionally namespace-qualified with ::), integer literals,
// field selection with . and ->, subscripts, the unary operators * & and
// -, addition and subtraction of integers and pointers, parentheses, and
// calls of registered functions as $name(arg, ...).
package eval

import (
	"fmt"
	"strconv"

	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/ktype"
)

// An Evaluator evaluates expressions against a host, calling functions
// from a registry. It holds no state between evaluations.
type Evaluator struct {
	h   host.Host
	reg *host.Registry
}

// New returns an Evaluator for h. reg may be nil, in which case no
// functions are callable.
func New(h host.Host, reg *host.Registry) *Evaluator {
	return &Evaluator{h: h, reg: reg}
}

// Eval parses and evaluates expr.
func (e *Evaluator) Eval(expr string) (host.Value, error) {
	n, err := parse(expr)
	if err != nil {
		return host.Value{}, err
	}
	return e.eval(n)
}

// An UnknownSymbolError reports an identifier that names no global.
type UnknownSymbolError struct {
	Name string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("no symbol %q in current context", e.Name)
}

// An UnknownFunctionError reports a call of an unregistered function.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("no function $%s", e.Name)
}

func (e *Evaluator) eval(n node) (host.Value, error) {
	switch n := n.(type) {
	case *identNode:
		sym, ok := e.h.LookupGlobal(n.name)
		if !ok {
			return host.Value{}, &UnknownSymbolError{Name: n.name}
		}
		return sym.Value(e.h), nil

	case *intNode:
		return host.Int(e.h, n.val), nil

	case *callNode:
		var fn host.Function
		ok := false
		if e.reg != nil {
			fn, ok = e.reg.Function(n.name)
		}
		if !ok {
			return host.Value{}, &UnknownFunctionError{Name: n.name}
		}
		args := make([]host.Value, len(n.args))
		for i, a := range n.args {
			v, err := e.eval(a)
			if err != nil {
				return host.Value{}, err
			}
			args[i] = v
		}
		return fn(e.h, args)

	case *fieldNode:
		x, err := e.eval(n.x)
		if err != nil {
			return host.Value{}, err
		}
		if n.arrow {
			if x, err = x.Deref(); err != nil {
				return host.Value{}, err
			}
		}
		return x.Field(n.name)

	case *indexNode:
		x, err := e.eval(n.x)
		if err != nil {
			return host.Value{}, err
		}
		i, err := e.evalInt(n.index)
		if err != nil {
			return host.Value{}, err
		}
		return x.Index(i)

	case *unaryNode:
		x, err := e.eval(n.x)
		if err != nil {
			return host.Value{}, err
		}
		switch n.op {
		case "*":
			return decay(x).Deref()
		case "&":
			return x.AddressOf()
		case "-":
			i, err := x.Int()
			if err != nil {
				return host.Value{}, err
			}
			return host.Int(e.h, -i), nil
		}

	case *binaryNode:
		x, err := e.eval(n.x)
		if err != nil {
			return host.Value{}, err
		}
		y, err := e.evalInt(n.y)
		if err != nil {
			return host.Value{}, err
		}
		if n.op == "-" {
			y = -y
		}
		x = decay(x)
		if t := x.Type(); t != nil && t.Strip() != nil && t.Strip().Kind == ktype.KindPtr {
			return x.Add(y)
		}
		i, err := x.Int()
		if err != nil {
			return host.Value{}, err
		}
		return host.Int(e.h, i+y), nil
	}
	return host.Value{}, fmt.Errorf("unsupported expression %T", n)
}

func (e *Evaluator) evalInt(n node) (int64, error) {
	v, err := e.eval(n)
	if err != nil {
		return 0, err
	}
	return v.Int()
}

// decay converts an array lvalue to a pointer to its first element, as C
// does in arithmetic and dereference. Other values are returned as is.
func decay(v host.Value) host.Value {
	t := v.Type()
	if t == nil || t.Strip() == nil || t.Strip().Kind != ktype.KindArray {
		return v
	}
	a, ok := v.Address()
	if !ok {
		return v
	}
	return host.Pointer(v.Host(), t.Strip().Elem, a)
}

type node interface{}

type (
	identNode struct{ name string }
	intNode   struct{ val int64 }
	callNode  struct {
		name string
		args []node
	}
	fieldNode struct {
		x     node
		name  string
		arrow bool
	}
	indexNode struct{ x, index node }
	unaryNode struct {
		op string
		x  node
	}
	binaryNode struct {
		op   string
		x, y node
	}
)

type parser struct {
	expr string
	toks []token
	pos  int
}

func parse(expr string) (node, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{expr: expr, toks: toks}
	n, err := p.additive()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expect(s string) error {
	if t := p.next(); t.kind != tokPunct || t.text != s {
		return p.errorf(t, "expected %q, found %s", s, t)
	}
	return nil
}

func (p *parser) errorf(t token, format string, args ...interface{}) error {
	return &SyntaxError{Expr: p.expr, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

// additive = unary { ("+" | "-") unary }
func (p *parser) additive() (node, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := p.next().text
		y, err := p.unary()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{op: op, x: x, y: y}
	}
	return x, nil
}

// unary = ("*" | "&" | "-") unary | postfix
func (p *parser) unary() (node, error) {
	if p.isPunct("*") || p.isPunct("&") || p.isPunct("-") {
		op := p.next().text
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.postfix()
}

// postfix = primary { "." ident | "->" ident | "[" additive "]" }
func (p *parser) postfix() (node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct(".") || p.isPunct("->"):
			arrow := p.next().text == "->"
			t := p.next()
			if t.kind != tokIdent {
				return nil, p.errorf(t, "expected field name, found %s", t)
			}
			x = &fieldNode{x: x, name: t.text, arrow: arrow}
		case p.isPunct("["):
			p.next()
			i, err := p.additive()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = &indexNode{x: x, index: i}
		default:
			return x, nil
		}
	}
}

// primary = ident | int | "$" ident "(" [ additive { "," additive } ] ")" | "(" additive ")"
func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		return &identNode{name: t.text}, nil
	case tokInt:
		v, err := strconv.ParseInt(t.text, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(t.text, 0, 64)
			if uerr != nil {
				return nil, p.errorf(t, "invalid integer %s", t)
			}
			v = int64(u)
		}
		return &intNode{val: v}, nil
	case tokFunc:
		if err := p.expect("("); err != nil {
			return nil, err
		}
		c := &callNode{name: t.text}
		if p.isPunct(")") {
			p.next()
			return c, nil
		}
		for {
			a, err := p.additive()
			if err != nil {
				return nil, err
			}
			c.args = append(c.args, a)
			if p.isPunct(",") {
				p.next()
				continue
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return c, nil
		}
	case tokPunct:
		if t.text == "(" {
			x, err := p.additive()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	return nil, p.errorf(t, "unexpected %s", t)
}
