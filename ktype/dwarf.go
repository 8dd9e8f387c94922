// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ktype

import (
	"debug/dwarf"
	"encoding/binary"
	"fmt"
	"strings"
)

// DWARF tags and opcodes debug/dwarf has no names for.
const (
	tagTemplateTypeParameter  dwarf.Tag = 0x2f
	tagTemplateValueParameter dwarf.Tag = 0x30

	opAddr = 0x03
)

// A Global is a global variable described by DWARF.
type Global struct {
	Name    string
	Type    *Type
	Addr    uint64
	HasAddr bool
}

// A Table holds the types and global variables of one DWARF image.
// Types are converted from DWARF on first use.
type Table struct {
	d       *dwarf.Data
	ptrSize int64
	order   binary.ByteOrder

	types   map[dwarf.Type]*Type
	names   map[string]dwarf.Offset   // type name -> first type entry with that name
	params  map[dwarf.Type][]paramRef // aggregate -> template parameters, in order
	globals map[string]*globalRef
}

type paramRef struct {
	e *dwarf.Entry
}

type globalRef struct {
	name    string
	qname   string // name qualified by enclosing namespaces
	typeOff dwarf.Offset
	hasType bool
	addr    uint64
	hasAddr bool
	typ     *Type
}

// Load indexes the type and variable entries of d.
// ptrSize and order describe the target machine.
func Load(d *dwarf.Data, ptrSize int64, order binary.ByteOrder) (*Table, error) {
	t := &Table{
		d:       d,
		ptrSize: ptrSize,
		order:   order,
		types:   make(map[dwarf.Type]*Type),
		names:   make(map[string]dwarf.Offset),
		params:  make(map[dwarf.Type][]paramRef),
		globals: make(map[string]*globalRef),
	}
	decls := map[dwarf.Offset]*globalRef{}
	params := map[dwarf.Offset][]paramRef{}

	r := d.Reader()
	var stack []*dwarf.Entry
	var scope []string // enclosing namespace names
	for {
		e, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("reading DWARF: %v", err)
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			if len(stack) > 0 {
				if stack[len(stack)-1].Tag == dwarf.TagNamespace && len(scope) > 0 {
					scope = scope[:len(scope)-1]
				}
				stack = stack[:len(stack)-1]
			}
			continue
		}
		var parent *dwarf.Entry
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		}

		switch e.Tag {
		case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType, dwarf.TagEnumerationType,
			dwarf.TagTypedef, dwarf.TagBaseType:
			if name, ok := e.Val(dwarf.AttrName).(string); ok {
				if _, dup := t.names[name]; !dup && !isDeclaration(e) {
					t.names[name] = e.Offset
				}
			}
		case tagTemplateTypeParameter, tagTemplateValueParameter:
			if parent != nil && isAggregate(parent.Tag) {
				params[parent.Offset] = append(params[parent.Offset], paramRef{e: e})
			}
		case dwarf.TagVariable:
			if parent != nil && !isScope(parent.Tag) {
				break // locals
			}
			g := &globalRef{}
			g.name, _ = e.Val(dwarf.AttrName).(string)
			g.typeOff, g.hasType = e.Val(dwarf.AttrType).(dwarf.Offset)
			if g.name != "" {
				g.qname = g.name
				if len(scope) > 0 {
					g.qname = strings.Join(scope, "::") + "::" + g.name
				}
			}
			if spec, ok := e.Val(dwarf.AttrSpecification).(dwarf.Offset); ok {
				// An out-of-line definition of a variable declared
				// in a class or namespace.
				if d := decls[spec]; d != nil {
					if g.name == "" {
						g.name, g.qname = d.name, d.qname
					}
					if !g.hasType {
						g.typeOff, g.hasType = d.typeOff, d.hasType
					}
				}
			}
			if loc, ok := e.Val(dwarf.AttrLocation).([]byte); ok {
				g.addr, g.hasAddr = t.decodeAddr(loc)
			}
			if isDeclaration(e) {
				decls[e.Offset] = g
			}
			if g.name == "" {
				break
			}
			t.addGlobal(g.qname, g)
			if g.qname != g.name {
				t.addGlobal(g.name, g)
			}
		}

		if e.Children {
			stack = append(stack, e)
			if e.Tag == dwarf.TagNamespace {
				ns, _ := e.Val(dwarf.AttrName).(string)
				if ns == "" {
					ns = "(anonymous namespace)"
				}
				scope = append(scope, ns)
			}
		}
	}

	// dwarf.Data caches types by offset, so the dwarf.Type of an
	// aggregate identifies it from here on.
	for off, refs := range params {
		dt, err := d.Type(off)
		if err != nil {
			continue
		}
		t.params[dt] = refs
	}
	return t, nil
}

// addGlobal records g under name. Definitions (with an address) win
// over declarations.
func (t *Table) addGlobal(name string, g *globalRef) {
	if old, ok := t.globals[name]; ok && (old.hasAddr || !g.hasAddr) {
		return
	}
	t.globals[name] = g
}

func isDeclaration(e *dwarf.Entry) bool {
	decl, _ := e.Val(dwarf.AttrDeclaration).(bool)
	return decl
}

func isAggregate(tag dwarf.Tag) bool {
	return tag == dwarf.TagStructType || tag == dwarf.TagClassType || tag == dwarf.TagUnionType
}

func isScope(tag dwarf.Tag) bool {
	return tag == dwarf.TagCompileUnit || tag == dwarf.TagNamespace || tag == dwarf.TagPartialUnit
}

// decodeAddr decodes a location expression of the form DW_OP_addr X
// (optionally followed by DW_OP_stack_value).
func (t *Table) decodeAddr(loc []byte) (uint64, bool) {
	if len(loc) < 1+int(t.ptrSize) || loc[0] != opAddr {
		return 0, false
	}
	b := loc[1 : 1+t.ptrSize]
	if t.ptrSize == 4 {
		return uint64(t.order.Uint32(b)), true
	}
	return t.order.Uint64(b), true
}

// Lookup returns the named type, or nil if there is no such type.
func (t *Table) Lookup(name string) *Type {
	off, ok := t.names[name]
	if !ok {
		return nil
	}
	return t.typeAt(off)
}

// Global returns the global variable with the given name.
func (t *Table) Global(name string) (Global, bool) {
	g, ok := t.globals[name]
	if !ok {
		return Global{}, false
	}
	if g.typ == nil && g.hasType {
		g.typ = t.typeAt(g.typeOff)
	}
	return Global{Name: g.name, Type: g.typ, Addr: g.addr, HasAddr: g.hasAddr}, true
}

// NameSymbols returns typ with the Symbol of every address-valued
// template argument set to the name sym gives its address. Types shared
// through the Table are never modified: the template type and any
// typedefs leading to it are copied.
func NameSymbols(typ *Type, sym func(addr uint64) (string, bool)) *Type {
	if typ == nil {
		return nil
	}
	if typ.Kind == KindTypedef {
		elem := NameSymbols(typ.Elem, sym)
		if elem == typ.Elem {
			return typ
		}
		c := *typ
		c.Elem = elem
		return &c
	}
	named := false
	for _, a := range typ.TemplateArgs {
		named = named || a.HasAddr
	}
	if !named {
		return typ
	}
	c := *typ
	c.TemplateArgs = append([]TemplateArg(nil), typ.TemplateArgs...)
	for i := range c.TemplateArgs {
		if a := &c.TemplateArgs[i]; a.HasAddr {
			a.Symbol, _ = sym(a.Addr)
		}
	}
	return &c
}

func (t *Table) typeAt(off dwarf.Offset) *Type {
	dt, err := t.d.Type(off)
	if err != nil {
		return nil
	}
	return t.convert(dt)
}

// convert returns our Type for dt, building it on first use.
func (t *Table) convert(dt dwarf.Type) *Type {
	if dt == nil {
		return nil
	}
	if _, ok := dt.(*dwarf.VoidType); ok {
		return nil
	}
	if typ := t.types[dt]; typ != nil {
		return typ
	}
	typ := &Type{Name: typeName(dt), Size: dt.Size()}
	// Register before recursing; types can refer to themselves.
	t.types[dt] = typ

	switch x := dt.(type) {
	case *dwarf.PtrType:
		typ.Kind = KindPtr
		typ.Elem = t.convert(x.Type)
		if typ.Size <= 0 {
			typ.Size = t.ptrSize
		}
	case *dwarf.ArrayType:
		typ.Kind = KindArray
		typ.Elem = t.convert(x.Type)
		typ.Count = x.Count
		if typ.Count < 0 {
			typ.Count = 0
		}
	case *dwarf.StructType:
		typ.Tag = x.StructName
		typ.Kind = KindStruct
		if x.Kind == "union" {
			typ.Kind = KindUnion
		}
		if x.Incomplete {
			typ.Size = -1
		}
		for _, f := range x.Field {
			typ.Fields = append(typ.Fields, Field{Name: f.Name, Off: f.ByteOffset, Type: t.convert(f.Type)})
		}
		typ.TemplateArgs = t.templateArgs(x)
	case *dwarf.EnumType:
		typ.Tag = x.EnumName
		typ.Kind = KindEnum
		for _, v := range x.Val {
			typ.Enumerators = append(typ.Enumerators, Enumerator{Name: v.Name, Val: v.Val})
		}
	case *dwarf.TypedefType:
		typ.Kind = KindTypedef
		typ.Elem = t.convert(x.Type)
		typ.Size = typ.Elem.sizeOrUnknown()
	case *dwarf.QualType:
		typ.Kind = KindTypedef
		typ.Elem = t.convert(x.Type)
		typ.Size = typ.Elem.sizeOrUnknown()
	case *dwarf.BoolType:
		typ.Kind = KindBool
	case *dwarf.IntType, *dwarf.CharType:
		typ.Kind = KindInt
	case *dwarf.UintType, *dwarf.UcharType:
		typ.Kind = KindUint
	case *dwarf.FloatType:
		typ.Kind = KindFloat
	case *dwarf.FuncType:
		typ.Kind = KindFunc
		typ.Size = -1
	default:
		// Unspecified and unsupported types (references,
		// pointers to members) are opaque.
		typ.Kind = KindNone
		if typ.Size <= 0 {
			typ.Size = -1
		}
	}
	return typ
}

func (t *Type) sizeOrUnknown() int64 {
	if t == nil {
		return -1
	}
	return t.Size
}

func (t *Table) templateArgs(dt dwarf.Type) []TemplateArg {
	refs := t.params[dt]
	if len(refs) == 0 {
		return nil
	}
	args := make([]TemplateArg, 0, len(refs))
	for _, p := range refs {
		var a TemplateArg
		a.Name, _ = p.e.Val(dwarf.AttrName).(string)
		if typeOff, ok := p.e.Val(dwarf.AttrType).(dwarf.Offset); ok {
			a.Type = t.typeAt(typeOff)
		}
		if p.e.Tag == tagTemplateTypeParameter {
			a.IsType = true
		} else {
			switch v := p.e.Val(dwarf.AttrConstValue).(type) {
			case int64:
				a.Value, a.HasValue = v, true
			case uint64:
				a.Value, a.HasValue = int64(v), true
			}
			if loc, ok := p.e.Val(dwarf.AttrLocation).([]byte); ok {
				a.Addr, a.HasAddr = t.decodeAddr(loc)
			}
		}
		args = append(args, a)
	}
	return args
}

// typeName returns the name a debugger would print for dt.
func typeName(dt dwarf.Type) string {
	switch x := dt.(type) {
	case *dwarf.PtrType:
		if _, ok := x.Type.(*dwarf.VoidType); ok || x.Type == nil {
			return "void *"
		}
		elem := typeName(x.Type)
		if strings.HasSuffix(elem, "*") {
			return elem + "*"
		}
		return elem + " *"
	case *dwarf.ArrayType:
		return fmt.Sprintf("%s [%d]", typeName(x.Type), x.Count)
	case *dwarf.StructType:
		if x.StructName != "" {
			return x.StructName
		}
		return x.String()
	case *dwarf.EnumType:
		if x.EnumName != "" {
			return x.EnumName
		}
		return x.String()
	case *dwarf.QualType:
		return x.Qual + " " + typeName(x.Type)
	case *dwarf.TypedefType:
		return x.Name
	default:
		if name := dt.Common().Name; name != "" {
			return name
		}
		return dt.String()
	}
}
