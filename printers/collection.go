// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package printers implements pretty-printers for kernel container
// types and the regexp-keyed collections that select them.
package printers

import (
	"fmt"
	"regexp"

	"github.com/xv6kit/kview/host"
)

// A Constructor builds a Printer for a value whose type matched.
type Constructor func(v host.Value) host.Printer

// A Collection selects a printer by matching a regular expression
// against the tag (or, for untagged types, the name) of a value's
// type, after typedefs and qualifiers are stripped.
type Collection struct {
	name    string
	entries []entry
}

type entry struct {
	name  string
	re    *regexp.Regexp
	build Constructor
}

var _ host.PrinterLookup = (*Collection)(nil)

// NewCollection returns an empty collection.
func NewCollection(name string) *Collection {
	return &Collection{name: name}
}

// Name returns the name of the collection.
func (c *Collection) Name() string {
	return c.name
}

// Add registers a printer for types matching pattern.
// Earlier registrations win when several patterns match.
func (c *Collection) Add(name, pattern string, build Constructor) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("printer %s: bad type pattern: %v", name, err)
	}
	c.entries = append(c.entries, entry{name: name, re: re, build: build})
	return nil
}

// Printers returns the names of the registered printers.
func (c *Collection) Printers() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

func (c *Collection) Lookup(v host.Value) (host.Printer, bool) {
	t := v.Type().Strip()
	if t == nil {
		return nil, false
	}
	typename := t.Tag
	if typename == "" {
		typename = t.Name
	}
	for _, e := range c.entries {
		if e.re.MatchString(typename) {
			return e.build(v), true
		}
	}
	return nil, false
}
