// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package percpu

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/xv6kit/kview/ktype"
)

// A KeyExtractor recovers the name of the key symbol of a per-CPU cell
// from the cell's type.
type KeyExtractor interface {
	ExtractKey(t *ktype.Type) (string, error)
}

// DefaultKeyPattern matches the address-of expression naming the key
// inside a printed type, as in "static_percpu<cpu, &cpu_key, false>".
const DefaultKeyPattern = `&([^ ,]+),`

// PatternExtractor finds the key by matching a regular expression
// against the printed type name. The compiler may drop the key
// template parameter from the type's debug information, but the
// printed name keeps it.
type PatternExtractor struct {
	re *regexp.Regexp
}

// NewPatternExtractor returns a PatternExtractor using pattern, whose
// first capture group must be the symbol name.
func NewPatternExtractor(pattern string) (*PatternExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad key pattern: %v", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("key pattern %q has no capture group", pattern)
	}
	return &PatternExtractor{re: re}, nil
}

func (x *PatternExtractor) ExtractKey(t *ktype.Type) (string, error) {
	s := t.String()
	m := x.re.FindStringSubmatch(s)
	if m == nil || m[1] == "" {
		return "", &ParseError{TypeString: s}
	}
	return m[1], nil
}

// TemplateExtractor takes the key from the first address-valued
// template argument whose symbol is known. It works only when the
// debug information kept the key parameter.
type TemplateExtractor struct{}

func (TemplateExtractor) ExtractKey(t *ktype.Type) (string, error) {
	if s := t.Strip(); s != nil {
		for _, a := range s.TemplateArgs {
			if a.HasAddr && a.Symbol != "" {
				return a.Symbol, nil
			}
		}
	}
	return "", &ParseError{TypeString: t.String()}
}

// Chain tries each extractor in turn and returns the first key found.
// If all fail, the error of the last one is returned.
type Chain []KeyExtractor

func (c Chain) ExtractKey(t *ktype.Type) (string, error) {
	err := error(&ParseError{TypeString: t.String()})
	for _, x := range c {
		var key string
		key, err = x.ExtractKey(t)
		if err == nil {
			return key, nil
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			return "", err
		}
	}
	return "", err
}
