// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	"fmt"
	"strings"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokFunc  // $name
	tokPunct // one of . -> [ ] ( ) , * & + -
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

// A SyntaxError reports an expression that does not parse.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d in %q: %s", e.Pos, e.Expr, e.Msg)
}

// lex splits s into tokens. Identifiers may contain "::" so that
// namespace-qualified globals are a single token.
func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case isIdentStart(c):
			j := i
			for j < len(s) {
				if isIdentChar(s[j]) {
					j++
				} else if strings.HasPrefix(s[j:], "::") && j+2 < len(s) && isIdentStart(s[j+2]) {
					j += 2
				} else {
					break
				}
			}
			toks = append(toks, token{tokIdent, s[i:j], i})
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			toks = append(toks, token{tokInt, s[i:j], i})
			i = j
		case c == '$':
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			if j == i+1 {
				return nil, &SyntaxError{Expr: s, Pos: i, Msg: "$ must be followed by a function name"}
			}
			toks = append(toks, token{tokFunc, s[i+1 : j], i})
			i = j
		case strings.HasPrefix(s[i:], "->"):
			toks = append(toks, token{tokPunct, "->", i})
			i += 2
		case strings.IndexByte(".[](),*&+-", c) >= 0:
			toks = append(toks, token{tokPunct, s[i : i+1], i})
			i++
		default:
			return nil, &SyntaxError{Expr: s, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(s)}), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || '0' <= c && c <= '9'
}
