// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrChecksum is returned when a packet's checksum does not match its
// contents.
var ErrChecksum = errors.New("rsp: bad packet checksum")

// checksum returns the modulo-256 sum of b.
func checksum(b []byte) byte {
	var s byte
	for _, c := range b {
		s += c
	}
	return s
}

func needsEscape(c byte) bool {
	return c == '$' || c == '#' || c == '}' || c == '*'
}

// encode frames data as $data#cs, escaping the framing characters.
func encode(data []byte) []byte {
	body := make([]byte, 0, len(data)+8)
	for _, c := range data {
		if needsEscape(c) {
			body = append(body, '}', c^0x20)
			continue
		}
		body = append(body, c)
	}
	out := make([]byte, 0, len(body)+4)
	out = append(out, '$')
	out = append(out, body...)
	return fmt.Appendf(out, "#%02x", checksum(body))
}

// decode undoes escaping and run-length encoding of a packet body.
// A run "x*n" stands for x followed by n-29 more copies of x.
func decode(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		switch c := body[i]; c {
		case '}':
			i++
			if i == len(body) {
				return nil, errors.New("rsp: truncated escape")
			}
			out = append(out, body[i]^0x20)
		case '*':
			i++
			if i == len(body) || len(out) == 0 {
				return nil, errors.New("rsp: bad run-length encoding")
			}
			n := int(body[i]) - 29
			if n < 0 {
				return nil, fmt.Errorf("rsp: bad run length %q", body[i])
			}
			last := out[len(out)-1]
			for ; n > 0; n-- {
				out = append(out, last)
			}
		default:
			out = append(out, c)
		}
	}
	return out, nil
}

// readPacket reads one packet from r, skipping acknowledgements and any
// other bytes before the next '$'. It returns the decoded body. A
// checksum mismatch returns ErrChecksum after the whole packet has
// been consumed, so the caller can ask for a retransmit.
func readPacket(r *bufio.Reader) ([]byte, error) {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if c == '$' {
			break
		}
	}
	body, err := r.ReadBytes('#')
	if err != nil {
		return nil, err
	}
	body = body[:len(body)-1]
	var cs [2]byte
	if _, err := io.ReadFull(r, cs[:]); err != nil {
		return nil, err
	}
	want, err := strconv.ParseUint(string(cs[:]), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("rsp: bad checksum digits %q", cs[:])
	}
	if checksum(body) != byte(want) {
		return nil, ErrChecksum
	}
	return decode(body)
}
