// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package printers

import (
	"errors"
	"fmt"
	"iter"

	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/ktype"
)

// ErrNotVector is returned when a value handed to the static_vector
// printer does not have the static_vector layout.
var ErrNotVector = errors.New("not a static_vector")

// StaticVector prints a static_vector<T, N>: a fixed-capacity array
// whose first size_ elements, stored in the raw buffer data_, are live.
// Only the live elements are shown.
type StaticVector struct {
	v host.Value
}

// NewStaticVector is the Constructor for StaticVector.
func NewStaticVector(v host.Value) host.Printer {
	return &StaticVector{v: v}
}

func (p *StaticVector) DisplayHint() string {
	return host.HintArray
}

func (p *StaticVector) Summary() (string, error) {
	n, err := p.length()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s of length %d", p.v.Type(), n), nil
}

func (p *StaticVector) Children() iter.Seq2[host.Child, error] {
	return func(yield func(host.Child, error) bool) {
		items, n, err := p.items()
		if err != nil {
			yield(host.Child{}, err)
			return
		}
		for i := int64(0); i < n; i++ {
			x, err := items.Deref()
			if err != nil {
				yield(host.Child{}, err)
				return
			}
			if !yield(host.Child{Name: fmt.Sprintf("[%d]", i), Value: x}, nil) {
				return
			}
			if items, err = items.Add(1); err != nil {
				yield(host.Child{}, err)
				return
			}
		}
	}
}

func (p *StaticVector) length() (int64, error) {
	size, err := p.v.Field("size_")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotVector, err)
	}
	n, err := size.Int()
	if err != nil {
		return 0, fmt.Errorf("reading size_: %w", err)
	}
	return n, nil
}

// items returns a pointer to the first element and the live length.
func (p *StaticVector) items() (host.Value, int64, error) {
	n, err := p.length()
	if err != nil {
		return host.Value{}, 0, err
	}
	elem, err := p.v.Type().TemplateArgument(0)
	if err != nil {
		return host.Value{}, 0, err
	}
	if !elem.HasSize() {
		return host.Value{}, 0, fmt.Errorf("element type %s has no size", elem)
	}
	data, err := p.v.Field("data_")
	if err != nil {
		return host.Value{}, 0, fmt.Errorf("%w: %v", ErrNotVector, err)
	}
	ptr, err := data.AddressOf()
	if err != nil {
		return host.Value{}, 0, err
	}
	ptrSize := int64(p.v.Host().Arch().PointerSize)
	return ptr.Cast(ktype.PointerTo(elem, ptrSize)), n, nil
}
