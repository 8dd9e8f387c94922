// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xv6 registers the xv6 kernel extensions with a host: a
// pretty-printer for static_vector and the $percpu function.
package xv6

import (
	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/percpu"
	"github.com/xv6kit/kview/printers"
)

// Config holds the names and patterns the extensions match against.
type Config struct {
	PerCPU percpu.Config
	// KeyPattern recovers the per-CPU key from a printed cell type.
	KeyPattern string
	// UseTemplateArgs tries the structured template arguments of a cell
	// before falling back to KeyPattern.
	UseTemplateArgs bool
	// VectorPattern matches static_vector types.
	VectorPattern string
}

// DefaultConfig returns the configuration for the xv6 kernel.
func DefaultConfig() Config {
	return Config{
		PerCPU:          percpu.DefaultConfig(),
		KeyPattern:      percpu.DefaultKeyPattern,
		UseTemplateArgs: true,
		VectorPattern:   `^static_vector<.*>$`,
	}
}

// Register adds the xv6 printers and functions to r.
func Register(r *host.Registry, cfg Config) error {
	pp := printers.NewCollection("xv6")
	if err := pp.Add("static_vector", cfg.VectorPattern, printers.NewStaticVector); err != nil {
		return err
	}
	r.AddPrinters(pp)

	pattern, err := percpu.NewPatternExtractor(cfg.KeyPattern)
	if err != nil {
		return err
	}
	var keys percpu.KeyExtractor = pattern
	if cfg.UseTemplateArgs {
		keys = percpu.Chain{percpu.TemplateExtractor{}, pattern}
	}
	res := percpu.NewResolver(cfg.PerCPU, keys)
	return r.AddFunction("percpu", res.Invoke)
}
