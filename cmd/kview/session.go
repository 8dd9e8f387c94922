// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/xv6kit/kview/core"
	"github.com/xv6kit/kview/eval"
	"github.com/xv6kit/kview/format"
	"github.com/xv6kit/kview/host"
	"github.com/xv6kit/kview/internal/config"
	"github.com/xv6kit/kview/target"
	"github.com/xv6kit/kview/xv6"
)

// An inferior is the machine a session inspects.
type inferior interface {
	host.Host
	Threads() ([]host.Thread, error)
	SelectThread(num int) error
}

// A session holds an open inferior and the extensions registered with it.
type session struct {
	inf     inferior
	eval    *eval.Evaluator
	printer *format.Printer
	log     zerolog.Logger
	out     io.Writer
	closer  io.Closer
}

// openSession opens the target c describes and registers the xv6
// extensions.
func openSession(ctx context.Context, c *config.Config, log zerolog.Logger) (*session, error) {
	tg, err := target.Open(ctx, target.Options{
		Kernel: c.Kernel,
		Core:   c.Core,
		Remote: c.Remote,
		Log:    log,
	})
	if err != nil {
		return nil, err
	}
	if !tg.Image().HasTypes() {
		log.Warn().Str("kernel", c.Kernel).Msg("kernel image has no debug information; values of globals cannot be printed")
	}
	s, err := newSession(tg, c, log)
	if err != nil {
		tg.Close()
		return nil, err
	}
	s.closer = tg
	if c.Thread > 0 {
		if err := s.selectThread(c.Thread); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

func newSession(inf inferior, c *config.Config, log zerolog.Logger) (*session, error) {
	reg := host.NewRegistry()
	if err := xv6.Register(reg, c.XV6()); err != nil {
		return nil, fmt.Errorf("registering xv6 extensions: %w", err)
	}
	log.Debug().Strs("functions", reg.Functions()).Msg("registered extensions")
	return &session{
		inf:     inf,
		eval:    eval.New(inf, reg),
		printer: format.NewPrinter(reg, c.Format()),
		log:     log,
		out:     os.Stdout,
	}, nil
}

func (s *session) close() {
	if s.closer == nil {
		return
	}
	if err := s.closer.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing target")
	}
}

// print evaluates expr and prints its value.
func (s *session) print(expr string) error {
	v, err := s.eval.Eval(expr)
	if err != nil {
		return err
	}
	text, err := s.printer.Sprint(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, text)
	return nil
}

// percpu prints the copy of cell belonging to cpu, or to the selected
// thread's CPU if cpu is omitted.
func (s *session) percpu(cell string, cpu ...string) error {
	return s.print("$percpu(" + strings.Join(append([]string{cell}, cpu...), ", ") + ")")
}

// threads lists the threads, marking the selected one.
func (s *session) threads() error {
	threads, err := s.inf.Threads()
	if err != nil {
		return err
	}
	sel, err := s.inf.SelectedThread()
	if err != nil && len(threads) > 0 {
		return err
	}
	t := tabwriter.NewWriter(s.out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(t, "\tthread\tcpu\tpc\tsp\n")
	for _, th := range threads {
		mark := ""
		if th.Num == sel.Num {
			mark = "*"
		}
		fmt.Fprintf(t, "%s\t%d\t%d\t%#x\t%#x\n", mark, th.Num, th.Num-1, uint64(th.PC), uint64(th.SP))
	}
	return t.Flush()
}

// mappings lists the memory map of the inferior.
func (s *session) mappings() error {
	mm, ok := s.inf.(interface {
		Mappings() ([]*core.Mapping, error)
	})
	if !ok {
		return fmt.Errorf("target has no memory map")
	}
	ms, err := mm.Mappings()
	if err != nil {
		return err
	}
	t := tabwriter.NewWriter(s.out, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(t, "min\tmax\tperm\tsource\t\n")
	for _, m := range ms {
		src := "zero"
		if file, off := m.Source(); file != "" {
			src = fmt.Sprintf("%s@%x", file, off)
		}
		fmt.Fprintf(t, "%x\t%x\t%s\t%s\t\n", uint64(m.Min()), uint64(m.Max()), m.Perm(), src)
	}
	return t.Flush()
}

// read prints n bytes of memory, 16 to a line, starting at the address
// expr evaluates to.
func (s *session) read(expr string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("bad byte count %d", n)
	}
	v, err := s.eval.Eval(expr)
	if err != nil {
		return err
	}
	x, err := v.Uint()
	if err != nil {
		return err
	}
	a := core.Address(x)
	b := make([]byte, n)
	if err := s.inf.ReadMemory(a, b); err != nil {
		return err
	}
	var sb strings.Builder
	for i, c := range b {
		if i%16 == 0 {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%x:", uint64(a.Add(int64(i))))
		}
		fmt.Fprintf(&sb, " %02x", c)
	}
	fmt.Fprintln(s.out, sb.String())
	return nil
}

func (s *session) selectThread(num int) error {
	if err := s.inf.SelectThread(num); err != nil {
		return err
	}
	s.log.Debug().Int("thread", num).Msg("selected thread")
	return nil
}
