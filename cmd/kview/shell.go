// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

const shellHelp = `Commands:
  print <expr>          evaluate and print an expression (also: p)
  percpu <cell>[, cpu]  print a CPU's copy of a per-CPU variable
  threads               list threads
  mappings              list memory mappings
  read[/n] <expr>       dump n bytes (default 64) at the address expr yields
  thread [n]            show or select the current thread
  help                  show this message
  quit                  exit the shell (or Ctrl+D)

Expressions: globals, integers, .field, ->field, [i], *x, &x, x+n,
and calls of $percpu(cell [, cpu]).`

var errQuit = errors.New("quit")

const defaultReadCount = 64

func runShell(s *session) error {
	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".kview_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptStyle.Render("(kview)") + " ",
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("print"),
			readline.PcItem("percpu"),
			readline.PcItem("threads"),
			readline.PcItem("thread"),
			readline.PcItem("mappings"),
			readline.PcItem("read"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	s.out = rl.Stdout()
	fmt.Fprintln(s.out, hintStyle.Render("Type 'help' for a list of commands, 'quit' to exit."))
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}
		if err := s.exec(line); err == errQuit {
			return nil
		} else if err != nil {
			fmt.Fprintln(s.out, errorStyle.Render(err.Error()))
		}
	}
}

// exec runs one shell command line. It returns errQuit when the user
// asks to leave.
func (s *session) exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	cmd, count, _ := strings.Cut(cmd, "/")
	if count != "" && cmd != "read" {
		return fmt.Errorf("%s takes no /count", cmd)
	}
	switch cmd {
	case "print", "p":
		if rest == "" {
			return errors.New("print: missing expression")
		}
		return s.print(rest)
	case "percpu":
		if rest == "" {
			return errors.New("usage: percpu <cell> [, cpu]")
		}
		// The evaluator splits the arguments, so either may be any expression.
		return s.percpu(rest)
	case "threads":
		return s.threads()
	case "mappings":
		return s.mappings()
	case "read":
		if rest == "" {
			return errors.New("read: missing address")
		}
		n := int64(defaultReadCount)
		if count != "" {
			var err error
			if n, err = strconv.ParseInt(count, 0, 64); err != nil || n <= 0 {
				return fmt.Errorf("bad byte count %q", count)
			}
		}
		return s.read(rest, n)
	case "thread":
		if rest == "" {
			th, err := s.inf.SelectedThread()
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "current thread is %d (cpu %d)\n", th.Num, th.Num-1)
			return nil
		}
		n, err := parseThread(rest)
		if err != nil {
			return err
		}
		return s.selectThread(n)
	case "help":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "quit", "exit", "q":
		return errQuit
	}
	return fmt.Errorf("unknown command %q; try 'help'", cmd)
}
