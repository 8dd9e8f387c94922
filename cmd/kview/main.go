// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The kview tool is a command-line tool for exploring the state of an
// xv6 kernel, either from a core dump or live through a gdb stub.
// Run "kview help" for a list of commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xv6kit/kview/internal/config"
	"github.com/xv6kit/kview/internal/logging"
)

var (
	cmdRoot = &cobra.Command{
		Use:   "kview",
		Short: "kview is a set of tools for inspecting xv6 kernel state",
		Long: `kview reads kernel variables from a core dump or a running kernel,
using the kernel image's symbols and debug information.

Per-CPU variables are reached with $percpu(cell [, cpu]), and
static_vector containers are printed by their contents.`,
		Example: `  kview --kernel kernel --core vmcore print 'cpus[0]'
  kview --kernel kernel --remote localhost:1234 percpu mycpu 1
  kview --kernel kernel --core vmcore shell`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	cmdPrint = &cobra.Command{
		Use:   "print <expression>",
		Short: "evaluate an expression and print its value",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(s *session, args []string) error {
			return s.print(strings.Join(args, " "))
		}),
	}

	cmdPerCPU = &cobra.Command{
		Use:   "percpu <cell> [cpu]",
		Short: "print a CPU's copy of a per-CPU variable",
		Long: `Print one CPU's copy of the per-CPU variable whose cell is <cell>.
Without [cpu], the CPU of the selected thread (--thread) is used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: withSession(func(s *session, args []string) error {
			return s.percpu(args[0], args[1:]...)
		}),
	}

	cmdThreads = &cobra.Command{
		Use:   "threads",
		Short: "list threads (one per CPU)",
		Args:  cobra.NoArgs,
		RunE: withSession(func(s *session, args []string) error {
			return s.threads()
		}),
	}

	cmdMappings = &cobra.Command{
		Use:   "mappings",
		Short: "print virtual memory mappings",
		Args:  cobra.NoArgs,
		RunE: withSession(func(s *session, args []string) error {
			return s.mappings()
		}),
	}

	cmdRead = &cobra.Command{
		Use:   "read <expression>",
		Short: "dump memory at the address an expression evaluates to",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(s *session, args []string) error {
			return s.read(strings.Join(args, " "), flags.count)
		}),
	}

	cmdShell = &cobra.Command{
		Use:   "shell",
		Short: "start an interactive shell",
		Args:  cobra.NoArgs,
		RunE: withSession(func(s *session, args []string) error {
			return runShell(s)
		}),
	}

	cmdConfig = &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}
)

// flags holds the values of the persistent flags that are not bound
// into the configuration.
var flags struct {
	config string
	count  int64
}

// cfg and logger are set by loadConfig before any command runs.
var (
	cfg    *config.Config
	logger zerolog.Logger
)

func init() {
	pf := cmdRoot.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "configuration file (default ~/.kview.yaml)")
	pf.StringP("kernel", "k", "", "kernel image with symbols and debug information")
	pf.StringP("core", "c", "", "kernel core dump")
	pf.StringP("remote", "r", "", "address of a gdb stub, as host:port")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.IntP("thread", "t", 0, "thread to select (CPU number plus one)")

	cmdRead.Flags().Int64VarP(&flags.count, "count", "n", defaultReadCount, "number of bytes to read")

	cmdRoot.AddCommand(cmdPrint, cmdPerCPU, cmdThreads, cmdMappings, cmdRead, cmdShell, cmdConfig)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	v := viper.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	c, err := config.Load(v, flags.config)
	if err != nil {
		return err
	}
	l, err := logging.NewWithComponent(c.Logging(), "kview")
	if err != nil {
		return err
	}
	cfg, logger = c, l
	if c.File != "" {
		logger.Debug().Str("file", c.File).Msg("loaded configuration")
	}
	return nil
}

// withSession adapts a command that needs an open target.
func withSession(run func(s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer s.close()
		s.out = cmd.OutOrStdout()
		return run(s, args)
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	b, err := cfg.YAML()
	if err != nil {
		return err
	}
	if cfg.File != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.File)
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

// parseThread parses a 1-based thread number.
func parseThread(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bad thread number %q", s)
	}
	return n, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
