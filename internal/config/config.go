// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads kview's settings. Values come, in increasing
// order of precedence, from built-in defaults, a YAML file (~/.kview.yaml
// or the file named by --config), KVIEW_* environment variables and
// command line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xv6kit/kview/format"
	"github.com/xv6kit/kview/internal/logging"
	"github.com/xv6kit/kview/xv6"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "KVIEW"

// Config is the effective configuration.
type Config struct {
	Kernel string `yaml:"kernel"`
	Core   string `yaml:"core,omitempty"`
	Remote string `yaml:"remote,omitempty"`
	Thread int    `yaml:"thread,omitempty"`

	Log    LogConfig    `yaml:"log"`
	PerCPU PerCPUConfig `yaml:"percpu"`
	Vector VectorConfig `yaml:"vector"`
	Print  PrintConfig  `yaml:"print"`

	// File is the configuration file that was read, if any.
	File string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type PerCPUConfig struct {
	CellPrefix      string `yaml:"cell_prefix"`
	Anchor          string `yaml:"anchor"`
	OffsetTable     string `yaml:"offset_table"`
	KeyPattern      string `yaml:"key_pattern"`
	UseTemplateArgs bool   `yaml:"use_template_args"`
}

type VectorConfig struct {
	Pattern string `yaml:"pattern"`
}

type PrintConfig struct {
	MaxElements int `yaml:"max_elements"`
}

// SetDefaults installs the built-in defaults in v.
func SetDefaults(v *viper.Viper) {
	x := xv6.DefaultConfig()
	v.SetDefault("kernel", "")
	v.SetDefault("core", "")
	v.SetDefault("remote", "")
	v.SetDefault("thread", 0)

	v.SetDefault("log.level", logging.DefaultConfig().Level)
	v.SetDefault("log.pretty", true)

	v.SetDefault("percpu.cell_prefix", x.PerCPU.CellPrefix)
	v.SetDefault("percpu.anchor", x.PerCPU.AnchorSymbol)
	v.SetDefault("percpu.offset_table", x.PerCPU.OffsetTable)
	v.SetDefault("percpu.key_pattern", x.KeyPattern)
	v.SetDefault("percpu.use_template_args", x.UseTemplateArgs)

	v.SetDefault("vector.pattern", x.VectorPattern)

	v.SetDefault("print.max_elements", format.DefaultMaxElements)
}

// BindFlags binds the flags in fs that have a configuration key of the
// same name, with dashes turned into dots (--log-level is log.level).
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "."), f)
	})
	return err
}

// Load reads the configuration file and environment into v and returns
// the effective configuration. If path is empty, ~/.kview.yaml is read
// when it exists.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigName(".kview")
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	c := &Config{
		Kernel: v.GetString("kernel"),
		Core:   v.GetString("core"),
		Remote: v.GetString("remote"),
		Thread: v.GetInt("thread"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
		PerCPU: PerCPUConfig{
			CellPrefix:      v.GetString("percpu.cell_prefix"),
			Anchor:          v.GetString("percpu.anchor"),
			OffsetTable:     v.GetString("percpu.offset_table"),
			KeyPattern:      v.GetString("percpu.key_pattern"),
			UseTemplateArgs: v.GetBool("percpu.use_template_args"),
		},
		Vector: VectorConfig{
			Pattern: v.GetString("vector.pattern"),
		},
		Print: PrintConfig{
			MaxElements: v.GetInt("print.max_elements"),
		},
		File: v.ConfigFileUsed(),
	}
	if c.Thread < 0 {
		return nil, fmt.Errorf("bad thread number %d", c.Thread)
	}
	return c, nil
}

// XV6 returns the extension configuration.
func (c *Config) XV6() xv6.Config {
	x := xv6.DefaultConfig()
	x.PerCPU.CellPrefix = c.PerCPU.CellPrefix
	x.PerCPU.AnchorSymbol = c.PerCPU.Anchor
	x.PerCPU.OffsetTable = c.PerCPU.OffsetTable
	x.KeyPattern = c.PerCPU.KeyPattern
	x.UseTemplateArgs = c.PerCPU.UseTemplateArgs
	x.VectorPattern = c.Vector.Pattern
	return x
}

// Format returns the display options.
func (c *Config) Format() format.Options {
	return format.Options{MaxElements: c.Print.MaxElements}
}

// Logging returns the logger configuration. Output goes to stderr.
func (c *Config) Logging() logging.Config {
	l := logging.DefaultConfig()
	l.Level = c.Log.Level
	l.Pretty = c.Log.Pretty
	return l
}

// YAML renders c as a configuration file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
