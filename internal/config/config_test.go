// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xv6kit/kview/format"
	"github.com/xv6kit/kview/xv6"
)

// emptyHome points HOME at an empty directory so that a developer's
// own ~/.kview.yaml does not leak into tests.
func emptyHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, data string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	emptyHome(t)
	c, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Empty(t, c.File)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, format.DefaultMaxElements, c.Print.MaxElements)
	assert.Equal(t, xv6.DefaultConfig(), c.XV6())
	assert.Equal(t, format.DefaultOptions(), c.Format())
}

func TestFile(t *testing.T) {
	emptyHome(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "kview.yaml"), `
kernel: /boot/kernel
percpu:
  key_pattern: "&(\\w+_key)>"
  use_template_args: false
print:
  max_elements: 16
`)
	c, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, path, c.File)
	assert.Equal(t, "/boot/kernel", c.Kernel)
	assert.Equal(t, `&(\w+_key)>`, c.PerCPU.KeyPattern)
	assert.Equal(t, 16, c.Print.MaxElements)

	x := c.XV6()
	assert.False(t, x.UseTemplateArgs)
	assert.Equal(t, `&(\w+_key)>`, x.KeyPattern)
	assert.Equal(t, "__percpu_start", x.PerCPU.AnchorSymbol, "unset keys keep their defaults")
}

func TestHomeFile(t *testing.T) {
	home := emptyHome(t)
	writeFile(t, filepath.Join(home, ".kview.yaml"), "core: /var/crash/vmcore\n")
	c, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/var/crash/vmcore", c.Core)
	assert.Equal(t, filepath.Join(home, ".kview.yaml"), c.File)
}

func TestPrecedence(t *testing.T) {
	emptyHome(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "kview.yaml"), `
log:
  level: info
print:
  max_elements: 16
thread: 1
`)
	t.Setenv("KVIEW_PRINT_MAX_ELEMENTS", "8")
	t.Setenv("KVIEW_LOG_LEVEL", "error")
	t.Setenv("KVIEW_PERCPU_ANCHOR", "__percpu_begin")

	fs := pflag.NewFlagSet("kview", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("log-level", "", "")
	fs.Int("thread", 0, "")
	require.NoError(t, fs.Parse([]string{"--log-level=debug"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, fs))
	c, err := Load(v, path)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Log.Level, "flags beat the environment")
	assert.Equal(t, 8, c.Print.MaxElements, "the environment beats the file")
	assert.Equal(t, 1, c.Thread, "an unset flag does not hide the file")
	assert.Equal(t, "__percpu_begin", c.XV6().PerCPU.AnchorSymbol)
}

func TestLoadErrors(t *testing.T) {
	emptyHome(t)
	dir := t.TempDir()
	_, err := Load(viper.New(), filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := writeFile(t, filepath.Join(dir, "bad.yaml"), "print: [1, 2\n")
	_, err = Load(viper.New(), bad)
	assert.Error(t, err)

	neg := writeFile(t, filepath.Join(dir, "neg.yaml"), "thread: -1\n")
	_, err = Load(viper.New(), neg)
	assert.ErrorContains(t, err, "bad thread number")
}

func TestYAML(t *testing.T) {
	emptyHome(t)
	c, err := Load(viper.New(), "")
	require.NoError(t, err)
	b, err := c.YAML()
	require.NoError(t, err)

	var back Config
	require.NoError(t, yaml.Unmarshal(b, &back))
	assert.Equal(t, c.PerCPU, back.PerCPU)
	assert.Equal(t, c.Print, back.Print)
	assert.NotContains(t, string(b), "file:")
	assert.Contains(t, string(b), "offset_table: percpu_offsets")
}
