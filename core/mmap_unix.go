// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package core

import (
	"os"

	"golang.org/x/sys/unix"
)

func init() {
	mapFile = func(f *os.File, offset int64, length int) ([]byte, error) {
		return unix.Mmap(int(f.Fd()), offset, length, unix.PROT_READ, unix.MAP_SHARED)
	}
}
