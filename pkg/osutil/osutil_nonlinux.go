// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package osutil

import (
	"os"
)

func Gettid() int {
	return 0
}

func readSelf() Process {
	var p Process
	if len(os.Args) != 0 {
		p.Argv0 = os.Args[0]
	}
	if exe, err := os.Executable(); err == nil {
		p.Exe = exe
	}
	return p
}
