// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"bytes"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Gettid returns the OS-level id of the calling thread.
func Gettid() int {
	return unix.Gettid()
}

func readSelf() Process {
	var p Process
	// The command line is a sequence of NUL-terminated arguments.
	if data, err := os.ReadFile("/proc/self/cmdline"); err == nil {
		if idx := bytes.IndexByte(data, 0); idx != -1 {
			data = data[:idx]
		}
		p.Argv0 = string(data)
	}
	if exe, err := os.Readlink(SelfExe); err == nil {
		p.Exe, p.ExeDeleted = strings.CutSuffix(exe, " (deleted)")
	}
	return p
}

func statID(path string) (FileID, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return FileID{}, false
	}
	return FileID{Dev: uint64(st.Dev), Inode: st.Ino}, true
}
