// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const DefaultFilePerm = 0644

// SelfExe is the kernel-provided link to the running executable.
// It stays valid even if the binary was started via a relative path or was replaced on disk.
const SelfExe = "/proc/self/exe"

// Process identifies the running process as it was launched.
type Process struct {
	// Argv0 is the first element of the launch command line.
	Argv0 string
	// Exe is the resolved path of the running executable (empty if unknown).
	Exe string
	// ExeDeleted is set if the executable was removed or replaced on disk since start.
	// Exe is then the path it was started from, the running image is still reachable via SelfExe.
	ExeDeleted bool
}

// FileID identifies a file regardless of the path it is reachable by.
type FileID struct {
	Dev   uint64
	Inode uint64
}

func (id FileID) IsZero() bool {
	return id == FileID{}
}

var self = sync.OnceValue(readSelf)

// Self returns identity of the running process.
// The identity is read once per process, the first call does the I/O.
func Self() Process {
	return self()
}

// IsExist returns true if the file name exists.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// IsAccessible checks if the file can be opened.
func IsAccessible(name string) error {
	if !IsExist(name) {
		return fmt.Errorf("%v does not exist", name)
	}
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%v can't be opened (%w)", name, err)
	}
	f.Close()
	return nil
}

func WriteFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, DefaultFilePerm)
}

// Abs returns a cleaned absolute version of path.
// If the working directory can't be determined, the cleaned path is returned as is.
func Abs(path string) string {
	if path == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// SameFile reports whether a and b refer to the same file (device and inode).
// Any stat failure yields false.
func SameFile(a, b string) bool {
	ida, ok := StatID(a)
	if !ok {
		return false
	}
	idb, ok := StatID(b)
	return ok && ida == idb
}

// StatID returns identity of the file at path, symlinks are followed.
func StatID(path string) (FileID, bool) {
	return statID(path)
}
