// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !unix

package osutil

// Files have no device/inode identity here.
func statID(path string) (FileID, bool) {
	return FileID{}, false
}
