// Copyright 2022 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package testutil

import (
	"math/rand"
	"os"
	"sort"
	"strconv"
	"testing"
	"time"
)

func IterCount() int {
	iters := 1000
	if testing.Short() {
		iters /= 10
	}
	return iters
}

// RandSource returns a source seeded from time, or from STACKTRACE_SEED if set.
// The seed is logged so that failures can be reproduced.
func RandSource(t *testing.T) rand.Source {
	seed := time.Now().UnixNano()
	if fixed := os.Getenv("STACKTRACE_SEED"); fixed != "" {
		seed, _ = strconv.ParseInt(fixed, 0, 64)
	}
	if os.Getenv("CI") != "" {
		seed = 0
	}
	t.Logf("seed=%v", seed)
	return rand.NewSource(seed)
}

// RandAddrs returns n sorted distinct addresses below limit.
func RandAddrs(r *rand.Rand, n int, limit uint64) []uint64 {
	seen := make(map[uint64]bool)
	var res []uint64
	for len(res) < n {
		addr := uint64(r.Int63n(int64(limit)))
		if seen[addr] {
			continue
		}
		seen[addr] = true
		res = append(res, addr)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i] < res[j]
	})
	return res
}
