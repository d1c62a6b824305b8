// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package umm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// checkInvariants walks both chains over h and asserts the universal
// invariants spec.md §8 requires to hold between any two public
// operations. It is meant to run after every Alloc/Free/Realloc in
// tests exercising the engine directly.
func checkInvariants(t testing.TB, h *Heap) {
	t.Helper()

	free := map[uint16]bool{}
	spanSum := 0
	for c := h.blockNo(0); c != 0; c = h.blockNo(c) {
		// The last block's NB is 0, the sentinel, whose PB stays 0.
		if h.blockNo(c) != 0 {
			require.Equalf(t, c, h.PB(h.blockNo(c)), "PB(NB(%d)&MASK) != %d", c, c)
		}
		spanSum += int(h.span(c))
		if h.isFree(c) {
			free[c] = true
		}
	}
	if spanSum != 0 {
		require.Equal(t, int(h.nCells)-1, spanSum, "logical block spans must cover every cell but the sentinel")
	}

	seen := map[uint16]bool{}
	prev := uint16(0)
	count := 0
	for c := h.NF(0); c != 0; c = h.NF(c) {
		require.Falsef(t, seen[c], "free list has a cycle at cell %d", c)
		seen[c] = true
		require.True(t, h.isFree(c), "free-list member %d is not FREE_FLAG-tagged", c)
		require.Equal(t, prev, h.PF(c), "PF(%d) does not point back to its predecessor", c)
		prev = c
		count++
		require.LessOrEqual(t, count, int(h.nCells), "free list walk did not terminate")
	}

	require.Equal(t, len(free), len(seen), "free-list membership must match FREE_FLAG-tagged blocks")
	for c := range free {
		require.Truef(t, seen[c], "block %d is FREE_FLAG-tagged but absent from the free list", c)
	}

	adjacentFree := false
	for c := h.blockNo(0); c != 0; c = h.blockNo(c) {
		if h.isFree(c) && h.blockNo(c) != 0 && h.isFree(h.blockNo(c)) {
			adjacentFree = true
		}
	}
	require.Falsef(t, adjacentFree, "two physically adjacent blocks are both free")
}

func TestCheckInvariantsHoldAcrossMixedOps(t *testing.T) {
	region := make([]byte, 256*DefaultBlockSize)
	h, err := New(region, Config{Policy: BestFit})
	require.NoError(t, err)

	type liveBlock struct {
		ptr  unsafe.Pointer
		size int
	}
	var live []liveBlock
	sizes := []int{1, 3, 4, 5, 9, 16, 31, 40}
	for round := 0; round < 500; round++ {
		op := round % 3
		switch {
		case op != 2 || len(live) == 0:
			size := sizes[round%len(sizes)]
			p, err := h.Alloc(size)
			if err == nil {
				live = append(live, liveBlock{p, size})
			}
		default:
			i := round % len(live)
			require.NoError(t, h.Free(live[i].ptr))
			live = append(live[:i], live[i+1:]...)
		}
		checkInvariants(t, h)
	}

	for _, e := range live {
		require.NoError(t, h.Free(e.ptr))
	}
	checkInvariants(t, h)
}
