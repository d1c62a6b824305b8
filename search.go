// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package umm

// Policy selects the free-list search strategy used by Alloc. Best-fit
// is the default, matching a zero-value Config.
type Policy uint8

const (
	// BestFit scans the whole free list and keeps the smallest block
	// that still fits, favoring the earliest candidate on ties.
	BestFit Policy = iota

	// FirstFit stops at the first block on the free list that fits.
	FirstFit
)

func (p Policy) String() string {
	switch p {
	case FirstFit:
		return "first-fit"
	default:
		return "best-fit"
	}
}

// noCandidate is bestFit's sentinel for "nothing big enough seen yet".
// 0x7fff can never be a real cell index (maxCells == 0x7fff would put
// the sentinel one past the last addressable cell).
const noCandidate uint16 = 0x7fff

// search applies the configured policy and returns an interior
// free-list candidate with span >= blocks, or ok == false if no
// interior free block fits. The physical end-of-heap block is never
// returned: Alloc extends it from its head instead (Case B). Free's
// head-insertion policy (§4.9) can leave that block anywhere in the
// free list, including behind a smaller interior block, so it is
// recognized by blockNo(cf) == 0 rather than by list position; see
// Heap.wilderness.
func (h *Heap) search(blocks uint16) (cf uint16, ok bool) {
	if h.policy == FirstFit {
		return h.firstFit(blocks)
	}
	return h.bestFit(blocks)
}

// firstFit walks the whole free list from NF(0), stopping at the first
// interior candidate whose span fits (§4.7). Every interior entry,
// including the last, is checked for fit; the end-of-heap block is
// skipped.
func (h *Heap) firstFit(blocks uint16) (uint16, bool) {
	for cf := h.NF(0); cf != 0; cf = h.NF(cf) {
		if h.blockNo(cf) != 0 && h.span(cf) >= blocks {
			return cf, true
		}
	}
	return 0, false
}

// bestFit walks the entire free list, tracking the smallest interior
// candidate whose span still fits the request; the end-of-heap block
// is skipped. Ties favor the earliest entry found (§4.7).
func (h *Heap) bestFit(blocks uint16) (uint16, bool) {
	best := noCandidate
	for cf := h.NF(0); cf != 0; cf = h.NF(cf) {
		if s := h.span(cf); h.blockNo(cf) != 0 && s >= blocks {
			if best == noCandidate || s < h.span(best) {
				best = cf
			}
		}
	}
	if best == noCandidate {
		return 0, false
	}
	return best, true
}
