// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package umm

// makeNewBlock splits off a trailing region of c's logical block,
// starting at cell c+blocks, and wires it into the physical chain with
// FREE_FLAG set iff freemask is freeFlag. Precondition: c names an
// existing logical block whose span exceeds blocks. The split does not
// by itself link the new tail into the free list; callers that mark it
// free must do that separately (§4.3).
func (h *Heap) makeNewBlock(c, blocks, freemask uint16) uint16 {
	s := c + blocks
	n := h.blockNo(c)
	h.setRawNB(s, n)
	h.setPB(s, c)
	h.setPB(n, s)
	h.setRawNB(c, s|freemask)
	if n == 0 {
		// c was the physical end-of-heap block; the carved-off tail s
		// inherits that status, since the tail -- not the original
		// head -- is what now terminates the physical chain.
		h.wilderness = s
	}
	return s
}

// disconnectFromFreeList removes c from the free list and clears
// FREE_FLAG on NB(c) (§4.4). Safe when c's free-list neighbors are the
// sentinel.
func (h *Heap) disconnectFromFreeList(c uint16) {
	pf := h.PF(c)
	nf := h.NF(c)
	h.setNF(pf, nf)
	h.setPF(nf, pf)
	h.setRawNB(c, h.rawNB(c)&^freeFlag)
}

// assimilateUp merges c's physical successor into c if that successor
// is free, unlinking it from the free list (§4.5). c's own free/used
// state is unchanged; only its span grows.
func (h *Heap) assimilateUp(c uint16) {
	n := h.blockNo(c)
	if n == 0 || !h.isFree(n) {
		return
	}

	h.disconnectFromFreeList(n)
	flag := h.rawNB(c) & freeFlag
	next := h.blockNo(n)
	h.setPB(next, c)
	h.setRawNB(c, next|flag)
	if next == 0 {
		// n was the physical end-of-heap block; c absorbs it and takes
		// over that status. Tracked independently of free-list order,
		// since free's head-insertion (§4.9) can otherwise strand the
		// wilderness anywhere in the free list.
		h.wilderness = c
	}
}

// assimilateDown unconditionally merges c into its physical predecessor
// p, returning p. freemask is freeFlag when the merged block should
// remain free (used by free), or 0 when the merge is reusing p for a
// live allocation (used by realloc; the caller must have already
// disconnected p from the free list) (§4.6).
func (h *Heap) assimilateDown(c, freemask uint16) uint16 {
	p := h.PB(c)
	next := h.blockNo(c)
	h.setRawNB(p, next|freemask)
	h.setPB(next, p)
	if next == 0 {
		// c was the physical end-of-heap block; p absorbs it and takes
		// over that status.
		h.wilderness = p
	}
	return p
}
