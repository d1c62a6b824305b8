// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package umm

import "unsafe"

const (
	// freeFlag is bit 15 of NB(c): set iff the logical block starting at c
	// is on the free list.
	freeFlag uint16 = 0x8000

	// indexMask extracts the 15-bit block number from NB(c).
	indexMask uint16 = 0x7fff

	// maxCells is the largest heap the 15-bit block number can address.
	maxCells = int(indexMask)

	// headerSize is the byte width of the two physical-chain link fields
	// (NB, PB) that precede every cell's body, regardless of cell size.
	headerSize = 4

	// linkFieldSize is the byte width of a single 16-bit link field.
	linkFieldSize = 2

	// DefaultBlockSize is the reference target's cell size: one two-word
	// header plus a four-byte body, 16-bit-packed.
	DefaultBlockSize = 8

	// MinBlockSize is the smallest cell size that can hold both header
	// link words and, when free, both body link words.
	MinBlockSize = headerSize + 2*linkFieldSize
)

// cellHeader overlays the first headerSize bytes of a cell: the physical
// chain's next/prev links. NB carries FREE_FLAG in its high bit.
type cellHeader struct {
	nb uint16
	pb uint16
}

// freeLinks overlays the first 4 body bytes of a free cell: the free
// list's next/prev links. These bytes hold user data instead when the
// cell is in use.
type freeLinks struct {
	nf uint16
	pf uint16
}

// headerAt returns the physical-chain header overlaying cell c.
func (h *Heap) headerAt(c uint16) *cellHeader {
	off := uintptr(c) * uintptr(h.cellSize)
	return (*cellHeader)(unsafe.Pointer(&h.region[off]))
}

// freeLinksAt returns the free-list link overlay for cell c. Valid only
// while c is free; callers must not read it for a used cell.
func (h *Heap) freeLinksAt(c uint16) *freeLinks {
	off := uintptr(c)*uintptr(h.cellSize) + headerSize
	return (*freeLinks)(unsafe.Pointer(&h.region[off]))
}

// bodyPtr returns a pointer to the first payload byte of cell c, i.e.
// the address handed back by alloc.
func (h *Heap) bodyPtr(c uint16) unsafe.Pointer {
	off := uintptr(c)*uintptr(h.cellSize) + headerSize
	return unsafe.Pointer(&h.region[off])
}

// cellOf recovers the cell index owning ptr, the inverse of bodyPtr.
func (h *Heap) cellOf(ptr unsafe.Pointer) (uint16, bool) {
	base := uintptr(unsafe.Pointer(&h.region[0]))
	p := uintptr(ptr)
	if p < base+headerSize {
		return 0, false
	}
	rel := p - base - headerSize
	if rel%uintptr(h.cellSize) != 0 {
		return 0, false
	}
	c := rel / uintptr(h.cellSize)
	if c == 0 || c >= uintptr(h.nCells) {
		return 0, false
	}
	return uint16(c), true
}

// rawNB returns NB(c) including FREE_FLAG.
func (h *Heap) rawNB(c uint16) uint16 { return h.headerAt(c).nb }

// setRawNB writes NB(c) verbatim, flag bit and all.
func (h *Heap) setRawNB(c, v uint16) { h.headerAt(c).nb = v }

// blockNo is NB(c) & MASK: the index of c's physical successor, or 0 if
// c is the last logical block in the heap.
func (h *Heap) blockNo(c uint16) uint16 { return h.rawNB(c) & indexMask }

// isFree reports whether FREE_FLAG is set on c.
func (h *Heap) isFree(c uint16) bool { return h.rawNB(c)&freeFlag != 0 }

// PB returns the physical-chain back-link of c.
func (h *Heap) PB(c uint16) uint16 { return h.headerAt(c).pb }

// setPB writes the physical-chain back-link of c, unless c is the
// sentinel-or-terminator index 0: PB(0) is permanently 0 (§3 invariant
// 1), and index 0 also doubles as "no real successor" for the last
// logical block, in which case there is no cell to update.
func (h *Heap) setPB(c, v uint16) {
	if c == 0 {
		return
	}
	h.headerAt(c).pb = v
}

// NF returns the free-list forward link of c. Only meaningful if c is
// free.
func (h *Heap) NF(c uint16) uint16 { return h.freeLinksAt(c).nf }

// setNF writes the free-list forward link of c.
func (h *Heap) setNF(c, v uint16) { h.freeLinksAt(c).nf = v }

// PF returns the free-list back link of c. Only meaningful if c is free.
func (h *Heap) PF(c uint16) uint16 { return h.freeLinksAt(c).pf }

// setPF writes the free-list back link of c.
func (h *Heap) setPF(c, v uint16) { h.freeLinksAt(c).pf = v }

// nextIndex resolves NB(c)&MASK to an absolute index, translating the
// "no successor" marker (0) to the one-past-the-end cell count so span
// arithmetic doesn't need a special case at every call site.
func (h *Heap) nextIndex(c uint16) uint16 {
	if n := h.blockNo(c); n != 0 {
		return n
	}
	return h.nCells
}

// span returns the size, in cells, of the logical block starting at c.
func (h *Heap) span(c uint16) uint16 { return h.nextIndex(c) - c }

// bodyBytes is the number of payload bytes available in a single cell's
// body once it is in use (the free-list links are overwritten).
func (h *Heap) bodyBytes() int { return h.cellSize - headerSize }

// blocksForSize converts a requested payload size in bytes to the
// number of cells the block must occupy (§4.2). Callers must separately
// reject size == 0.
func (h *Heap) blocksForSize(size int) uint16 {
	bb := h.bodyBytes()
	if size <= bb {
		return 1
	}
	return uint16(2 + (size-1-bb)/h.cellSize)
}

// copyCellLinks copies src's four link fields verbatim onto dst,
// matching Case B's "copy the cell at cf verbatim to cf+blocks" (§4.8
// step 6): only the structural fields carry meaning across a
// relocation, regardless of how much raw payload space a cell's body
// has beyond them.
func (h *Heap) copyCellLinks(dst, src uint16) {
	h.setRawNB(dst, h.rawNB(src))
	h.setPB(dst, h.PB(src))
	h.setNF(dst, h.NF(src))
	h.setPF(dst, h.PF(src))
}
