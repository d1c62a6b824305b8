// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package umm

import (
	"errors"
	"unsafe"
)

var (
	// ErrOutOfMemory is returned by Alloc, and by Realloc's grow path,
	// when no free block fits and the heap region has no room left to
	// extend into.
	ErrOutOfMemory = errors.New("umm: out of memory")

	// ErrInvalidPointer is returned when Free or Realloc is handed a
	// pointer that does not name a cell inside this heap's region.
	ErrInvalidPointer = errors.New("umm: invalid pointer")

	// ErrHeapTooLarge is returned by New when the region would need
	// more than the 15-bit block number can address.
	ErrHeapTooLarge = errors.New("umm: region exceeds 32767 cells")

	// ErrRegionSize is returned by New when the region's length isn't a
	// whole multiple of the configured cell size.
	ErrRegionSize = errors.New("umm: region size is not a multiple of the block size")

	// ErrBlockSize is returned by New when the configured cell size
	// cannot hold both header and free-list link words.
	ErrBlockSize = errors.New("umm: block size too small for link fields")
)

// Alloc reserves a block able to hold size bytes and returns a pointer
// to its body, or (nil, nil) for size == 0, or (nil, ErrOutOfMemory) if
// the heap has no room (§4.8).
func (h *Heap) Alloc(size int) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	p, err := h.allocLocked(size)
	h.logger.Logf(LevelDebug, "Alloc(%d) -> %p, %v", size, p, err)
	return p, err
}

// allocLocked implements §4.8 steps 3-7. The caller holds the critical
// section.
func (h *Heap) allocLocked(size int) (unsafe.Pointer, error) {
	blocks := h.blocksForSize(size)

	if cf, ok := h.search(blocks); ok {
		// Case A: an interior free block fits; split it from its tail.
		switch span := h.span(cf); {
		case span == blocks:
			h.disconnectFromFreeList(cf)
		default:
			cf = h.makeNewBlock(cf, span-blocks, freeFlag)
		}
		return h.bodyPtr(cf), nil
	}

	// Case B: no interior free block fits. The only remaining room is
	// the heap's physical end-of-heap block (the "wilderness"), which
	// is extended from its head. It is tracked directly in h.wilderness
	// rather than inferred from the free list's walk order -- the free
	// list is not address-ordered, and free's head-insertion policy
	// (§4.9) can leave the wilderness buried behind a smaller interior
	// free block.
	if h.rawNB(0) == 0 {
		// Very first allocation against a zero-initialized heap:
		// materialize the implicit initial free block at cell 1.
		h.setRawNB(0, 1)
		h.setNF(0, 1)
		h.setRawNB(1, freeFlag)
		h.wilderness = 1
	}

	cf := h.wilderness
	if cf == 0 || !h.isFree(cf) {
		// No wilderness to extend: the heap's physical end is either
		// nonexistent (shouldn't happen once rawNB(0) != 0) or already
		// fully used.
		return nil, ErrOutOfMemory
	}

	if int(cf)+int(blocks)+1 >= int(h.nCells) {
		return nil, ErrOutOfMemory
	}

	tail := cf + blocks
	succ := h.NF(cf)
	h.setNF(h.PF(cf), tail)
	h.setPF(succ, tail)
	h.copyCellLinks(tail, cf)
	// The wilderness tail is always free once materialized: §3 states
	// FREE_FLAG as a structural property of NB, not merely an effect of
	// the public free path, so the lazily-extended remainder carries it
	// too even though it was never routed through Free.
	h.setRawNB(tail, h.blockNo(tail)|freeFlag)
	h.setPB(tail, cf)
	h.setRawNB(cf, tail)
	h.wilderness = tail

	return h.bodyPtr(cf), nil
}

// Free releases a block previously returned by Alloc or Realloc. Free
// of a nil pointer is a silent no-op (§4.9).
func (h *Heap) Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	err := h.freeLocked(ptr)
	h.logger.Logf(LevelDebug, "Free(%p) -> %v", ptr, err)
	return err
}

// freeLocked implements §4.9 steps 3-6. The caller holds the critical
// section. It is safe to call while the critical section is already
// held (realloc's shrink path relies on this).
func (h *Heap) freeLocked(ptr unsafe.Pointer) error {
	c, ok := h.cellOf(ptr)
	if !ok {
		return ErrInvalidPointer
	}

	h.assimilateUp(c)

	if p := h.PB(c); p != 0 && h.isFree(p) {
		h.assimilateDown(c, freeFlag)
		return nil
	}

	head := h.NF(0)
	h.setPF(head, c)
	h.setNF(c, head)
	h.setPF(c, 0)
	h.setNF(0, c)
	h.setRawNB(c, h.rawNB(c)|freeFlag)
	return nil
}

// Realloc changes the size of the block at ptr to size bytes, following
// C realloc semantics plus two opportunistic in-place paths (§4.10).
func (h *Heap) Realloc(ptr unsafe.Pointer, size int) (unsafe.Pointer, error) {
	if ptr == nil {
		return h.Alloc(size)
	}
	if size == 0 {
		return nil, h.Free(ptr)
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	p, err := h.reallocLocked(ptr, size)
	h.logger.Logf(LevelDebug, "Realloc(%p, %d) -> %p, %v", ptr, size, p, err)
	return p, err
}

// reallocLocked implements §4.10 steps 4-8. The caller holds the
// critical section.
func (h *Heap) reallocLocked(ptr unsafe.Pointer, size int) (unsafe.Pointer, error) {
	c, ok := h.cellOf(ptr)
	if !ok {
		return nil, ErrInvalidPointer
	}

	blocks := h.blocksForSize(size)
	curSpan := h.span(c)
	curPayload := int(curSpan)*h.cellSize - headerSize

	if curSpan == blocks {
		return ptr, nil
	}

	h.assimilateUp(c)

	if p := h.PB(c); p != 0 && h.isFree(p) {
		if h.span(p)+h.span(c) >= blocks {
			h.disconnectFromFreeList(p)
			c = h.assimilateDown(c, 0)
			newPtr := h.bodyPtr(c)
			moveOverlapping(newPtr, ptr, curPayload)
			ptr = newPtr
		}
	}

	switch span := h.span(c); {
	case span == blocks:
		return ptr, nil
	case span > blocks:
		tail := h.makeNewBlock(c, blocks, 0)
		if err := h.freeLocked(h.bodyPtr(tail)); err != nil {
			return nil, err
		}
		return ptr, nil
	default:
		fresh, err := h.allocLocked(size)
		if err != nil {
			return nil, err
		}
		copyBytes(fresh, ptr, curPayload)
		if err := h.freeLocked(ptr); err != nil {
			return nil, err
		}
		return fresh, nil
	}
}
