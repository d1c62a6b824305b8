// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package umm

import "unsafe"

// Stats is the diagnostic record populated by Info: counts of logical
// blocks (Entries) and cells (Blocks), split into used and free (§4.11).
type Stats struct {
	TotalEntries int
	TotalBlocks  int
	UsedEntries  int
	UsedBlocks   int
	FreeEntries  int
	FreeBlocks   int
}

// Info walks the physical chain from cell 0 to end-of-heap, populating
// and returning a Stats record. If ptr is non-nil, Info also checks
// whether it names a block that was observed free during the walk -- a
// cheap double-free probe -- and returns ptr if so, nil otherwise. The
// walk's counts are logged as one summary line, at LevelForce
// (regardless of the configured logger threshold) if forceDump is true
// and at LevelDebug otherwise.
func (h *Heap) Info(ptr unsafe.Pointer, forceDump bool) (unsafe.Pointer, Stats) {
	h.lock.Lock()
	defer h.lock.Unlock()

	var stats Stats
	var probeCell uint16
	var haveProbe bool
	if ptr != nil {
		probeCell, haveProbe = h.cellOf(ptr)
	}

	matched := false
	for c := h.blockNo(0); c != 0; c = h.blockNo(c) {
		span := int(h.span(c))
		stats.TotalEntries++
		stats.TotalBlocks += span
		if h.isFree(c) {
			stats.FreeEntries++
			stats.FreeBlocks += span
			if haveProbe && c == probeCell {
				matched = true
			}
		} else {
			stats.UsedEntries++
			stats.UsedBlocks += span
		}
	}

	if stats.TotalEntries == 0 {
		// The heap has never been touched by Alloc: nothing has been
		// carved into a logical block yet, but the whole region is
		// still available capacity. Report it as such for diagnostic
		// purposes without mutating the heap (only Alloc lazily
		// initializes it).
		stats.FreeBlocks = int(h.nCells) - 1
		stats.TotalBlocks = stats.FreeBlocks
	}

	level := LevelDebug
	if forceDump {
		level = LevelForce
	}
	h.logger.Logf(level, "Info: total=%d/%d used=%d/%d free=%d/%d",
		stats.TotalEntries, stats.TotalBlocks,
		stats.UsedEntries, stats.UsedBlocks,
		stats.FreeEntries, stats.FreeBlocks)

	if matched {
		return ptr, stats
	}
	return nil, stats
}
