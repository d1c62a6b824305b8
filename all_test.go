// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package umm

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
)

// bytesAt views the n-byte payload at ptr as a writable slice, for
// tests that want to stamp and verify allocator-returned memory the way
// the teacher package's stress tests do over its []byte-returning API.
func bytesAt(ptr unsafe.Pointer, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), n)
}

// newStressHeap builds a heap well under the 15-bit cell-index ceiling
// (32767 cells) -- big enough to exercise split/coalesce/search over a
// long randomized run without approaching that limit.
func newStressHeap(t testing.TB, policy Policy) *Heap {
	t.Helper()
	region := make([]byte, 4096*DefaultBlockSize)
	h, err := New(region, Config{Policy: policy})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// stress allocates and frees a randomized sequence of small blocks,
// verifying payload integrity across the whole run, skipping attempts
// that legitimately run out of room (unlike the teacher package's
// mmap-backed allocator, this heap has a fixed capacity).
func stress(t *testing.T, policy Policy, max int) {
	h := newStressHeap(t, policy)
	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	if err != nil {
		t.Fatal(err)
	}
	rng.Seed(42)

	type live struct {
		ptr  unsafe.Pointer
		size int
		seed int
	}
	var a []live
	for i := 0; i < 2000; i++ {
		size := rng.Next()%max + 1
		p, err := h.Alloc(size)
		if err != nil {
			continue // heap is full; that's expected under a fixed region
		}

		seed := rng.Next()
		b := bytesAt(p, size)
		for i := range b {
			b[i] = byte(seed + i)
		}
		a = append(a, live{p, size, seed})
	}

	for _, e := range a {
		b := bytesAt(e.ptr, e.size)
		for i, g := range b {
			if want := byte(e.seed + i); g != want {
				t.Fatalf("corrupted payload at %p: got %#02x want %#02x", e.ptr, g, want)
			}
		}
	}

	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
	for _, e := range a {
		if err := h.Free(e.ptr); err != nil {
			t.Fatal(err)
		}
	}

	_, stats := h.Info(nil, false)
	if stats.UsedEntries != 0 || stats.UsedBlocks != 0 {
		t.Fatalf("leaked after freeing everything: %+v", stats)
	}
	if stats.FreeEntries > 1 {
		t.Fatalf("heap did not fully coalesce: %+v", stats)
	}
}

func TestStressSmallBestFit(t *testing.T)  { stress(t, BestFit, 64) }
func TestStressSmallFirstFit(t *testing.T) { stress(t, FirstFit, 64) }
func TestStressBigBestFit(t *testing.T)    { stress(t, BestFit, 512) }

func benchmarkAllocFree(b *testing.B, size int, policy Policy) {
	region := make([]byte, 16384*DefaultBlockSize)
	h, err := New(region, Config{Policy: policy})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, err := h.Alloc(size)
		if err != nil {
			b.Fatal(err)
		}
		if err := h.Free(p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAllocFree16BestFit(b *testing.B)  { benchmarkAllocFree(b, 16, BestFit) }
func BenchmarkAllocFree16FirstFit(b *testing.B) { benchmarkAllocFree(b, 16, FirstFit) }
func BenchmarkAllocFree64BestFit(b *testing.B)  { benchmarkAllocFree(b, 64, BestFit) }
