// Copyright 2024 The umm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ummdump drives a umm.Heap over a real mmap'd region with a
// randomized alloc/free/realloc workload and prints the diagnostic
// walker's Stats before and after, for manual inspection from the
// command line. It is not part of the engine and exercises no
// invariant the package tests don't already check.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"unsafe"

	"github.com/cznic/mathutil"

	"github.com/cznic-umm/umm"
)

var (
	heapSize = flag.Int("size", 64*1024, "heap region size in bytes")
	ops      = flag.Int("ops", 10000, "number of alloc/free/realloc operations to run")
	maxAlloc = flag.Int("max", 256, "maximum payload size per allocation, in bytes")
	seed     = flag.Int("seed", 1, "PRNG seed")
	firstFit = flag.Bool("first-fit", false, "use first-fit instead of the default best-fit policy")
	dump     = flag.Bool("dump", false, "force-log every Info snapshot instead of only printing the summary")
)

type liveBlock struct {
	ptr  unsafe.Pointer
	size int
}

func main() {
	flag.Parse()
	log.SetFlags(0)

	region, err := umm.NewRegion(*heapSize)
	if err != nil {
		log.Fatalf("ummdump: mapping region: %v", err)
	}
	defer umm.ReleaseRegion(region)

	policy := umm.BestFit
	if *firstFit {
		policy = umm.FirstFit
	}

	h, err := umm.New(region, umm.Config{
		Policy: policy,
		Logger: umm.WriterLogger{W: os.Stderr, MinLevel: umm.LevelForce},
	})
	if err != nil {
		log.Fatalf("ummdump: %v", err)
	}

	_, before := h.Info(nil, *dump)
	fmt.Printf("policy=%s cells=%d before: %+v\n", policy, len(region)/umm.DefaultBlockSize, before)

	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	if err != nil {
		log.Fatalf("ummdump: %v", err)
	}
	rng.Seed(int32(*seed))

	var live []liveBlock
	var allocs, frees, reallocs, failures int
	for i := 0; i < *ops; i++ {
		switch choice := rng.Next() % 3; {
		case choice == 0 || len(live) == 0:
			size := rng.Next()%*maxAlloc + 1
			p, err := h.Alloc(size)
			if err != nil {
				failures++
				continue
			}
			allocs++
			live = append(live, liveBlock{p, size})
		case choice == 1:
			idx := rng.Next() % len(live)
			newSize := rng.Next()%*maxAlloc + 1
			p, err := h.Realloc(live[idx].ptr, newSize)
			if err != nil {
				failures++
				continue
			}
			reallocs++
			live[idx] = liveBlock{p, newSize}
		default:
			idx := rng.Next() % len(live)
			if err := h.Free(live[idx].ptr); err != nil {
				log.Fatalf("ummdump: free: %v", err)
			}
			frees++
			live = append(live[:idx], live[idx+1:]...)
		}
	}

	for _, e := range live {
		if err := h.Free(e.ptr); err != nil {
			log.Fatalf("ummdump: final free: %v", err)
		}
	}

	_, after := h.Info(nil, *dump)
	fmt.Printf("allocs=%d reallocs=%d frees=%d failures=%d after: %+v\n",
		allocs, reallocs, frees, failures, after)
}
