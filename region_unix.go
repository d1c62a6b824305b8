// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2024 The umm Authors.

//go:build darwin || dragonfly || freebsd || linux || openbsd || solaris || netbsd

package umm

import (
	"os"
	"syscall"
	"unsafe"
)

var osPageSize = os.Getpagesize()

// NewRegion anonymously maps a zero-filled, page-aligned byte slice of
// size bytes to stand in for the externally-provisioned heap region
// spec.md assumes a host build fixes up front. size is rounded up to a
// whole number of OS pages. Callers should pass the result to New, and
// eventually to ReleaseRegion once the Heap is torn down.
func NewRegion(size int) ([]byte, error) {
	if size <= 0 {
		size = osPageSize
	}
	size = (size + osPageSize - 1) &^ (osPageSize - 1)

	flags := syscall.MAP_SHARED | syscall.MAP_ANON
	prot := syscall.PROT_READ | syscall.PROT_WRITE
	b, err := syscall.Mmap(-1, 0, size, prot, flags)
	if err != nil {
		return nil, err
	}

	if uintptr(unsafe.Pointer(&b[0]))&uintptr(osPageSize-1) != 0 {
		panic("umm: region not page-aligned")
	}

	return b, nil
}

// ReleaseRegion unmaps a region previously obtained from NewRegion.
func ReleaseRegion(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	addr := unsafe.Pointer(&region[0])
	_, _, errno := syscall.Syscall(syscall.SYS_MUNMAP, uintptr(addr), uintptr(len(region)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
