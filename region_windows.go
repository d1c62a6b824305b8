// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2024 The umm Authors.

package umm

import (
	"errors"
	"os"
	"reflect"
	"sync"
	"syscall"
	"unsafe"
)

var osPageSize = os.Getpagesize()

// handleMap recovers the file-mapping handle backing a region's base
// address so ReleaseRegion can close it; mapping is a two-step process
// on Windows (CreateFileMapping, then MapViewOfFile) with nothing in
// the returned slice to remember the handle by.
var (
	handleMapMu sync.Mutex
	handleMap   = map[uintptr]syscall.Handle{}
)

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

	flProtect := uint32(syscall.PAGE_READWRITE)
	dwDesiredAccess := uint32(syscall.FILE_MAP_WRITE)

	maxSizeHigh := uint32(int64(size) >> 32)
	maxSizeLow := uint32(int64(size) & 0xFFFFFFFF)
	h, errno := syscall.CreateFileMapping(syscall.Handle(^uintptr(0)), nil, flProtect, maxSizeHigh, maxSizeLow, nil)
	if h == 0 {
		return nil, os.NewSyscallError("CreateFileMapping", errno)
	}

	addr, errno := syscall.MapViewOfFile(h, dwDesiredAccess, 0, 0, uintptr(size))
	if addr == 0 {
		return nil, os.NewSyscallError("MapViewOfFile", errno)
	}

	if addr&uintptr(osPageSize-1) != 0 {
		panic("umm: region not page-aligned")
	}

	handleMapMu.Lock()
	handleMap[addr] = h
	handleMapMu.Unlock()

	var b []byte
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	sh.Data = addr
	sh.Len = size
	sh.Cap = size
	return b, nil
}

// ReleaseRegion unmaps a region previously obtained from NewRegion.
func ReleaseRegion(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&region[0]))
	if err := syscall.UnmapViewOfFile(addr); err != nil {
		return err
	}

	handleMapMu.Lock()
	handle, ok := handleMap[addr]
	delete(handleMap, addr)
	handleMapMu.Unlock()
	if !ok {
		return errors.New("umm: unknown region base address")
	}

	return os.NewSyscallError("CloseHandle", syscall.CloseHandle(handle))
}
