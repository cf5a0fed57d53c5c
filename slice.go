// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"unsafe"
)

// AllocateSlice carves a []T of the given length and capacity out of a.
// When a is nil it falls back to make, so callers of Buffer/SliceAppend
// work the same with or without a Fractalloc-backed Arena.
func AllocateSlice[T any](a Arena, length, capacity int) []T {
	if a != nil {
		var x T
		bufSize := int(unsafe.Sizeof(x)) * capacity
		if ptr := (*T)(a.Alloc(uintptr(bufSize), unsafe.Alignof(x))); ptr != nil {
			s := unsafe.Slice(ptr, capacity)
			return s[:length]
		}
	}
	return make([]T, length, capacity)
}

// SliceAppend appends data to s, growing s out of a first if it doesn't
// already have room. A nil a degrades to the built-in append.
func SliceAppend[T any](a Arena, s []T, data ...T) []T {
	if a == nil {
		return append(s, data...)
	}
	s = growSlice(a, s, len(data))
	s = append(s, data...)
	return s
}

// growSlice reallocates s, if needed, to a capacity rounded up to the
// nearest power of two — the same roof2 rounding Pool uses to size its
// own backing region, so a slice that outgrows its capacity lands on an
// allocation size the arena underneath was already going to round up
// to anyway.
func growSlice[T any](a Arena, s []T, dataLen int) []T {
	newLen := len(s) + dataLen
	if newLen <= cap(s) {
		return s
	}

	newCap := int(roof2(uintptr(newLen)))
	s2 := AllocateSlice[T](a, len(s), newCap)
	copy(s2, s)
	return s2
}
