// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"sync"
	"unsafe"
)

// SerializedAllocator wraps an *Allocator with coarse-grained
// serialization at every façade entry point, answering spec.md §5's
// note that a thread-safe variant needs only that — the fractal index
// and per-pool state underneath are untouched.
type SerializedAllocator struct {
	mu    sync.Mutex
	inner *Allocator
}

// NewSerializedAllocator wraps an existing Allocator. The Allocator
// must not be used directly by any other goroutine once wrapped.
func NewSerializedAllocator(inner *Allocator) *SerializedAllocator {
	return &SerializedAllocator{inner: inner}
}

func (s *SerializedAllocator) Allocate(hint TypeMeta, bytes uintptr) (*Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Allocate(hint, bytes)
}

func (s *SerializedAllocator) Reallocate(entry *Allocation, bytes uintptr) (*Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Reallocate(entry, bytes)
}

func (s *SerializedAllocator) Deallocate(entry *Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Deallocate(entry)
}

func (s *SerializedAllocator) Find(hint TypeMeta, ptr unsafe.Pointer) *Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Find(hint, ptr)
}

func (s *SerializedAllocator) CheckAuthority(hint TypeMeta, ptr unsafe.Pointer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.CheckAuthority(hint, ptr)
}

func (s *SerializedAllocator) CollectGarbage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.CollectGarbage()
}

func (s *SerializedAllocator) CheckBoundary(token string) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.CheckBoundary(token)
}

func (s *SerializedAllocator) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Statistics()
}

func (s *SerializedAllocator) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Shutdown()
}
