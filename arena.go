// SPDX-License-Identifier: Apache-2.0

package fractalloc

import "unsafe"

// Arena is the minimal allocation surface Buffer and the generic slice
// helpers need. It is the same shape the teacher's monotonic and
// concurrent arenas satisfy, so any code written against it is
// unchanged by which concrete arena backs it.
type Arena interface {
	// Alloc returns size freshly usable bytes, or nil on failure.
	// alignment is advisory: Fractalloc always aligns to Alignment
	// regardless of what is requested here.
	Alloc(size, alignment uintptr) unsafe.Pointer
	// Reset releases every allocation made through this arena so far,
	// without releasing the arena itself.
	Reset()
	// Release tears the arena down. Further use is undefined.
	Release()
	// Len is the number of bytes currently live through this arena.
	Len() int
	// Cap is the number of backend bytes reserved across pools this
	// arena has touched.
	Cap() int
	// Peak is the high-water mark of Len.
	Peak() int
}

// AllocateFrom allocates space for one T from a and returns a pointer
// to it, uninitialized. A nil a, or an a that fails the request, falls
// back to new(T) so the caller always gets a usable pointer. Named
// distinctly from the package-level Allocate (the Allocator façade's
// entry point) to avoid shadowing it.
func AllocateFrom[T any](a Arena) *T {
	if a == nil {
		return new(T)
	}
	var x T
	if ptr := (*T)(a.Alloc(unsafe.Sizeof(x), unsafe.Alignof(x))); ptr != nil {
		return ptr
	}
	return new(T)
}

// FractallocArena adapts an *Allocator into the Arena interface, so
// Buffer/AllocateSlice/SliceAppend can run over fractal-indexed pools
// instead of the teacher's bump buffers. Unlike a monotonic arena, a
// FractallocArena can actually reclaim individual allocations — Reset
// here deallocates every live record instead of merely rewinding a
// cursor.
type FractallocArena struct {
	allocator *Allocator
	hint      TypeMeta
	live      []*Allocation
	pools     map[*Pool]struct{}
	current   int
	peak      int
}

// NewFractallocArena builds an Arena backed by allocator, routing every
// allocation through hint's pool tactic (nil for the main chain).
func NewFractallocArena(allocator *Allocator, hint TypeMeta) *FractallocArena {
	return &FractallocArena{
		allocator: allocator,
		hint:      hint,
		pools:     make(map[*Pool]struct{}),
	}
}

// Alloc requests size bytes from the underlying Allocator. Each call is
// a fresh allocation — there is no bump cursor to extend, so growing a
// slice/buffer abandons its previous backing record until Reset, the
// same abandon-on-grow behavior the teacher's monotonic arena exhibits.
func (fa *FractallocArena) Alloc(size, _ uintptr) unsafe.Pointer {
	entry, err := fa.allocator.Allocate(fa.hint, size)
	if err != nil {
		return nil
	}

	fa.live = append(fa.live, entry)
	fa.pools[entry.pool()] = struct{}{}
	fa.current += int(entry.TotalSize())
	if fa.current > fa.peak {
		fa.peak = fa.current
	}
	return entry.BlockStart()
}

// Reset deallocates every record this arena has handed out so far.
func (fa *FractallocArena) Reset() {
	for _, entry := range fa.live {
		_ = fa.allocator.Deallocate(entry)
	}
	fa.live = fa.live[:0]
	fa.pools = make(map[*Pool]struct{})
	fa.current = 0
}

// Release is equivalent to Reset for a FractallocArena: the pools
// themselves are owned by the Allocator, not by this adapter, and are
// only ever freed by CollectGarbage.
func (fa *FractallocArena) Release() {
	fa.Reset()
}

// Len reports the bytes currently live through this arena.
func (fa *FractallocArena) Len() int { return fa.current }

// Cap reports the backend bytes reserved across every pool this arena
// has allocated from since its last Reset.
func (fa *FractallocArena) Cap() int {
	var total uintptr
	for p := range fa.pools {
		total += p.backendBytes
	}
	return int(total)
}

// Peak reports the high-water mark of Len.
func (fa *FractallocArena) Peak() int { return fa.peak }
