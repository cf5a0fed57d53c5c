// SPDX-License-Identifier: Apache-2.0

package fractalloc

import "unsafe"

// Allocation is the fixed header placed immediately before every client
// buffer. It is never heap-allocated on its own: Pool.Allocate places it
// in-place at a fractal slot address inside the pool's backing memory,
// which is what lets Find recover it from any interior pointer without a
// side table.
type Allocation struct {
	allocatedBytes uintptr
	references     uintptr
	// link is a tagged union in effect, discriminated by references:
	// it holds the owning *Pool while references > 0, and the next
	// free *Allocation (or nil) once references drops to zero.
	link unsafe.Pointer
}

// allocationStructSize and headerSize are compile-time constants:
// unsafe.Sizeof of a fixed-layout struct is a Go constant expression.
const allocationStructSize = unsafe.Sizeof(Allocation{})

// headerSize is allocationStructSize rounded up to Alignment. Mirrors
// Allocation::GetSize() literally, including its quirk of adding a full
// Alignment when the struct size already happens to be a multiple of it.
const headerSize = allocationStructSize + Alignment - (allocationStructSize % Alignment)

// minAllocation is the smallest possible total record footprint,
// header included.
const minAllocation = headerSize + Alignment

// newAllocationSize returns header_size + clientBytes, floored at
// minAllocation.
func newAllocationSize(clientBytes uintptr) uintptr {
	proposed := headerSize + clientBytes
	if proposed < minAllocation {
		return minAllocation
	}
	return proposed
}

// MinAllocation reports the smallest meaningful total record size this
// package will ever place.
func MinAllocation() uintptr { return minAllocation }

// NewAllocationSize reports the total record footprint (header plus
// padding) required to hold clientBytes of usable client memory.
func NewAllocationSize(clientBytes uintptr) uintptr { return newAllocationSize(clientBytes) }

// init placement-constructs the header in place: bytes is the usable
// client size this slot will report, pool is the owning arena.
func (a *Allocation) init(bytes uintptr, pool *Pool) {
	a.allocatedBytes = bytes
	a.references = 1
	a.link = unsafe.Pointer(pool)
}

// Uses returns the current reference count. Zero means the record is
// free.
func (a *Allocation) Uses() uintptr { return a.references }

// AllocatedSize returns the usable client byte count.
func (a *Allocation) AllocatedSize() uintptr { return a.allocatedBytes }

// TotalSize returns the header plus usable client byte count — the
// record's whole footprint inside the pool.
func (a *Allocation) TotalSize() uintptr { return headerSize + a.allocatedBytes }

// BlockStart returns the first usable client byte.
func (a *Allocation) BlockStart() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(a), headerSize)
}

// BlockEnd returns one past the last usable client byte.
func (a *Allocation) BlockEnd() unsafe.Pointer {
	return unsafe.Add(a.BlockStart(), a.allocatedBytes)
}

// Contains reports whether ptr lies in [BlockStart, BlockEnd).
func (a *Allocation) Contains(ptr unsafe.Pointer) bool {
	start := uintptr(a.BlockStart())
	p := uintptr(ptr)
	return p >= start && p < start+a.allocatedBytes
}

// CollisionFree reports whether this record's client range does not
// overlap other's.
func (a *Allocation) CollisionFree(other *Allocation) bool {
	aStart, aEnd := uintptr(a.BlockStart()), uintptr(a.BlockEnd())
	bStart, bEnd := uintptr(other.BlockStart()), uintptr(other.BlockEnd())
	return aEnd <= bStart || bEnd <= aStart
}

// As reinterprets the client block as *T. The caller is responsible for
// T fitting within AllocatedSize().
func As[T any](a *Allocation) *T {
	return (*T)(a.BlockStart())
}

// Keep increments the reference count once.
func (a *Allocation) Keep() { a.references++ }

// KeepN increments the reference count by n.
func (a *Allocation) KeepN(n uintptr) { a.references += n }

// Free decrements the reference count once. It does not deallocate —
// that is meaningful only once the caller also calls Allocator.Deallocate.
func (a *Allocation) Free() { a.references-- }

// FreeN decrements the reference count by n.
func (a *Allocation) FreeN(n uintptr) { a.references -= n }

// pool returns the owning Pool. Valid only while references > 0.
func (a *Allocation) pool() *Pool { return (*Pool)(a.link) }

func (a *Allocation) setPool(p *Pool) { a.link = unsafe.Pointer(p) }

// nextFree returns the next node in the owning pool's free list. Valid
// only while references == 0.
func (a *Allocation) nextFree() *Allocation { return (*Allocation)(a.link) }

func (a *Allocation) setNextFree(n *Allocation) { a.link = unsafe.Pointer(n) }
