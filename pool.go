// SPDX-License-Identifier: Apache-2.0

package fractalloc

import "unsafe"

// invalidIndex is the sentinel ValidateIndex returns when no valid
// allocation can be found at or above an index.
const invalidIndex = ^uintptr(0)

// Pool is one power-of-two-sized arena, fractally indexed so that any
// pointer inside it can be mapped back to its owning Allocation in
// O(log entries), without a side table. It is born when a PoolChain
// can't satisfy an allocation and dies only during CollectGarbage —
// never automatically.
type Pool struct {
	backendBytes  uintptr // total bytes reserved from the OS, power of two
	backendLog2   uintptr // cached log2(backendBytes)
	backendLSB    uintptr // cached log2(backendBytes >> 1), used by the index math
	frontendBytes uintptr // sum of TotalSize() of all live records
	entries       uintptr // high-water count of slots ever touched
	validEntries  uintptr // count of records with references > 0
	lastFreed     *Allocation
	threshold     uintptr
	thresholdPrev uintptr
	thresholdMin  uintptr
	memory        []byte
	meta          TypeMeta
	next          *Pool
	be            backend
	step          uintptr
}

// newPool reserves size bytes (assumed already a power of two) from the
// OS and initializes the fractal index over them.
func newPool(meta TypeMeta, size uintptr) (*Pool, error) {
	be := newBackend()
	mem, err := be.reserve(size)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	be.touch(mem)

	minPage := uintptr(minAllocation)
	if meta != nil && meta.AllocationPage() != 0 {
		minPage = meta.AllocationPage()
	}

	return &Pool{
		backendBytes:  size,
		backendLog2:   fastLog2(size),
		backendLSB:    lsb(size >> 1),
		threshold:     size,
		thresholdPrev: size,
		thresholdMin:  roof2(minPage),
		memory:        mem,
		meta:          meta,
		be:            be,
	}, nil
}

// AllocatedByBackend is the number of bytes the OS handed out for this
// pool's usable region.
func (p *Pool) AllocatedByBackend() uintptr { return p.backendBytes }

// AllocatedByFrontend is the sum of TotalSize() of every live record.
func (p *Pool) AllocatedByFrontend() uintptr { return p.frontendBytes }

// Entries is the high-water count of slots ever touched.
func (p *Pool) Entries() uintptr { return p.entries }

// Meta returns the type descriptor associated with this pool, if any.
// It exists for dump/debug purposes only — it plays no part in routing.
func (p *Pool) Meta() TypeMeta { return p.meta }

// Next returns the following pool in its chain, nil at the tail.
func (p *Pool) Next() *Pool { return p.next }

// IsInUse reports whether the pool holds at least one live record.
func (p *Pool) IsInUse() bool { return p.frontendBytes > 0 }

// MaxEntries is the largest number of entries this pool could ever hold
// if every one of them were minAllocation-sized.
func (p *Pool) MaxEntries() uintptr { return p.backendBytes / minAllocation }

// CanContain reports whether a record of the given padded size could be
// placed at the pool's current threshold level.
func (p *Pool) CanContain(bytes uintptr) bool {
	return p.threshold >= p.thresholdMin && bytes <= p.threshold
}

func (p *Pool) memoryBase() uintptr { return uintptr(unsafe.Pointer(&p.memory[0])) }
func (p *Pool) memoryEnd() uintptr  { return p.memoryBase() + p.backendBytes }

// addressOf returns the byte offset of slot index within the pool,
// using the fractal index math from spec.md §4.2: index 0 is the root
// (offset 0); index i != 0 lives at (2j+1)*levelSize where p=floor(log2
// i), j = i - 2^p, levelSize = 2^(backendLSB - p).
func (p *Pool) addressOf(index uintptr) uintptr {
	if index == 0 {
		return 0
	}
	level := fastLog2(index)
	j := index - (uintptr(1) << level)
	levelSize := uintptr(1) << (p.backendLSB - level)
	return (2*j + 1) * levelSize
}

// allocationAt returns the (not validated) Allocation header placed at
// slot index.
func (p *Pool) allocationAt(index uintptr) *Allocation {
	off := p.addressOf(index)
	return (*Allocation)(unsafe.Pointer(&p.memory[off]))
}

// thresholdFromIndex returns the max record size servable at index's
// tree level. index must be non-zero.
func (p *Pool) thresholdFromIndex(index uintptr) uintptr {
	return uintptr(1) << (p.backendLSB - fastLog2(index))
}

// Allocate places a new record able to hold bytes of usable client
// memory, or returns nil if the pool cannot currently serve it (full at
// the current threshold level, or thinner than thresholdMin demands).
func (p *Pool) Allocate(bytes uintptr) *Allocation {
	padded := newAllocationSize(bytes)
	if !p.CanContain(padded) {
		return nil
	}

	var entry *Allocation
	if p.lastFreed != nil {
		entry = p.lastFreed
		p.lastFreed = entry.nextFree()
		entry.init(padded-headerSize, p)
	} else {
		entry = p.allocationAt(p.entries)
		entry.init(padded-headerSize, p)
		p.entries++

		if uintptr(unsafe.Pointer(entry))+p.threshold >= p.memoryEnd() {
			p.thresholdPrev = p.threshold
			p.threshold >>= 1
		}
	}

	if padded > p.thresholdMin {
		p.thresholdMin = roof2(padded)
	}

	p.frontendBytes += padded
	p.validEntries++
	return entry
}

// Deallocate releases entry back to the pool. The caller (Allocator)
// must already have verified entry.references == 1.
func (p *Pool) Deallocate(entry *Allocation) {
	p.frontendBytes -= entry.TotalSize()
	entry.references = 0
	p.validEntries--

	if p.frontendBytes == 0 {
		p.threshold = p.backendBytes
		p.thresholdPrev = p.backendBytes
		p.thresholdMin = minAllocation
		p.lastFreed = nil
		p.entries = 0
		p.validEntries = 0
		return
	}

	entry.setNextFree(p.lastFreed)
	p.lastFreed = entry
}

// Reallocate resizes entry in place, never moving data. It fails only
// when growing would cross the pool's current threshold; the Allocator
// then falls back to allocating elsewhere.
func (p *Pool) Reallocate(entry *Allocation, bytes uintptr) bool {
	if bytes > entry.allocatedBytes {
		addition := bytes - entry.allocatedBytes
		newTotal := entry.TotalSize() + addition
		if newTotal > p.threshold {
			return false
		}
		if newTotal > p.thresholdMin {
			p.thresholdMin = roof2(newTotal)
		}
		p.frontendBytes += addition
	} else {
		removal := entry.allocatedBytes - bytes
		p.frontendBytes -= removal
	}

	entry.allocatedBytes = bytes
	return true
}

// Contains reports whether ptr falls anywhere inside the pool's backing
// range, regardless of whether a live record covers it.
func (p *Pool) Contains(ptr unsafe.Pointer) bool {
	a := uintptr(ptr)
	base := p.memoryBase()
	return a >= base && a < base+p.backendBytes
}

// indexFromAddress derives the deepest slot index whose range could
// contain ptr, then climbs until the index is within [0, entries).
// Assumes Contains(ptr).
func (p *Pool) indexFromAddress(ptr unsafe.Pointer) uintptr {
	i := uintptr(ptr) - p.memoryBase()
	if i < p.threshold || p.entries == 0 {
		return 0
	}

	lowBit := i & (-i)
	index := (p.backendBytes+i)/lowBit - 1
	index >>= 1
	for index >= p.entries {
		index = p.upIndex(index)
	}
	return index
}

// upIndex returns the parent slot of index in the implicit tree.
func (p *Pool) upIndex(index uintptr) uintptr {
	return index >> (lsb(index) + 1)
}

// validateIndex climbs from index until it lands on a slot with a live
// record, or returns invalidIndex if the pool holds nothing at or above
// the root.
func (p *Pool) validateIndex(index uintptr) uintptr {
	if p.entries == 0 {
		return invalidIndex
	}

	for index != 0 && (index >= p.entries || p.allocationAt(index).references == 0) {
		index = p.upIndex(index)
	}

	if index == 0 && p.allocationAt(0).references == 0 {
		return invalidIndex
	}
	return index
}

// allocationFromAddress returns the valid record owning ptr's slot, or
// nil if that slot is unused. Assumes Contains(ptr).
func (p *Pool) allocationFromAddress(ptr unsafe.Pointer) *Allocation {
	idx := p.validateIndex(p.indexFromAddress(ptr))
	if idx == invalidIndex {
		return nil
	}
	return p.allocationAt(idx)
}

// Find returns the record that owns ptr, or nil if ptr is not ours or
// its slot is no longer in use. A hit here can still be a miss if ptr
// lands inside a slot that holds a smaller record than the one that
// would cover it — Contains on the candidate disambiguates.
func (p *Pool) Find(ptr unsafe.Pointer) *Allocation {
	if !p.Contains(ptr) {
		return nil
	}
	entry := p.allocationFromAddress(ptr)
	if entry != nil && entry.Contains(ptr) {
		return entry
	}
	return nil
}

// Trim removes trailing unused slots from entries, re-threads the free
// list over every remaining unused slot in ascending order, and resets
// threshold to the level implied by the new entry count. Assumes
// entries > 0 (the caller only trims in-use pools).
func (p *Pool) Trim() {
	assume(p.entries > 0, ErrNilAllocation)

	ecounter := p.entries
	for {
		ecounter--
		if p.allocationAt(ecounter).references > 0 {
			break
		}
		if ecounter == 0 {
			break
		}
	}
	p.entries = ecounter + 1

	p.lastFreed = nil
	var prev *Allocation
	for i := uintptr(0); i+1 < p.entries; i++ {
		e := p.allocationAt(i)
		if e.references != 0 {
			continue
		}
		if p.lastFreed == nil {
			p.lastFreed = e
		} else {
			prev.setNextFree(e)
		}
		prev = e
	}
	if prev != nil {
		prev.setNextFree(nil)
	}

	if p.entries == 1 {
		// Only the root survives: restore the pool to its coarsest
		// level rather than trust thresholdFromIndex(0), which the
		// original leaves undefined for a zero index.
		p.threshold = p.backendBytes
		p.thresholdPrev = p.backendBytes
		return
	}

	p.threshold = p.thresholdFromIndex(p.entries - 1)
	if p.threshold != p.backendBytes {
		p.thresholdPrev = p.threshold * 2
	} else {
		p.thresholdPrev = p.threshold
	}
}

// release returns the pool's backing bytes to the OS. The pool and any
// record inside it are invalid afterward.
func (p *Pool) release() {
	p.be.release(p.memory)
}
