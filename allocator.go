// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"sync"
	"unsafe"
)

// Allocator is the process-wide façade that multiplexes Pools into
// chains: one untyped main chain, sizeBuckets chains bucketed by
// floor(log2(size)), and one chain per TypeMeta that opts into the
// Type tactic (the chain head lives on the TypeMeta itself).
type Allocator struct {
	mainChain  *Pool
	sizeChains [sizeBuckets]*Pool
	typeSet    map[TypeMeta]struct{}
	lastFound  [hotCacheSize]*Pool
	stats      Statistics
}

// AllocatorOption configures a newly constructed Allocator, mirroring
// the functional-options shape the teacher uses for its arenas.
type AllocatorOption func(*Allocator)

// NewAllocator builds an empty Allocator. Most embedders need only one,
// constructed once at process start; see the package-level convenience
// functions for that common case.
func NewAllocator(opts ...AllocatorOption) *Allocator {
	a := &Allocator{typeSet: make(map[TypeMeta]struct{})}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// chainFor returns the chain slot for the Main and Size tactics. The
// Type tactic is handled separately in Allocate: its chain head lives
// on the TypeMeta descriptor itself (spec §9's weak back-reference),
// not in a field the Allocator can take the address of.
func (a *Allocator) chainFor(hint TypeMeta) **Pool {
	if hint == nil {
		return &a.mainChain
	}
	if hint.PoolTactic() == TacticSize {
		return &a.sizeChains[fastLog2(hint.Size())]
	}
	return &a.mainChain
}

// Allocate serves bytes of usable client memory, routed by hint's pool
// tactic (nil routes to the main chain). bytes must be > 0.
func (a *Allocator) Allocate(hint TypeMeta, bytes uintptr) (*Allocation, error) {
	assume(bytes > 0, ErrZeroAllocation)
	if bytes == 0 {
		return nil, ErrZeroAllocation
	}

	if hint != nil && hint.PoolTactic() == TacticType {
		head := hint.PoolHead()
		entry, err := chainAllocate(&head, hint, bytes)
		hint.SetPoolHead(head)
		if err != nil {
			return nil, err
		}
		a.typeSet[hint] = struct{}{}
		a.noteHit(entry.pool())
		Logger.Debug("fractalloc: allocate", "bytes", bytes, "tactic", hint.PoolTactic().String())
		return entry, nil
	}

	head := a.chainFor(hint)
	entry, err := chainAllocate(head, hint, bytes)
	if err != nil {
		return nil, err
	}
	a.noteHit(entry.pool())
	Logger.Debug("fractalloc: allocate", "bytes", bytes)
	return entry, nil
}

// Reallocate resizes entry, returning the same record if the owning
// pool could grow it in place, or a newly allocated record otherwise.
// On the fallback path the caller is responsible for copying the old
// client bytes and deallocating the old record — Reallocate never
// copies itself, matching spec.md §4.4.
func (a *Allocator) Reallocate(entry *Allocation, bytes uintptr) (*Allocation, error) {
	assume(entry != nil, ErrNilAllocation)
	assume(bytes != entry.AllocatedSize(), ErrSameSize)

	pool := entry.pool()
	if pool.Reallocate(entry, bytes) {
		return entry, nil
	}

	var hint TypeMeta
	if pool.meta != nil {
		hint = pool.meta
	}
	return a.Allocate(hint, bytes)
}

// Deallocate releases entry. The caller must hold the last reference —
// shared records must be dropped via Allocation.Free until references
// reaches 1, then Deallocate.
func (a *Allocator) Deallocate(entry *Allocation) error {
	assume(entry != nil, ErrNilAllocation)
	if entry == nil {
		return ErrNilAllocation
	}
	if entry.Uses() == 0 {
		assume(false, ErrUnusedAllocation)
		return ErrUnusedAllocation
	}
	if entry.Uses() != 1 {
		assume(false, ErrInvalidReference)
		return ErrInvalidReference
	}

	pool := entry.pool()
	pool.Deallocate(entry)
	Logger.Debug("fractalloc: deallocate", "pool_in_use", pool.IsInUse())
	return nil
}

// noteHit pushes p to the front of the hot-pool cache ring, answering
// spec.md §9's open question of whether a single last_found_pool
// suffices — Fractalloc keeps the hotCacheSize most recently touched
// pools instead of just one.
func (a *Allocator) noteHit(p *Pool) {
	i := 0
	for i < len(a.lastFound)-1 && a.lastFound[i] != p {
		i++
	}
	for ; i > 0; i-- {
		a.lastFound[i] = a.lastFound[i-1]
	}
	a.lastFound[0] = p
}

// Find performs the reverse lookup described in spec.md §4.4: the hot
// cache first, then a fallback order depending on hint's tactic.
func (a *Allocator) Find(hint TypeMeta, ptr unsafe.Pointer) *Allocation {
	assume(ptr != nil, ErrNilPointer)
	if ptr == nil {
		return nil
	}

	for _, p := range a.lastFound {
		if p == nil {
			continue
		}
		if entry := p.Find(ptr); entry != nil {
			a.noteHit(p)
			return entry
		}
	}

	for _, head := range a.searchOrder(hint) {
		if entry := chainFind(head, ptr); entry != nil {
			a.noteHit(entry.pool())
			return entry
		}
	}
	return nil
}

// CheckAuthority reports whether ptr lies inside any pool's backing
// range, using the same routing order as Find but testing only address
// membership, not liveness.
func (a *Allocator) CheckAuthority(hint TypeMeta, ptr unsafe.Pointer) bool {
	if ptr == nil {
		return false
	}
	for _, head := range a.searchOrder(hint) {
		if chainContains(head, ptr) {
			return true
		}
	}
	return false
}

// searchOrder builds the chain-head fallback sequence for Find/
// CheckAuthority, per spec.md §4.4's explicit ordering rules.
func (a *Allocator) searchOrder(hint TypeMeta) []*Pool {
	order := make([]*Pool, 0, 2+len(a.sizeChains)+len(a.typeSet))

	switch {
	case hint == nil:
		order = append(order, a.mainChain)
		order = append(order, a.sizeChains[:]...)
		for t := range a.typeSet {
			order = append(order, t.PoolHead())
		}

	case hint.PoolTactic() == TacticSize:
		order = append(order, a.sizeChains[fastLog2(hint.Size())], a.mainChain)
		for t := range a.typeSet {
			order = append(order, t.PoolHead())
		}
		for i, chain := range a.sizeChains {
			if uintptr(i) != fastLog2(hint.Size()) {
				order = append(order, chain)
			}
		}

	case hint.PoolTactic() == TacticType:
		order = append(order, hint.PoolHead(), a.mainChain)
		order = append(order, a.sizeChains[:]...)
		for t := range a.typeSet {
			if t != hint {
				order = append(order, t.PoolHead())
			}
		}

	default:
		order = append(order, a.mainChain)
		order = append(order, a.sizeChains[:]...)
		for t := range a.typeSet {
			order = append(order, t.PoolHead())
		}
	}

	return order
}

// CollectGarbage clears the hot cache, then walks the main chain,
// every size chain, and every type chain in that order, freeing idle
// pools and trimming the rest. Typed chains that end up empty drop
// their descriptor from the type set.
func (a *Allocator) CollectGarbage() {
	a.lastFound = [hotCacheSize]*Pool{}

	collectGarbageChain(&a.mainChain)
	for i := range a.sizeChains {
		collectGarbageChain(&a.sizeChains[i])
	}
	for t := range a.typeSet {
		head := t.PoolHead()
		collectGarbageChain(&head)
		t.SetPoolHead(head)
		if head == nil {
			delete(a.typeSet, t)
		}
	}

	step := a.stats.step
	a.stats = a.recompute()
	a.stats.step = step + 1
	Logger.Debug("fractalloc: collect_garbage", "step", a.stats.step)
}

// CheckBoundary counts pools whose type descriptor belongs to the
// shared-library token, scanning only the Type-tactic chains in
// typeSet — a shared-library unloader's signal that a module can be
// safely dropped. Size-tactic pools carry a meta too, but only the
// instantiated-types set is in scope here, matching the original's
// mInstantiatedTypes-only scan.
func (a *Allocator) CheckBoundary(token string) uintptr {
	var n uintptr
	for t := range a.typeSet {
		n += chainPoolCount(t.PoolHead(), token)
	}
	return n
}

// Statistics reports a fresh snapshot of the allocator's counters,
// recomputed by walking every chain (cheaper bookkeeping would drift
// as pools are created and trimmed outside CollectGarbage).
func (a *Allocator) Statistics() Statistics {
	step := a.stats.step
	a.stats = a.recompute()
	a.stats.step = step
	return a.stats
}

// Shutdown force-frees every pool in every chain regardless of use,
// for embedders that want deterministic process-exit cleanup instead
// of relying on CollectGarbage leaving idle pools for later. It
// asserts all chains were already empty of live records — shutting
// down with outstanding allocations is a Misuse.
func (a *Allocator) Shutdown() {
	assume(!a.anyChainInUse(), ErrInvalidReference)

	freePoolChainDepthFirst(&a.mainChain)
	for i := range a.sizeChains {
		freePoolChainDepthFirst(&a.sizeChains[i])
	}
	for t := range a.typeSet {
		head := t.PoolHead()
		freePoolChainDepthFirst(&head)
		t.SetPoolHead(nil)
	}
	a.typeSet = make(map[TypeMeta]struct{})
	a.lastFound = [hotCacheSize]*Pool{}
	a.stats = Statistics{}
}

func (a *Allocator) anyChainInUse() bool {
	for p := a.mainChain; p != nil; p = p.next {
		if p.IsInUse() {
			return true
		}
	}
	for i := range a.sizeChains {
		for p := a.sizeChains[i]; p != nil; p = p.next {
			if p.IsInUse() {
				return true
			}
		}
	}
	for t := range a.typeSet {
		for p := t.PoolHead(); p != nil; p = p.next {
			if p.IsInUse() {
				return true
			}
		}
	}
	return false
}

var (
	defaultAllocator     *Allocator
	defaultAllocatorOnce sync.Once
)

func shared() *Allocator {
	defaultAllocatorOnce.Do(func() {
		defaultAllocator = NewAllocator()
	})
	return defaultAllocator
}

// Allocate is the package-level convenience entry point over a
// lazily-initialized default Allocator, for embedders that don't need
// more than one instance per process — the literal external interface
// described in spec.md §6.
func Allocate(hint TypeMeta, bytes uintptr) (*Allocation, error) {
	return shared().Allocate(hint, bytes)
}

// Reallocate mirrors Allocator.Reallocate on the default Allocator.
func Reallocate(entry *Allocation, bytes uintptr) (*Allocation, error) {
	return shared().Reallocate(entry, bytes)
}

// Deallocate mirrors Allocator.Deallocate on the default Allocator.
func Deallocate(entry *Allocation) error {
	return shared().Deallocate(entry)
}

// Find mirrors Allocator.Find on the default Allocator.
func Find(hint TypeMeta, ptr unsafe.Pointer) *Allocation {
	return shared().Find(hint, ptr)
}

// CheckAuthority mirrors Allocator.CheckAuthority on the default Allocator.
func CheckAuthority(hint TypeMeta, ptr unsafe.Pointer) bool {
	return shared().CheckAuthority(hint, ptr)
}

// CollectGarbage mirrors Allocator.CollectGarbage on the default Allocator.
func CollectGarbage() {
	shared().CollectGarbage()
}
