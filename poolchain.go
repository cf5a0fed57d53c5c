// SPDX-License-Identifier: Apache-2.0

package fractalloc

import "unsafe"

// allocatePool reserves a fresh Pool sized to cover at least
// newAllocationSize(bytes), never smaller than DefaultPoolSize, and
// links it at the head of the chain pointed to by head.
func allocatePool(head **Pool, meta TypeMeta, bytes uintptr) (*Pool, error) {
	size := roof2(newAllocationSize(bytes))
	if size < DefaultPoolSize {
		size = DefaultPoolSize
	}

	p, err := newPool(meta, size)
	if err != nil {
		return nil, err
	}

	p.next = *head
	*head = p
	Logger.Debug("fractalloc: new pool", "bytes", size)
	return p, nil
}

// chainAllocate walks the chain head-to-tail, returning the first
// successful Allocate. On exhaustion it grows the chain with a new
// pool sized for bytes and retries once against that pool only —
// matching the no-partial-state-on-failure guarantee: no pool is
// linked unless an allocation inside it actually succeeded.
func chainAllocate(head **Pool, meta TypeMeta, bytes uintptr) (*Allocation, error) {
	for p := *head; p != nil; p = p.next {
		if entry := p.Allocate(bytes); entry != nil {
			return entry, nil
		}
	}

	p, err := allocatePool(head, meta, bytes)
	if err != nil {
		return nil, err
	}
	entry := p.Allocate(bytes)
	if entry == nil {
		*head = p.next
		p.release()
		assume(false, ErrOutOfMemory)
		return nil, ErrOutOfMemory
	}
	return entry, nil
}

// chainFind walks the chain looking for the record owning ptr.
func chainFind(head *Pool, ptr unsafe.Pointer) *Allocation {
	for p := head; p != nil; p = p.next {
		if entry := p.Find(ptr); entry != nil {
			return entry
		}
	}
	return nil
}

// chainContains walks the chain checking only address-range membership,
// not whether the slot is currently in use.
func chainContains(head *Pool, ptr unsafe.Pointer) bool {
	for p := head; p != nil; p = p.next {
		if p.Contains(ptr) {
			return true
		}
	}
	return false
}

// chainPoolCount counts pools in the chain whose meta's library token
// equals token, for check_boundary.
func chainPoolCount(head *Pool, token string) uintptr {
	var n uintptr
	for p := head; p != nil; p = p.next {
		if p.meta != nil && p.meta.LibraryToken() == token {
			n++
		}
	}
	return n
}

// collectGarbageChain frees idle pools and trims the rest. Leading
// idle pools are unlinked from the head first (the common case after a
// burst of frees); the remainder of the chain is then walked once,
// unlinking any further idle pool and trimming every pool still in
// use. *head is updated in place (nil once every pool is freed); the
// return values are the number of pools and backend bytes freed.
func collectGarbageChain(head **Pool) (freedPools uintptr, freedBytes uintptr) {
	for *head != nil && !(*head).IsInUse() {
		dead := *head
		*head = dead.next
		freedBytes += dead.backendBytes
		dead.release()
		freedPools++
	}

	if *head == nil {
		return freedPools, freedBytes
	}

	prev := *head
	for p := prev.next; p != nil; {
		next := p.next
		if !p.IsInUse() {
			prev.next = next
			freedBytes += p.backendBytes
			p.release()
			freedPools++
		} else {
			p.Trim()
			prev = p
		}
		p = next
	}

	(*head).Trim()

	return freedPools, freedBytes
}

// freePoolChainDepthFirst unconditionally releases every pool in the
// chain, in use or not, and nils the head. Used by Shutdown, not by
// CollectGarbage.
func freePoolChainDepthFirst(head **Pool) (freedPools uintptr, freedBytes uintptr) {
	for p := *head; p != nil; {
		next := p.next
		freedBytes += p.backendBytes
		p.release()
		freedPools++
		p = next
	}
	*head = nil
	return freedPools, freedBytes
}
