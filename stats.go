// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"fmt"
	"strings"
	"unsafe"
)

// Statistics is a snapshot of the Allocator's counters. Equality is
// field-by-field excluding step, matching spec.md §4.5.
type Statistics struct {
	backendBytes  uintptr
	frontendBytes uintptr
	entries       uintptr
	pools         uintptr
	step          uintptr
}

// Equal reports whether two snapshots agree on everything but step.
func (s Statistics) Equal(other Statistics) bool {
	return s.backendBytes == other.backendBytes &&
		s.frontendBytes == other.frontendBytes &&
		s.entries == other.entries &&
		s.pools == other.pools
}

func (s Statistics) String() string {
	return fmt.Sprintf("pools=%d backend_bytes=%d frontend_bytes=%d entries=%d step=%d",
		s.pools, s.backendBytes, s.frontendBytes, s.entries, s.step)
}

// recompute rebuilds stats from scratch by walking every chain, the
// way IntegrityCheck does — used by CollectGarbage, Statistics and
// RefreshStatistics rather than add_pool/del_pool bookkeeping.
func (a *Allocator) recompute() Statistics {
	var s Statistics
	walk := func(head *Pool) {
		for p := head; p != nil; p = p.next {
			s.pools++
			s.backendBytes += p.backendBytes
			s.frontendBytes += p.frontendBytes
			s.entries += p.entries
		}
	}
	walk(a.mainChain)
	for i := range a.sizeChains {
		walk(a.sizeChains[i])
	}
	for t := range a.typeSet {
		walk(t.PoolHead())
	}
	s.step = a.stats.step
	return s
}

// RefreshStatistics recomputes the counter snapshot by walking every
// chain and stores it, the same walk Statistics performs; step is kept
// unchanged.
func (a *Allocator) RefreshStatistics() Statistics {
	a.stats = a.recompute()
	return a.stats
}

// State is a leak-detection harness: it snapshots the Allocator's
// statistics across calls to Assert and fails loudly the first time
// the snapshot changes unexpectedly, per spec.md §4.5.
type State struct {
	allocator *Allocator
	prior     *Statistics
}

// NewState builds a State harness bound to allocator.
func NewState(allocator *Allocator) *State {
	return &State{allocator: allocator}
}

// Assert runs CollectGarbage and IntegrityCheck, compares against the
// previous snapshot if one exists, and always refreshes the snapshot
// and bumps step afterward.
func (s *State) Assert() bool {
	s.allocator.CollectGarbage()
	ok := s.allocator.IntegrityCheck()

	current := s.allocator.RefreshStatistics()
	if s.prior != nil && !s.prior.Equal(current) {
		ok = false
		Logger.Warn("fractalloc: state assert detected a change",
			"prior", s.prior.String(), "current", current.String())
		Logger.Warn("fractalloc: dump", "pools", s.allocator.DumpPools())
		Logger.Warn("fractalloc: diff", "diff", s.allocator.Diff(*s.prior))
	}

	current.step++
	s.allocator.stats.step = current.step
	snapshot := current
	s.prior = &snapshot
	return ok
}

// IntegrityCheck walks every in-use pool across every chain, comparing
// live counts and byte totals against the pool's own counters, and
// flags suspiciously large reference counts without treating them as
// a hard failure (they may be legitimate in a heavily shared record).
func (a *Allocator) IntegrityCheck() bool {
	ok := true
	check := func(head *Pool) {
		for p := head; p != nil; p = p.next {
			if !integrityCheckPool(p) {
				ok = false
			}
		}
	}
	check(a.mainChain)
	for i := range a.sizeChains {
		check(a.sizeChains[i])
	}
	for t := range a.typeSet {
		check(t.PoolHead())
	}
	return ok
}

func integrityCheckPool(p *Pool) bool {
	var liveCount, liveBytes uintptr
	for i := uintptr(0); i < p.entries; i++ {
		e := p.allocationAt(i)
		if e.references == 0 {
			continue
		}
		liveCount++
		liveBytes += e.TotalSize()
		if e.references > MaxSaneReferences {
			Logger.Warn("fractalloc: suspicious reference count",
				"references", e.references, "ceiling", MaxSaneReferences)
		}
	}

	if liveCount != p.validEntries || liveBytes != p.frontendBytes {
		Logger.Error("fractalloc: integrity check failed",
			"counted_entries", liveCount, "valid_entries", p.validEntries,
			"counted_bytes", liveBytes, "frontend_bytes", p.frontendBytes)
		return false
	}
	return true
}

// DumpPools renders every chain's pools and live entries as text and
// returns it, following the original's leak-hunting dump. It does not
// log by itself; State.Assert logs the dump through Logger on failure.
func (a *Allocator) DumpPools() string {
	var b strings.Builder
	dumpChain := func(label string, head *Pool) {
		fmt.Fprintf(&b, "chain %s:\n", label)
		for p := head; p != nil; p = p.next {
			b.WriteString(dumpPool(p))
		}
	}
	dumpChain("main", a.mainChain)
	for i := range a.sizeChains {
		if a.sizeChains[i] != nil {
			dumpChain(fmt.Sprintf("size[%d]", i), a.sizeChains[i])
		}
	}
	for t := range a.typeSet {
		dumpChain("type:"+t.LibraryToken(), t.PoolHead())
	}
	return b.String()
}

// dumpPool renders one pool: its header counters, then a printable-
// or-'?' 16-byte preview of each live entry's client bytes.
func dumpPool(p *Pool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  pool backend=%d frontend=%d entries=%d threshold=%d\n",
		p.backendBytes, p.frontendBytes, p.entries, p.threshold)
	for i := uintptr(0); i < p.entries; i++ {
		e := p.allocationAt(i)
		if e.references == 0 {
			continue
		}
		fmt.Fprintf(&b, "    [%d] size=%d refs=%d preview=%q\n",
			i, e.allocatedBytes, e.references, previewBytes(e))
	}
	return b.String()
}

func previewBytes(e *Allocation) string {
	n := e.allocatedBytes
	if n > 16 {
		n = 16
	}
	raw := unsafe.Slice((*byte)(e.BlockStart()), n)
	buf := make([]byte, n)
	for i, c := range raw {
		if c >= 0x20 && c < 0x7f {
			buf[i] = c
		} else {
			buf[i] = '?'
		}
	}
	return string(buf)
}

// Diff renders the difference between the allocator's stored statistics
// snapshot (as of the last Statistics, RefreshStatistics or
// CollectGarbage call) and a prior snapshot, used by State.Assert's
// failure path.
func (a *Allocator) Diff(prior Statistics) string {
	current := a.stats
	return fmt.Sprintf("pools %+d, backend_bytes %+d, frontend_bytes %+d, entries %+d",
		int64(current.pools)-int64(prior.pools),
		int64(current.backendBytes)-int64(prior.backendBytes),
		int64(current.frontendBytes)-int64(prior.frontendBytes),
		int64(current.entries)-int64(prior.entries))
}
