// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAllocatorAllocateNoHintUsesMainChain(t *testing.T) {
	a := NewAllocator()

	entry, err := a.Allocate(nil, 64)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, a.mainChain)
	require.Equal(t, DefaultPoolSize, a.mainChain.backendBytes)
	require.Equal(t, uintptr(1), a.mainChain.entries)
}

func TestAllocatorAllocateZeroBytesIsMisuse(t *testing.T) {
	a := NewAllocator()
	_, err := a.Allocate(nil, 0)
	require.ErrorIs(t, err, ErrZeroAllocation)
}

func TestAllocatorFreeHalfThenCollectGarbage(t *testing.T) {
	a := NewAllocator()

	var entries []*Allocation
	for i := 0; i < 10; i++ {
		e, err := a.Allocate(nil, 64)
		require.NoError(t, err)
		entries = append(entries, e)
	}

	var live []*Allocation
	for i, e := range entries {
		if i%2 == 0 {
			require.NoError(t, a.Deallocate(e))
		} else {
			live = append(live, e)
		}
	}

	a.CollectGarbage()

	var total uintptr
	for _, e := range live {
		found := a.Find(nil, e.BlockStart())
		require.NotNil(t, found)
		require.Same(t, e, found)
		total += found.TotalSize()
	}
	require.Equal(t, total, a.mainChain.frontendBytes)
}

func TestAllocatorSizeTacticRoutesToBucket(t *testing.T) {
	a := NewAllocator()
	hint := &testType{tactic: TacticSize, size: 32}

	entry, err := a.Allocate(hint, 32)
	require.NoError(t, err)
	require.NotNil(t, entry)

	bucket := fastLog2(32)
	require.NotNil(t, a.sizeChains[bucket])

	mid := unsafe.Add(entry.BlockStart(), 10)
	found := a.Find(hint, mid)
	require.Same(t, entry, found)
}

func TestAllocatorTypeTacticBoundaryAndGC(t *testing.T) {
	a := NewAllocator()
	hint := &testType{tactic: TacticType, library: "mylib"}

	e1, err := a.Allocate(hint, 64)
	require.NoError(t, err)
	e2, err := a.Allocate(hint, 64)
	require.NoError(t, err)

	require.NoError(t, a.Deallocate(e1))
	require.Equal(t, uintptr(1), a.CheckBoundary("mylib"))

	require.NoError(t, a.Deallocate(e2))
	a.CollectGarbage()

	require.Equal(t, uintptr(0), a.CheckBoundary("mylib"))
	_, present := a.typeSet[hint]
	require.False(t, present)
}

func TestAllocatorReallocateCrossingPoolThresholdReturnsDifferentRecord(t *testing.T) {
	a := NewAllocator()

	entry, err := a.Allocate(nil, 1)
	require.NoError(t, err)

	grown, err := a.Reallocate(entry, DefaultPoolSize)
	require.NoError(t, err)
	require.NotSame(t, entry, grown)

	// The old record must still be valid — Reallocate never frees it.
	require.Equal(t, uintptr(1), entry.Uses())
}

func TestAllocatorDeallocateRejectsSharedReference(t *testing.T) {
	a := NewAllocator()
	entry, err := a.Allocate(nil, 64)
	require.NoError(t, err)

	entry.Keep()
	err = a.Deallocate(entry)
	require.ErrorIs(t, err, ErrInvalidReference)

	entry.Free()
	require.NoError(t, a.Deallocate(entry))
}

func TestAllocatorCheckAuthorityOutlivesDeallocate(t *testing.T) {
	a := NewAllocator()
	entry, err := a.Allocate(nil, 64)
	require.NoError(t, err)
	ptr := entry.BlockStart()

	require.True(t, a.CheckAuthority(nil, ptr))
	require.NoError(t, a.Deallocate(entry))
	require.True(t, a.CheckAuthority(nil, ptr))

	a.CollectGarbage()
	require.False(t, a.CheckAuthority(nil, ptr))
}

func TestAllocatorCollectGarbageIsIdempotent(t *testing.T) {
	a := NewAllocator()
	entry, err := a.Allocate(nil, 64)
	require.NoError(t, err)
	require.NoError(t, a.Deallocate(entry))

	a.CollectGarbage()
	first := a.Statistics()
	a.CollectGarbage()
	second := a.Statistics()
	require.True(t, first.Equal(second))
}

func TestAllocatorFindMissReturnsNil(t *testing.T) {
	a := NewAllocator()
	_, err := a.Allocate(nil, 64)
	require.NoError(t, err)

	var outside byte
	require.Nil(t, a.Find(nil, unsafe.Pointer(&outside)))
}

func TestAllocatorExhaustingPoolCreatesNewOne(t *testing.T) {
	a := NewAllocator()
	first, err := a.Allocate(nil, 16)
	require.NoError(t, err)

	for first.pool().Allocate(16) != nil {
	}

	// The first pool's finest level is now full; the next Allocator
	// call must succeed by growing the chain, not by failing.
	entry, err := a.Allocate(nil, 16)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotSame(t, first.pool(), a.mainChain)
}

func TestAllocatorHotCacheServesRepeatFinds(t *testing.T) {
	a := NewAllocator()
	entry, err := a.Allocate(nil, 64)
	require.NoError(t, err)

	for i := 0; i < hotCacheSize+1; i++ {
		found := a.Find(nil, entry.BlockStart())
		require.Same(t, entry, found)
	}
}

func TestAllocatorStressAlternatingAllocateFree(t *testing.T) {
	a := NewAllocator()
	rng := rand.New(rand.NewSource(1))

	const n = 2000
	var live []*Allocation
	for i := 0; i < n; i++ {
		size := uintptr(1 + rng.Intn(1024))
		e, err := a.Allocate(nil, size)
		require.NoError(t, err)
		live = append(live, e)

		if len(live) > 1 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(live))
			require.NoError(t, a.Deallocate(live[idx]))
			live = append(live[:idx], live[idx+1:]...)
		}
	}

	for _, e := range live {
		require.NoError(t, a.Deallocate(e))
	}

	a.CollectGarbage()
	require.True(t, a.IntegrityCheck())
	require.Equal(t, uintptr(0), a.Statistics().frontendBytes)
}

func TestAllocatorShutdownFreesAllChains(t *testing.T) {
	a := NewAllocator()
	entry, err := a.Allocate(nil, 64)
	require.NoError(t, err)
	require.NoError(t, a.Deallocate(entry))

	a.Shutdown()
	require.Nil(t, a.mainChain)
}

func TestAllocatorShutdownPanicsOnOutstandingAllocations(t *testing.T) {
	DevAssumes = true
	defer func() { DevAssumes = false }()

	a := NewAllocator()
	_, err := a.Allocate(nil, 64)
	require.NoError(t, err)

	require.Panics(t, func() { a.Shutdown() })
}

func TestPackageLevelAllocatorUsesDefaultInstance(t *testing.T) {
	entry, err := Allocate(nil, 64)
	require.NoError(t, err)
	require.NotNil(t, entry)

	found := Find(nil, entry.BlockStart())
	require.Same(t, entry, found)

	require.NoError(t, Deallocate(entry))
	CollectGarbage()
}
