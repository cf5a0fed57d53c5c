// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// exhaustedArena always fails Alloc, standing in for an Arena whose
// backing allocator is out of memory.
type exhaustedArena struct{}

func (exhaustedArena) Alloc(uintptr, uintptr) unsafe.Pointer { return nil }

func (exhaustedArena) Reset() {}

func (exhaustedArena) Release() {}

func (exhaustedArena) Len() int { return 0 }

func (exhaustedArena) Cap() int { return 0 }

func (exhaustedArena) Peak() int { return 0 }

type structWithFields struct {
	a int
	b string
}

func TestAllocateFromNilArenaFallsBackToNew(t *testing.T) {
	ptr := AllocateFrom[structWithFields](nil)
	require.NotNil(t, ptr)
}

func TestAllocateFromExhaustedArenaFallsBackToNew(t *testing.T) {
	ptr := AllocateFrom[structWithFields](exhaustedArena{})
	require.NotNil(t, ptr)
}

func TestAllocateFromFractallocArena(t *testing.T) {
	fa := NewFractallocArena(NewAllocator(), nil)

	ptr := AllocateFrom[structWithFields](fa)
	require.NotNil(t, ptr)

	ptr.a = 7
	ptr.b = "hi"
	require.Equal(t, 7, ptr.a)
	require.Equal(t, "hi", ptr.b)

	require.True(t, isFractallocPtr(fa, unsafe.Pointer(ptr)))
}
