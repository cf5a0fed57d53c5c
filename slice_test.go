// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// mockArena is a simple implementation of the Arena interface for
// testing purposes. It allocates memory using Go's built-in make
// function and ignores Reset/Release/Len/Cap/Peak bookkeeping.
type mockArena struct{}

func (m *mockArena) Alloc(size, _ uintptr) unsafe.Pointer {
	return unsafe.Pointer(&make([]byte, size)[0])
}

func (m *mockArena) Reset() {}

func (m *mockArena) Release() {}

func (m *mockArena) Len() int { return 0 }

func (m *mockArena) Cap() int { return int(^uintptr(0) >> 1) }

func (m *mockArena) Peak() int { return 0 }

func TestSliceAppendWithArena(t *testing.T) {
	a := &mockArena{}

	s := AllocateSlice[int](a, 3, 3)
	s[0] = 1
	s[1] = 2
	s[2] = 3

	data := []int{4, 5}

	result := SliceAppend[int](a, s, data...)

	expected := []int{1, 2, 3, 4, 5}

	require.Equal(t, expected, result)
}

func TestSliceAppendWithFractallocArena(t *testing.T) {
	fa := NewFractallocArena(NewAllocator(), nil)

	s := AllocateSlice[int](fa, 3, 3)
	s[0] = 1
	s[1] = 2
	s[2] = 3

	result := SliceAppend[int](fa, s, 4, 5)

	require.Equal(t, []int{1, 2, 3, 4, 5}, result)
}

func TestSliceAppendWithoutArena(t *testing.T) {
	s := AllocateSlice[int](nil, 2, 2)
	s[0] = 1
	s[1] = 2

	result := SliceAppend[int](nil, s, 3, 4)
	require.Equal(t, []int{1, 2, 3, 4}, result)
}
