// SPDX-License-Identifier: Apache-2.0

package fractalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAllocationSizeFloorsAtMinimum(t *testing.T) {
	require.Equal(t, minAllocation, NewAllocationSize(0))
	require.True(t, NewAllocationSize(1) >= minAllocation)
}

func TestNewAllocationSizeAddsHeader(t *testing.T) {
	size := NewAllocationSize(100)
	require.Equal(t, headerSize+uintptr(100), size)
}

func TestAllocationKeepFree(t *testing.T) {
	var a Allocation
	a.init(32, nil)
	require.Equal(t, uintptr(1), a.Uses())

	a.Keep()
	require.Equal(t, uintptr(2), a.Uses())

	a.KeepN(3)
	require.Equal(t, uintptr(5), a.Uses())

	a.Free()
	require.Equal(t, uintptr(4), a.Uses())

	a.FreeN(4)
	require.Equal(t, uintptr(0), a.Uses())
}

func TestAllocationContains(t *testing.T) {
	p, err := newPool(nil, DefaultPoolSize)
	require.NoError(t, err)

	entry := p.Allocate(64)
	require.NotNil(t, entry)

	require.True(t, entry.Contains(entry.BlockStart()))
	require.False(t, entry.Contains(entry.BlockEnd()))
}

func TestAllocationCollisionFree(t *testing.T) {
	p, err := newPool(nil, DefaultPoolSize)
	require.NoError(t, err)

	a := p.Allocate(64)
	b := p.Allocate(64)
	require.NotNil(t, a)
	require.NotNil(t, b)

	require.True(t, a.CollisionFree(b))
	require.True(t, b.CollisionFree(a))
}

func TestAsReinterpretsClientBlock(t *testing.T) {
	p, err := newPool(nil, DefaultPoolSize)
	require.NoError(t, err)

	entry := p.Allocate(8)
	require.NotNil(t, entry)

	ptr := As[int64](entry)
	*ptr = 42
	require.Equal(t, int64(42), *As[int64](entry))
}
