// SPDX-License-Identifier: Apache-2.0

package fractalloc

// testType is a minimal TypeMeta used by tests that exercise the Size
// and Type pool tactics. Fractalloc never constructs these itself —
// this stands in for a caller's reflection registry.
type testType struct {
	tactic  PoolTactic
	size    uintptr
	page    uintptr
	library string
	head    *Pool
}

func (t *testType) PoolTactic() PoolTactic  { return t.tactic }
func (t *testType) Size() uintptr           { return t.size }
func (t *testType) AllocationPage() uintptr { return t.page }
func (t *testType) PoolHead() *Pool         { return t.head }
func (t *testType) SetPoolHead(p *Pool)     { t.head = p }
func (t *testType) LibraryToken() string    { return t.library }
