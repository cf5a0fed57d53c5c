// SPDX-License-Identifier: Apache-2.0

// Package fractalloc is a user-space memory manager sitting between a
// client and the operating system's page allocator.
//
// It exposes four primitives — Allocate, Reallocate, Deallocate and Find
// (reverse lookup from pointer) — and tracks every live allocation with
// an embedded reference count. Each backing arena ("pool") is a single
// power-of-two region indexed by an implicit binary tree (a "fractal
// index") that maps any contained pointer back to its owning record in
// O(log n), without a separate per-allocation metadata table.
//
// The package is single-threaded by contract: Pool and Allocator methods
// are not safe for concurrent use without external serialization (see
// SerializedAllocator for a coarse-grained wrapper).
package fractalloc
