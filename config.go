package fractalloc

import "math/bits"

// Alignment is the byte alignment every allocation header and every
// client block is rounded up to. It must be a power of two and at
// least 16.
const Alignment = 16

// DefaultPoolSize is the backing size requested for a brand new pool
// when no larger size is required to satisfy the triggering allocation.
const DefaultPoolSize uintptr = 1024 * 1024

// sizeBuckets is the number of size-tactic chains the Allocator keeps,
// one per possible floor(log2(size)) of a machine word.
const sizeBuckets = bits.UintSize

// hotCacheSize is the number of most-recently-hit pools Find consults
// before falling back to a full chain search. See SPEC_FULL.md §11.3.
const hotCacheSize = 4

// MaxSaneReferences is the reference-count ceiling above which the
// integrity auditor flags an allocation as suspicious (possible memory
// corruption) rather than trusting the counter.
const MaxSaneReferences = 100_000

// DevAssumes toggles precondition assertions that panic instead of
// relying on the caller to uphold the contract (Misuse class errors in
// spec terms). Leave it false in release builds; enable it in tests and
// development builds.
var DevAssumes = false
