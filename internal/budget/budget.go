// Package budget tracks how many bytes the prefetcher may hold in memory at once.
package budget

import "sync/atomic"

const (
	// DefaultCapacity is the total buffering allowance shared by every fetch worker.
	DefaultCapacity int64 = 32 << 30
	// DefaultMaxSingle caps the estimate a single source may claim against.
	DefaultMaxSingle int64 = 1 << 30

	// claimMultiplier covers decompression expansion and allocator slack.
	claimMultiplier = 2
)

// Budget is a lock-free admission counter. Claims are conditional and never
// drive the remaining space below zero; releases are unconditional.
//
// A Budget is safe for concurrent use and is meant to be shared by passing the
// same pointer to every component that buffers.
type Budget struct {
	remaining atomic.Int64
	capacity  int64
	maxSingle int64
}

// New returns a budget holding capacity bytes. Estimates above maxSingle are
// always rejected regardless of how much space remains.
func New(capacity, maxSingle int64) *Budget {
	b := &Budget{capacity: capacity, maxSingle: maxSingle}
	b.remaining.Store(capacity)
	return b
}

// TryClaim reserves twice the estimated size. It returns the reserved amount
// and true on success, or 0 and false when the estimate is non-positive,
// exceeds the single-buffer ceiling, or does not fit in the remaining space.
func (b *Budget) TryClaim(estimated int64) (int64, bool) {
	if estimated <= 0 || estimated > b.maxSingle {
		return 0, false
	}
	claim := estimated * claimMultiplier

	for {
		current := b.remaining.Load()
		next := current - claim
		if next < 0 {
			return 0, false
		}
		if b.remaining.CompareAndSwap(current, next) {
			return claim, true
		}
	}
}

// Release returns n bytes to the budget. n may be negative when a buffer grew
// past its claim and the difference is being charged after the fact.
func (b *Budget) Release(n int64) {
	b.remaining.Add(n)
}

// Remaining reports the currently unclaimed space. A negative Release can
// push it below zero, and it stays there until buffers are released.
func (b *Budget) Remaining() int64 {
	return b.remaining.Load()
}

// Capacity reports the size the budget was created with.
func (b *Budget) Capacity() int64 {
	return b.capacity
}

// MaxSingle reports the single-buffer ceiling.
func (b *Budget) MaxSingle() int64 {
	return b.maxSingle
}
