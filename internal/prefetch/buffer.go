package prefetch

import (
	"io"
	"sync/atomic"

	"github.com/brensch/mrtstat/internal/budget"
)

// claimedBuffer is a fully fetched source that holds claimed bytes of a
// budget. The claim is returned once, on reaching EOF or on Close, whichever
// comes first.
type claimedBuffer struct {
	data     []byte
	off      int
	claimed  int64
	budget   *budget.Budget
	released atomic.Bool
}

func newClaimedBuffer(data []byte, claimed int64, b *budget.Budget) *claimedBuffer {
	return &claimedBuffer{data: data, claimed: claimed, budget: b}
}

func (b *claimedBuffer) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		b.release()
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func (b *claimedBuffer) Close() error {
	b.release()
	return nil
}

func (b *claimedBuffer) release() {
	if b.released.CompareAndSwap(false, true) {
		b.data = nil
		b.off = 0
		b.budget.Release(b.claimed)
	}
}
