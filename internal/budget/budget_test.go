package budget

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryClaimRejectsOutOfRangeEstimates(t *testing.T) {
	b := New(1<<20, 1<<10)

	for _, est := range []int64{0, -1, -1 << 40, 1<<10 + 1, 1 << 19} {
		claimed, ok := b.TryClaim(est)
		assert.False(t, ok, "estimate %d", est)
		assert.Zero(t, claimed)
	}
	assert.Equal(t, int64(1<<20), b.Remaining())
}

func TestTryClaimDoublesEstimate(t *testing.T) {
	b := New(100, 50)

	claimed, ok := b.TryClaim(20)
	require.True(t, ok)
	assert.Equal(t, int64(40), claimed)
	assert.Equal(t, int64(60), b.Remaining())

	claimed, ok = b.TryClaim(30)
	require.True(t, ok)
	assert.Equal(t, int64(60), claimed)
	assert.Zero(t, b.Remaining())

	_, ok = b.TryClaim(1)
	assert.False(t, ok, "exhausted budget must reject")

	b.Release(40)
	_, ok = b.TryClaim(20)
	assert.True(t, ok)
}

func TestTryClaimRejectsWhenInsufficientButLeavesBudgetUntouched(t *testing.T) {
	b := New(100, 100)

	_, ok := b.TryClaim(51)
	assert.False(t, ok)
	assert.Equal(t, int64(100), b.Remaining())
}

func TestReleaseAcceptsNegativeAdjustment(t *testing.T) {
	b := New(100, 100)
	claimed, ok := b.TryClaim(10)
	require.True(t, ok)

	// buffer ended up 30 bytes bigger than the claim
	b.Release(claimed - (claimed + 30))
	assert.Equal(t, int64(50), b.Remaining())
	b.Release(claimed + 30)
	assert.Equal(t, int64(100), b.Remaining())
}

func TestRemainingStaysNegativeUntilReleased(t *testing.T) {
	b := New(20, 100)
	claimed, ok := b.TryClaim(10)
	require.True(t, ok)

	// buffer grew to 50 bytes against a 20 byte claim
	b.Release(claimed - 50)
	assert.Equal(t, int64(-30), b.Remaining())

	_, ok = b.TryClaim(1)
	assert.False(t, ok)
	assert.Equal(t, int64(-30), b.Remaining())

	b.Release(50)
	assert.Equal(t, int64(20), b.Remaining())
}

func TestConcurrentClaimsNeverOvercommit(t *testing.T) {
	const capacity = 1 << 16
	b := New(capacity, 1<<12)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			var held []int64
			for i := 0; i < 2000; i++ {
				if len(held) > 0 && rng.Intn(3) == 0 {
					b.Release(held[len(held)-1])
					held = held[:len(held)-1]
					continue
				}
				if claimed, ok := b.TryClaim(rng.Int63n(1<<12) + 1); ok {
					held = append(held, claimed)
				}
				if r := b.Remaining(); r < 0 {
					t.Errorf("remaining went negative: %d", r)
					return
				}
			}
			for _, c := range held {
				b.Release(c)
			}
		}(int64(w))
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), b.Remaining())
	assert.Equal(t, int64(capacity), b.Capacity())
}

func TestIndependentBudgets(t *testing.T) {
	a := New(10, 10)
	b := New(10, 10)

	_, ok := a.TryClaim(5)
	require.True(t, ok)
	assert.Zero(t, a.Remaining())
	assert.Equal(t, int64(10), b.Remaining())
}
