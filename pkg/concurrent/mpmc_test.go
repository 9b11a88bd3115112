package concurrent

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMPMCQueue_SingleThreadedPushPop(t *testing.T) {
	q := NewMPMCQueue[int](4)
	require.NoError(t, q.TryPush(1))
	require.NoError(t, q.TryPush(2))
	require.NoError(t, q.TryPush(3))
	require.NoError(t, q.TryPush(4))

	err := q.TryPush(5)
	require.ErrorAs(t, err, &ErrFull{})

	for _, want := range []int{1, 2, 3, 4} {
		v, err := q.TryPop()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	_, err = q.TryPop()
	require.ErrorAs(t, err, &ErrEmpty{})
}

// TestMPMCQueue_ConcurrentProducersConsumers verifies: for any
// interleaving of M producers and K consumers with total P pushes,
// total pops equal P and the multiset of popped values equals the
// multiset of pushed values.
func TestMPMCQueue_ConcurrentProducersConsumers(t *testing.T) {
	const (
		producers     = 8
		perProducer   = 5_000
		consumers     = 4
		totalElements = producers * perProducer
	)

	q := NewMPMCQueue[int](256)

	var produced atomic.Int64
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		base := p * perProducer
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := base + i
				for q.TryPush(v) != nil {
				}
				produced.Add(1)
			}
		}(base)
	}

	var popped [][]int
	var poppedMu sync.Mutex
	var consumerWG sync.WaitGroup
	var totalPopped atomic.Int64
	consumerWG.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer consumerWG.Done()
			var local []int
			for {
				if totalPopped.Load() >= int64(totalElements) {
					poppedMu.Lock()
					popped = append(popped, local)
					poppedMu.Unlock()
					return
				}
				v, err := q.TryPop()
				if err != nil {
					continue
				}
				local = append(local, v)
				if totalPopped.Add(1) >= int64(totalElements) {
					poppedMu.Lock()
					popped = append(popped, local)
					poppedMu.Unlock()
					return
				}
			}
		}()
	}

	wg.Wait()
	consumerWG.Wait()

	var all []int
	for _, l := range popped {
		all = append(all, l...)
	}
	require.Len(t, all, totalElements)

	sort.Ints(all)
	want := make([]int, totalElements)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, all)
}

func TestMPMCQueue_CapacityRoundsUpToPowerOfTwo(t *testing.T) {
	assert.Equal(t, 8, NewMPMCQueue[int](5).Capacity())
}
