package concurrent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSPSCRing_ScenarioOrderingAndCapacity is concrete scenario 1:
// capacity 4, producer pushes [10,20,30,40,50] (last push returns
// Full), consumer pops until Empty, observing [10,20,30,40]; the
// producer then successfully pushes 50 after the consumer pops one.
func TestSPSCRing_ScenarioOrderingAndCapacity(t *testing.T) {
	ring := NewSPSCRing[int](4)
	require.Equal(t, 4, ring.Capacity())

	for _, v := range []int{10, 20, 30, 40} {
		require.NoError(t, ring.TryPush(v))
	}

	err := ring.TryPush(50)
	require.ErrorAs(t, err, &ErrFull{})

	var observed []int
	for {
		v, err := ring.TryPop()
		if err != nil {
			require.ErrorAs(t, err, &ErrEmpty{})
			break
		}
		observed = append(observed, v)
	}
	assert.Equal(t, []int{10, 20, 30, 40}, observed)

	require.NoError(t, ring.TryPush(50))
	v, err := ring.TryPop()
	require.NoError(t, err)
	assert.Equal(t, 50, v)
}

func TestSPSCRing_CapacityRoundsUpToPowerOfTwo(t *testing.T) {
	assert.Equal(t, 8, NewSPSCRing[int](5).Capacity())
	assert.Equal(t, 2, NewSPSCRing[int](0).Capacity())
	assert.Equal(t, 16, NewSPSCRing[int](16).Capacity())
}

// TestSPSCRing_ConcurrentProducerConsumer exercises the
// release/acquire pairing under the race detector: the consumer must
// observe every pushed value exactly once, in push order, and never a
// zero-valued (partially written) slot.
func TestSPSCRing_ConcurrentProducerConsumer(t *testing.T) {
	const n = 100_000
	ring := NewSPSCRing[int](64)

	done := make(chan []int, 1)
	go func() {
		observed := make([]int, 0, n)
		for len(observed) < n {
			v, err := ring.TryPop()
			if err != nil {
				continue
			}
			observed = append(observed, v)
		}
		done <- observed
	}()

	for i := 1; i <= n; i++ {
		for ring.TryPush(i) != nil {
		}
	}

	observed := <-done
	require.Len(t, observed, n)
	for i, v := range observed {
		require.Equal(t, i+1, v, "values must be observed in push order")
	}
}

func TestSPSCRing_LenTracksPushedMinusPopped(t *testing.T) {
	ring := NewSPSCRing[int](4)
	assert.Equal(t, 0, ring.Len())
	require.NoError(t, ring.TryPush(1))
	require.NoError(t, ring.TryPush(2))
	assert.Equal(t, 2, ring.Len())
	_, err := ring.TryPop()
	require.NoError(t, err)
	assert.Equal(t, 1, ring.Len())
}
