package memutils_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/memutils"
)

func TestAlignment(t *testing.T) {
	require.Equal(t, 64, memutils.AlignUp(1, 64))
	require.Equal(t, 64, memutils.AlignUp(64, 64))
	require.Equal(t, 0, memutils.AlignDown(63, 64))
	require.Equal(t, 30, memutils.RoundUp(21, 15))

	require.NoError(t, memutils.CheckPow2(uint(256), "size"))
	require.ErrorIs(t, memutils.CheckPow2(48, "size"), memutils.PowerOfTwoError)
}

func TestHelpers(t *testing.T) {
	require.Equal(t, 7, memutils.Max(3, 7, -1))
	require.Equal(t, 5, memutils.Abs(-5))
	require.Equal(t, 4, memutils.Log2(16))
	require.Equal(t, 0, memutils.Log2(1))
}

func TestDetailedStatistics(t *testing.T) {
	var total, heap memutils.DetailedHeapStatistics
	total.Clear()
	heap.Clear()
	require.Equal(t, math.MaxInt, total.SampleSizeMin)

	heap.HeapCount = 1
	heap.AddSample(100)
	heap.AddSample(20)
	total.AddDetailedStatistics(&heap)

	require.Equal(t, 1, total.HeapCount)
	require.Equal(t, 2, total.SampleCount)
	require.Equal(t, 20, total.SampleSizeMin)
	require.Equal(t, 100, total.SampleSizeMax)
}
