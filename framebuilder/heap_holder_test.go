package framebuilder_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/framebuilder"
	mock_memory "github.com/vkngwrapper/tiler/memory/mocks"
	"github.com/vkngwrapper/tiler/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func newHolder(t *testing.T, initSize, maxSize int) (*framebuilder.HeapHolder, *mock_memory.MockHeap) {
	ctrl := gomock.NewController(t)
	heap := mock_memory.NewMockHeap(ctrl)
	logger := slog.New(slog.NewTextHandler(os.Stdout))

	return framebuilder.NewHeapHolder(logger, deps.NewSystem(logger), heap, initSize, initSize, maxSize), heap
}

func TestHeapHolderUnusedDoesNothing(t *testing.T) {
	holder, _ := newHolder(t, 64*1024, 1024*1024)

	require.NoError(t, holder.Adjust())
	require.Equal(t, 64*1024, holder.Size())
}

func TestHeapHolderResetsWhenUsageIsClose(t *testing.T) {
	holder, heap := newHolder(t, 64*1024, 1024*1024)

	heap.EXPECT().UsedBytes().Return(62 * 1024)
	holder.RecordUsage()
	require.Equal(t, 1, holder.UseCount())

	heap.EXPECT().Reset()
	require.NoError(t, holder.Adjust())
	require.Equal(t, 64*1024, holder.Size())
	require.Equal(t, 0, holder.UseCount())
}

func TestHeapHolderResizesToLargestRecentUsage(t *testing.T) {
	holder, heap := newHolder(t, 64*1024, 1024*1024)

	heap.EXPECT().UsedBytes().Return(200000)
	holder.RecordUsage()
	heap.EXPECT().UsedBytes().Return(100000)
	holder.RecordUsage()

	heap.EXPECT().Resize(200704).Return(nil)
	require.NoError(t, holder.Adjust())
	require.Equal(t, 200704, holder.Size())

	// The older, larger sample is still in the history
	heap.EXPECT().UsedBytes().Return(150000)
	holder.RecordUsage()
	heap.EXPECT().Reset()
	require.NoError(t, holder.Adjust())
	require.Equal(t, 200704, holder.Size())

	heap.EXPECT().Size().Return(200704)
	heap.EXPECT().UsedBytes().Return(0)
	var stats memutils.DetailedHeapStatistics
	stats.Clear()
	holder.Statistics(&stats)
	require.Equal(t, 1, stats.HeapCount)
	require.Equal(t, 1, stats.ResizeCount)
	require.Equal(t, 1, stats.ResetCount)
	require.Equal(t, 3, stats.SampleCount)
	require.Equal(t, 200000, stats.SampleSizeMax)
}

func TestHeapHolderClampsToMaximum(t *testing.T) {
	holder, heap := newHolder(t, 64*1024, 1024*1024)

	heap.EXPECT().UsedBytes().Return(5 * 1024 * 1024)
	holder.RecordUsage()

	heap.EXPECT().Resize(1024 * 1024).Return(nil)
	require.NoError(t, holder.Adjust())
	require.Equal(t, 1024*1024, holder.Size())
	require.NoError(t, holder.Validate())
}

func TestHeapHolderResizeFailure(t *testing.T) {
	holder, heap := newHolder(t, 64*1024, 1024*1024)

	heap.EXPECT().UsedBytes().Return(500000)
	holder.RecordUsage()

	heap.EXPECT().Resize(gomock.Any()).Return(memutils.ErrOutOfMemory)
	require.ErrorIs(t, holder.Adjust(), memutils.ErrOutOfMemory)
	require.Equal(t, 64*1024, holder.Size())
	require.Equal(t, 1, holder.UseCount())

	heap.EXPECT().Free()
	holder.Free()
	require.Nil(t, holder.Heap())
}
