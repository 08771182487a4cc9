package framebuilder_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/framebuilder"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/jobs/jobtest"
	mock_memory "github.com/vkngwrapper/tiler/memory/mocks"
	"github.com/vkngwrapper/tiler/memutils"
	"github.com/vkngwrapper/tiler/surface"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func TestNewRejectsSplitCount(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout))
	ctrl := gomock.NewController(t)
	allocator := mock_memory.NewMockAllocator(ctrl)

	_, err := framebuilder.New(logger, jobtest.NewEngine(), allocator, deps.NewSystem(logger), framebuilder.CreateOptions{
		SplitCount: framebuilder.MaxSplitCount + 1,
	})
	require.Error(t, err)
}

func TestNewHeapAllocationFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout))
	ctrl := gomock.NewController(t)
	allocator := mock_memory.NewMockAllocator(ctrl)
	engine := jobtest.NewEngine()

	allocator.EXPECT().AllocateHeap(framebuilder.HeapDefaultSize, framebuilder.HeapMaxSize, framebuilder.HeapGrowSize).
		Return(nil, memutils.ErrOutOfMemory)

	_, err := framebuilder.New(logger, engine, allocator, deps.NewSystem(logger), framebuilder.CreateOptions{})
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)
	require.Equal(t, 0, engine.GeometryAllocated())
}

func TestSwapSubmitsFrame(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 2}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()

	h.draw(t, 1024)
	require.Equal(t, framebuilder.StateDirty, h.builder.State())
	require.NoError(t, h.builder.Swap())

	require.Equal(t, 1, h.builder.CurrentFrameIndex())
	require.Equal(t, framebuilder.StateRendering, h.builder.FrameState(0))
	require.Equal(t, framebuilder.PlaneUnchanged, h.builder.PlaneState(framebuilder.PlaneColor))

	geometry := h.engine.StartedGeometry()
	require.Len(t, geometry, 1)
	require.Equal(t, []jobs.CommandKind{jobs.CommandBeginFrame, jobs.CommandDraw, jobs.CommandEndFrame}, commandKinds(geometry[0].Commands()))
	require.NotNil(t, geometry[0].Heap())
	require.Equal(t, 0, h.engine.PendingRaster())

	require.True(t, h.engine.CompleteGeometry(jobs.StatusSuccess))
	require.Equal(t, 1, h.engine.PendingRaster())

	raster := h.engine.StartedRaster()[0]
	require.Equal(t, 64, raster.Setup().Width)
	require.Equal(t, 64, raster.Setup().Height)
	require.Same(t, color, raster.Setup().Outputs[framebuilder.WritebackColor].Surface)
	require.Equal(t, uint32(0), raster.Identity()>>24)
	require.NotZero(t, raster.Identity()&(1<<23))
	require.Equal(t, 1, raster.Cores)

	require.True(t, h.engine.CompleteRaster(jobs.StatusSuccess))
	require.Equal(t, framebuilder.StateUnmodified, h.builder.FrameState(0))
	require.Equal(t, jobs.StatusSuccess, h.builder.CompletionStatus())
	require.NoError(t, h.builder.Validate())

	h.builder.Destroy()
	require.Equal(t, h.engine.GeometryAllocated(), h.engine.GeometryFreed())
	require.Equal(t, h.engine.RasterAllocated(), h.engine.RasterFreed())
	require.Equal(t, 0, h.allocator.HeapCount())
	require.Equal(t, 1, color.RefCount())
}

func TestSwapWithoutDrawingDoesNotRotate(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 3}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	require.NoError(t, h.builder.Swap())
	require.Equal(t, 0, h.builder.CurrentFrameIndex())
	require.Len(t, h.engine.StartedGeometry(), 0)

	h.draw(t, 0)
	require.NoError(t, h.builder.Swap())
	require.Equal(t, 1, h.builder.CurrentFrameIndex())
	require.Len(t, h.engine.StartedGeometry(), 1)

	h.engine.CompleteAll()
}

func TestFlushContinuesFrame(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1, IncrementalRenderThreshold: 2}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	h.draw(t, 512)
	require.NoError(t, h.builder.Flush())
	require.Equal(t, 0, h.builder.CurrentFrameIndex())
	require.Equal(t, framebuilder.StateRendering, h.builder.State())

	first := h.engine.StartedGeometry()[0]
	require.Equal(t, []jobs.CommandKind{jobs.CommandBeginFrame, jobs.CommandDraw, jobs.CommandContextSwitchOut}, commandKinds(first.Commands()))

	h.engine.CompleteAll()
	require.Equal(t, framebuilder.StateComplete, h.builder.State())
	require.True(t, first.Freed())
	require.False(t, h.builder.IncrementalRenderingRequested())

	h.draw(t, 512)
	require.Equal(t, []jobs.CommandKind{jobs.CommandContextSwitchIn, jobs.CommandDraw}, commandKinds(h.builder.GeometryJob().Commands()))

	require.NoError(t, h.builder.Flush())
	h.engine.CompleteAll()
	// Reaching the threshold is not enough, it has to be exceeded
	require.False(t, h.builder.IncrementalRenderingRequested())

	h.draw(t, 512)
	require.NoError(t, h.builder.Flush())
	h.engine.CompleteAll()
	require.True(t, h.builder.IncrementalRenderingRequested())

	h.draw(t, 512)
	require.NoError(t, h.builder.Swap())
	h.engine.CompleteAll()
	require.Equal(t, framebuilder.StateUnmodified, h.builder.State())
	require.False(t, h.builder.IncrementalRenderingRequested())
	require.Len(t, h.engine.StartedRaster(), 4)
}

func TestRasterOrderFollowsSwapOrder(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 2}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	h.draw(t, 0)
	require.NoError(t, h.builder.Swap())
	h.draw(t, 0)
	require.NoError(t, h.builder.Swap())
	require.Equal(t, 2, h.engine.PendingGeometry())

	// The second frame replaced the output's memory instead of waiting for the first
	require.Equal(t, uint64(1), color.Timestamp())

	require.True(t, h.engine.CompleteGeometry(jobs.StatusSuccess))
	require.True(t, h.engine.CompleteGeometry(jobs.StatusSuccess))
	require.Equal(t, 1, h.engine.PendingRaster())
	require.Equal(t, uint32(0), h.engine.StartedRaster()[0].Identity()>>24)

	require.True(t, h.engine.CompleteRaster(jobs.StatusSuccess))
	require.Equal(t, 1, h.engine.PendingRaster())
	require.Len(t, h.engine.StartedRaster(), 2)
	require.Equal(t, uint32(1), h.engine.StartedRaster()[1].Identity()>>24)

	require.True(t, h.engine.CompleteRaster(jobs.StatusSuccess))
	require.Equal(t, framebuilder.StateUnmodified, h.builder.FrameState(0))
	require.Equal(t, framebuilder.StateUnmodified, h.builder.FrameState(1))
}

func TestHeapSizeSettles(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1, HeapSize: 100 * 1024}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	for i := 0; i < 5; i++ {
		h.draw(t, 100*1024)
		require.NoError(t, h.builder.Swap())
		h.engine.CompleteAll()
	}
	require.Equal(t, 0, h.allocator.ResizeCount())
	require.Equal(t, jobs.StatusSuccess, h.builder.CompletionStatus())

	for i := 0; i < 5; i++ {
		h.draw(t, 150*1024)
		require.NoError(t, h.builder.Swap())
		h.engine.CompleteAll()
	}
	require.Equal(t, 1, h.allocator.ResizeCount())
	require.Equal(t, jobs.StatusSuccess, h.builder.CompletionStatus())
}

func TestHeapStableUnderSteadyUsage(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1, HeapSize: 128 * 1024}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	// Usage wanders between 121KiB and 132KiB, within a sixteenth of the heap size
	for i := 0; i < 100; i++ {
		h.draw(t, 121*1024+(i*7919)%(11*1024))
		require.NoError(t, h.builder.Swap())
		h.engine.CompleteAll()
	}
	require.Equal(t, 0, h.allocator.ResizeCount())

	h.draw(t, 200*1024)
	require.NoError(t, h.builder.Swap())
	h.engine.CompleteAll()

	for i := 0; i < 100; i++ {
		h.draw(t, 200*1024)
		require.NoError(t, h.builder.Swap())
		h.engine.CompleteAll()
	}
	require.Equal(t, 1, h.allocator.ResizeCount())
	require.Equal(t, jobs.StatusSuccess, h.builder.CompletionStatus())
}

func TestGeometryOutOfMemory(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1}, 256*1024)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()

	h.draw(t, 1024*1024)
	require.NoError(t, h.builder.Swap())
	h.engine.CompleteAll()

	require.Len(t, h.engine.StartedRaster(), 0)
	require.Equal(t, framebuilder.StateUnmodified, h.builder.State())
	require.Equal(t, jobs.StatusOutOfMemory, h.builder.CompletionStatus())
	require.Equal(t, jobs.StatusSuccess, h.builder.CompletionStatus())

	// The builder recovers with the next frame
	h.draw(t, 1024)
	require.NoError(t, h.builder.Swap())
	h.engine.CompleteAll()
	require.Len(t, h.engine.StartedRaster(), 1)
	require.Equal(t, jobs.StatusSuccess, h.builder.CompletionStatus())

	h.builder.Destroy()
	require.Equal(t, h.engine.GeometryAllocated(), h.engine.GeometryFreed())
	require.Equal(t, h.engine.RasterAllocated(), h.engine.RasterFreed())
}

func TestRasterFailureIsReported(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	h.draw(t, 0)
	require.NoError(t, h.builder.Swap())
	require.True(t, h.engine.CompleteGeometry(jobs.StatusSuccess))
	require.True(t, h.engine.CompleteRaster(jobs.StatusHang))

	require.Equal(t, framebuilder.StateUnmodified, h.builder.State())
	require.Equal(t, jobs.StatusHang, h.builder.CompletionStatus())
}

func TestRasterAllocationFailure(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 2}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()

	h.draw(t, 0)
	h.engine.FailRasterAllocations(1)
	err := h.builder.Swap()
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	require.Equal(t, 0, h.builder.CurrentFrameIndex())
	require.Equal(t, framebuilder.StateUnmodified, h.builder.State())
	require.Len(t, h.engine.StartedGeometry(), 0)

	h.draw(t, 0)
	require.NoError(t, h.builder.Swap())
	h.engine.CompleteAll()
	require.Len(t, h.engine.StartedRaster(), 1)

	h.builder.Destroy()
	require.Equal(t, h.engine.RasterAllocated(), h.engine.RasterFreed())
	require.Equal(t, h.engine.GeometryAllocated(), h.engine.GeometryFreed())
}

func TestGeometryAllocationFailureOnFlush(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()

	h.draw(t, 0)
	h.engine.FailGeometryAllocations(1)
	err := h.builder.Flush()
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	require.Equal(t, framebuilder.StateUnmodified, h.builder.State())
	require.Equal(t, 1, h.engine.GeometryAllocated())
	require.Equal(t, 1, h.engine.RasterAllocated())
	require.Equal(t, 1, h.engine.RasterFreed())

	h.builder.Destroy()
	require.Equal(t, 1, h.engine.GeometryFreed())
}

func TestGeometryStartFailure(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()

	h.draw(t, 0)
	h.engine.FailGeometryStarts(1)
	require.NoError(t, h.builder.Swap())

	require.Equal(t, framebuilder.StateUnmodified, h.builder.State())
	require.Equal(t, jobs.StatusOutOfMemory, h.builder.CompletionStatus())
	require.Len(t, h.engine.StartedRaster(), 0)

	h.builder.Destroy()
	require.Equal(t, h.engine.GeometryAllocated(), h.engine.GeometryFreed())
	require.Equal(t, h.engine.RasterAllocated(), h.engine.RasterFreed())
}

func TestCleanSkipsReadbacks(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	readback := h.surface(t, 0, 64, 64, surface.FormatARGB8888)
	defer readback.Deref()
	h.builder.SetReadback(0, readback, surface.UsageColor)

	h.builder.Clean()
	require.Equal(t, framebuilder.StateClean, h.builder.State())
	require.NoError(t, h.builder.Use())
	require.Equal(t, []jobs.CommandKind{jobs.CommandBeginFrame}, commandKinds(h.builder.GeometryJob().Commands()))

	h.builder.Reset()
	require.Equal(t, framebuilder.StateUnmodified, h.builder.State())
	require.False(t, h.builder.IsModified())
	require.NoError(t, h.builder.Use())

	commands := h.builder.GeometryJob().Commands()
	require.Equal(t, []jobs.CommandKind{jobs.CommandBeginFrame, jobs.CommandReadback}, commandKinds(commands))
	require.Same(t, readback, commands[1].Surface)
	require.True(t, h.builder.IsModified())
}

func TestRasterStrategy(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 1, SplitCount: 4}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	h.draw(t, 0)
	h.builder.UpdateFragmentStack(2, 6)
	require.NoError(t, h.builder.Swap())
	h.engine.CompleteAll()

	raster := h.engine.StartedRaster()[0]
	require.Equal(t, 4, raster.Cores)
	require.NotNil(t, raster.Setup().FragmentStack)
	require.Equal(t, 6*8*128*4, raster.Setup().FragmentStack.Size())

	balanced := newHarness(t, framebuilder.CreateOptions{RasterStrategy: framebuilder.RasterLoadBalanced}, 0)
	balancedColor := balanced.attachColor(t, 0, 0)
	defer balancedColor.Deref()
	defer balanced.builder.Destroy()

	balanced.draw(t, 0)
	require.NoError(t, balanced.builder.Swap())
	balanced.engine.CompleteAll()
	require.Equal(t, 0, balanced.engine.StartedRaster()[0].Cores)
	require.Nil(t, balanced.engine.StartedRaster()[0].Setup().FragmentStack)
}

func TestStatsString(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 2}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	h.draw(t, 2048)
	require.NoError(t, h.builder.Swap())
	h.engine.CompleteAll()

	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.builder.BuildStatsString(true)), &stats))
	require.Contains(t, stats, "General")
	require.Contains(t, stats, "Heaps")
	require.Len(t, stats["Frames"], 2)
	require.Len(t, stats["HeapDetails"], 2)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.builder.BuildStatsString(false)), &summary))
	require.NotContains(t, summary, "Frames")
}
