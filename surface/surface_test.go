package surface_test

import (
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/memory"
	mock_memory "github.com/vkngwrapper/tiler/memory/mocks"
	"github.com/vkngwrapper/tiler/memutils"
	"github.com/vkngwrapper/tiler/surface"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func setup() (*deps.System, *memory.HostAllocator) {
	logger := slog.New(slog.NewTextHandler(os.Stdout))
	return deps.NewSystem(logger), memory.NewHostAllocator(logger, 0)
}

var colorSpec = surface.Specifier{
	Width:  64,
	Height: 64,
	Format: surface.FormatARGB8888,
	Layout: surface.LayoutLinear,
}

func TestSurfaceLifecycle(t *testing.T) {
	system, allocator := setup()

	surf, err := surface.New(system, allocator, surface.FlagTrackSurface, colorSpec)
	require.NoError(t, err)
	require.Equal(t, 64*64*4, surf.Memory().Size())
	require.Equal(t, 1, allocator.BlockCount())

	destroyed := 0
	surf.SetEventHandler(surface.EventDestroy, func(s *surface.Surface, mem *memory.Block, event surface.Event) {
		destroyed++
	})

	surf.AddRef()
	surf.Deref()
	require.Equal(t, 0, destroyed)

	surf.Deref()
	require.Equal(t, 1, destroyed)
	require.Equal(t, 0, allocator.BlockCount())
}

func TestSurfaceDontMoveMustBeExternal(t *testing.T) {
	system, allocator := setup()

	_, err := surface.New(system, allocator, surface.FlagDontMove, colorSpec)
	require.Error(t, err)
}

func TestSurfaceFlags(t *testing.T) {
	system, allocator := setup()

	surf, err := surface.New(system, allocator, surface.FlagTrackSurface, colorSpec)
	require.NoError(t, err)
	defer surf.Deref()

	surf.SetFlags(surface.FlagReadPending)
	require.Equal(t, surface.FlagTrackSurface|surface.FlagReadPending, surf.Flags())

	surf.ClearFlags(surface.FlagTrackSurface)
	require.Equal(t, surface.FlagReadPending, surf.Flags())
	require.Contains(t, surf.Flags().String(), "FlagReadPending")
}

func TestClearDependenciesDeepCopy(t *testing.T) {
	system, allocator := setup()

	surf, err := surface.New(system, allocator, 0, colorSpec)
	require.NoError(t, err)

	cowEvents := 0
	surf.SetEventHandler(surface.EventCopyOnWrite, func(s *surface.Surface, mem *memory.Block, event surface.Event) {
		cowEvents++
	})

	oldMem := surf.Memory()
	oldResource := surf.Resource()
	copy(oldMem.Bytes(), []byte{1, 2, 3, 4})

	surf.AccessLock()
	resource, descriptor, err := surf.ClearDependencies(true)
	surf.AccessUnlock()
	require.NoError(t, err)
	require.NotNil(t, descriptor)
	require.NotSame(t, oldResource, resource)
	require.Same(t, resource, surf.Resource())
	require.NotSame(t, oldMem, surf.Memory())
	require.Equal(t, uint64(1), surf.Timestamp())
	require.Equal(t, 1, cowEvents)
	require.Equal(t, 2, allocator.BlockCount())

	require.NoError(t, descriptor.Execute())
	require.Equal(t, []byte{1, 2, 3, 4}, surf.Memory().Bytes()[:4])

	descriptor.Release()
	require.Equal(t, 1, allocator.BlockCount())

	surf.Deref()
	require.Equal(t, 0, allocator.BlockCount())
}

func TestClearDependenciesOutOfMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	system, _ := setup()
	allocator := mock_memory.NewMockAllocator(ctrl)

	mem := memory.NewBlock(make([]byte, colorSpec.DataSize()), nil)
	surf := surface.NewWithMemory(system, allocator, 0, colorSpec, mem)

	allocator.EXPECT().AllocateBlock(colorSpec.DataSize(), surface.Alignment).Return(nil, memutils.ErrOutOfMemory)

	surf.AccessLock()
	_, _, err := surf.ClearDependencies(false)
	surf.AccessUnlock()
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
	require.Same(t, mem, surf.Memory())
}

func TestUsageScale(t *testing.T) {
	x, y := surface.UsageColor.Scale()
	require.Equal(t, 1, x)
	require.Equal(t, 1, y)

	x, y = (surface.UsageColor | surface.UsageDownsampleX4 | surface.UsageDownsampleY16).Scale()
	require.Equal(t, 4, x)
	require.Equal(t, 16, y)

	usage := (surface.UsageColor | surface.UsageMultisample).String()
	require.Contains(t, usage, "UsageColor")
	require.Contains(t, usage, "UsageMultisample")
}

func TestSpecifierDataSize(t *testing.T) {
	require.Equal(t, 64*64*4, colorSpec.DataSize())

	interleaved := surface.Specifier{Width: 10, Height: 10, Format: surface.FormatRGB565, Layout: surface.LayoutBlockInterleaved}
	require.Equal(t, 16*16*2, interleaved.DataSize())
}
