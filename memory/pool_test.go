package memory_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/memory"
	mock_memory "github.com/vkngwrapper/tiler/memory/mocks"
	"github.com/vkngwrapper/tiler/memutils"
	"go.uber.org/mock/gomock"
)

func TestPoolLifecycle(t *testing.T) {
	allocator := testAllocator(0)
	pool := memory.NewPool(allocator, 256)

	require.Panics(t, func() {
		_, _ = pool.Alloc(16, 4)
	})

	require.NoError(t, pool.Map())
	require.True(t, pool.IsMapped())
	require.Equal(t, 1, allocator.BlockCount())

	first, err := pool.Alloc(10, 4)
	require.NoError(t, err)
	require.Len(t, first, 10)

	second, err := pool.Alloc(200, 16)
	require.NoError(t, err)
	require.Len(t, second, 200)
	require.Equal(t, 1, allocator.BlockCount())

	_, err = pool.Alloc(100, 16)
	require.NoError(t, err)
	require.Equal(t, 2, allocator.BlockCount())
	require.Equal(t, 310, pool.UsedBytes())

	pool.Unmap()
	require.False(t, pool.IsMapped())
	require.Equal(t, 2, allocator.BlockCount())

	pool.Destroy()
	require.Equal(t, 0, allocator.BlockCount())
	require.Equal(t, 0, pool.UsedBytes())
}

func TestPoolOversizedAllocation(t *testing.T) {
	allocator := testAllocator(0)
	pool := memory.NewPool(allocator, 64)
	require.NoError(t, pool.Map())

	data, err := pool.Alloc(1000, 4)
	require.NoError(t, err)
	require.Len(t, data, 1000)

	pool.Destroy()
	require.Equal(t, 0, allocator.AllocatedBytes())
}

func TestPoolMapFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	allocator := mock_memory.NewMockAllocator(ctrl)
	allocator.EXPECT().AllocateBlock(128, uint(64)).Return(nil, memutils.ErrOutOfMemory)

	pool := memory.NewPool(allocator, 128)
	err := pool.Map()
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
	require.False(t, pool.IsMapped())
}
