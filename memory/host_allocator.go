package memory

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/memutils"
	"golang.org/x/exp/slog"
)

// Allocator hands out heaps and blocks to a frame builder
type Allocator interface {
	AllocateHeap(initialSize, maxSize, growSize int) (Heap, error)
	AllocateBlock(size int, alignment uint) (*Block, error)
}

// HostAllocator is an Allocator backed by ordinary Go memory. It can be given a byte budget, in which
// case any allocation that would exceed the budget fails with memutils.ErrOutOfMemory.
type HostAllocator struct {
	logger *slog.Logger
	budget int

	allocatedBytes atomic.Int64
	blockCount     atomic.Int32
	heapCount      atomic.Int32
	resizeCount    atomic.Int32
}

var _ Allocator = &HostAllocator{}

// NewHostAllocator creates an allocator. A budget of 0 means allocations are unbounded.
func NewHostAllocator(logger *slog.Logger, budget int) *HostAllocator {
	return &HostAllocator{
		logger: logger,
		budget: budget,
	}
}

func (a *HostAllocator) charge(size int) error {
	if a.budget == 0 {
		a.allocatedBytes.Add(int64(size))
		return nil
	}

	for {
		currentVal := a.allocatedBytes.Load()
		targetVal := currentVal + int64(size)

		if targetVal > int64(a.budget) {
			a.logger.Debug("HostAllocator::charge OUT OF BUDGET", slog.Int("Requested", size), slog.Int64("Allocated", currentVal))
			return errors.Wrapf(memutils.ErrOutOfMemory, "allocating %d bytes would exceed the budget of %d", size, a.budget)
		}

		if a.allocatedBytes.CompareAndSwap(currentVal, targetVal) {
			return nil
		}
	}
}

func (a *HostAllocator) refund(size int) {
	if a.allocatedBytes.Add(int64(-size)) < 0 {
		panic(errors.New("allocated bytes went negative"))
	}
}

func (a *HostAllocator) AllocateHeap(initialSize, maxSize, growSize int) (Heap, error) {
	a.logger.Debug("HostAllocator::AllocateHeap", slog.Int("InitialSize", initialSize), slog.Int("MaxSize", maxSize))

	if initialSize > maxSize {
		return nil, errors.Newf("initial heap size %d is larger than the maximum %d", initialSize, maxSize)
	}

	if growSize <= 0 {
		return nil, errors.Newf("heap grow size must be positive but was %d", growSize)
	}

	err := a.charge(initialSize)
	if err != nil {
		return nil, err
	}

	a.heapCount.Add(1)
	return &hostHeap{
		allocator: a,
		size:      initialSize,
		maxSize:   maxSize,
		growSize:  growSize,
	}, nil
}

func (a *HostAllocator) AllocateBlock(size int, alignment uint) (*Block, error) {
	err := memutils.CheckPow2(alignment, "block alignment")
	if err != nil {
		return nil, err
	}

	size = memutils.AlignUp(size, alignment)
	err = a.charge(size)
	if err != nil {
		return nil, err
	}

	a.blockCount.Add(1)
	return NewBlock(make([]byte, size), func(block *Block) {
		a.blockCount.Add(-1)
		a.refund(block.Size())
	}), nil
}

// AllocatedBytes returns the bytes currently held by live heaps and blocks
func (a *HostAllocator) AllocatedBytes() int {
	return int(a.allocatedBytes.Load())
}

func (a *HostAllocator) BlockCount() int {
	return int(a.blockCount.Load())
}

func (a *HostAllocator) HeapCount() int {
	return int(a.heapCount.Load())
}

// ResizeCount returns the number of times any heap from this allocator was resized
func (a *HostAllocator) ResizeCount() int {
	return int(a.resizeCount.Load())
}
