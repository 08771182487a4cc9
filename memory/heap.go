package memory

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/memutils"
)

// Heap is a growable scratch allocation that a geometry job spills tile lists into
type Heap interface {
	Size() int
	UsedBytes() int
	// Allocate consumes size bytes, growing the heap if necessary. It fails with memutils.ErrOutOfMemory
	// if the heap cannot grow any further.
	Allocate(size int) error
	// Reset discards everything allocated so far without changing the size of the heap
	Reset()
	// Resize reallocates the heap with a new size. Everything allocated so far is discarded.
	Resize(size int) error
	Free()
}

type hostHeap struct {
	allocator *HostAllocator
	mutex     sync.Mutex

	size     int
	used     int
	maxSize  int
	growSize int
	freed    bool
}

var _ Heap = &hostHeap{}

func (h *hostHeap) Size() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.size
}

func (h *hostHeap) UsedBytes() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.used
}

func (h *hostHeap) Allocate(size int) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.freed {
		panic(errors.New("attempted to allocate from a freed heap"))
	}

	if h.used+size <= h.size {
		h.used += size
		return nil
	}

	growth := memutils.RoundUp(h.used+size-h.size, h.growSize)
	if h.size+growth > h.maxSize {
		return errors.Wrapf(memutils.ErrOutOfMemory, "heap cannot grow past %d bytes", h.maxSize)
	}

	err := h.allocator.charge(growth)
	if err != nil {
		return err
	}

	h.size += growth
	h.used += size
	return nil
}

func (h *hostHeap) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.used = 0
}

func (h *hostHeap) Resize(size int) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if size > h.maxSize {
		return errors.Wrapf(memutils.ErrOutOfMemory, "requested heap size %d is larger than the maximum %d", size, h.maxSize)
	}

	if size > h.size {
		err := h.allocator.charge(size - h.size)
		if err != nil {
			return err
		}
	} else {
		h.allocator.refund(h.size - size)
	}

	h.size = size
	h.used = 0
	h.allocator.resizeCount.Add(1)
	return nil
}

func (h *hostHeap) Free() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.freed {
		return
	}

	h.freed = true
	h.allocator.refund(h.size)
	h.allocator.heapCount.Add(-1)
	h.size = 0
	h.used = 0
}
