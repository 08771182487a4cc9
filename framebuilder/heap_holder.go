package framebuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/memory"
	"github.com/vkngwrapper/tiler/memutils"
	"golang.org/x/exp/slog"
)

const heapHistoryLength int = 4

// HeapHolder leases a scratch heap to one frame at a time and sizes it according to the usage of
// recent geometry jobs. Geometry consumers connect to its resource for writing, so two frames holding
// the same heap never run their geometry jobs at the same time.
type HeapHolder struct {
	logger   *slog.Logger
	heap     memory.Heap
	resource *deps.Resource

	minSize  int
	maxSize  int
	initSize int
	useCount int

	history       [heapHistoryLength]int
	historyPeriod int

	resetCount  int
	resizeCount int
}

// NewHeapHolder wraps heap, which was allocated with initSize bytes. heap may be nil, in which case the
// holder does nothing.
func NewHeapHolder(logger *slog.Logger, system *deps.System, heap memory.Heap, initSize, minSize, maxSize int) *HeapHolder {
	holder := &HeapHolder{
		logger:   logger,
		heap:     heap,
		minSize:  minSize,
		maxSize:  maxSize,
		initSize: initSize,
	}
	holder.resource = system.NewResource(holder)

	return holder
}

func (h *HeapHolder) Heap() memory.Heap {
	return h.heap
}

func (h *HeapHolder) Resource() *deps.Resource {
	return h.resource
}

// Size is the size the heap was last reset or resized to
func (h *HeapHolder) Size() int {
	return h.initSize
}

// UseCount is the number of geometry jobs that have used the heap since the size was last adjusted
func (h *HeapHolder) UseCount() int {
	return h.useCount
}

// RecordUsage adds the heap's current usage to the history and counts one more use
func (h *HeapHolder) RecordUsage() {
	if h.heap == nil {
		return
	}

	h.history[h.historyPeriod%heapHistoryLength] = h.heap.UsedBytes()
	h.historyPeriod++
	h.useCount++
}

func (h *HeapHolder) targetSize() int {
	target := memutils.Max(h.history[:]...)
	target = memutils.RoundUp(target, heapBlockSize)
	target = memutils.Max(target, h.minSize)
	if target > h.maxSize {
		target = h.maxSize
	}

	return target
}

// Adjust prepares the heap for a new frame. If the recent usage is within a sixteenth of the current
// size, the heap is only reset. Otherwise it is resized to fit the largest recent usage.
func (h *HeapHolder) Adjust() error {
	if h.heap == nil || h.useCount == 0 {
		return nil
	}

	target := h.targetSize()
	if memutils.Abs(target-h.initSize) < h.initSize>>4 {
		h.heap.Reset()
		h.resetCount++
	} else {
		h.logger.Debug("  HeapHolder::Adjust resizing", slog.Int("From", h.initSize), slog.Int("To", target))

		err := h.heap.Resize(target)
		if err != nil {
			return err
		}
		h.initSize = target
		h.resizeCount++
	}

	h.useCount = 0
	memutils.DebugValidate(h)
	return nil
}

// Free releases the heap. The holder cannot be used afterwards.
func (h *HeapHolder) Free() {
	h.resource.ReleaseConnections(false)

	if h.heap != nil {
		h.heap.Free()
		h.heap = nil
	}
}

func (h *HeapHolder) Statistics(stats *memutils.DetailedHeapStatistics) {
	if h.heap == nil {
		return
	}

	stats.HeapCount++
	stats.HeapBytes += h.heap.Size()
	stats.UsedBytes += h.heap.UsedBytes()
	stats.ResetCount += h.resetCount
	stats.ResizeCount += h.resizeCount

	samples := memutils.Max(h.historyPeriod, 0)
	if samples > heapHistoryLength {
		samples = heapHistoryLength
	}
	for i := 0; i < samples; i++ {
		stats.AddSample(h.history[i])
	}
}

func (h *HeapHolder) Validate() error {
	if h.heap == nil {
		return nil
	}

	if h.initSize < 0 || h.initSize > h.maxSize {
		return errors.Newf("heap size %d is outside of [0, %d]", h.initSize, h.maxSize)
	}

	if h.useCount < 0 {
		return errors.Newf("heap use count went negative: %d", h.useCount)
	}

	for i, sample := range h.history {
		if sample < 0 {
			return errors.Newf("heap usage sample %d is negative: %d", i, sample)
		}
	}

	return nil
}
