package framebuilder

import "github.com/vkngwrapper/core/v2/common"

// Properties indicate specific frame builder behaviors to activate
type Properties int32

var propertiesMapping = common.NewFlagStringMapping[Properties]()

func (p Properties) Register(str string) {
	propertiesMapping.Register(p, str)
}
func (p Properties) String() string {
	return propertiesMapping.FlagsToString(p)
}

const (
	// PropertyRotateOnFlush makes every flush behave like a swap. Wait will then wait on every frame in
	// the ring, since the frame that was flushed is no longer the current one.
	PropertyRotateOnFlush Properties = 1 << iota
	// PropertyUndefinedAfterSwap marks the content of every plane as undefined after a swap instead of
	// preserving it
	PropertyUndefinedAfterSwap
	// PropertyNoHeap creates the builder without any scratch heaps. Geometry jobs will be given no heap.
	PropertyNoHeap
)

func init() {
	PropertyRotateOnFlush.Register("PropertyRotateOnFlush")
	PropertyUndefinedAfterSwap.Register("PropertyUndefinedAfterSwap")
	PropertyNoHeap.Register("PropertyNoHeap")
}

// Type is the kind of render target a frame builder draws into
type Type int

const (
	// TypeWindow builders render into displayable surfaces whose content is defined at creation
	TypeWindow Type = iota
	// TypeFramebufferObject builders render into offscreen surfaces whose content starts undefined
	TypeFramebufferObject
)

var typeMapping = map[Type]string{
	TypeWindow:            "TypeWindow",
	TypeFramebufferObject: "TypeFramebufferObject",
}

func (t Type) String() string {
	return typeMapping[t]
}

// RasterStrategy selects how raster jobs are spread across raster cores
type RasterStrategy int

const (
	// RasterSplit splits each raster job into SplitCount pieces, one per core
	RasterSplit RasterStrategy = iota
	// RasterLoadBalanced submits one raster job and lets the engine balance it across every core
	RasterLoadBalanced
)

var rasterStrategyMapping = map[RasterStrategy]string{
	RasterSplit:        "RasterSplit",
	RasterLoadBalanced: "RasterLoadBalanced",
}

func (s RasterStrategy) String() string {
	return rasterStrategyMapping[s]
}

const (
	// HeapDefaultSize is the initial size of each scratch heap when none is provided via CreateOptions.
	// It is also the smallest size the heap heuristic will shrink a heap to.
	HeapDefaultSize int = 64 * 1024
	// HeapGrowSize is the granularity with which a heap grows while a geometry job is running
	HeapGrowSize int = 128 * 1024
	// HeapMaxSize is the largest size a heap may reach
	HeapMaxSize int = 64 * 1024 * 1024
	// HeapMinSize is the smallest initial heap size accepted from CreateOptions
	HeapMinSize int = 4096
	// heapBlockSize is the granularity heap resizes are rounded up to, the largest tile list block
	heapBlockSize int = 1024

	// DefaultIncrementalRenderThreshold is the number of flushes between resets after which incremental
	// rendering is requested
	DefaultIncrementalRenderThreshold int = 50

	// MaxSplitCount is the largest number of cores a raster job can be split across
	MaxSplitCount int = 8

	// heapCount is the maximum number of heaps shared round-robin between the frames of a builder
	heapCount int = 2

	defaultCleanupQueueDepth int = 4
	framePoolChunkSize       int = 4096
)

// CreateOptions contains optional settings when creating a frame builder
type CreateOptions struct {
	// Type indicates whether the builder renders to a window or an offscreen framebuffer object
	Type Type
	// SwapCount is the number of frames in the ring. If it is 0, a single frame is used.
	SwapCount int
	// Properties activates specific builder behaviors
	Properties Properties

	// HeapSize is the initial size of each scratch heap. If it is 0, HeapDefaultSize is used.
	HeapSize int
	// IncrementalRenderThreshold is the number of flushes since the last reset after which
	// IncrementalRenderingRequested returns true. If it is 0, DefaultIncrementalRenderThreshold is used.
	IncrementalRenderThreshold int

	// RasterStrategy indicates how raster jobs are spread across cores
	RasterStrategy RasterStrategy
	// SplitCount is the number of cores to split raster jobs across with RasterSplit. If it is 0,
	// raster jobs are not split.
	SplitCount int

	// DeferredReset runs the reset of swapped frames on a background worker instead of the goroutine
	// that observed raster completion
	DeferredReset bool
	// CleanupQueueDepth bounds the number of frame resets waiting on the background worker. A reset
	// that cannot be queued runs inline.
	CleanupQueueDepth int

	// ExternallySynchronized ensures that the builder will not be synchronized internally. The consumer
	// must guarantee the builder's entry points are called from only one goroutine at a time.
	// Completion callbacks from the job engines are always synchronized.
	ExternallySynchronized bool
}
