package framebuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/internal/utils"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/memory"
	"github.com/vkngwrapper/tiler/memutils"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

// OutputCallback is notified about the lifecycle of the output surfaces
type OutputCallback func()

// FrameBuilder turns draw commands into geometry and raster jobs for a ring of frames. The frame at
// the head of the ring receives commands. Flush submits them and Swap submits them and rotates the
// ring, so the next frame can be filled while earlier ones render.
type FrameBuilder struct {
	logger    *slog.Logger
	engine    jobs.Engine
	allocator memory.Allocator
	system    *deps.System
	options   CreateOptions

	apiMutex utils.OptionalMutex

	frames        []*frame
	current       int
	swapPerformed uint64
	flushCount    uint32
	nextFrameID   uint32

	heaps     []*HeapHolder
	heapIndex int

	outputs     [WritebackSlotCount]jobs.Output
	readbacks   [ReadbackSlotCount]jobs.Output
	outputValid bool
	width       int
	height      int
	log2ScaleX  int
	log2ScaleY  int
	boundingBox jobs.BoundingBox

	clearValues         [clearChannelCount]uint32
	planes              [planeCount]PlaneState
	preserveMultisample bool
	incRenderOnFlush    bool

	lockOutput     OutputCallback
	completeOutput OutputCallback
	acquireOutput  OutputCallback

	worker *utils.CleanupWorker
}

func normalizeOptions(options CreateOptions) (CreateOptions, error) {
	if options.SwapCount < 1 {
		options.SwapCount = 1
	}

	if options.HeapSize == 0 {
		options.HeapSize = HeapDefaultSize
	}
	if options.HeapSize < HeapMinSize {
		options.HeapSize = HeapMinSize
	}
	if options.HeapSize > HeapMaxSize {
		options.HeapSize = HeapMaxSize
	}

	if options.IncrementalRenderThreshold == 0 {
		options.IncrementalRenderThreshold = DefaultIncrementalRenderThreshold
	}

	if options.SplitCount == 0 {
		options.SplitCount = 1
	}
	if options.SplitCount < 0 || options.SplitCount > MaxSplitCount {
		return options, errors.Newf("split count must be between 1 and %d, but was %d", MaxSplitCount, options.SplitCount)
	}

	if options.CleanupQueueDepth == 0 {
		options.CleanupQueueDepth = defaultCleanupQueueDepth
	}

	return options, nil
}

// New creates a frame builder with every frame of its ring and its scratch heaps allocated up front
func New(logger *slog.Logger, engine jobs.Engine, allocator memory.Allocator, system *deps.System, options CreateOptions) (*FrameBuilder, error) {
	options, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}

	logger.Debug("FrameBuilder::New",
		slog.String("Type", options.Type.String()),
		slog.Int("SwapCount", options.SwapCount),
		slog.String("Properties", options.Properties.String()),
		slog.Int("HeapSize", options.HeapSize),
	)

	builder := &FrameBuilder{
		logger:    logger,
		engine:    engine,
		allocator: allocator,
		system:    system,
		options:   options,
		apiMutex: utils.OptionalMutex{
			UseMutex: !options.ExternallySynchronized,
		},
		clearValues: defaultClearValues,
	}

	if options.Type == TypeFramebufferObject {
		for i := range builder.planes {
			builder.planes[i] = PlaneUndefined
		}
	}

	if options.Properties&PropertyNoHeap == 0 {
		holders := memutils.Max(1, options.SwapCount)
		if holders > heapCount {
			holders = heapCount
		}

		for i := 0; i < holders; i++ {
			heap, err := allocator.AllocateHeap(options.HeapSize, HeapMaxSize, HeapGrowSize)
			if err != nil {
				builder.destroyPartial()
				return nil, errors.Wrapf(err, "failed to allocate scratch heap %d", i)
			}

			builder.heaps = append(builder.heaps, NewHeapHolder(logger, system, heap, options.HeapSize, options.HeapSize, HeapMaxSize))
		}
	}

	for i := 0; i < options.SwapCount; i++ {
		f, err := newFrame(builder, i)
		if err != nil {
			builder.destroyPartial()
			return nil, errors.Wrapf(err, "failed to allocate frame %d", i)
		}

		builder.frames = append(builder.frames, f)
	}

	if options.SwapCount > 1 {
		for i, f := range builder.frames {
			prev := builder.frames[(i+options.SwapCount-1)%options.SwapCount]
			next := builder.frames[(i+1)%options.SwapCount]
			f.order.link(prev, next)
		}
	}

	if options.DeferredReset {
		builder.worker = utils.NewCleanupWorker(options.CleanupQueueDepth)
	}

	return builder, nil
}

func (b *FrameBuilder) destroyPartial() {
	for _, f := range b.frames {
		f.free()
	}
	b.frames = nil

	for _, heap := range b.heaps {
		heap.Free()
	}
	b.heaps = nil
}

// Destroy waits for every frame to finish rendering and releases everything the builder holds
func (b *FrameBuilder) Destroy() {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.logger.Debug("FrameBuilder::Destroy")

	b.waitAll()

	if b.worker != nil {
		b.worker.Stop()
		b.worker = nil
	}

	for i := range b.outputs {
		b.setOutput(i, nil, 0)
	}
	for i := range b.readbacks {
		b.setReadback(i, nil, 0)
	}

	b.destroyPartial()
}

func (b *FrameBuilder) currentFrame() *frame {
	return b.frames[b.current]
}

// Use prepares the current frame to receive draw commands, waiting for it if it is still rendering
func (b *FrameBuilder) Use() error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.use()
}

func (b *FrameBuilder) use() error {
	f := b.currentFrame()

	f.waitAndTakeMutex()
	err := b.useInternal(f)
	f.mutex.Unlock()

	return err
}

// useInternal is called and returns with the frame mutex held
func (b *FrameBuilder) useInternal(f *frame) error {
	if f.state == StateDirty && f.pool.IsMapped() {
		return nil
	}

	if f.state == StateComplete && f.resetOnFinish {
		f.mutex.Unlock()
		f.reset()
		f.mutex.Lock()
	}

	if f.state == StateClean || f.state == StateUnmodified {
		err := b.beginFrame(f)
		if err != nil {
			return err
		}
	}

	err := f.pool.Map()
	if err != nil {
		return errors.Wrap(err, "failed to map frame pool")
	}

	if f.readbackFirstDrawcall {
		for slot, readback := range b.readbacks {
			// A clean frame is cleared over anything read back
			if readback.Surface == nil || f.state == StateClean {
				continue
			}

			err = f.geometryJob.AddCommands(jobs.Command{
				Kind:    jobs.CommandReadback,
				Surface: readback.Surface,
				Usage:   readback.Usage,
				Slot:    slot,
			})
			if err != nil {
				return err
			}
		}
		f.readbackFirstDrawcall = false
	}

	f.state = StateDirty
	return nil
}

// beginFrame gives the frame a new identity and starts a fresh geometry command stream
func (b *FrameBuilder) beginFrame(f *frame) error {
	f.frameID = b.nextFrameID
	b.nextFrameID++

	f.geometryJob.Reset()
	return f.geometryJob.AddCommands(jobs.Command{Kind: jobs.CommandBeginFrame})
}

// AddCommands appends draw commands to the current frame, which must be in use
func (b *FrameBuilder) AddCommands(commands ...jobs.Command) error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.state != StateDirty {
		return errors.Newf("commands can only be added to a frame in use, but %s is %s", f, f.state)
	}

	return f.geometryJob.AddCommands(commands...)
}

// GeometryJob returns the job accepting commands for the current frame
func (b *FrameBuilder) GeometryJob() jobs.GeometryJob {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.geometryJob
}

// FrameMemory allocates memory that lives until the current frame is reset. The frame must be in use.
func (b *FrameBuilder) FrameMemory(size int, alignment uint) ([]byte, error) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.pool.IsMapped() {
		return nil, errors.Newf("frame memory can only be allocated from a frame in use, but %s is %s", f, f.state)
	}

	return f.pool.Alloc(size, alignment)
}

// Clean waits for the current frame and resets it so that it holds nothing but the clear values.
// Pending depth and stencil writebacks to the same surfaces are discarded, since the clear will
// replace them.
func (b *FrameBuilder) Clean() {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.logger.Debug("FrameBuilder::Clean")

	f := b.currentFrame()
	f.wait()

	for _, output := range b.outputs {
		if output.Surface == nil || output.Usage&surface.UsageColor != 0 {
			continue
		}

		output.Surface.AccessLock()
		if output.Surface.Flags()&surface.FlagReadPending == 0 && output.Usage&(surface.UsageDepth|surface.UsageStencil) != 0 {
			b.discardSurfaceWriteback(output.Surface)
		}
		output.Surface.AccessUnlock()
	}

	f.reset()

	f.mutex.Lock()
	f.state = StateClean
	f.fragmentStackStart = 0
	f.fragmentStackGrow = 0
	f.heapResetOnJobStart = true
	f.mutex.Unlock()

	b.incRenderOnFlush = false
}

// Reset waits for the current frame and discards everything drawn into it
func (b *FrameBuilder) Reset() {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.reset()
}

func (b *FrameBuilder) reset() {
	b.logger.Debug("FrameBuilder::Reset")

	f := b.currentFrame()
	f.wait()
	f.reset()

	f.mutex.Lock()
	f.fragmentStackStart = 0
	f.fragmentStackGrow = 0
	f.heapResetOnJobStart = true
	f.mutex.Unlock()

	b.incRenderOnFlush = false
	b.preserveMultisample = false

	memutils.DebugValidate((*frameInvariants)(b))
}

// Wait blocks until the current frame has finished rendering. With PropertyRotateOnFlush the flushed
// frame is no longer current, so every frame is waited on.
func (b *FrameBuilder) Wait() {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	if b.options.Properties&PropertyRotateOnFlush != 0 {
		b.waitAll()
		return
	}

	b.currentFrame().wait()
}

// WaitFrame blocks until the current frame has finished rendering
func (b *FrameBuilder) WaitFrame() {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.currentFrame().wait()
}

// WaitAll blocks until every frame in the ring has finished rendering
func (b *FrameBuilder) WaitAll() {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.waitAll()
}

// waitAll visits the frames oldest first, starting after the current one
func (b *FrameBuilder) waitAll() {
	index := b.current
	for range b.frames {
		index = (index + 1) % len(b.frames)
		b.frames[index].wait()
	}
}

// CompletionStatus returns the last abnormal job completion recorded by any frame and clears them all.
// It returns jobs.StatusSuccess if every job completed normally.
func (b *FrameBuilder) CompletionStatus() jobs.Status {
	status := jobs.StatusSuccess

	for _, f := range b.frames {
		frameStatus := f.takeCompletionStatus()
		if frameStatus != jobs.StatusSuccess {
			status = frameStatus
		}
	}

	return status
}

// IsModified returns false if the current frame holds nothing at all
func (b *FrameBuilder) IsModified() bool {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.state != StateUnmodified
}

func (b *FrameBuilder) SwapCount() int {
	return len(b.frames)
}

func (b *FrameBuilder) CurrentFrameIndex() int {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.current
}

// State returns the state of the current frame
func (b *FrameBuilder) State() State {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.frameState(b.current)
}

// FrameState returns the state of any frame in the ring
func (b *FrameBuilder) FrameState(index int) State {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.frameState(index)
}

func (b *FrameBuilder) frameState(index int) State {
	f := b.frames[index]
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.state
}

// UpdateFragmentStack records the fragment shader stack requirement of a draw call into the current
// frame. The frame's stack covers the largest requirement seen since it was last reset.
func (b *FrameBuilder) UpdateFragmentStack(start, size int) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.fragmentStackStart = memutils.Max(f.fragmentStackStart, start)
	f.fragmentStackGrow = memutils.Max(f.fragmentStackGrow, size-start)
}

// IncrementalRenderingRequested returns true once the current frame has been flushed more times than
// the incremental render threshold without a reset
func (b *FrameBuilder) IncrementalRenderingRequested() bool {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.numFlushes > b.options.IncrementalRenderThreshold
}

// SetIncrementalRenderOnFlush makes the next non-swap Flush render incrementally first
func (b *FrameBuilder) SetIncrementalRenderOnFlush(value bool) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.incRenderOnFlush = value
}

// AddCallback adds a deferred callback to the current frame. It runs when the frame is reset.
func (b *FrameBuilder) AddCallback(callback Callback) {
	b.addCallback(callback, true)
}

// AddCallbackNonDeferred adds a callback to the current frame that runs as soon as rendering completes
func (b *FrameBuilder) AddCallbackNonDeferred(callback Callback) {
	b.addCallback(callback, false)
}

func (b *FrameBuilder) addCallback(callback Callback, deferred bool) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.callbacks.Add(callback, deferred)
}

// AddCallbackThreadsafe adds a deferred callback to the current frame from any goroutine. The callback
// is rejected with memutils.ErrCallbackRejected if the frame is empty or already on its way to
// being reset, since it would then never run.
func (b *FrameBuilder) AddCallbackThreadsafe(callback Callback) error {
	f := b.frames[b.CurrentFrameIndex()]

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.state == StateUnmodified || (f.state == StateRendering && f.resetOnFinish) {
		return errors.Wrapf(memutils.ErrCallbackRejected, "%s is %s", f, f.state)
	}

	f.callbacks.Add(callback, true)
	return nil
}

// SetLockOutputCallback sets a callback that fires every time a flush has been submitted
func (b *FrameBuilder) SetLockOutputCallback(callback OutputCallback) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.lockOutput = callback
}

// SetCompleteOutputCallback sets a callback that fires once per flush, when its raster job has
// finished or was abandoned
func (b *FrameBuilder) SetCompleteOutputCallback(callback OutputCallback) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.completeOutput = callback
}

// SetAcquireOutputCallback sets a callback that fires before the outputs are written to
func (b *FrameBuilder) SetAcquireOutputCallback(callback OutputCallback) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.acquireOutput = callback
}

func (b *FrameBuilder) AcquireOutput() {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.acquireOutputs()
}

func (b *FrameBuilder) acquireOutputs() {
	if b.acquireOutput != nil {
		b.acquireOutput()
	}
}

// Validate checks the builder's internal invariants. Heaps are only checked when no geometry job
// is running.
func (b *FrameBuilder) Validate() error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	err := b.validateFrames()
	if err != nil {
		return err
	}

	for _, heap := range b.heaps {
		err := heap.Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// frameInvariants validates a builder whose API mutex is already held. Heap holders are left
// out since a completing geometry job may be recording usage; they validate themselves in Adjust.
type frameInvariants FrameBuilder

func (v *frameInvariants) Validate() error {
	return (*FrameBuilder)(v).validateFrames()
}

func (b *FrameBuilder) validateFrames() error {
	if b.current < 0 || b.current >= len(b.frames) {
		return errors.Newf("current frame index %d is outside of the ring of %d", b.current, len(b.frames))
	}

	for _, f := range b.frames {
		f.mutex.Lock()
		err := f.callbacks.Validate()
		if err == nil && f.cow == cowDeepCopyPending && f.cowDescriptor == nil {
			err = errors.Newf("%s has a copy pending without a descriptor", f)
		}
		f.mutex.Unlock()

		if err != nil {
			return err
		}
	}

	return b.validatePlanes()
}
