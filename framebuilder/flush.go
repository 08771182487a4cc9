package framebuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/memutils"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

// errEarlyOut is returned internally when a flush had nothing new to submit
var errEarlyOut = errors.New("frame has nothing to flush")

const (
	fragmentStackEntryBytes int  = 8
	fragmentStackThreads    int  = 128
	loadBalancedStackCount  int  = 8
	fragmentStackAlignment  uint = 64

	flushFrameShift  = 24
	flushSwapShift   = 23
	flushCounterMask = 0x7FFFFF
)

// Flush submits everything drawn into the current frame without ending it. Drawing can continue
// into the same frame once the flush has finished rendering.
func (b *FrameBuilder) Flush() error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.logger.Debug("FrameBuilder::Flush")
	return b.flushCommon(false)
}

// Swap submits and ends the current frame, then rotates the ring to the next frame
func (b *FrameBuilder) Swap() error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.logger.Debug("FrameBuilder::Swap")
	return b.flushCommon(true)
}

func (b *FrameBuilder) flushCommon(swap bool) error {
	if b.options.Properties&PropertyRotateOnFlush != 0 {
		swap = true
	}

	if !swap && b.incRenderOnFlush {
		b.incRenderOnFlush = false

		err := b.incrementalRender()
		if err != nil {
			return err
		}
	}

	err := b.internalFlush(swap)

	if swap {
		b.degradePlanesAfterSwap()
	}

	if err == nil && swap {
		b.rotate()
	}

	memutils.DebugValidate((*frameInvariants)(b))

	if errors.Is(err, errEarlyOut) {
		return nil
	}

	return err
}

func (b *FrameBuilder) rotate() {
	b.current = (b.current + 1) % len(b.frames)
	b.swapPerformed++
}

// internalFlush submits the current frame. It returns errEarlyOut if the frame had nothing to submit.
func (b *FrameBuilder) internalFlush(swap bool) error {
	f := b.currentFrame()

	if !b.outputValid {
		b.logger.Debug("  FrameBuilder::internalFlush invalid output")

		f.mutex.Lock()
		if f.state == StateRendering {
			f.ensureNotRendering()
		}
		unmodified := f.state == StateUnmodified
		f.mutex.Unlock()

		if !unmodified {
			f.reset()
		}
		return nil
	}

	f.mutex.Lock()
	switch f.state {
	case StateClean:
		err := b.useInternal(f)
		if err != nil {
			f.mutex.Unlock()
			return err
		}
	case StateComplete, StateUnmodified:
		complete := f.state == StateComplete
		f.mutex.Unlock()

		f.busy.Wait()
		if swap && complete {
			f.reset()
		}
		return errEarlyOut
	case StateRendering:
		if swap {
			f.resetOnFinish = true
		}
		f.mutex.Unlock()
		return nil
	}

	if f.numFlushes == 0 {
		b.initPerFrame(f)
	}
	f.numFlushes++

	f.cow = cowRealloc
	if b.outputs[WritebackColor].Surface != nil && b.outputs[WritebackColor].Usage&surface.UsageWriteDirtyPixelsOnly != 0 {
		f.cow = cowDeep
	}
	f.mutex.Unlock()

	f.pool.Unmap()
	b.preserveMultisample = false

	next, err := b.prepareJobs(f, swap)
	if err != nil {
		b.logger.Debug("  FrameBuilder::internalFlush FAILED", slog.Int("Frame", f.index), slog.Any("Error", err))

		if next != nil {
			next.Free()
		}
		f.forceReleaseRaster()
		f.reset()
		return err
	}

	f.busy.Lock()

	f.mutex.Lock()
	flushID := uint32(f.index&0xFF)<<flushFrameShift | b.flushCount&flushCounterMask
	if swap {
		flushID |= 1 << flushSwapShift
	}
	b.flushCount++

	f.geometryJob.SetCallback(f.onGeometryComplete)
	f.geometryJob.SetIdentity(flushID)
	f.rasterJob.SetIdentity(flushID)

	f.currentGeometryJob = f.geometryJob
	if !swap {
		f.geometryJob = next
	}

	f.resetOnFinish = swap
	f.state = StateRendering
	f.completeOutput = b.completeOutput
	f.mutex.Unlock()

	f.order.markInFlight()

	b.logger.Debug("  FrameBuilder::internalFlush submitting", slog.Int("Frame", f.index), slog.Int("FlushID", int(flushID)), slog.Bool("Swap", swap))

	// The geometry job releases this reference when it completes
	f.rasterConsumer.Grab()
	f.rasterConsumer.Flush()

	f.mutex.Lock()
	if !f.heapConnected && f.heap != nil && f.heap.Heap() != nil {
		f.geometryConsumer.Connect(f.heap.Resource(), deps.ModeWrite)
		f.heapConnected = true
	}
	f.mutex.Unlock()

	if b.lockOutput != nil {
		b.lockOutput()
	}

	f.geometryConsumer.Flush()
	return nil
}

// initPerFrame leases a heap to a frame on its first flush. The frame mutex must be held.
func (b *FrameBuilder) initPerFrame(f *frame) {
	if len(b.heaps) > 0 {
		f.heap = b.heaps[b.heapIndex]
		b.heapIndex = (b.heapIndex + 1) % len(b.heaps)
	}

	f.order.mutex.Lock()
	f.order.swapNumber = b.swapPerformed
	f.order.mutex.Unlock()

	if f.heap != nil {
		f.geometryJob.SetHeap(f.heap.Heap())
	} else {
		f.geometryJob.SetHeap(nil)
	}
}

// prepareJobs builds everything a flush submits. It returns the successor geometry job for a
// non-swap flush, which the caller must free if an error is returned.
func (b *FrameBuilder) prepareJobs(f *frame, swap bool) (jobs.GeometryJob, error) {
	err := b.addFlushDependencies(f, swap)
	if err != nil {
		return nil, err
	}

	err = b.allocateFragmentStack(f)
	if err != nil {
		return nil, err
	}

	err = b.createRasterJob(f)
	if err != nil {
		return nil, err
	}

	if swap {
		err = f.geometryJob.AddCommands(jobs.Command{Kind: jobs.CommandEndFrame})
		if err != nil {
			return nil, err
		}
		f.geometryJob.SetAutoFree(false)
		return nil, nil
	}

	next, err := b.engine.NewGeometryJob()
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate successor geometry job")
	}

	err = f.geometryJob.AddCommands(jobs.Command{Kind: jobs.CommandContextSwitchOut})
	if err != nil {
		return next, err
	}

	err = next.AddCommands(jobs.Command{Kind: jobs.CommandContextSwitchIn})
	if err != nil {
		return next, err
	}

	if f.heap != nil {
		next.SetHeap(f.heap.Heap())
	}
	f.geometryJob.SetAutoFree(true)

	return next, nil
}

// addFlushDependencies connects the raster consumer to every output for writing. A swap releases
// every connection on completion. A flush keeps its read connections, since the frame continues.
func (b *FrameBuilder) addFlushDependencies(f *frame, swap bool) error {
	if swap {
		f.rasterConsumer.SetReleaseMode(deps.ReleaseAll)
	} else {
		f.rasterConsumer.SetReleaseMode(deps.ReleaseWriteGotoUnflushed)
	}

	for _, output := range b.outputs {
		surf := output.Surface
		if surf == nil {
			continue
		}

		f.rasterConsumer.Connect(surf.Resource(), deps.ModeWrite)

		mem := surf.Memory()
		if mem == nil {
			return errors.Wrapf(memutils.ErrOutOfMemory, "%s has no memory to render into", surf)
		}

		f.mutex.Lock()
		if surf.HasEventHandler(surface.EventGPUWriteDone) {
			f.tracking.add(surf, TrackingWrite)
		}

		mem.AddRef()
		f.callbacks.Add(mem.Deref, true)
		f.mutex.Unlock()
	}

	return nil
}

// allocateFragmentStack sizes the fragment shader stack for the largest requirement of the frame. The
// stack is kept unless it is too small or more than twice as large as needed.
func (b *FrameBuilder) allocateFragmentStack(f *frame) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	entries := f.fragmentStackStart + f.fragmentStackGrow
	if entries == 0 {
		f.freeFragmentStack()
		return nil
	}

	stacks := b.options.SplitCount
	if b.options.RasterStrategy == RasterLoadBalanced {
		stacks = loadBalancedStackCount
	}

	size := entries * fragmentStackEntryBytes * fragmentStackThreads * stacks

	previous := 0
	if f.fragmentStack != nil {
		previous = f.fragmentStack.Size()
	}

	if f.fragmentStack != nil && size <= previous && previous <= size*2 {
		return nil
	}

	f.freeFragmentStack()

	stack, err := b.allocator.AllocateBlock(size, fragmentStackAlignment)
	if err != nil {
		return errors.Wrapf(err, "failed to allocate %d byte fragment stack", size)
	}
	f.fragmentStack = stack

	return nil
}

func (b *FrameBuilder) createRasterJob(f *frame) error {
	cores := b.options.SplitCount
	if b.options.RasterStrategy == RasterLoadBalanced {
		cores = 0
	}

	job, err := b.engine.NewRasterJob(cores)
	if err != nil {
		return errors.Wrap(err, "failed to allocate raster job")
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.rasterSetup = b.rasterSetup(f)
	job.SetSetup(f.rasterSetup)
	f.rasterJob = job

	return nil
}

// forceReleaseRaster unwinds a flush that failed before it was submitted
func (f *frame) forceReleaseRaster() {
	f.mutex.Lock()
	job := f.rasterJob
	f.rasterJob = nil
	f.mutex.Unlock()

	if job != nil {
		job.Free()
	}

	f.rasterConsumer.SetError()
	f.rasterConsumer.ReleaseAllConnections()
}
