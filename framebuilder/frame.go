package framebuilder

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/internal/utils"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/memory"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

// frame is one slot of the swap chain ring. Everything below mutex is guarded by it, except for
// completionStatus, which is atomic, and order, which has its own mutex for the fields shared with
// the neighbouring frames.
type frame struct {
	builder *FrameBuilder
	logger  *slog.Logger
	index   int

	// busy is held from submission until the frame has been reset or handed back to the caller
	busy utils.BusyLock

	completionStatus atomic.Int32
	order            orderSync

	geometryConsumer *deps.Consumer
	rasterConsumer   *deps.Consumer

	mutex sync.Mutex

	state         State
	numFlushes    int
	resetOnFinish bool

	// readbackFirstDrawcall is set until the readback slots have been drawn into the frame
	readbackFirstDrawcall bool
	heapResetOnJobStart   bool

	frameID uint32

	heap          *HeapHolder
	heapConnected bool

	// geometryJob accepts commands for the next flush, currentGeometryJob was submitted by the last one
	geometryJob        jobs.GeometryJob
	currentGeometryJob jobs.GeometryJob
	rasterJob          jobs.RasterJob
	rasterSetup        jobs.Setup

	pool               *memory.Pool
	fragmentStack      *memory.Block
	fragmentStackStart int
	fragmentStackGrow  int

	cow           cowFlavour
	cowDescriptor *surface.CopyDescriptor

	callbacks      CallbackQueue
	tracking       *surfaceTracking
	completeOutput func()
}

func newFrame(builder *FrameBuilder, index int) (*frame, error) {
	geometryJob, err := builder.engine.NewGeometryJob()
	if err != nil {
		return nil, err
	}

	f := &frame{
		builder: builder,
		logger:  builder.logger,
		index:   index,

		state:                 StateUnmodified,
		readbackFirstDrawcall: true,

		geometryJob: geometryJob,
		pool:        memory.NewPool(builder.allocator, framePoolChunkSize),
		callbacks:   newCallbackQueue(),
		tracking:    newSurfaceTracking(),
	}
	f.completionStatus.Store(int32(jobs.StatusSuccess))

	f.geometryConsumer = builder.system.NewConsumer(fmt.Sprintf("Frame %d Geometry", index), f.onGeometryActivate, nil)
	f.rasterConsumer = builder.system.NewConsumer(fmt.Sprintf("Frame %d Raster", index), f.onRasterActivate, f.onRasterRelease)
	f.rasterConsumer.SetReplaceResourceCallback(f.copyOnWrite)

	return f, nil
}

func (f *frame) String() string {
	return fmt.Sprintf("Frame(%d)", f.index)
}

// free tears down a frame that is not rendering
func (f *frame) free() {
	f.rasterConsumer.SetReleaseMode(deps.ReleaseAll)
	f.rasterConsumer.ReleaseAllConnections()
	f.geometryConsumer.SetReleaseMode(deps.ReleaseAll)
	f.geometryConsumer.ReleaseAllConnections()

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.callbacks.ExecuteAll()
	f.tracking.reset(TrackingAll)
	f.releaseCopyOnWrite()

	f.pool.Destroy()
	f.freeFragmentStack()

	if f.geometryJob != nil {
		f.geometryJob.Free()
		f.geometryJob = nil
	}
}

func (f *frame) freeFragmentStack() {
	if f.fragmentStack != nil {
		f.fragmentStack.Deref()
		f.fragmentStack = nil
	}
}

func (f *frame) releaseCopyOnWrite() {
	if f.cow == cowDeepCopyPending {
		f.cowDescriptor.Release()
		f.cowDescriptor = nil
		f.cow = cowRealloc
	}
}

// reset empties the frame. It must not be rendering.
func (f *frame) reset() {
	f.logger.Debug("  Frame::reset", slog.Int("Frame", f.index))

	f.mutex.Lock()
	if f.state == StateRendering {
		f.mutex.Unlock()
		panic(errors.Newf("attempted to reset %s while it is rendering", f))
	}
	f.callbacks.ExecuteAll()
	f.mutex.Unlock()

	f.rasterConsumer.SetReleaseMode(deps.ReleaseAll)
	f.rasterConsumer.ReleaseAllConnections()

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.pool.Destroy()
	f.freeFragmentStack()
	f.geometryJob.Reset()

	f.state = StateUnmodified
	f.numFlushes = 0
	f.readbackFirstDrawcall = true

	f.heapConnected = false
	f.heap = nil

	f.tracking.reset(TrackingAll)

	// A failed flush may never have reached the raster activation that executes the copy
	f.releaseCopyOnWrite()
}

// wait blocks until hardware is done with the frame
func (f *frame) wait() {
	f.waitAndTakeMutex()
	f.mutex.Unlock()
}

func (f *frame) waitAndTakeMutex() {
	f.mutex.Lock()
	f.ensureNotRendering()
}

// ensureNotRendering is called and returns with the mutex held. Another goroutine may start
// rendering the frame while the mutex is released, so the state is tested in a loop.
func (f *frame) ensureNotRendering() {
	for {
		f.mutex.Unlock()
		f.busy.Wait()
		f.mutex.Lock()

		if f.state != StateRendering {
			return
		}
	}
}

func (f *frame) CompletionStatus() jobs.Status {
	return jobs.Status(f.completionStatus.Load())
}

// takeCompletionStatus returns the completion status and clears it back to success
func (f *frame) takeCompletionStatus() jobs.Status {
	return jobs.Status(f.completionStatus.Swap(int32(jobs.StatusSuccess)))
}

// copyOnWrite is the raster consumer's replace callback. It gives a written surface new memory so the
// frame does not have to wait for older readers and writers of the old memory.
func (f *frame) copyOnWrite(resource *deps.Resource) *deps.Resource {
	surf, ok := resource.Owner().(*surface.Surface)
	if !ok || surf.Flags()&surface.FlagDontMove != 0 {
		return nil
	}

	deep := f.cow == cowDeep
	if deep {
		// The copy has to wait for every outstanding write to the old memory
		f.rasterConsumer.Connect(resource, deps.ModeRead)
		f.cow = cowDeepCopyPending
	}

	surf.AccessLock()
	replacement, descriptor, err := surf.ClearDependencies(deep)
	surf.AccessUnlock()

	if err != nil {
		f.logger.Debug("  Frame::copyOnWrite FAILED", slog.String("Surface", surf.String()), slog.Any("Error", err))
		if f.cow == cowDeepCopyPending {
			f.cow = cowRealloc
		}
		return nil
	}

	if deep {
		f.cowDescriptor = descriptor
	}

	return replacement
}

// onGeometryActivate runs once every dependency of the geometry consumer is satisfied
func (f *frame) onGeometryActivate(status deps.Status) {
	f.order.waitForPrevious(f.rasterConsumer)

	f.mutex.Lock()
	if f.heap != nil && (f.heapResetOnJobStart || f.numFlushes == 1) {
		err := f.heap.Adjust()
		if err != nil {
			f.logger.Warn("  Frame::onGeometryActivate heap adjustment FAILED", slog.Int("Frame", f.index), slog.Any("Error", err))
			f.completionStatus.Store(int32(jobs.StatusOutOfMemory))
			status = deps.StatusError
		}
	}
	f.heapResetOnJobStart = false
	job := f.currentGeometryJob
	f.mutex.Unlock()

	if status == deps.StatusOK {
		err := job.Start()
		if err == nil {
			return
		}

		f.logger.Warn("  Frame::onGeometryActivate start FAILED", slog.Int("Frame", f.index), slog.Any("Error", err))
		f.completionStatus.Store(int32(jobs.StatusOutOfMemory))
	}

	// The geometry job never ran, so it goes back to accepting commands and the raster consumer is
	// pushed through its abort path
	f.mutex.Lock()
	if !f.resetOnFinish && f.geometryJob != job {
		f.geometryJob.Free()
	}
	f.geometryJob = job
	f.geometryJob.SetAutoFree(false)
	f.rasterConsumer.SetError()
	f.mutex.Unlock()

	f.rasterConsumer.Release()
}

// onGeometryComplete is the geometry job callback
func (f *frame) onGeometryComplete(status jobs.Status) {
	f.mutex.Lock()
	if f.heap != nil {
		f.heap.RecordUsage()
	}
	f.mutex.Unlock()

	if status != jobs.StatusSuccess {
		f.logger.Warn("Frame::onGeometryComplete", slog.Int("Frame", f.index), slog.String("Status", status.String()))
		f.completionStatus.Store(int32(status))
		f.rasterConsumer.SetError()
	}

	f.rasterConsumer.Release()
}

// onRasterActivate runs once the geometry job has finished, every output is available for writing
// and the previous frame in the ring has finished rendering
func (f *frame) onRasterActivate(status deps.Status) {
	if status != deps.StatusOK {
		f.abortRaster()
		return
	}

	f.mutex.Lock()
	if f.cow == cowDeepCopyPending {
		err := f.cowDescriptor.Execute()
		if err != nil {
			f.logger.Warn("  Frame::onRasterActivate copy FAILED", slog.Int("Frame", f.index), slog.Any("Error", err))
		}
		f.cowDescriptor.Release()
		f.cowDescriptor = nil
		f.cow = cowRealloc
	}

	job := f.rasterJob
	f.rasterJob = nil
	f.tracking.start()
	f.mutex.Unlock()

	f.rasterConsumer.SetReleaseRefCount(1)

	job.SetCallback(f.onRasterComplete)
	job.Start()
}

func (f *frame) fireCompleteOutput() {
	f.mutex.Lock()
	completeOutput := f.completeOutput
	f.completeOutput = nil
	f.mutex.Unlock()

	if completeOutput != nil {
		completeOutput()
	}
}

func (f *frame) abortRaster() {
	f.logger.Debug("  Frame::abortRaster", slog.Int("Frame", f.index))

	f.fireCompleteOutput()

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

// onRasterComplete is the raster job callback
func (f *frame) onRasterComplete(status jobs.Status) {
	f.fireCompleteOutput()

	if status != jobs.StatusSuccess {
		f.logger.Warn("Frame::onRasterComplete", slog.Int("Frame", f.index), slog.String("Status", status.String()))
		f.completionStatus.Store(int32(status))
		f.rasterConsumer.SetError()
		f.geometryConsumer.SetError()
	}

	f.rasterConsumer.ReleaseRefCountDec()
}

// onRasterRelease runs once the raster consumer has released its connections. The frame is complete,
// and if it was swapped or failed it is reset.
func (f *frame) onRasterRelease(status deps.Status) {
	waiting := f.order.finish()

	failed := status != deps.StatusOK
	if failed {
		f.completionStatus.CompareAndSwap(int32(jobs.StatusSuccess), int32(jobs.StatusOutOfMemory))
	}

	if waiting != nil {
		waiting.Release()
	}

	f.mutex.Lock()
	reset := f.resetOnFinish || failed
	if reset {
		f.heap = nil
	}
	f.heapConnected = false
	f.state = StateComplete
	f.mutex.Unlock()

	f.geometryConsumer.ReleaseAllConnections()

	f.mutex.Lock()
	f.tracking.stop()
	f.tracking.reset(TrackingWrite)
	f.mutex.Unlock()

	if !reset {
		f.busy.Unlock()
		return
	}

	if f.builder.options.DeferredReset {
		f.mutex.Lock()
		f.callbacks.ExecuteNonDeferred()
		f.mutex.Unlock()

		f.rasterConsumer.SetReleaseMode(deps.ReleaseAll)
		f.rasterConsumer.ReleaseAllConnections()

		f.builder.worker.Enqueue(func() {
			f.reset()
			f.busy.Unlock()
		})
		return
	}

	f.reset()
	f.busy.Unlock()
}
