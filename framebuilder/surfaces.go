package framebuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

// WriteLock prepares the current frame for drawing that touches the planes selected by mask. The
// selected planes are marked dirty, so their contents will be rendered by the next flush.
func (b *FrameBuilder) WriteLock(mask BufferMask) error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.writeLock(mask)
}

func (b *FrameBuilder) writeLock(mask BufferMask) error {
	if !b.outputValid {
		return errors.New("attempted to draw into a frame builder without valid outputs")
	}

	b.acquireOutputs()
	b.markDirty(mask)

	return b.use()
}

// WriteUnlock ends the drawing started by WriteLock
func (b *FrameBuilder) WriteUnlock() {}

// DiscardSurfaceWriteback drops surf from the outputs of every rendering frame whose raster job has
// not been started yet. The surface is about to be overwritten, so writing it back is wasted work.
func (b *FrameBuilder) DiscardSurfaceWriteback(surf *surface.Surface) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.discardSurfaceWriteback(surf)
}

func (b *FrameBuilder) discardSurfaceWriteback(surf *surface.Surface) {
	mem := surf.Memory()

	for _, f := range b.frames {
		f.mutex.Lock()
		if f.state == StateRendering && f.rasterJob != nil {
			discarded := false
			for i, output := range f.rasterSetup.Outputs {
				if output.Surface == nil || output.Surface.Memory() != mem {
					continue
				}

				f.rasterSetup.Outputs[i].Surface = nil
				f.rasterSetup.Outputs[i].Usage = 0
				discarded = true
			}

			if discarded {
				b.logger.Debug("FrameBuilder::DiscardSurfaceWriteback", slog.Int("Frame", f.index), slog.String("Surface", surf.String()))
				f.rasterJob.SetSetup(f.rasterSetup)
			}
		}
		f.mutex.Unlock()
	}
}

// AddSurfaceReadDependency makes the current frame's raster job wait for every pending write to surf
// and keeps surf's contents from being overwritten until the frame has been rendered. Surfaces flagged
// with FlagDontMove cannot be copied on write, so they are tracked but do not receive a read connection.
// FlagReadPending stays set on surf until the frame is reset.
func (b *FrameBuilder) AddSurfaceReadDependency(surf *surface.Surface) error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.addSurfaceReadDependency(surf)
}

func (b *FrameBuilder) addSurfaceReadDependency(surf *surface.Surface) error {
	f := b.currentFrame()

	f.mutex.Lock()
	state := f.state
	f.mutex.Unlock()

	if state != StateDirty {
		return errors.Newf("read dependencies can only be added to a frame in use, but %s is %s", f, state)
	}

	if surf.Flags()&surface.FlagDontMove == 0 {
		f.rasterConsumer.Connect(surf.Resource(), deps.ModeRead)
		surf.SetFlags(surface.FlagReadPending)
	}

	f.mutex.Lock()
	f.tracking.add(surf, TrackingRead)

	surf.AddRef()
	f.callbacks.Add(func() {
		surf.ClearFlags(surface.FlagReadPending)
		surf.Deref()
	}, true)
	f.mutex.Unlock()

	return nil
}
