package framebuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

// multisamplePlanes is the number of sample planes kept for each pixel of a multisampled output
const multisamplePlanes int = 4

// IncrementalRender renders everything drawn into the current frame to offscreen surfaces and starts
// a new frame that reads those surfaces back. The tile lists of the frame are freed, while the drawing
// can continue as if nothing had happened.
func (b *FrameBuilder) IncrementalRender() error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.incrementalRender()
}

func (b *FrameBuilder) incrementalRender() error {
	b.logger.Debug("FrameBuilder::IncrementalRender")

	// Nothing was drawn that a clear or the current output contents cannot reproduce
	if b.planesAll(PlaneUnchanged) || b.planesAll(PlaneClearToColor) {
		b.reset()
		return nil
	}

	b.incRenderOnFlush = false

	if !b.outputValid {
		return errors.New("attempted to render incrementally without valid outputs")
	}

	caps := b.targetsToPreserve()
	offscreen, err := b.allocateOffscreenOutputs(caps)
	if err != nil {
		return err
	}
	defer func() {
		for _, output := range offscreen {
			if output.Surface != nil {
				output.Surface.Deref()
			}
		}
	}()

	b.acquireOutputs()

	original := b.outputs
	b.outputs = offscreen
	err = b.validateOutputs()

	all := BufferColorAll | BufferDepth | BufferStencil
	if err == nil {
		err = b.writeLock(all)
	}
	if err == nil {
		err = b.flushCommon(true)
	}

	// The frame that receives the readbacks starts out empty
	b.reset()

	b.outputs = original
	restoreErr := b.validateOutputs()
	if err == nil {
		err = restoreErr
	}

	if err == nil {
		err = b.writeLock(all)
	}
	if err != nil {
		b.logger.Debug("  FrameBuilder::IncrementalRender FAILED", slog.Any("Error", err))
		return err
	}

	for slot, output := range offscreen {
		if output.Surface == nil {
			continue
		}

		err = b.readbackOffscreen(slot, output)
		if err != nil {
			return err
		}

		err = b.addSurfaceReadDependency(output.Surface)
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *FrameBuilder) readbackOffscreen(slot int, output jobs.Output) error {
	dirty := false
	switch slot {
	case WritebackColor:
		dirty = b.planes[PlaneColor]&PlaneDirty != 0
	case WritebackDepth:
		dirty = (b.planes[PlaneDepth]|b.planes[PlaneStencil])&PlaneDirty != 0
	}
	if !dirty {
		return nil
	}

	f := b.currentFrame()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.geometryJob.AddCommands(jobs.Command{
		Kind:    jobs.CommandReadback,
		Surface: output.Surface,
		Usage:   output.Usage,
		Slot:    slot,
	})
}

// allocateOffscreenOutputs creates full resolution block interleaved surfaces able to hold everything
// selected by caps. Color goes to the color slot, and depth and stencil share the depth slot.
func (b *FrameBuilder) allocateOffscreenOutputs(caps Capabilities) ([WritebackSlotCount]jobs.Output, error) {
	var outputs [WritebackSlotCount]jobs.Output

	var multisample surface.Usage
	if caps&PreserveMultisampling != 0 {
		multisample = surface.UsageMultisample
	}

	var err error
	if caps&PreserveColor != 0 {
		outputs[WritebackColor].Usage = surface.UsageColor | multisample
		outputs[WritebackColor].Surface, err = b.allocateOffscreenSurface(surface.FormatARGB8888, multisample != 0)
	}

	if err == nil && caps&(PreserveDepth|PreserveStencil) != 0 {
		usage := multisample
		if caps&PreserveDepth != 0 {
			usage |= surface.UsageDepth
		}
		if caps&PreserveStencil != 0 {
			usage |= surface.UsageStencil
		}

		outputs[WritebackDepth].Usage = usage
		outputs[WritebackDepth].Surface, err = b.allocateOffscreenSurface(surface.FormatS8Z24, multisample != 0)
	}

	if err != nil {
		for _, output := range outputs {
			if output.Surface != nil {
				output.Surface.Deref()
			}
		}
		return [WritebackSlotCount]jobs.Output{}, err
	}

	return outputs, nil
}

func (b *FrameBuilder) allocateOffscreenSurface(format surface.Format, multisample bool) (*surface.Surface, error) {
	spec := surface.Specifier{
		Width:  b.width,
		Height: b.height,
		Format: format,
		Layout: surface.LayoutBlockInterleaved,
	}

	size := spec.DataSize()
	if multisample {
		size *= multisamplePlanes
	}

	mem, err := b.allocator.AllocateBlock(size, surface.Alignment)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate offscreen %s surface", spec)
	}

	return surface.NewWithMemory(b.system, b.allocator, 0, spec, mem), nil
}
