package framebuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/memutils"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

const (
	// WritebackColor is the output slot conventionally used for the color buffer
	WritebackColor int = iota
	// WritebackDepth is the output slot conventionally used for the depth buffer
	WritebackDepth
	// WritebackStencil is the output slot conventionally used for the stencil buffer
	WritebackStencil

	WritebackSlotCount
)

const ReadbackSlotCount int = 3

// tileSize is the edge length of a tile. Linear outputs that are not a whole number of tiles need a
// bounding box to keep partial tiles from bleeding into the next scanline.
const tileSize int = 16

// SetOutput attaches surf to a writeback slot, replacing whatever was attached before. The frame builder
// holds a reference to every attached surface. A nil surf detaches the slot.
//
// The surface is attached even if the resulting set of outputs cannot be rendered to, in which case
// memutils.ErrInvalidOutput is returned and flushes do nothing until the outputs are fixed.
func (b *FrameBuilder) SetOutput(slot int, surf *surface.Surface, usage surface.Usage) error {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.setOutput(slot, surf, usage)
}

func (b *FrameBuilder) setOutput(slot int, surf *surface.Surface, usage surface.Usage) error {
	if slot < 0 || slot >= WritebackSlotCount {
		panic(errors.Newf("writeback slot %d is out of range", slot))
	}

	if surf != nil {
		surf.AddRef()
	}

	if b.outputs[slot].Surface != nil {
		b.outputs[slot].Surface.Deref()
	}

	b.outputs[slot] = jobs.Output{
		Surface: surf,
		Usage:   usage,
	}

	return b.validateOutputs()
}

// validateOutputs recomputes the output dimensions and bounding box from the attached surfaces
func (b *FrameBuilder) validateOutputs() error {
	width, height := 0, 0
	largestScaleX, largestScaleY := 1, 1
	valid := true

	var boundingBox jobs.BoundingBox

	for i, output := range b.outputs {
		if output.Surface == nil {
			continue
		}

		spec := output.Surface.Specifier()
		scaleX, scaleY := output.Usage.Scale()
		largestScaleX = memutils.Max(largestScaleX, scaleX)
		largestScaleY = memutils.Max(largestScaleY, scaleY)

		w := spec.Width * scaleX
		h := spec.Height * scaleY
		if width == 0 {
			width = w
		}
		if height == 0 {
			height = h
		}
		if width != w || height != h {
			valid = false
		}

		if spec.Layout != surface.LayoutLinear {
			continue
		}

		if boundingBox.Width == 0 {
			boundingBox.Width = spec.Width
		}
		if boundingBox.Height == 0 {
			boundingBox.Height = spec.Height
		}

		if boundingBox.Width%tileSize != 0 || boundingBox.Height%tileSize != 0 {
			boundingBox.Enabled[i] = true
		}

		// Every linear output shares the one bounding box
		if boundingBox.Width != spec.Width || boundingBox.Height != spec.Height {
			valid = false
		}
	}

	if width == 0 || height == 0 {
		valid = false
	}

	b.outputValid = valid
	if !valid {
		b.width = 0
		b.height = 0
		b.log2ScaleX = 0
		b.log2ScaleY = 0
		b.boundingBox = jobs.BoundingBox{}

		return errors.Wrapf(memutils.ErrInvalidOutput, "outputs resolve to %dx%d", width, height)
	}

	b.width = width
	b.height = height
	b.log2ScaleX = memutils.Log2(uint(largestScaleX))
	b.log2ScaleY = memutils.Log2(uint(largestScaleY))
	b.boundingBox = boundingBox

	b.logger.Debug("FrameBuilder::SetOutput", slog.Int("Width", width), slog.Int("Height", height))
	return nil
}

// Output returns the surface attached to a writeback slot and its usage
func (b *FrameBuilder) Output(slot int) (*surface.Surface, surface.Usage) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	output := b.outputs[slot]
	return output.Surface, output.Usage
}

// OutputValid returns false if the attached outputs do not describe a renderable target
func (b *FrameBuilder) OutputValid() bool {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.outputValid
}

// Dimensions returns the size of the area rendered by each flush, before downsampling
func (b *FrameBuilder) Dimensions() (width, height int) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.width, b.height
}

// SetReadback attaches a surface that is drawn into each frame before its first draw command
func (b *FrameBuilder) SetReadback(slot int, surf *surface.Surface, usage surface.Usage) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.setReadback(slot, surf, usage)
}

func (b *FrameBuilder) setReadback(slot int, surf *surface.Surface, usage surface.Usage) {
	if slot < 0 || slot >= ReadbackSlotCount {
		panic(errors.Newf("readback slot %d is out of range", slot))
	}

	if surf != nil {
		surf.AddRef()
	}

	if b.readbacks[slot].Surface != nil {
		b.readbacks[slot].Surface.Deref()
	}

	b.readbacks[slot] = jobs.Output{
		Surface: surf,
		Usage:   usage,
	}
}

func (b *FrameBuilder) Readback(slot int) (*surface.Surface, surface.Usage) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	readback := b.readbacks[slot]
	return readback.Surface, readback.Usage
}

func (b *FrameBuilder) rasterSetup(f *frame) jobs.Setup {
	return jobs.Setup{
		Width:         b.width,
		Height:        b.height,
		Log2ScaleX:    b.log2ScaleX,
		Log2ScaleY:    b.log2ScaleY,
		BoundingBox:   b.boundingBox,
		Outputs:       b.outputs,
		ClearValues:   b.clearValues,
		FragmentStack: f.fragmentStack,
	}
}
