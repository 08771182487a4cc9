package framebuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

// PlaneState describes what is known about the contents of one output plane
type PlaneState int32

var planeStateMapping = common.NewFlagStringMapping[PlaneState]()

func (s PlaneState) Register(str string) {
	planeStateMapping.Register(s, str)
}
func (s PlaneState) String() string {
	return planeStateMapping.FlagsToString(s)
}

const (
	// PlaneUndefined planes hold nothing worth preserving
	PlaneUndefined PlaneState = 1 << iota
	// PlaneUnchanged planes hold the content of an earlier frame that this frame has not touched
	PlaneUnchanged
	// PlaneClearToColor planes only need to be cleared to the current clear value
	PlaneClearToColor
	// PlaneDirty planes hold drawing that must be rendered
	PlaneDirty
)

func init() {
	PlaneUndefined.Register("PlaneUndefined")
	PlaneUnchanged.Register("PlaneUnchanged")
	PlaneClearToColor.Register("PlaneClearToColor")
	PlaneDirty.Register("PlaneDirty")
}

type Plane int

const (
	PlaneColor Plane = iota
	PlaneDepth
	PlaneStencil

	planeCount
)

var planeMapping = map[Plane]string{
	PlaneColor:   "PlaneColor",
	PlaneDepth:   "PlaneDepth",
	PlaneStencil: "PlaneStencil",
}

func (p Plane) String() string {
	return planeMapping[p]
}

// BufferMask selects color channels, depth, stencil and multisample state
type BufferMask int32

var bufferMaskMapping = common.NewFlagStringMapping[BufferMask]()

func (m BufferMask) Register(str string) {
	bufferMaskMapping.Register(m, str)
}
func (m BufferMask) String() string {
	return bufferMaskMapping.FlagsToString(m)
}

const (
	BufferColorR BufferMask = 1 << iota
	BufferColorG
	BufferColorB
	BufferColorA
	BufferDepth
	BufferStencil
	BufferMultisample

	BufferColorAll = BufferColorR | BufferColorG | BufferColorB | BufferColorA
	BufferAll      = BufferColorAll | BufferDepth | BufferStencil | BufferMultisample
)

func init() {
	BufferColorR.Register("BufferColorR")
	BufferColorG.Register("BufferColorG")
	BufferColorB.Register("BufferColorB")
	BufferColorA.Register("BufferColorA")
	BufferDepth.Register("BufferDepth")
	BufferStencil.Register("BufferStencil")
	BufferMultisample.Register("BufferMultisample")
}

// Capabilities lists what an incremental render has to carry over into the resumed frame
type Capabilities int32

var capabilitiesMapping = common.NewFlagStringMapping[Capabilities]()

func (c Capabilities) Register(str string) {
	capabilitiesMapping.Register(c, str)
}
func (c Capabilities) String() string {
	return capabilitiesMapping.FlagsToString(c)
}

const (
	PreserveColor Capabilities = 1 << iota
	PreserveDepth
	PreserveStencil
	PreserveSupersampling
	PreserveMultisampling
)

func init() {
	PreserveColor.Register("PreserveColor")
	PreserveDepth.Register("PreserveDepth")
	PreserveStencil.Register("PreserveStencil")
	PreserveSupersampling.Register("PreserveSupersampling")
	PreserveMultisampling.Register("PreserveMultisampling")
}

// ClearChannel indexes the clear values of a frame builder
type ClearChannel int

const (
	ClearColorR ClearChannel = iota
	ClearColorG
	ClearColorB
	ClearColorA
	ClearDepth
	ClearStencil

	clearChannelCount
)

var clearChannelMapping = map[ClearChannel]string{
	ClearColorR:  "ClearColorR",
	ClearColorG:  "ClearColorG",
	ClearColorB:  "ClearColorB",
	ClearColorA:  "ClearColorA",
	ClearDepth:   "ClearDepth",
	ClearStencil: "ClearStencil",
}

func (c ClearChannel) String() string {
	return clearChannelMapping[c]
}

func (c ClearChannel) plane() Plane {
	switch c {
	case ClearDepth:
		return PlaneDepth
	case ClearStencil:
		return PlaneStencil
	default:
		return PlaneColor
	}
}

func (c ClearChannel) maxValue() uint32 {
	switch c {
	case ClearDepth:
		return 0xFFFFFF
	case ClearStencil:
		return 0xFF
	default:
		return 0xFFFF
	}
}

var defaultClearValues = [clearChannelCount]uint32{0, 0, 0, 0xFFFF, 0xFFFFFF, 0}

// SetClearValue changes the value a plane is cleared to. Changing the value makes the plane dirty. Values
// out of range for the channel panic.
func (b *FrameBuilder) SetClearValue(channel ClearChannel, value uint32) {
	if channel < 0 || channel >= clearChannelCount {
		panic(errors.Newf("invalid clear channel: %d", channel))
	}
	if value > channel.maxValue() {
		panic(errors.Newf("clear value %#x is out of range for %s", value, channel))
	}

	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	if b.clearValues[channel] == value {
		return
	}

	b.clearValues[channel] = value
	b.planes[channel.plane()] = PlaneDirty
}

func (b *FrameBuilder) ClearValue(channel ClearChannel) uint32 {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.clearValues[channel]
}

// SetClearState marks the planes selected by mask as needing nothing more than a clear
func (b *FrameBuilder) SetClearState(mask BufferMask) {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	b.setClearState(mask)
}

func (b *FrameBuilder) setClearState(mask BufferMask) {
	if mask&BufferColorAll != 0 {
		b.planes[PlaneColor] = PlaneClearToColor
	}
	if mask&BufferDepth != 0 {
		b.planes[PlaneDepth] = PlaneClearToColor
	}
	if mask&BufferStencil != 0 {
		b.planes[PlaneStencil] = PlaneClearToColor
	}
}

// ClearState returns the planes whose contents need not be read back: those that are cleared
// to a color or whose contents are undefined
func (b *FrameBuilder) ClearState() BufferMask {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	var mask BufferMask
	if b.planes[PlaneColor]&(PlaneClearToColor|PlaneUndefined) != 0 {
		mask |= BufferColorAll
	}
	if b.planes[PlaneDepth]&(PlaneClearToColor|PlaneUndefined) != 0 {
		mask |= BufferDepth
	}
	if b.planes[PlaneStencil]&(PlaneClearToColor|PlaneUndefined) != 0 {
		mask |= BufferStencil
	}

	return mask
}

func (b *FrameBuilder) PlaneState(plane Plane) PlaneState {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	return b.planes[plane]
}

// markDirty flags the planes selected by mask as holding drawing
func (b *FrameBuilder) markDirty(mask BufferMask) {
	if mask&BufferColorAll != 0 {
		b.planes[PlaneColor] = PlaneDirty
	}
	if mask&BufferDepth != 0 {
		b.planes[PlaneDepth] = PlaneDirty
	}
	if mask&BufferStencil != 0 {
		b.planes[PlaneStencil] = PlaneDirty
	}
	if mask&BufferMultisample != 0 {
		b.preserveMultisample = true
	}
}

// degradePlanesAfterSwap is applied to the plane states after every swap
func (b *FrameBuilder) degradePlanesAfterSwap() {
	for i := range b.planes {
		if b.options.Properties&PropertyUndefinedAfterSwap != 0 {
			b.planes[i] = PlaneUndefined
		} else if b.planes[i]&PlaneUndefined == 0 {
			b.planes[i] = PlaneUnchanged
		}
	}
	b.preserveMultisample = false
}

func (b *FrameBuilder) planesAll(state PlaneState) bool {
	for _, plane := range b.planes {
		if plane&state == 0 {
			return false
		}
	}
	return true
}

// targetsToPreserve computes what an incremental render must carry over
func (b *FrameBuilder) targetsToPreserve() Capabilities {
	var caps Capabilities

	needed := PlaneDirty | PlaneClearToColor
	if b.planes[PlaneColor]&needed != 0 {
		caps |= PreserveColor
	}
	if b.planes[PlaneDepth]&needed != 0 {
		caps |= PreserveDepth
	}
	if b.planes[PlaneStencil]&needed != 0 {
		caps |= PreserveStencil
	}

	for _, output := range b.outputs {
		if output.Surface == nil {
			continue
		}

		if output.Usage&surface.UsageDownsampleMask != 0 {
			caps |= PreserveSupersampling
		}
		break
	}

	if b.preserveMultisample {
		caps |= PreserveMultisampling
	}

	return caps
}

func (b *FrameBuilder) validatePlanes() error {
	for i, plane := range b.planes {
		exclusive := plane & (PlaneUnchanged | PlaneClearToColor | PlaneDirty)
		if exclusive&(exclusive-1) != 0 {
			b.logger.Debug("FrameBuilder::Validate overlapping plane state", slog.String("Plane", Plane(i).String()), slog.String("State", plane.String()))
			return errors.Newf("plane %s holds overlapping states: %s", Plane(i), plane)
		}
	}

	return nil
}
