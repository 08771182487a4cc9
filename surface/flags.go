package surface

import "github.com/vkngwrapper/core/v2/common"

// Flags describe how a surface may be handled by the frame builder
type Flags int32

var flagsMapping = common.NewFlagStringMapping[Flags]()

func (f Flags) Register(str string) {
	flagsMapping.Register(f, str)
}
func (f Flags) String() string {
	return flagsMapping.FlagsToString(f)
}

const (
	// FlagTrackSurface requests GPU read/write events for this surface from every frame that uses it
	FlagTrackSurface Flags = 1 << iota
	// FlagDontMove marks surfaces whose memory is owned elsewhere. They are never reallocated by
	// copy-on-write and never receive read connections.
	FlagDontMove
	// FlagReadPending is set while a frame holds an unfinished read dependency on the surface
	FlagReadPending
)

func init() {
	FlagTrackSurface.Register("FlagTrackSurface")
	FlagDontMove.Register("FlagDontMove")
	FlagReadPending.Register("FlagReadPending")
}

// Usage describes how an attached surface is written by the raster engine
type Usage int32

var usageMapping = common.NewFlagStringMapping[Usage]()

func (u Usage) Register(str string) {
	usageMapping.Register(u, str)
}
func (u Usage) String() string {
	return usageMapping.FlagsToString(u)
}

const (
	UsageColor Usage = 1 << iota
	UsageDepth
	UsageStencil
	UsageDownsampleX2
	UsageDownsampleX4
	UsageDownsampleX8
	UsageDownsampleY2
	UsageDownsampleY4
	UsageDownsampleY8
	UsageDownsampleY16
	// UsageWriteDirtyPixelsOnly means the raster engine only writes pixels touched by this frame, so
	// a reallocated surface must receive a copy of the old contents first
	UsageWriteDirtyPixelsOnly
	UsageMultisample

	UsageDownsampleMask = UsageDownsampleX2 | UsageDownsampleX4 | UsageDownsampleX8 |
		UsageDownsampleY2 | UsageDownsampleY4 | UsageDownsampleY8 | UsageDownsampleY16
)

func init() {
	UsageColor.Register("UsageColor")
	UsageDepth.Register("UsageDepth")
	UsageStencil.Register("UsageStencil")
	UsageDownsampleX2.Register("UsageDownsampleX2")
	UsageDownsampleX4.Register("UsageDownsampleX4")
	UsageDownsampleX8.Register("UsageDownsampleX8")
	UsageDownsampleY2.Register("UsageDownsampleY2")
	UsageDownsampleY4.Register("UsageDownsampleY4")
	UsageDownsampleY8.Register("UsageDownsampleY8")
	UsageDownsampleY16.Register("UsageDownsampleY16")
	UsageWriteDirtyPixelsOnly.Register("UsageWriteDirtyPixelsOnly")
	UsageMultisample.Register("UsageMultisample")
}

// Scale returns the horizontal and vertical downsample factors encoded in the usage
func (u Usage) Scale() (x, y int) {
	x, y = 1, 1

	switch {
	case u&UsageDownsampleX8 != 0:
		x = 8
	case u&UsageDownsampleX4 != 0:
		x = 4
	case u&UsageDownsampleX2 != 0:
		x = 2
	}

	switch {
	case u&UsageDownsampleY16 != 0:
		y = 16
	case u&UsageDownsampleY8 != 0:
		y = 8
	case u&UsageDownsampleY4 != 0:
		y = 4
	case u&UsageDownsampleY2 != 0:
		y = 2
	}

	return x, y
}
