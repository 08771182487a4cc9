package surface

import (
	"fmt"

	"github.com/vkngwrapper/tiler/memutils"
)

type Format int32

const (
	FormatARGB8888 Format = iota
	FormatRGB565
	FormatARGB4444
	FormatS8Z24
	FormatZ16
	FormatB8
	FormatARGBFP16
)

var formatMapping = map[Format]string{
	FormatARGB8888: "FormatARGB8888",
	FormatRGB565:   "FormatRGB565",
	FormatARGB4444: "FormatARGB4444",
	FormatS8Z24:    "FormatS8Z24",
	FormatZ16:      "FormatZ16",
	FormatB8:       "FormatB8",
	FormatARGBFP16: "FormatARGBFP16",
}

func (f Format) String() string {
	return formatMapping[f]
}

func (f Format) BytesPerPixel() int {
	switch f {
	case FormatB8:
		return 1
	case FormatRGB565, FormatARGB4444, FormatZ16:
		return 2
	case FormatARGBFP16:
		return 8
	default:
		return 4
	}
}

type Layout int32

const (
	LayoutLinear Layout = iota
	LayoutBlockInterleaved
)

var layoutMapping = map[Layout]string{
	LayoutLinear:           "LayoutLinear",
	LayoutBlockInterleaved: "LayoutBlockInterleaved",
}

func (l Layout) String() string {
	return layoutMapping[l]
}

// Alignment is the byte alignment of every surface allocation
const Alignment uint = 64

// Specifier describes the dimensions and pixel layout of a surface
type Specifier struct {
	Width  int
	Height int
	Format Format
	Layout Layout
}

// DataSize returns the number of bytes needed to hold a surface with this specifier
func (s Specifier) DataSize() int {
	width, height := s.Width, s.Height
	if s.Layout == LayoutBlockInterleaved {
		width = memutils.RoundUp(width, 16)
		height = memutils.RoundUp(height, 16)
	}

	return memutils.AlignUp(width*height*s.Format.BytesPerPixel(), Alignment)
}

func (s Specifier) String() string {
	return fmt.Sprintf("%dx%d %s %s", s.Width, s.Height, s.Format, s.Layout)
}
