package jobs

import (
	"github.com/vkngwrapper/tiler/memory"
	"github.com/vkngwrapper/tiler/surface"
)

// GeometryJob bins draw commands into tile lists
type GeometryJob interface {
	// Reset discards every command so the job can be reused for a new frame
	Reset()
	SetIdentity(identity uint32)
	Identity() uint32
	AddCommands(commands ...Command) error
	Commands() []Command
	SetHeap(heap memory.Heap)
	// SetAutoFree controls whether the engine frees the job once its callback has run
	SetAutoFree(autoFree bool)
	SetCallback(callback func(status Status))
	Start() error
	Free()
}

// BoundingBox culls raster output outside of Width x Height on the writeback slots it is enabled for
type BoundingBox struct {
	Width   int
	Height  int
	Enabled [3]bool
}

// Output is one writeback target of a raster job
type Output struct {
	Surface *surface.Surface
	Usage   surface.Usage
}

// Setup is everything a raster job needs to render the tile lists of one flush
type Setup struct {
	Width       int
	Height      int
	Log2ScaleX  int
	Log2ScaleY  int
	BoundingBox BoundingBox
	Outputs     [3]Output
	ClearValues [6]uint32
	// FragmentStack may be nil if no shader needs a stack
	FragmentStack *memory.Block
}

// RasterJob consumes tile lists and writes pixels into the outputs named by its Setup. Raster jobs
// are always freed by the engine after their callback has run.
type RasterJob interface {
	SetSetup(setup Setup)
	SetIdentity(identity uint32)
	SetCallback(callback func(status Status))
	Start()
	Free()
}

// Engine creates jobs. Completion callbacks may be invoked from any goroutine.
type Engine interface {
	NewGeometryJob() (GeometryJob, error)
	// NewRasterJob creates a raster job split across cores. A core count of 0 asks the engine to
	// balance the job across every core itself.
	NewRasterJob(cores int) (RasterJob, error)
}
