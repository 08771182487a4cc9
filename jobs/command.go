package jobs

import (
	"fmt"

	"github.com/vkngwrapper/tiler/surface"
)

type CommandKind int

const (
	// CommandBeginFrame sets up the tile lists for a new frame
	CommandBeginFrame CommandKind = iota
	// CommandDraw bins primitives into the tile lists, spilling HeapBytes into the heap
	CommandDraw
	// CommandReadback draws the contents of Surface back into the frame before any other drawing
	CommandReadback
	// CommandContextSwitchOut ends a geometry job that will be resumed by a successor job
	CommandContextSwitchOut
	// CommandContextSwitchIn resumes the tile lists saved by CommandContextSwitchOut
	CommandContextSwitchIn
	// CommandEndFrame terminates the tile lists
	CommandEndFrame
)

var commandKindMapping = map[CommandKind]string{
	CommandBeginFrame:       "CommandBeginFrame",
	CommandDraw:             "CommandDraw",
	CommandReadback:         "CommandReadback",
	CommandContextSwitchOut: "CommandContextSwitchOut",
	CommandContextSwitchIn:  "CommandContextSwitchIn",
	CommandEndFrame:         "CommandEndFrame",
}

func (k CommandKind) String() string {
	return commandKindMapping[k]
}

type Command struct {
	Kind CommandKind

	HeapBytes int

	// readback only
	Surface *surface.Surface
	Usage   surface.Usage
	Slot    int
}

func (c Command) String() string {
	switch c.Kind {
	case CommandDraw:
		return fmt.Sprintf("%s(%d)", c.Kind, c.HeapBytes)
	case CommandReadback:
		return fmt.Sprintf("%s(%d, %s)", c.Kind, c.Slot, c.Surface)
	default:
		return c.Kind.String()
	}
}
