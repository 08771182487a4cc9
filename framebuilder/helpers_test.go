package framebuilder_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/framebuilder"
	"github.com/vkngwrapper/tiler/jobs"
	"github.com/vkngwrapper/tiler/jobs/jobtest"
	"github.com/vkngwrapper/tiler/memory"
	"github.com/vkngwrapper/tiler/surface"
	"golang.org/x/exp/slog"
)

type harness struct {
	logger    *slog.Logger
	engine    *jobtest.Engine
	allocator *memory.HostAllocator
	system    *deps.System
	builder   *framebuilder.FrameBuilder
}

func newHarness(t *testing.T, options framebuilder.CreateOptions, budget int) *harness {
	logger := slog.New(slog.NewTextHandler(os.Stdout))

	h := &harness{
		logger:    logger,
		engine:    jobtest.NewEngine(),
		allocator: memory.NewHostAllocator(logger, budget),
		system:    deps.NewSystem(logger),
	}

	builder, err := framebuilder.New(logger, h.engine, h.allocator, h.system, options)
	require.NoError(t, err)
	h.builder = builder

	return h
}

func (h *harness) surface(t *testing.T, flags surface.Flags, width, height int, format surface.Format) *surface.Surface {
	surf, err := surface.New(h.system, h.allocator, flags, surface.Specifier{
		Width:  width,
		Height: height,
		Format: format,
		Layout: surface.LayoutLinear,
	})
	require.NoError(t, err)

	return surf
}

// attachColor attaches a 64x64 color output and returns it. The caller owns one reference.
func (h *harness) attachColor(t *testing.T, flags surface.Flags, usage surface.Usage) *surface.Surface {
	surf := h.surface(t, flags, 64, 64, surface.FormatARGB8888)
	require.NoError(t, h.builder.SetOutput(framebuilder.WritebackColor, surf, surface.UsageColor|usage))

	return surf
}

func (h *harness) draw(t *testing.T, heapBytes int) {
	require.NoError(t, h.builder.WriteLock(framebuilder.BufferColorAll))
	require.NoError(t, h.builder.AddCommands(jobs.Command{Kind: jobs.CommandDraw, HeapBytes: heapBytes}))
	h.builder.WriteUnlock()
}

func commandKinds(commands []jobs.Command) []jobs.CommandKind {
	kinds := make([]jobs.CommandKind, 0, len(commands))
	for _, command := range commands {
		kinds = append(kinds, command.Kind)
	}

	return kinds
}
