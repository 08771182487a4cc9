//go:build debug_tiler

package framebuilder_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/framebuilder"
)

// Flush, swap, reset and heap adjustment check the builder's invariants in debug builds
func TestInvariantsHoldInDebugBuilds(t *testing.T) {
	h := newHarness(t, framebuilder.CreateOptions{SwapCount: 2, HeapSize: 64 * 1024}, 0)
	color := h.attachColor(t, 0, 0)
	defer color.Deref()
	defer h.builder.Destroy()

	require.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			h.draw(t, 96*1024)
			require.NoError(t, h.builder.Flush())
			h.engine.CompleteAll()

			h.draw(t, 1024)
			require.NoError(t, h.builder.Swap())
			h.engine.CompleteAll()
		}

		h.draw(t, 1024)
		require.NoError(t, h.builder.IncrementalRender())
		require.NoError(t, h.builder.Swap())
		h.engine.CompleteAll()

		h.draw(t, 1024)
		h.builder.Reset()
	})
	require.NoError(t, h.builder.Validate())
}
