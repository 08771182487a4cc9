package framebuilder_test

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/framebuilder"
	"github.com/vkngwrapper/tiler/jobs"
)

// completeInBackground completes jobs on another goroutine until the returned function is called
func completeInBackground(h *harness) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			select {
			case <-stop:
				return
			default:
			}

			if !h.engine.CompleteGeometry(jobs.StatusSuccess) && !h.engine.CompleteRaster(jobs.StatusSuccess) {
				runtime.Gosched()
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

func TestAsyncCompletion(t *testing.T) {
	testCases := map[string]framebuilder.CreateOptions{
		"ImmediateReset": {SwapCount: 3},
		"DeferredReset":  {SwapCount: 3, DeferredReset: true, CleanupQueueDepth: 2},
	}

	for name, options := range testCases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, options, 0)
			color := h.attachColor(t, 0, 0)
			defer color.Deref()

			stopCompleting := completeInBackground(h)

			var deferredRuns, nonDeferredRuns atomic.Int32
			for i := 0; i < 300; i++ {
				h.draw(t, 2048)
				h.builder.AddCallback(func() { deferredRuns.Add(1) })
				h.builder.AddCallbackNonDeferred(func() { nonDeferredRuns.Add(1) })

				if i%3 == 0 {
					require.NoError(t, h.builder.Flush())
					h.draw(t, 1024)
				}
				require.NoError(t, h.builder.Swap())
			}
			h.builder.WaitAll()

			stopCompleting()
			require.Equal(t, 0, h.engine.PendingGeometry())
			require.Equal(t, 0, h.engine.PendingRaster())
			require.Equal(t, jobs.StatusSuccess, h.builder.CompletionStatus())
			require.NoError(t, h.builder.Validate())

			h.builder.Destroy()
			require.Equal(t, int32(300), deferredRuns.Load())
			require.Equal(t, int32(300), nonDeferredRuns.Load())
			require.Len(t, h.engine.StartedRaster(), 400)
			require.Equal(t, h.engine.GeometryAllocated(), h.engine.GeometryFreed())
			require.Equal(t, h.engine.RasterAllocated(), h.engine.RasterFreed())
			require.Equal(t, 0, h.allocator.HeapCount())
			require.Equal(t, 1, color.RefCount())
		})
	}
}
