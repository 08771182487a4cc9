package framebuilder

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/tiler/memutils"
)

// BuildStatsString returns a JSON document describing the frames, heaps and plane states of the
// builder. If detailed is true, each frame and heap is listed individually.
func (b *FrameBuilder) BuildStatsString(detailed bool) string {
	b.apiMutex.Lock()
	defer b.apiMutex.Unlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	general := obj.Name("General").Object()
	general.Name("Type").String(b.options.Type.String())
	general.Name("SwapCount").Int(len(b.frames))
	general.Name("CurrentFrame").Int(b.current)
	general.Name("SwapsPerformed").Int(int(b.swapPerformed))
	general.Name("Flushes").Int(int(b.flushCount))
	general.Name("OutputValid").Bool(b.outputValid)
	general.Name("Width").Int(b.width)
	general.Name("Height").Int(b.height)
	general.End()

	planes := obj.Name("Planes").Object()
	for i, state := range b.planes {
		planes.Name(Plane(i).String()).String(state.String())
	}
	planes.End()

	var total memutils.DetailedHeapStatistics
	total.Clear()
	for _, heap := range b.heaps {
		heap.Statistics(&total)
	}

	totalObj := obj.Name("Heaps").Object()
	total.PrintJSON(&totalObj)
	totalObj.End()

	if detailed {
		heapArray := obj.Name("HeapDetails").Array()
		for _, heap := range b.heaps {
			var stats memutils.DetailedHeapStatistics
			stats.Clear()
			heap.Statistics(&stats)

			heapObj := heapArray.Object()
			heapObj.Name("Size").Int(heap.Size())
			heapObj.Name("UseCount").Int(heap.UseCount())
			stats.PrintJSON(&heapObj)
			heapObj.End()
		}
		heapArray.End()

		frameArray := obj.Name("Frames").Array()
		for _, f := range b.frames {
			frameObj := frameArray.Object()
			f.printStats(&frameObj)
			frameObj.End()
		}
		frameArray.End()
	}

	obj.End()

	return string(writer.Bytes())
}

func (f *frame) printStats(json *jwriter.ObjectState) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	json.Name("Index").Int(f.index)
	json.Name("State").String(f.state.String())
	json.Name("FrameID").Int(int(f.frameID))
	json.Name("Flushes").Int(f.numFlushes)
	json.Name("ResetOnFinish").Bool(f.resetOnFinish)
	json.Name("CompletionStatus").String(f.CompletionStatus().String())
	json.Name("Callbacks").Int(f.callbacks.Len())
	json.Name("TrackedSurfaces").Int(f.tracking.Count())
	json.Name("CopyOnWrite").String(f.cow.String())

	if f.fragmentStack != nil {
		json.Name("FragmentStackBytes").Int(f.fragmentStack.Size())
	}
}
