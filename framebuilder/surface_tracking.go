package framebuilder

import (
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/tiler/memory"
	"github.com/vkngwrapper/tiler/surface"
)

// TrackingMask selects which kinds of GPU access a frame reports to a tracked surface
type TrackingMask int

const (
	TrackingRead TrackingMask = 1 << iota
	TrackingWrite

	TrackingAll = TrackingRead | TrackingWrite
)

type trackingKey struct {
	surface *surface.Surface
	mem     *memory.Block
}

type trackingEntry struct {
	mask TrackingMask
}

// surfaceTracking remembers the surfaces a frame reads or writes so that their event handlers can be
// told when the GPU starts and stops using a specific piece of memory. Entries hold a reference to
// both the surface and the memory.
type surfaceTracking struct {
	entries *swiss.Map[trackingKey, *trackingEntry]
}

func newSurfaceTracking() *surfaceTracking {
	return &surfaceTracking{
		entries: swiss.NewMap[trackingKey, *trackingEntry](4),
	}
}

func (t *surfaceTracking) Count() int {
	return t.entries.Count()
}

// add starts tracking surf's current memory. Surfaces without FlagTrackSurface are ignored.
func (t *surfaceTracking) add(surf *surface.Surface, mask TrackingMask) {
	if surf.Flags()&surface.FlagTrackSurface == 0 {
		return
	}

	surf.AccessLock()
	defer surf.AccessUnlock()

	mem := surf.Memory()
	key := trackingKey{surface: surf, mem: mem}

	entry, ok := t.entries.Get(key)
	if ok {
		entry.mask |= mask
		return
	}

	surf.AddRef()
	if mem != nil {
		mem.AddRef()
	}
	t.entries.Put(key, &trackingEntry{mask: mask})
}

// start fires GPU read and write events for every tracked surface
func (t *surfaceTracking) start() {
	t.entries.Iter(func(key trackingKey, entry *trackingEntry) bool {
		if entry.mask&TrackingRead != 0 {
			key.surface.TriggerEvent(key.mem, surface.EventGPURead)
		}
		if entry.mask&TrackingWrite != 0 {
			key.surface.TriggerEvent(key.mem, surface.EventGPUWrite)
		}
		return false
	})
}

// stop fires the matching done events
func (t *surfaceTracking) stop() {
	t.entries.Iter(func(key trackingKey, entry *trackingEntry) bool {
		if entry.mask&TrackingRead != 0 {
			key.surface.TriggerEvent(key.mem, surface.EventGPUReadDone)
		}
		if entry.mask&TrackingWrite != 0 {
			key.surface.TriggerEvent(key.mem, surface.EventGPUWriteDone)
		}
		return false
	})
}

// reset stops tracking the accesses in mask. Entries with nothing left to track drop their references.
func (t *surfaceTracking) reset(mask TrackingMask) {
	var dropped []trackingKey
	t.entries.Iter(func(key trackingKey, entry *trackingEntry) bool {
		entry.mask &^= mask
		if entry.mask == 0 {
			dropped = append(dropped, key)
		}
		return false
	})

	for _, key := range dropped {
		t.entries.Delete(key)

		if key.mem != nil {
			key.mem.Deref()
		}
		key.surface.Deref()
	}
}
