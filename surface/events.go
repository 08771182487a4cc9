package surface

import "github.com/vkngwrapper/tiler/memory"

type Event int

const (
	EventCPUAccess Event = iota
	EventCPUAccessDone
	EventGPURead
	EventGPUReadDone
	EventGPUWrite
	EventGPUWriteDone
	EventCopyOnWrite
	EventDestroy

	eventCount
)

var eventMapping = map[Event]string{
	EventCPUAccess:     "EventCPUAccess",
	EventCPUAccessDone: "EventCPUAccessDone",
	EventGPURead:       "EventGPURead",
	EventGPUReadDone:   "EventGPUReadDone",
	EventGPUWrite:      "EventGPUWrite",
	EventGPUWriteDone:  "EventGPUWriteDone",
	EventCopyOnWrite:   "EventCopyOnWrite",
	EventDestroy:       "EventDestroy",
}

func (e Event) String() string {
	return eventMapping[e]
}

// EventHandler receives surface events. mem is the memory the event applies to, which is not
// necessarily the surface's current memory, and may be nil.
type EventHandler func(surface *Surface, mem *memory.Block, event Event)
