package surface

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/deps"
	"github.com/vkngwrapper/tiler/memory"
)

// Surface is a reference counted image that frames render into or read from. Its memory and its
// dependency resource are replaced together when a frame needs to write to the surface while older
// jobs are still using it.
type Surface struct {
	system    *deps.System
	allocator memory.Allocator
	specifier Specifier

	refCount  atomic.Int32
	flags     atomic.Int32
	timestamp atomic.Uint64

	accessLock sync.Mutex
	mem        atomic.Pointer[memory.Block]
	resource   atomic.Pointer[deps.Resource]

	handlerMutex sync.RWMutex
	handlers     [eventCount]EventHandler
}

// New allocates a surface with fresh memory from allocator
func New(system *deps.System, allocator memory.Allocator, flags Flags, specifier Specifier) (*Surface, error) {
	if flags&FlagDontMove != 0 {
		return nil, errors.New("surfaces allocated from an allocator are always movable")
	}

	mem, err := allocator.AllocateBlock(specifier.DataSize(), Alignment)
	if err != nil {
		return nil, err
	}

	return NewWithMemory(system, allocator, flags, specifier, mem), nil
}

// NewWithMemory creates a surface over existing memory. The surface takes over the caller's
// reference to mem.
func NewWithMemory(system *deps.System, allocator memory.Allocator, flags Flags, specifier Specifier, mem *memory.Block) *Surface {
	s := &Surface{
		system:    system,
		allocator: allocator,
		specifier: specifier,
	}
	s.refCount.Store(1)
	s.flags.Store(int32(flags))
	s.mem.Store(mem)
	s.resource.Store(system.NewResource(s))

	return s
}

func (s *Surface) AddRef() {
	if s.refCount.Add(1) <= 1 {
		panic(errors.New("attempted to add a reference to a destroyed surface"))
	}
}

// Deref drops a reference. The last reference destroys the surface, releasing its memory and
// dropping any connections still held on its resource.
func (s *Surface) Deref() {
	remaining := s.refCount.Add(-1)
	if remaining < 0 {
		panic(errors.Newf("surface reference count went negative: %d", remaining))
	}

	if remaining > 0 {
		return
	}

	s.TriggerEvent(nil, EventDestroy)

	mem := s.mem.Swap(nil)
	if mem != nil {
		mem.Deref()
	}

	resource := s.resource.Load()
	if resource != nil {
		resource.ReleaseConnections(false)
	}
}

func (s *Surface) RefCount() int {
	return int(s.refCount.Load())
}

func (s *Surface) Specifier() Specifier {
	return s.specifier
}

func (s *Surface) Memory() *memory.Block {
	return s.mem.Load()
}

func (s *Surface) Resource() *deps.Resource {
	return s.resource.Load()
}

// Timestamp is incremented every time the surface's memory is replaced
func (s *Surface) Timestamp() uint64 {
	return s.timestamp.Load()
}

func (s *Surface) Flags() Flags {
	return Flags(s.flags.Load())
}

func (s *Surface) SetFlags(flags Flags) {
	for {
		current := s.flags.Load()
		if s.flags.CompareAndSwap(current, current|int32(flags)) {
			return
		}
	}
}

func (s *Surface) ClearFlags(flags Flags) {
	for {
		current := s.flags.Load()
		if s.flags.CompareAndSwap(current, current&^int32(flags)) {
			return
		}
	}
}

func (s *Surface) AccessLock() {
	s.accessLock.Lock()
}

func (s *Surface) AccessUnlock() {
	s.accessLock.Unlock()
}

func (s *Surface) SetEventHandler(event Event, handler EventHandler) {
	s.handlerMutex.Lock()
	defer s.handlerMutex.Unlock()

	s.handlers[event] = handler
}

func (s *Surface) HasEventHandler(event Event) bool {
	s.handlerMutex.RLock()
	defer s.handlerMutex.RUnlock()

	return s.handlers[event] != nil
}

// TriggerEvent invokes the handler registered for event, if any
func (s *Surface) TriggerEvent(mem *memory.Block, event Event) {
	s.handlerMutex.RLock()
	handler := s.handlers[event]
	s.handlerMutex.RUnlock()

	if handler != nil {
		handler(s, mem, event)
	}
}

// ClearDependencies gives the surface new memory and a new resource, leaving every existing
// connection on the old resource behind. If deepCopy is set the returned descriptor can be used to
// copy the old contents once every outstanding write to them has finished. The access lock must be
// held.
func (s *Surface) ClearDependencies(deepCopy bool) (*deps.Resource, *CopyDescriptor, error) {
	if s.Flags()&FlagDontMove != 0 {
		panic(errors.New("attempted to move a surface flagged with FlagDontMove"))
	}

	newMem, err := s.allocator.AllocateBlock(s.specifier.DataSize(), Alignment)
	if err != nil {
		return nil, nil, err
	}

	oldMem := s.mem.Swap(newMem)
	resource := s.system.NewResource(s)
	s.resource.Store(resource)

	var descriptor *CopyDescriptor
	if deepCopy {
		oldMem.AddRef()
		newMem.AddRef()
		descriptor = &CopyDescriptor{
			Source:      oldMem,
			Destination: newMem,
			Size:        s.specifier.DataSize(),
		}
	}

	oldMem.Deref()
	s.timestamp.Add(1)

	s.TriggerEvent(nil, EventCopyOnWrite)

	return resource, descriptor, nil
}

func (s *Surface) String() string {
	return fmt.Sprintf("Surface(%s)", s.specifier)
}

// CopyDescriptor records a pending copy of surface contents from memory that was replaced by
// ClearDependencies. It holds a reference to both blocks until Release is called.
type CopyDescriptor struct {
	Source      *memory.Block
	Destination *memory.Block
	Size        int
}

func (d *CopyDescriptor) Execute() error {
	return d.Destination.CopyFrom(d.Source, 0, d.Size)
}

func (d *CopyDescriptor) Release() {
	d.Source.Deref()
	d.Destination.Deref()
}
