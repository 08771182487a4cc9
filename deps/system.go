package deps

import (
	"sync"

	"golang.org/x/exp/slog"
)

// System sequences consumers against the resources they connect to. All resources and consumers
// created from one System share its mutex, which guards their connection lists. Callbacks are never
// invoked while that mutex is held.
type System struct {
	logger *slog.Logger
	mutex  sync.Mutex
}

func NewSystem(logger *slog.Logger) *System {
	return &System{logger: logger}
}

// NewResource creates a resource. owner is an opaque value returned from Resource.Owner.
func (s *System) NewResource(owner any) *Resource {
	return &Resource{
		system: s,
		owner:  owner,
	}
}

// NewConsumer creates an unflushed consumer. onActivate is called once every connection is
// satisfied, the consumer has been flushed and every extra activation reference has been released.
// onRelease is called when a flushed consumer releases its connections. Either callback may be nil.
func (s *System) NewConsumer(name string, onActivate func(status Status), onRelease func(status Status)) *Consumer {
	c := &Consumer{
		system:     s,
		name:       name,
		onActivate: onActivate,
		onRelease:  onRelease,
	}
	c.init()

	return c
}

// wake releases the activation reference held by each newly satisfied connection. It must be
// called without the system mutex.
func (s *System) wake(ready []*connection) {
	for _, conn := range ready {
		conn.consumer.latch.Release()
	}
}
