package deps

import (
	"sync/atomic"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// ReplaceResourceFunc is called when a consumer asks to write a resource that other consumers are
// still using. Returning a non-nil resource redirects the write connection to it, so the writer does
// not have to wait. Returning nil falls back to an ordinary, waiting connection.
type ReplaceResourceFunc func(resource *Resource) *Resource

// Consumer is a unit of work that is activated once every resource it is connected to is available.
// A consumer starts unflushed, holding one activation reference of its own which Flush drops.
type Consumer struct {
	system *System
	name   string

	latch      Latch
	onActivate func(status Status)
	onRelease  func(status Status)
	replace    ReplaceResourceFunc

	releaseRefs atomic.Int32

	// guarded by system.mutex
	connections *swiss.Map[*Resource, *connection]
	errorSet    bool
	flushed     bool
	releaseMode ReleaseMode
}

func (c *Consumer) init() {
	c.connections = swiss.NewMap[*Resource, *connection](8)
	c.latch.onZero = c.activate
	c.latch.Arm(1)
}

func (c *Consumer) Name() string {
	return c.name
}

func (c *Consumer) SetReplaceResourceCallback(replace ReplaceResourceFunc) {
	c.replace = replace
}

func (c *Consumer) SetReleaseMode(mode ReleaseMode) {
	c.system.mutex.Lock()
	defer c.system.mutex.Unlock()

	c.releaseMode = mode
}

// SetError marks the consumer as failed. Its activation and release callbacks will receive StatusError.
func (c *Consumer) SetError() {
	c.system.mutex.Lock()
	defer c.system.mutex.Unlock()

	c.errorSet = true
}

func (c *Consumer) HasError() bool {
	c.system.mutex.Lock()
	defer c.system.mutex.Unlock()

	return c.errorSet
}

// Grab adds an activation reference, delaying activation until a matching Release
func (c *Consumer) Grab() {
	c.latch.Grab()
}

// Release drops an activation reference. The activation callback runs on this goroutine if this was
// the last outstanding reference.
func (c *Consumer) Release() {
	c.latch.Release()
}

// ActivationCount returns the number of outstanding activation references
func (c *Consumer) ActivationCount() int {
	return c.latch.Count()
}

// Connect makes this consumer depend on resource
func (c *Consumer) Connect(resource *Resource, mode Mode) {
	c.system.mutex.Lock()

	existing, ok := c.connections.Get(resource)
	if ok {
		if mode == ModeWrite {
			existing.mode = ModeWrite
		}
		c.system.mutex.Unlock()
		return
	}

	if mode == ModeWrite && c.replace != nil && resource.usedByOthers(c) {
		c.system.mutex.Unlock()

		replacement := c.replace(resource)

		c.system.mutex.Lock()
		if replacement != nil {
			c.system.logger.Debug("    Consumer::Connect replaced resource", slog.String("Consumer", c.name))
			resource = replacement
		}
	}

	conn := &connection{
		consumer: c,
		resource: resource,
		mode:     mode,
		ready:    resource.readyFor(mode),
	}
	resource.connections = append(resource.connections, conn)
	c.connections.Put(resource, conn)

	if !conn.ready {
		c.latch.Grab()
	}

	c.system.mutex.Unlock()
}

// Flush drops the consumer's own activation reference. The consumer activates as soon as every
// other reference is released.
func (c *Consumer) Flush() {
	c.system.mutex.Lock()
	c.flushed = true
	c.system.mutex.Unlock()

	c.latch.Release()
}

func (c *Consumer) activate() {
	c.system.mutex.Lock()
	status := StatusOK
	if c.errorSet {
		status = StatusError
	}
	c.system.mutex.Unlock()

	c.system.logger.Debug("Consumer::activate", slog.String("Consumer", c.name), slog.String("Status", status.String()))

	if c.onActivate != nil {
		c.onActivate(status)
	}
}

// SetReleaseRefCount sets the number of ReleaseRefCountDec calls that must happen before the
// consumer releases its connections
func (c *Consumer) SetReleaseRefCount(count int) {
	c.releaseRefs.Store(int32(count))
}

func (c *Consumer) ReleaseRefCountDec() {
	if c.releaseRefs.Add(-1) == 0 {
		c.ReleaseAllConnections()
	}
}

// ReleaseAllConnections drops connections according to the release mode and re-arms the consumer.
// If the consumer had been flushed, the release callback runs after the connections are gone.
func (c *Consumer) ReleaseAllConnections() {
	c.system.mutex.Lock()

	status := StatusOK
	if c.errorSet {
		status = StatusError
	}
	wasFlushed := c.flushed

	var ready []*connection
	var dropped []*Resource
	c.connections.Iter(func(resource *Resource, conn *connection) bool {
		if c.releaseMode == ReleaseWriteGotoUnflushed && conn.mode == ModeRead {
			return false
		}

		dropped = append(dropped, resource)
		ready = append(ready, resource.remove(conn)...)
		return false
	})
	for _, resource := range dropped {
		c.connections.Delete(resource)
	}

	pending := 0
	c.connections.Iter(func(resource *Resource, conn *connection) bool {
		if !conn.ready {
			pending++
		}
		return false
	})

	c.flushed = false
	c.errorSet = false
	c.latch.Arm(1 + pending)
	c.system.mutex.Unlock()

	c.system.wake(ready)

	if wasFlushed && c.onRelease != nil {
		c.onRelease(status)
	}
}

// ConnectionCount returns the number of resources this consumer is connected to
func (c *Consumer) ConnectionCount() int {
	c.system.mutex.Lock()
	defer c.system.mutex.Unlock()

	return c.connections.Count()
}
