package framebuilder

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/tiler/deps"
)

// orderSync links the frames of a ring in swap order so that raster jobs finish in the order they
// were submitted. Only the fields below the mutex are shared with other frames, and only this type
// touches them.
type orderSync struct {
	prev *frame
	next *frame

	// swapNumber is written by the owning frame under its frame mutex before the geometry consumer
	// is flushed, and read by the successor after that
	swapNumber uint64

	mutex           sync.Mutex
	inFlight        bool
	releaseOnFinish *deps.Consumer
}

func (o *orderSync) link(prev, next *frame) {
	o.prev = prev
	o.next = next
}

func (o *orderSync) markInFlight() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.inFlight = true
}

func (o *orderSync) InFlight() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.inFlight
}

// waitForPrevious holds back raster until the previous frame in the ring, if it is still rendering an
// older swap, has finished. It must be called without holding any frame mutex.
func (o *orderSync) waitForPrevious(raster *deps.Consumer) bool {
	prev := o.prev
	if prev == nil {
		return false
	}

	prev.order.mutex.Lock()
	defer prev.order.mutex.Unlock()

	if !prev.order.inFlight || prev.order.swapNumber >= o.swapNumber {
		return false
	}

	if prev.order.releaseOnFinish != nil {
		panic(errors.New("frame already has a raster consumer waiting on its completion"))
	}

	raster.Grab()
	prev.order.releaseOnFinish = raster
	return true
}

// finish marks the frame as no longer in flight and returns the consumer that was waiting on it, if any.
// The caller must release it exactly once.
func (o *orderSync) finish() *deps.Consumer {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.inFlight = false
	waiting := o.releaseOnFinish
	o.releaseOnFinish = nil

	return waiting
}
