package deps

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Latch is a countdown with a callback that fires when the count reaches zero. It is armed with an
// initial count, Grab adds to the count and Release removes from it.
type Latch struct {
	count  atomic.Int32
	onZero func()
}

// NewLatch creates a latch armed with initial
func NewLatch(initial int, onZero func()) *Latch {
	l := &Latch{onZero: onZero}
	l.Arm(initial)
	return l
}

// Arm resets the count. It must not race with Grab or Release.
func (l *Latch) Arm(count int) {
	l.count.Store(int32(count))
}

func (l *Latch) Grab() {
	l.count.Add(1)
}

func (l *Latch) Release() {
	remaining := l.count.Add(-1)
	if remaining < 0 {
		panic(errors.Newf("latch released past zero: %d", remaining))
	}

	if remaining == 0 && l.onZero != nil {
		l.onZero()
	}
}

func (l *Latch) Count() int {
	return int(l.count.Load())
}
