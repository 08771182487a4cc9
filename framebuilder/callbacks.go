package framebuilder

import (
	"github.com/cockroachdb/errors"
)

// Callback is an action run when the frame it was added to is finished with
type Callback func()

const initialCallbackRoom int = 32

type callbackEntry struct {
	callback Callback
	deferred bool
}

// CallbackQueue holds the finalization actions of a frame. Deferred callbacks run whenever the frame
// is reset. Non-deferred callbacks also run as soon as rendering completes, before the frame is handed
// off to be reset. Callbacks run in the reverse of the order they were added.
type CallbackQueue struct {
	entries         []callbackEntry
	haveNonDeferred bool
}

func newCallbackQueue() CallbackQueue {
	return CallbackQueue{
		entries: make([]callbackEntry, 0, initialCallbackRoom),
	}
}

// Add appends a callback to the queue
func (q *CallbackQueue) Add(callback Callback, deferred bool) {
	q.entries = append(q.entries, callbackEntry{
		callback: callback,
		deferred: deferred,
	})

	if !deferred {
		q.haveNonDeferred = true
	}
}

func (q *CallbackQueue) Len() int {
	return len(q.entries)
}

// Room returns the number of callbacks the queue can hold without growing
func (q *CallbackQueue) Room() int {
	return cap(q.entries)
}

// ExecuteNonDeferred runs every non-deferred callback and replaces it with a no-op, so that a later
// ExecuteAll does not run it a second time
func (q *CallbackQueue) ExecuteNonDeferred() {
	if !q.haveNonDeferred {
		return
	}

	for i := len(q.entries) - 1; i >= 0; i-- {
		entry := &q.entries[i]
		if entry.deferred {
			continue
		}

		entry.callback()
		entry.callback = func() {}
		entry.deferred = true
	}

	q.haveNonDeferred = false
}

// ExecuteAll runs every callback and empties the queue
func (q *CallbackQueue) ExecuteAll() {
	for i := len(q.entries) - 1; i >= 0; i-- {
		q.entries[i].callback()
	}

	size := len(q.entries)
	if size > initialCallbackRoom && cap(q.entries) > size*2 {
		q.entries = make([]callbackEntry, 0, size)
	} else {
		for i := range q.entries {
			q.entries[i] = callbackEntry{}
		}
		q.entries = q.entries[:0]
	}

	q.haveNonDeferred = false
}

func (q *CallbackQueue) Validate() error {
	nonDeferred := false
	for i, entry := range q.entries {
		if entry.callback == nil {
			return errors.Newf("callback %d is nil", i)
		}

		if !entry.deferred {
			nonDeferred = true
		}
	}

	if nonDeferred && !q.haveNonDeferred {
		return errors.New("queue holds non-deferred callbacks but is not flagged as having any")
	}

	return nil
}
