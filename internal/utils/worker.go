package utils

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// CleanupWorker runs queued tasks in order on a single background goroutine. The number of pending
// tasks is bounded, and Enqueue runs a task inline when the queue is full or the worker is stopped.
type CleanupWorker struct {
	slots *semaphore.Weighted
	tasks chan func()
	done  chan struct{}

	stopMutex sync.RWMutex
	stopped   bool
}

func NewCleanupWorker(depth int) *CleanupWorker {
	if depth < 1 {
		depth = 1
	}

	w := &CleanupWorker{
		slots: semaphore.NewWeighted(int64(depth)),
		tasks: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	go w.run()

	return w
}

func (w *CleanupWorker) run() {
	defer close(w.done)

	for task := range w.tasks {
		task()
		w.slots.Release(1)
	}
}

// Enqueue schedules task on the worker. It returns false if the task was executed inline instead.
func (w *CleanupWorker) Enqueue(task func()) bool {
	w.stopMutex.RLock()
	if w.stopped || !w.slots.TryAcquire(1) {
		w.stopMutex.RUnlock()
		task()
		return false
	}

	w.tasks <- task
	w.stopMutex.RUnlock()
	return true
}

// Stop drains every queued task and stops the worker goroutine
func (w *CleanupWorker) Stop() {
	w.stopMutex.Lock()
	if w.stopped {
		w.stopMutex.Unlock()
		return
	}
	w.stopped = true
	close(w.tasks)
	w.stopMutex.Unlock()

	<-w.done
}
