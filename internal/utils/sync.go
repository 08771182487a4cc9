package utils

import (
	"sync"
)

type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

// BusyLock is held on behalf of hardware for as long as a job may touch memory it guards. It is
// acquired on the submitting goroutine and released from whichever goroutine observes completion,
// so it has no owner.
type BusyLock struct {
	mutex sync.Mutex
}

func (l *BusyLock) Lock() {
	l.mutex.Lock()
}

func (l *BusyLock) Unlock() {
	l.mutex.Unlock()
}

func (l *BusyLock) TryLock() bool {
	return l.mutex.TryLock()
}

// Wait blocks until the lock is free
func (l *BusyLock) Wait() {
	l.mutex.Lock()
	l.mutex.Unlock()
}
