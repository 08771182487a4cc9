package deps

import "fmt"

type connection struct {
	consumer *Consumer
	resource *Resource
	mode     Mode
	ready    bool
}

// Resource is anything consumers read or write: a surface, a heap. Connections are satisfied in
// the order they were made. A read waits for every earlier write and a write waits for every
// earlier connection.
type Resource struct {
	system      *System
	owner       any
	connections []*connection
}

func (r *Resource) Owner() any {
	return r.owner
}

// ConnectionCount returns the number of consumers currently connected
func (r *Resource) ConnectionCount() int {
	r.system.mutex.Lock()
	defer r.system.mutex.Unlock()

	return len(r.connections)
}

func (r *Resource) readyFor(mode Mode) bool {
	if mode == ModeWrite {
		return len(r.connections) == 0
	}

	for _, conn := range r.connections {
		if conn.mode == ModeWrite {
			return false
		}
	}

	return true
}

func (r *Resource) usedByOthers(consumer *Consumer) bool {
	for _, conn := range r.connections {
		if conn.consumer != consumer {
			return true
		}
	}

	return false
}

// remove drops conn and returns the connections that became satisfied as a result
func (r *Resource) remove(conn *connection) []*connection {
	for i, candidate := range r.connections {
		if candidate == conn {
			copy(r.connections[i:], r.connections[i+1:])
			r.connections[len(r.connections)-1] = nil
			r.connections = r.connections[:len(r.connections)-1]
			break
		}
	}

	return r.promote()
}

func (r *Resource) promote() []*connection {
	var ready []*connection
	sawAny := false
	sawWrite := false

	for _, conn := range r.connections {
		if !conn.ready {
			if (conn.mode == ModeRead && !sawWrite) || (conn.mode == ModeWrite && !sawAny) {
				conn.ready = true
				ready = append(ready, conn)
			}
		}

		sawAny = true
		if conn.mode == ModeWrite {
			sawWrite = true
		}
	}

	return ready
}

// ReleaseConnections forcibly drops every connection to this resource. Consumers that were still
// waiting on it are woken, with their error flag set if abort is true.
func (r *Resource) ReleaseConnections(abort bool) {
	r.system.mutex.Lock()
	var waiting []*connection
	for _, conn := range r.connections {
		conn.consumer.connections.Delete(r)
		if !conn.ready {
			if abort {
				conn.consumer.errorSet = true
			}
			waiting = append(waiting, conn)
		}
	}
	r.connections = nil
	r.system.mutex.Unlock()

	r.system.wake(waiting)
}

func (r *Resource) String() string {
	return fmt.Sprintf("Resource(%v)", r.owner)
}
