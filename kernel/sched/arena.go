package sched

import "fmt"

// Handle is a stable reference to a task in the scheduler's arena.
//
// Handles replace shared-ownership pointers: the current/next/previous
// slots and the rotation all hold handles, and a slot is freed only
// once no slot references it. The zero Handle is never valid.
type Handle uint32

// None is the invalid handle.
const None Handle = 0

// arena owns every live task. Slots are reused through a free list, so
// a handle stays valid for exactly as long as its task is alive.
type arena struct {
	slots []*Task
	free  []uint32
}

func (a *arena) insert(t *Task) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = t
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, t)
	}
	t.handle = Handle(idx + 1)
	return t.handle
}

// task resolves a handle. Resolving an invalid or freed handle is a
// fatal programming error: the scheduler must never switch into a task
// it does not own.
func (a *arena) task(h Handle) *Task {
	if h == None || int(h) > len(a.slots) || a.slots[h-1] == nil {
		panic(fmt.Sprintf("sched: invalid task handle %d", h))
	}
	return a.slots[h-1]
}

func (a *arena) remove(h Handle) {
	t := a.task(h)
	a.slots[h-1] = nil
	a.free = append(a.free, uint32(h-1))
	t.handle = None
}

func (a *arena) live() int {
	return len(a.slots) - len(a.free)
}
