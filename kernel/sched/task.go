package sched

// Tick is one unit of the scheduler's logical clock, advanced once per
// timer interrupt.
type Tick uint64

// State is a task's scheduling state.
type State uint8

const (
	// StateNew: created, stack allocated, not yet registered.
	StateNew State = iota
	// StateReady: in the rotation, eligible to be picked as next.
	StateReady
	// StateRunning: the current task.
	StateRunning
	// StateBlocked: in the rotation but skipped until woken.
	StateBlocked
	// StateDead: removed from the rotation, awaiting reap.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Task is one schedulable execution context: a stack plus accounting.
//
// Tasks are owned by the scheduler's arena and referred to by Handle
// everywhere else. The slice fields are written only by the scheduler
// at dispatch; Task itself computes nothing.
type Task struct {
	handle Handle
	name   string
	stack  Stack

	state      State
	entryIP    uint64
	sliceStart Tick
	sliceEnd   Tick
	granted    Tick // total ticks consumed across all slices
}

// Handle returns the task's stable arena handle.
func (t *Task) Handle() Handle { return t.handle }

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Stack returns the task's stack, for the context-switch code.
func (t *Task) Stack() *Stack { return &t.stack }

// State returns the task's scheduling state.
func (t *Task) State() State { return t.state }

// SliceStart returns the tick at which the current slice began.
func (t *Task) SliceStart() Tick { return t.sliceStart }

// SliceEnd returns the tick at which the current slice expires.
func (t *Task) SliceEnd() Tick { return t.sliceEnd }

// Granted returns the total ticks the task has consumed.
func (t *Task) Granted() Tick { return t.granted }
