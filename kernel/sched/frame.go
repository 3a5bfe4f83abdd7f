package sched

// Trap addresses planted in switch frames. They live far outside any
// allocatable region, so control reaching one without the port
// intercepting it is immediately visible.
const (
	// exitTrapPC is the return target seeded under a task's entry
	// frame: reached when the entry function returns.
	exitTrapPC uint64 = 0xffff_ffff_dead_0001

	// resumeTrapPC marks the link slot of a frame saved by a context
	// switch (as opposed to a freshly seeded entry frame).
	resumeTrapPC uint64 = 0xffff_ffff_dead_0002
)

// frameBytes is the size of one switch frame on this ISA.
const frameBytes = frameWords * 8

// Port is the architecture context-switch trampoline: the one
// non-portable piece of the scheduler, kept behind a two-slot contract
// so the scheduling policy stays architecture-independent.
//
// Every method is invoked with the scheduler lock held, so the frame
// mechanics are atomic with respect to the switch decision. Switch and
// Handoff may return a continuation; the scheduler runs it after
// releasing the lock, and that is where a port may suspend the calling
// flow of control.
type Port interface {
	// Seed pushes the initial frame onto a never-run task's stack so
	// that restoring it is indistinguishable from restoring a task
	// preempted mid-execution.
	Seed(st *Stack, ip uint64)

	// Switch saves the live context into from and loads the context
	// from to. If it returns a continuation, the caller's flow of
	// control resumes from it only when from is switched back in.
	Switch(from, to *Stack) func()

	// Handoff loads the context from to without saving: the outgoing
	// task is never resumed. from identifies the dying stack so the
	// port can release anything bound to it.
	Handoff(from, to *Stack) func()
}
