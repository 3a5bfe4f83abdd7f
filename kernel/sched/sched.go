// Package sched is the kernel's preemptible task scheduler: it owns
// every execution context, multiplexes the single processor across them
// round-robin with a fixed time slice, and performs the context switch
// between them.
//
// Exactly one task runs at a time. Every mutation of the rotation, the
// tick counter, and the current/next slots happens under one lock,
// because the timer interrupt can preempt a voluntary switch even on a
// single core.
package sched

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"ember/hal"
	"ember/kernel/handover"
	"ember/kernel/mem"
)

// DefaultQuantum is the time slice, in ticks, granted per dispatch.
const DefaultQuantum Tick = 10

// Config carries the scheduler's collaborators and tuning.
type Config struct {
	// Alloc is the physical memory allocator stacks are carved from.
	// Required.
	Alloc *mem.Allocator

	// Port performs the architecture context transfer. Defaults to the
	// pure frame port.
	Port Port

	// Quantum is the slice length in ticks. Defaults to DefaultQuantum.
	Quantum Tick

	// StackSize is the stack size for new tasks. Defaults to
	// DefaultStackSize.
	StackSize uint64

	// Log receives boot and lifecycle lines. Optional.
	Log hal.Logger

	// Metrics registers scheduler metrics when set. Optional.
	Metrics prometheus.Registerer
}

// Sched is the process-wide authority over what runs now.
type Sched struct {
	mu   sync.Mutex
	tick Tick

	arena arena
	run   []Handle // rotation, insertion order

	boot Handle
	curr Handle
	next Handle
	prev Handle // just switched from; pins its arena slot until the next switch

	quantum   Tick
	stackSize uint64
	alloc     *mem.Allocator
	port      Port
	log       hal.Logger
	metrics   *metrics
}

var (
	selfMu sync.Mutex
	self   *Sched
)

// Init performs the process-wide one-time initialization: it wraps the
// kernel's already-executing context described by the handover payload
// into the boot task and installs the singleton.
//
// Init must be called exactly once, before any interrupt that could
// invoke Schedule is enabled. A second call is a fatal programming
// error.
func Init(p handover.Payload, cfg Config) (*Sched, error) {
	selfMu.Lock()
	defer selfMu.Unlock()
	if self != nil {
		panic("sched: Init called twice")
	}
	s, err := New(p, cfg)
	if err != nil {
		return nil, err
	}
	self = s
	return s, nil
}

// Self returns the process-wide scheduler. Calling it before Init is a
// fatal programming error.
func Self() *Sched {
	selfMu.Lock()
	defer selfMu.Unlock()
	if self == nil {
		panic("sched: Self before Init")
	}
	return self
}

// Current returns the task representing the currently executing
// context.
func Current() *Task {
	return Self().CurrentTask()
}

// New constructs a scheduler seeded with the boot task. Most callers
// want Init; New exists for embedding and tests, where a process-wide
// singleton would bleed state between instances.
func New(p handover.Payload, cfg Config) (*Sched, error) {
	if err := p.Valid(); err != nil {
		return nil, err
	}
	if cfg.Alloc == nil {
		return nil, fmt.Errorf("sched: config without allocator")
	}
	if cfg.Port == nil {
		cfg.Port = NewFramePort()
	}
	if cfg.Quantum == 0 {
		cfg.Quantum = DefaultQuantum
	}
	if cfg.StackSize == 0 {
		cfg.StackSize = DefaultStackSize
	}

	region, err := cfg.Alloc.Adopt(mem.Addr(p.StackBase), p.StackSize)
	if err != nil {
		return nil, fmt.Errorf("sched: boot stack: %w", err)
	}

	s := &Sched{
		quantum:   cfg.Quantum,
		stackSize: cfg.StackSize,
		alloc:     cfg.Alloc,
		port:      cfg.Port,
		log:       cfg.Log,
		metrics:   newMetrics(cfg.Metrics),
	}

	boot := &Task{
		name:     "boot",
		stack:    AdoptStack(region, mem.Addr(p.SP)),
		state:    StateRunning,
		entryIP:  p.IP,
		sliceEnd: s.quantum,
	}
	h := s.arena.insert(boot)
	s.boot = h
	s.curr = h
	s.next = h
	s.run = []Handle{h}
	s.metrics.setTasks(1)
	s.logf("sched: boot task up, quantum=%d ticks", s.quantum)
	return s, nil
}

// NewTask allocates a stack and wraps it into a new task. The task is
// not yet in the rotation; Start registers it.
func (s *Sched) NewTask(name string) (Handle, error) {
	st, err := NewStackSize(s.alloc, s.stackSize)
	if err != nil {
		return None, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.arena.insert(&Task{name: name, stack: st, state: StateNew})
	s.metrics.setTasks(s.arena.live())
	return h, nil
}

// Start registers the task into the rotation, set to begin executing at
// ip the next time it is scheduled. It uses the task's just-allocated
// stack pointer.
func (s *Sched) Start(h Handle, ip uint64) error {
	s.mu.Lock()
	sp := s.arena.task(h).stack.LoadSP()
	s.mu.Unlock()
	return s.StartSP(h, ip, sp)
}

// StartSP is Start with an explicit initial stack pointer.
//
// It seeds the architecture initial frame onto the task's stack so the
// generic restore path treats the task exactly like one switched out
// mid-execution. Newly started tasks append to the rotation and are
// picked after all earlier tasks have had a turn.
func (s *Sched) StartSP(h Handle, ip uint64, sp mem.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.arena.task(h)
	if t.state != StateNew {
		return fmt.Errorf("sched: start %s task %q", t.state, t.name)
	}
	t.stack.SaveSP(sp)
	s.port.Seed(&t.stack, ip)
	t.entryIP = ip
	t.state = StateReady
	s.run = append(s.run, h)
	s.logf("sched: task %q ready at ip=%#x", t.name, ip)
	return nil
}

// Schedule is the timer-tick handler and the core switch algorithm.
//
// It advances the logical clock, returns cheaply while the current
// slice is unexpired, and otherwise dispatches the next ready task in
// rotation order. It cannot fail: it runs in interrupt context where
// error propagation is meaningless, and an empty rotation is a fatal
// kernel condition (the boot task never terminates).
//
// When Schedule switches, the call appears to return only once the
// calling task is eventually dispatched again; control meanwhile
// resumes in whichever task was switched to.
func (s *Sched) Schedule() {
	s.reschedule(true)
}

// Yield gives up the remainder of the current slice voluntarily.
func (s *Sched) Yield() {
	s.mu.Lock()
	s.arena.task(s.curr).sliceEnd = s.tick
	s.mu.Unlock()
	s.metrics.onYield()
	s.reschedule(false)
}

// Block parks the current task until Wake. It must not be the only
// runnable task.
func (s *Sched) Block() {
	s.mu.Lock()
	t := s.arena.task(s.curr)
	t.state = StateBlocked
	t.sliceEnd = s.tick
	s.mu.Unlock()
	s.reschedule(false)
}

// Wake makes a blocked task eligible again. It re-enters the rotation
// at its original position.
func (s *Sched) Wake(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.arena.task(h)
	if t.state != StateBlocked {
		return fmt.Errorf("sched: wake %s task %q", t.state, t.name)
	}
	t.state = StateReady
	return nil
}

// Exit terminates the current task and switches away for good. The
// task leaves the rotation immediately; its arena slot is reaped once
// no scheduler slot references it. The boot task cannot exit.
//
// On a real port Exit does not return.
func (s *Sched) Exit() {
	s.mu.Lock()
	h := s.curr
	if h == s.boot {
		panic("sched: boot task cannot exit")
	}
	t := s.arena.task(h)
	t.state = StateDead
	t.granted += s.tick - t.sliceStart

	ci := s.indexOfLocked(h)
	s.run = append(s.run[:ci], s.run[ci+1:]...)

	nh := s.pickAfterLocked(ci - 1)
	nt := s.arena.task(nh)
	nt.state = StateRunning
	nt.sliceStart = s.tick
	nt.sliceEnd = s.tick + s.quantum
	s.prev = h
	s.curr = nh
	s.next = nh
	s.metrics.onSwitch(false)
	s.logf("sched: task %q exited after %d ticks", t.name, t.granted)
	resume := s.port.Handoff(&t.stack, &nt.stack)
	s.mu.Unlock()
	if resume != nil {
		resume()
	}
}

func (s *Sched) reschedule(preempt bool) {
	s.mu.Lock()
	s.reapLocked()
	s.tick++
	s.metrics.onTick()

	curr := s.arena.task(s.curr)
	if curr.state == StateRunning && s.tick < curr.sliceEnd {
		s.mu.Unlock()
		return
	}

	nh := s.pickAfterLocked(s.indexOfLocked(s.curr))
	curr.granted += s.tick - curr.sliceStart
	nt := s.arena.task(nh)
	nt.sliceStart = s.tick
	nt.sliceEnd = s.tick + s.quantum
	s.next = nh
	if nh == s.curr {
		// Only one runnable task: fresh slice, no switch.
		s.mu.Unlock()
		return
	}

	if curr.state == StateRunning {
		curr.state = StateReady
	}
	nt.state = StateRunning
	s.prev = s.curr
	s.curr = nh
	s.metrics.onSwitch(preempt)

	resume := s.port.Switch(&curr.stack, &nt.stack)
	s.mu.Unlock()
	if resume != nil {
		resume()
	}
}

// pickAfterLocked selects the next ready task scanning the rotation
// after index from, wrapping. The current task wins only if nothing
// else is ready and it is still running.
func (s *Sched) pickAfterLocked(from int) Handle {
	n := len(s.run)
	for i := 1; i <= n; i++ {
		h := s.run[((from+i)%n+n)%n]
		t := s.arena.task(h)
		if h == s.curr {
			if t.state == StateRunning {
				return h
			}
			continue
		}
		if t.state == StateReady {
			return h
		}
	}
	panic("sched: no runnable task")
}

func (s *Sched) indexOfLocked(h Handle) int {
	for i, rh := range s.run {
		if rh == h {
			return i
		}
	}
	panic(fmt.Sprintf("sched: handle %d not in rotation", h))
}

// reapLocked frees dead tasks no scheduler slot references anymore.
func (s *Sched) reapLocked() {
	for i, t := range s.arena.slots {
		if t == nil || t.state != StateDead {
			continue
		}
		h := Handle(i + 1)
		if h == s.curr || h == s.next || h == s.prev {
			continue
		}
		s.arena.remove(h)
	}
	s.metrics.setTasks(s.arena.live())
}

// Now returns the scheduler's logical clock.
func (s *Sched) Now() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// CurrentHandle returns the handle of the running task.
func (s *Sched) CurrentHandle() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curr
}

// CurrentTask returns the running task. The returned task is owned by
// the scheduler; only the task itself may inspect it while running.
func (s *Sched) CurrentTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.task(s.curr)
}

// Lookup resolves a handle. Resolving a freed handle is fatal.
func (s *Sched) Lookup(h Handle) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.task(h)
}

// TaskInfo is a point-in-time copy of a task's accounting.
type TaskInfo struct {
	Handle     Handle
	Name       string
	State      State
	SliceStart Tick
	SliceEnd   Tick
	Granted    Tick
}

// Snapshot returns accounting for every live task, rotation first.
func (s *Sched) Snapshot() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.run))
	for _, h := range s.run {
		t := s.arena.task(h)
		out = append(out, TaskInfo{
			Handle:     h,
			Name:       t.name,
			State:      t.state,
			SliceStart: t.sliceStart,
			SliceEnd:   t.sliceEnd,
			Granted:    t.granted,
		})
	}
	return out
}

func (s *Sched) logf(format string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.WriteLineString(fmt.Sprintf(format, args...))
}
