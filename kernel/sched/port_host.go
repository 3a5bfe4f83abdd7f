package sched

import (
	"fmt"
	"sync"
)

// HostPort is the hosted context switch: frame mechanics identical to
// FramePort, plus actual transfer of control. Each task body runs on a
// goroutine parked on a per-stack gate; switching a task in hands its
// gate a token, switching out parks on one's own gate. At any moment
// exactly one task goroutine is unparked, which is precisely the
// single-processor contract.
//
// Entry points are registered functions addressed by synthetic
// instruction pointers, so the portable scheduler keeps trafficking in
// plain addresses.
type HostPort struct {
	mu      sync.Mutex
	nextPC  uint64
	entries map[uint64]func()
	gates   map[*Stack]chan struct{}
	onExit  func()
}

// hostPCBase keeps synthetic entry addresses clear of the trap range
// and of anything the allocator hands out.
const hostPCBase uint64 = 0x4000_0000

// NewHostPort creates a hosted switch port.
func NewHostPort() *HostPort {
	return &HostPort{
		nextPC:  hostPCBase,
		entries: make(map[uint64]func()),
		gates:   make(map[*Stack]chan struct{}),
	}
}

// Register assigns an instruction pointer to an entry function. The
// returned address is what Start expects.
func (p *HostPort) Register(fn func()) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextPC += 16
	p.entries[p.nextPC] = fn
	return p.nextPC
}

// OnExit installs the handler run when an entry function returns,
// normally the scheduler's Exit. A task returning with no handler is
// fatal: there is nowhere for control to go.
func (p *HostPort) OnExit(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExit = fn
}

func (p *HostPort) Seed(st *Stack, ip uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[ip]; !ok {
		panic(fmt.Sprintf("sched: seed with unregistered ip %#x", ip))
	}
	archSeed(st, ip)
}

func (p *HostPort) Switch(from, to *Stack) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	archSave(from)
	gate := p.gateLocked(from)
	p.resumeLocked(to)

	// Park until this task is switched back in. Control resumes in a
	// different scheduling epoch.
	return func() { <-gate }
}

func (p *HostPort) Handoff(from, to *Stack) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumeLocked(to)
	delete(p.gates, from)
	return nil
}

// resumeLocked restores to's frame and transfers control. A frame saved
// by a switch carries the resume trap and has a parked goroutine; a
// seeded frame carries a registered entry address and gets its
// goroutine spawned here.
func (p *HostPort) resumeLocked(to *Stack) {
	ip := archRestore(to)
	gate := p.gateLocked(to)
	if ip != resumeTrapPC {
		fn, ok := p.entries[ip]
		if !ok {
			panic(fmt.Sprintf("sched: switch into unregistered ip %#x", ip))
		}
		go p.runTask(gate, fn)
	}
	gate <- struct{}{}
}

func (p *HostPort) runTask(gate chan struct{}, fn func()) {
	<-gate
	fn()

	p.mu.Lock()
	exit := p.onExit
	p.mu.Unlock()
	if exit == nil {
		panic("sched: task returned with no exit handler")
	}
	exit()
}

func (p *HostPort) gateLocked(st *Stack) chan struct{} {
	gate, ok := p.gates[st]
	if !ok {
		gate = make(chan struct{}, 1)
		p.gates[st] = gate
	}
	return gate
}
