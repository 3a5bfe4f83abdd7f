package sched

// FramePort is the pure-data context switch: it performs the register
// save/restore byte mechanics on the two stacks and nothing else. It
// carries no flow of control, which makes it the port for tests and for
// embeddings that drive task bodies themselves.
//
// The scheduler invokes every port method under its lock, which is the
// moral equivalent of the trampoline running with interrupts disabled;
// FramePort therefore needs no locking of its own.
type FramePort struct{}

// NewFramePort creates a frame-only switch port.
func NewFramePort() *FramePort {
	return &FramePort{}
}

func (p *FramePort) Seed(st *Stack, ip uint64) {
	archSeed(st, ip)
}

func (p *FramePort) Switch(from, to *Stack) func() {
	archSave(from)
	archRestore(to)
	return nil
}

func (p *FramePort) Handoff(from, to *Stack) func() {
	archRestore(to)
	return nil
}
