package sched

import (
	"encoding/binary"
	"fmt"

	"ember/kernel/mem"
)

// DefaultStackSize is the stack size for newly created tasks.
const DefaultStackSize = 16 * 1024

// Stack is a task's call stack: a fixed region of memory growing
// downward, plus the saved stack pointer.
//
// Before a task first runs, the stack is seeded by pushes; afterwards
// the pointer only moves through SaveSP/LoadSP in the context switch.
// A Stack is a passive container: it has no locking of its own and is
// only touched by its task or by the switch primitive.
type Stack struct {
	region mem.Region
	sp     mem.Addr
}

// NewStack allocates a stack of the default size.
//
// The stack pointer starts at the top of the region (an empty stack).
func NewStack(alloc *mem.Allocator) (Stack, error) {
	return NewStackSize(alloc, DefaultStackSize)
}

// NewStackSize allocates a stack of the given size.
func NewStackSize(alloc *mem.Allocator, size uint64) (Stack, error) {
	region, err := alloc.Alloc(size)
	if err != nil {
		return Stack{}, fmt.Errorf("sched: stack allocation: %w", err)
	}
	return Stack{region: region, sp: region.End()}, nil
}

// AdoptStack wraps an already-live region (the boot stack) with the
// given live stack pointer.
func AdoptStack(region mem.Region, sp mem.Addr) Stack {
	st := Stack{region: region}
	st.SaveSP(sp)
	return st
}

// Base returns the lowest valid stack address.
func (s *Stack) Base() mem.Addr { return s.region.Base() }

// Top returns the address one past the stack (the initial sp).
func (s *Stack) Top() mem.Addr { return s.region.End() }

// Size returns the stack capacity in bytes.
func (s *Stack) Size() uint64 { return s.region.Size() }

// Push decrements sp by len(b) and copies b there.
//
// Overflowing past the base is a fatal programming error, not a
// recoverable condition: the stack has fixed capacity.
func (s *Stack) Push(b []byte) {
	if uint64(len(b)) > uint64(s.sp-s.Base()) {
		panic(fmt.Sprintf("sched: stack overflow: push %d bytes with %d free",
			len(b), uint64(s.sp-s.Base())))
	}
	s.sp -= mem.Addr(len(b))
	s.region.WriteAt(s.sp, b)
}

// PushUint64 pushes the little-endian bit pattern of v.
func (s *Stack) PushUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	s.Push(buf[:])
}

// PushAddr pushes an address as a word.
func (s *Stack) PushAddr(a mem.Addr) {
	s.PushUint64(uint64(a))
}

// ReadUint64 reads the word at addr without moving sp.
func (s *Stack) ReadUint64(addr mem.Addr) uint64 {
	var buf [8]byte
	s.region.ReadAt(addr, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// SaveSP records the stack pointer. Invoked by the context-switch
// primitive, once per switch.
func (s *Stack) SaveSP(sp mem.Addr) {
	if sp < s.Base() || sp > s.Top() {
		panic(fmt.Sprintf("sched: sp %#x outside stack [%#x,%#x]",
			uint64(sp), uint64(s.Base()), uint64(s.Top())))
	}
	s.sp = sp
}

// LoadSP retrieves the saved stack pointer.
func (s *Stack) LoadSP() mem.Addr { return s.sp }
