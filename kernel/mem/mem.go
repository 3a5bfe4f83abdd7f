// Package mem provides the physical memory allocator for the kernel.
//
// Memory is modeled as a single flat address space. The allocator is a
// bump allocator: regions are carved off the front and never returned.
// That is enough for kernel boot and task stacks; anything fancier lives
// above this layer.
package mem

import (
	"errors"
	"fmt"
)

// Addr is an address in the simulated physical address space.
type Addr uint64

// ErrOutOfMemory is returned when an allocation cannot be satisfied.
var ErrOutOfMemory = errors.New("mem: out of memory")

const regionAlign = 16

// Region is a contiguous span of physical memory.
type Region struct {
	base Addr
	buf  []byte
}

// NewRegion wraps a backing buffer at the given base address.
func NewRegion(base Addr, buf []byte) Region {
	return Region{base: base, buf: buf}
}

// Base returns the lowest address of the region.
func (r Region) Base() Addr { return r.base }

// Size returns the region size in bytes.
func (r Region) Size() uint64 { return uint64(len(r.buf)) }

// End returns the first address past the region.
func (r Region) End() Addr { return r.base + Addr(len(r.buf)) }

// Bytes returns the backing buffer.
func (r Region) Bytes() []byte { return r.buf }

// Contains reports whether addr lies within the region.
func (r Region) Contains(addr Addr) bool {
	return addr >= r.base && addr < r.End()
}

// WriteAt copies p into the region at addr.
//
// Writing outside the region is a fatal programming error.
func (r Region) WriteAt(addr Addr, p []byte) {
	off := r.offset(addr, len(p))
	copy(r.buf[off:], p)
}

// ReadAt copies len(p) bytes from the region at addr into p.
func (r Region) ReadAt(addr Addr, p []byte) {
	off := r.offset(addr, len(p))
	copy(p, r.buf[off:])
}

func (r Region) offset(addr Addr, n int) uint64 {
	if addr < r.base || addr+Addr(n) > r.End() {
		panic(fmt.Sprintf("mem: access [%#x,%#x) outside region [%#x,%#x)",
			uint64(addr), uint64(addr)+uint64(n), uint64(r.base), uint64(r.End())))
	}
	return uint64(addr - r.base)
}

// Allocator hands out regions from a fixed arena.
type Allocator struct {
	base Addr
	size uint64
	next uint64
}

// NewAllocator creates an allocator managing size bytes starting at base.
func NewAllocator(base Addr, size uint64) *Allocator {
	return &Allocator{base: base, size: size}
}

// Alloc carves a region of the requested size off the arena.
func (a *Allocator) Alloc(size uint64) (Region, error) {
	if size == 0 {
		return Region{}, fmt.Errorf("mem: zero-size allocation")
	}
	aligned := (a.next + regionAlign - 1) &^ uint64(regionAlign-1)
	if aligned+size > a.size {
		return Region{}, ErrOutOfMemory
	}
	a.next = aligned + size
	return Region{base: a.base + Addr(aligned), buf: make([]byte, size)}, nil
}

// Adopt wraps an already-live span (the boot stack) without allocating.
//
// The span must not overlap the allocator's own arena.
func (a *Allocator) Adopt(base Addr, size uint64) (Region, error) {
	if size == 0 {
		return Region{}, fmt.Errorf("mem: zero-size adoption")
	}
	if base < a.base+Addr(a.size) && base+Addr(size) > a.base {
		return Region{}, fmt.Errorf("mem: adopted span [%#x,%#x) overlaps arena [%#x,%#x)",
			uint64(base), uint64(base)+size, uint64(a.base), uint64(a.base)+a.size)
	}
	return Region{base: base, buf: make([]byte, size)}, nil
}

// Used returns the number of bytes handed out so far.
func (a *Allocator) Used() uint64 { return a.next }

// Free returns the number of bytes still available.
func (a *Allocator) Free() uint64 { return a.size - a.next }
