// Package handover describes the state the boot loader hands to the
// kernel: where the kernel's own stack lives and where execution stands
// when the scheduler takes over. The scheduler wraps this state into the
// boot task instead of allocating a fresh stack for it.
package handover

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a valid payload ("EMBR").
const Magic = 0x454d4252

// PayloadSize is the encoded size of a Payload in bytes.
const PayloadSize = 40

// Payload describes the kernel's initial execution context.
type Payload struct {
	Magic     uint32
	StackBase uint64 // lowest address of the boot stack
	StackSize uint64
	SP        uint64 // live stack pointer at handover
	IP        uint64 // instruction pointer at handover
}

// Valid checks the payload invariants.
func (p Payload) Valid() error {
	if p.Magic != Magic {
		return fmt.Errorf("handover: bad magic %#x", p.Magic)
	}
	if p.StackSize == 0 {
		return fmt.Errorf("handover: zero-size boot stack")
	}
	if p.SP < p.StackBase || p.SP > p.StackBase+p.StackSize {
		return fmt.Errorf("handover: sp %#x outside boot stack [%#x,%#x]",
			p.SP, p.StackBase, p.StackBase+p.StackSize)
	}
	return nil
}

// EncodePayload encodes the payload in the wire layout (little-endian):
//
//   - u32: magic
//   - u32: reserved (zero)
//   - u64: stack base
//   - u64: stack size
//   - u64: sp
//   - u64: ip
func EncodePayload(p Payload) []byte {
	buf := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.Magic)
	binary.LittleEndian.PutUint64(buf[8:16], p.StackBase)
	binary.LittleEndian.PutUint64(buf[16:24], p.StackSize)
	binary.LittleEndian.PutUint64(buf[24:32], p.SP)
	binary.LittleEndian.PutUint64(buf[32:40], p.IP)
	return buf
}

// DecodePayload decodes and validates an encoded payload.
func DecodePayload(buf []byte) (Payload, error) {
	if len(buf) < PayloadSize {
		return Payload{}, fmt.Errorf("handover: short payload: %d bytes", len(buf))
	}
	p := Payload{
		Magic:     binary.LittleEndian.Uint32(buf[0:4]),
		StackBase: binary.LittleEndian.Uint64(buf[8:16]),
		StackSize: binary.LittleEndian.Uint64(buf[16:24]),
		SP:        binary.LittleEndian.Uint64(buf[24:32]),
		IP:        binary.LittleEndian.Uint64(buf[32:40]),
	}
	if err := p.Valid(); err != nil {
		return Payload{}, err
	}
	return p, nil
}
