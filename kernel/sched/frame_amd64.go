//go:build amd64

package sched

// Switch frame for x86-64. Stack layout, low to high:
//
//	sp+0x00  rbx
//	sp+0x08  rbp
//	sp+0x10  r12
//	sp+0x18  r13
//	sp+0x20  r14
//	sp+0x28  r15
//	sp+0x30  rflags
//	sp+0x38  return address
//
// Only the callee-saved set is in the frame; everything else is
// caller-saved and already on the stack per the SysV ABI.
const frameWords = 8

// initialFlags has IF set so a fresh task starts with interrupts
// enabled, plus the always-one reserved bit.
const initialFlags uint64 = 0x202

const linkWord = frameWords - 1

func archSeed(st *Stack, ip uint64) {
	st.PushUint64(exitTrapPC) // entry's return lands on the exit trap
	st.PushUint64(ip)
	st.PushUint64(initialFlags)
	for i := 0; i < 6; i++ {
		st.PushUint64(0) // rbx, rbp, r12-r15
	}
}

func archSave(st *Stack) {
	st.PushUint64(resumeTrapPC)
	st.PushUint64(initialFlags)
	for i := 0; i < 6; i++ {
		st.PushUint64(0)
	}
}

func archRestore(st *Stack) uint64 {
	sp := st.LoadSP()
	ip := st.ReadUint64(sp + linkWord*8)
	st.SaveSP(sp + frameBytes)
	return ip
}
