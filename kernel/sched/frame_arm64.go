//go:build arm64

package sched

// Switch frame for AArch64. Stack layout, low to high:
//
//	sp+0x00 .. sp+0x48  x19-x28
//	sp+0x50             x29 (fp)
//	sp+0x58             x30 (lr)
//
// x19-x28 plus fp/lr are the AAPCS64 callee-saved set.
const frameWords = 12

const linkWord = frameWords - 1

func archSeed(st *Stack, ip uint64) {
	st.PushUint64(exitTrapPC) // entry's return lands on the exit trap
	st.PushUint64(ip)         // lr
	st.PushUint64(0)          // fp
	for i := 0; i < 10; i++ {
		st.PushUint64(0) // x19-x28
	}
}

func archSave(st *Stack) {
	st.PushUint64(resumeTrapPC)
	st.PushUint64(0)
	for i := 0; i < 10; i++ {
		st.PushUint64(0)
	}
}

func archRestore(st *Stack) uint64 {
	sp := st.LoadSP()
	ip := st.ReadUint64(sp + linkWord*8)
	st.SaveSP(sp + frameBytes)
	return ip
}
