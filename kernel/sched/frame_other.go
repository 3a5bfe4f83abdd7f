//go:build !amd64 && !arm64

package sched

// Generic switch frame for targets without a dedicated layout: a link
// slot plus seven synthetic register words. Good enough for hosted
// simulation; real targets get their own file.
const frameWords = 8

const linkWord = frameWords - 1

func archSeed(st *Stack, ip uint64) {
	st.PushUint64(exitTrapPC)
	st.PushUint64(ip)
	for i := 0; i < frameWords-1; i++ {
		st.PushUint64(0)
	}
}

func archSave(st *Stack) {
	st.PushUint64(resumeTrapPC)
	for i := 0; i < frameWords-1; i++ {
		st.PushUint64(0)
	}
}

func archRestore(st *Stack) uint64 {
	sp := st.LoadSP()
	ip := st.ReadUint64(sp + linkWord*8)
	st.SaveSP(sp + frameBytes)
	return ip
}
