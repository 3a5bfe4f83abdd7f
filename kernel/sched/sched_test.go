package sched

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"

	"ember/kernel/handover"
	"ember/kernel/mem"
)

func bootPayload() handover.Payload {
	return handover.Payload{
		Magic:     handover.Magic,
		StackBase: 0x8000,
		StackSize: 0x4000,
		SP:        0xc000,
		IP:        0x1000,
	}
}

func newTestSched(t *testing.T) *Sched {
	t.Helper()
	s, err := New(bootPayload(), Config{Alloc: testAlloc()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func startTask(t *testing.T, s *Sched, name string, ip uint64) Handle {
	t.Helper()
	h, err := s.NewTask(name)
	if err != nil {
		t.Fatalf("NewTask(%q) error = %v", name, err)
	}
	if err := s.Start(h, ip); err != nil {
		t.Fatalf("Start(%q) error = %v", name, err)
	}
	return h
}

func tickN(s *Sched, n int) {
	for i := 0; i < n; i++ {
		s.Schedule()
	}
}

func TestBootSeedsScheduler(t *testing.T) {
	s := newTestSched(t)

	boot := s.CurrentTask()
	if boot.Name() != "boot" {
		t.Fatalf("CurrentTask().Name() = %q, want %q", boot.Name(), "boot")
	}
	if boot.State() != StateRunning {
		t.Fatalf("boot state = %v, want running", boot.State())
	}
	if boot.SliceEnd() != DefaultQuantum {
		t.Fatalf("boot sliceEnd = %d, want %d", boot.SliceEnd(), DefaultQuantum)
	}
	if s.Now() != 0 {
		t.Fatalf("Now() = %d, want 0", s.Now())
	}
}

func TestNewRejectsBadPayload(t *testing.T) {
	p := bootPayload()
	p.Magic = 0
	if _, err := New(p, Config{Alloc: testAlloc()}); err == nil {
		t.Fatalf("New() with bad payload = nil, want error")
	}
}

func TestScheduleIdempotentBeforeExpiry(t *testing.T) {
	s := newTestSched(t)
	h1 := startTask(t, s, "t1", 0x2000)

	before := s.Snapshot()
	tickN(s, int(DefaultQuantum)-1)

	if s.CurrentHandle() != before[0].Handle {
		t.Fatalf("curr changed before slice expiry")
	}
	after := s.Snapshot()
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("task %q mutated before expiry: %+v -> %+v",
				before[i].Name, before[i], after[i])
		}
	}
	if got := s.Lookup(h1).State(); got != StateReady {
		t.Fatalf("t1 state = %v, want ready", got)
	}
}

// Boot plus two started tasks: tick through the quantum boundaries and
// watch round-robin hand the processor over.
func TestSliceExpiryRotation(t *testing.T) {
	s := newTestSched(t)
	boot := s.CurrentHandle()
	h1 := startTask(t, s, "t1", 0x2000)
	h2 := startTask(t, s, "t2", 0x3000)

	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != h1 {
		t.Fatalf("curr after first expiry = %d, want t1 (%d)", s.CurrentHandle(), h1)
	}
	if got := s.Lookup(h1).SliceStart(); got != DefaultQuantum {
		t.Fatalf("t1 sliceStart = %d, want %d", got, DefaultQuantum)
	}
	if got := s.Lookup(h1).SliceEnd(); got != 2*DefaultQuantum {
		t.Fatalf("t1 sliceEnd = %d, want %d", got, 2*DefaultQuantum)
	}

	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != h2 {
		t.Fatalf("curr after second expiry = %d, want t2 (%d)", s.CurrentHandle(), h2)
	}

	// t2 terminates; the rotation continues at boot.
	s.Exit()
	if s.CurrentHandle() != boot {
		t.Fatalf("curr after t2 exit = %d, want boot (%d)", s.CurrentHandle(), boot)
	}
	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("rotation size after exit = %d, want 2", len(snap))
	}
}

func TestRoundRobinOrderWraps(t *testing.T) {
	s := newTestSched(t)
	boot := s.CurrentHandle()
	a := startTask(t, s, "a", 0x2000)
	b := startTask(t, s, "b", 0x3000)
	c := startTask(t, s, "c", 0x4000)

	want := []Handle{a, b, c, boot, a, b, c, boot}
	for i, wh := range want {
		tickN(s, int(DefaultQuantum))
		if got := s.CurrentHandle(); got != wh {
			t.Fatalf("rotation step %d: curr = %d, want %d", i, got, wh)
		}
	}
}

func TestNoStarvation(t *testing.T) {
	s := newTestSched(t)
	const n = 5
	handles := make([]Handle, n)
	for i := range handles {
		handles[i] = startTask(t, s, string(rune('a'+i)), 0x2000+uint64(i)*0x100)
	}

	// One full rotation dispatches every ready task at least once.
	tickN(s, (n+1)*int(DefaultQuantum))
	for i, h := range handles {
		if got := s.Lookup(h).Granted(); got == 0 {
			t.Fatalf("task %d starved: granted = 0 after full rotation", i)
		}
	}
}

func TestGrantedIsNonDecreasing(t *testing.T) {
	s := newTestSched(t)
	h1 := startTask(t, s, "t1", 0x2000)

	var last Tick
	for i := 0; i < 100; i++ {
		tickN(s, 3)
		got := s.Lookup(h1).Granted()
		if got < last {
			t.Fatalf("granted decreased: %d -> %d", last, got)
		}
		last = got
	}
}

func TestExactlyOneRunningTask(t *testing.T) {
	s := newTestSched(t)
	startTask(t, s, "a", 0x2000)
	startTask(t, s, "b", 0x3000)

	for i := 0; i < 50; i++ {
		s.Schedule()
		running := 0
		currSeen := false
		for _, ti := range s.Snapshot() {
			if ti.State == StateRunning {
				running++
			}
			if ti.Handle == s.CurrentHandle() {
				currSeen = true
			}
		}
		if running != 1 {
			t.Fatalf("tick %d: %d running tasks, want 1", i, running)
		}
		if !currSeen {
			t.Fatalf("tick %d: curr not a member of the rotation", i)
		}
	}
}

func TestYieldSwitchesWithoutWaitingForExpiry(t *testing.T) {
	s := newTestSched(t)
	h1 := startTask(t, s, "t1", 0x2000)

	tickN(s, 3)
	s.Yield()
	if s.CurrentHandle() != h1 {
		t.Fatalf("curr after yield = %d, want t1 (%d)", s.CurrentHandle(), h1)
	}
	// Four schedule calls happened in total.
	if s.Now() != 4 {
		t.Fatalf("Now() = %d, want 4", s.Now())
	}
}

func TestBlockSkipsTaskUntilWake(t *testing.T) {
	s := newTestSched(t)
	boot := s.CurrentHandle()
	h1 := startTask(t, s, "t1", 0x2000)
	h2 := startTask(t, s, "t2", 0x3000)

	// Hand the processor to t1, then block it.
	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != h1 {
		t.Fatalf("curr = %d, want t1", s.CurrentHandle())
	}
	s.Block()
	if s.CurrentHandle() != h2 {
		t.Fatalf("curr after block = %d, want t2 (%d)", s.CurrentHandle(), h2)
	}

	// A full rotation skips the blocked task.
	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != boot {
		t.Fatalf("curr = %d, want boot (blocked t1 skipped)", s.CurrentHandle())
	}
	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != h2 {
		t.Fatalf("curr = %d, want t2 (blocked t1 still skipped)", s.CurrentHandle())
	}

	if err := s.Wake(h1); err != nil {
		t.Fatalf("Wake(t1) error = %v", err)
	}
	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != boot {
		t.Fatalf("curr = %d, want boot (rotation order)", s.CurrentHandle())
	}
	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != h1 {
		t.Fatalf("curr = %d, want woken t1", s.CurrentHandle())
	}
}

func TestWakeNonBlockedErrors(t *testing.T) {
	s := newTestSched(t)
	h1 := startTask(t, s, "t1", 0x2000)

	err := s.Wake(h1)
	if err == nil || !strings.Contains(err.Error(), "wake ready") {
		t.Fatalf("Wake(ready) error = %v, want wake-ready error", err)
	}
}

func TestBlockLastRunnableIsFatal(t *testing.T) {
	s := newTestSched(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("Block() of only runnable task did not panic")
		}
	}()
	s.Block()
}

func TestBootTaskCannotExit(t *testing.T) {
	s := newTestSched(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("Exit() of boot task did not panic")
		}
	}()
	s.Exit()
}

func TestStartTwiceErrors(t *testing.T) {
	s := newTestSched(t)
	h, err := s.NewTask("t1")
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	if err := s.Start(h, 0x2000); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(h, 0x2000); err == nil {
		t.Fatalf("second Start() = nil, want error")
	}
}

func TestTaskAllocationFailureIsRecoverable(t *testing.T) {
	alloc := mem.NewAllocator(0x100000, DefaultStackSize+64)
	s, err := New(bootPayload(), Config{Alloc: alloc})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h1, err := s.NewTask("t1")
	if err != nil {
		t.Fatalf("NewTask(t1) error = %v", err)
	}
	if _, err := s.NewTask("t2"); !errors.Is(err, mem.ErrOutOfMemory) {
		t.Fatalf("NewTask(t2) error = %v, want ErrOutOfMemory", err)
	}

	// The failed creation must not disturb existing tasks.
	if err := s.Start(h1, 0x2000); err != nil {
		t.Fatalf("Start(t1) after failed create error = %v", err)
	}
	tickN(s, int(DefaultQuantum))
	if s.CurrentHandle() != h1 {
		t.Fatalf("curr = %d, want t1", s.CurrentHandle())
	}
}

func TestExitedTaskReapedOnceUnreferenced(t *testing.T) {
	s := newTestSched(t)
	startTask(t, s, "t1", 0x2000)
	h2 := startTask(t, s, "t2", 0x3000)

	// Run until t2 holds the processor, then terminate it.
	tickN(s, 2*int(DefaultQuantum))
	if s.CurrentHandle() != h2 {
		t.Fatalf("curr = %d, want t2", s.CurrentHandle())
	}
	s.Exit()

	// Still referenced by the just-switched-from slot.
	if got := s.Lookup(h2).State(); got != StateDead {
		t.Fatalf("t2 state right after exit = %v, want dead", got)
	}

	// Two more switches move the previous-task slot on; the arena slot
	// must then be gone.
	tickN(s, 2*int(DefaultQuantum))
	defer func() {
		if recover() == nil {
			t.Fatalf("Lookup() of reaped handle did not panic")
		}
	}()
	s.Lookup(h2)
}

// A tick interrupt firing during a voluntary yield: both paths contend
// on the scheduler lock, and every observer must still see exactly one
// running task that is a member of the rotation.
func TestConcurrentTickAndYield(t *testing.T) {
	oldProcs := runtime.GOMAXPROCS(4)
	defer runtime.GOMAXPROCS(oldProcs)

	s := newTestSched(t)
	startTask(t, s, "a", 0x2000)
	startTask(t, s, "b", 0x3000)

	const rounds = 2000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.Schedule()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.Yield()
		}
	}()
	wg.Wait()

	running := 0
	currSeen := false
	for _, ti := range s.Snapshot() {
		if ti.State == StateRunning {
			running++
		}
		if ti.Handle == s.CurrentHandle() {
			currSeen = true
		}
		if ti.SliceEnd < ti.SliceStart {
			t.Fatalf("task %q slice inverted: [%d,%d]", ti.Name, ti.SliceStart, ti.SliceEnd)
		}
	}
	if running != 1 {
		t.Fatalf("%d running tasks after concurrent churn, want 1", running)
	}
	if !currSeen {
		t.Fatalf("curr not in rotation after concurrent churn")
	}
	if s.Now() != 2*rounds {
		t.Fatalf("Now() = %d, want %d (one tick per schedule call)", s.Now(), 2*rounds)
	}
}

func TestSingletonLifecycle(t *testing.T) {
	selfMu.Lock()
	saved := self
	self = nil
	selfMu.Unlock()
	defer func() {
		selfMu.Lock()
		self = saved
		selfMu.Unlock()
	}()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("Self() before Init did not panic")
			}
		}()
		Self()
	}()

	s, err := Init(bootPayload(), Config{Alloc: testAlloc()})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if Self() != s {
		t.Fatalf("Self() != Init result")
	}
	if Current().Name() != "boot" {
		t.Fatalf("Current().Name() = %q, want boot", Current().Name())
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("second Init() did not panic")
		}
	}()
	_, _ = Init(bootPayload(), Config{Alloc: testAlloc()})
}
