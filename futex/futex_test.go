package futex

import (
	"testing"
	"time"

	"oops/defs"
	"oops/fd"
	"oops/mem"
	"oops/sched"
	"oops/swap"
	"oops/task"
	"oops/vm"
)

// memBacking is the same throwaway swap.Backing test double trap_test.go
// uses: an in-memory []byte satisfying ReadAt/WriteAt.
type memBacking struct{ buf []byte }

func (m *memBacking) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m.buf[off:]), nil }
func (m *memBacking) WriteAt(p []byte, off int64) (int, error) { return copy(m.buf[off:], p), nil }

const futexVA = 0x40000

func newTestTask(t *testing.T) (*vm.AddressSpace, *task.Task_t) {
	fa := mem.NewFrameAllocator(32)
	sw := swap.New(&memBacking{buf: make([]byte, 16*mem.PGSIZE)}, 8)
	as, e := vm.New(fa, sw)
	if e != 0 {
		t.Fatalf("vm.New: %d", e)
	}
	as.AddAnon(futexVA, mem.PGSIZE, vm.PROT_READ|vm.PROT_WRITE, false)
	if e := as.Fault(futexVA, true); e != 0 {
		t.Fatalf("fault in futex page: %d", e)
	}
	tk := task.NewProcess(as, &fd.Fd_t{})
	return as, tk
}

func putU32(t *testing.T, as *vm.AddressSpace, va uintptr, val uint32) {
	buf := []byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)}
	if _, err := vm.NewUserbuf(as, va, 4).Uiowrite(buf); err != 0 {
		t.Fatalf("stage futex word: %d", err)
	}
}

func TestWaitReturnsEAGAINOnValueMismatch(t *testing.T) {
	as, tk := newTestTask(t)
	putU32(t, as, futexVA, 1)

	tm := sched.New()
	if err := Wait(tm, tk, as, futexVA, 2, 0); err != -defs.EAGAIN {
		t.Fatalf("Wait = %d, want -EAGAIN", err)
	}
}

func TestWakeWakesABlockedWaiter(t *testing.T) {
	as, tk := newTestTask(t)
	putU32(t, as, futexVA, 0)
	tm := sched.New()

	done := make(chan defs.Err_t, 1)
	go func() { done <- Wait(tm, tk, as, futexVA, 0, 0) }()

	// Give the waiter a chance to register before waking it.
	time.Sleep(20 * time.Millisecond)
	if n := Wake(tm, as, futexVA, 1); n != 1 {
		t.Fatalf("Wake woke %d tasks, want 1", n)
	}

	select {
	case err := <-done:
		if err != 0 {
			t.Fatalf("Wait returned %d after a genuine wake, want 0", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func TestWakeOnEmptyChannelWakesNothing(t *testing.T) {
	as, _ := newTestTask(t)
	tm := sched.New()
	if n := Wake(tm, as, futexVA, 3); n != 0 {
		t.Fatalf("Wake on an empty channel woke %d, want 0", n)
	}
}

func TestRequeueMovesRemainingWaitersWithoutWakingThem(t *testing.T) {
	as, _ := newTestTask(t)
	tm := sched.New()

	const va2 = futexVA + mem.PGSIZE
	as.AddAnon(va2, mem.PGSIZE, vm.PROT_READ|vm.PROT_WRITE, false)
	if e := as.Fault(va2, true); e != 0 {
		t.Fatalf("fault in second futex page: %d", e)
	}
	putU32(t, as, va2, 0)

	results := make(chan defs.Err_t, 2)
	for i := 0; i < 2; i++ {
		tk := task.NewProcess(as, &fd.Fd_t{})
		go func() { results <- Wait(tm, tk, as, futexVA, 0, 0) }()
	}
	time.Sleep(20 * time.Millisecond)

	woken := Requeue(tm, as, futexVA, va2, 1, 1)
	if woken != 1 {
		t.Fatalf("Requeue woke %d, want 1 (n1=1)", woken)
	}

	select {
	case err := <-results:
		if err != 0 {
			t.Fatalf("woken waiter returned %d, want 0", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected one waiter woken immediately by Requeue")
	}

	// The other waiter should now be parked on va2, not va1.
	if n := Wake(tm, as, futexVA, 1); n != 0 {
		t.Fatalf("no waiters should remain on va1, but Wake woke %d", n)
	}
	if n := Wake(tm, as, va2, 1); n != 1 {
		t.Fatalf("requeued waiter should be on va2, Wake woke %d", n)
	}

	select {
	case err := <-results:
		if err != 0 {
			t.Fatalf("requeued waiter returned %d after wake, want 0", err)
		}
	case <-time.After(time.Second):
		t.Fatal("requeued waiter did not wake after Wake(va2)")
	}
}
