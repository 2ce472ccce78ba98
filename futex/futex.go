// Package futex implements the address-keyed wait/wake/requeue queue
// spec.md §4.9 describes, sitting directly on sched's stopped-list
// mechanism (a futex address is just another Chan_t). Grounded on
// original_source's proc/futex.rs (BTreeMap<usize, VecDeque<task>>,
// wake(key, num) popping up to num waiters, requeue(key1, key2, num1,
// num2) moving the rest) translated onto sched.TaskManager rather than
// a second, parallel wait-queue implementation: futex.Key(addr) is the
// Chan_t sched already knows how to block and wake on.
package futex

import (
	"time"

	"oops/defs"
	"oops/sched"
	"oops/task"
	"oops/util"
	"oops/vm"
)

// key identifies a futex by its address space plus user virtual
// address: two tasks sharing CLONE_VM (and therefore the same *AddressSpace)
// must collide on the same key, while two unrelated processes that
// happen to mmap the same numeric va must not.
type key struct {
	as *vm.AddressSpace
	va uintptr
}

// Key builds the sched.Chan_t a futex at (as, va) waits/wakes on.
func Key(as *vm.AddressSpace, va uintptr) sched.Chan_t {
	return key{as: as, va: va}
}

// readU32 loads the current value at va, the compare-and-block check
// FUTEX_WAIT must perform atomically with respect to enqueuing (done
// here by reading it while the caller still holds the futex list's
// ordering guarantee: the address's page can't be swapped out from
// under a locked read since vm.Fault serializes on the same PTE lock
// sched.SleepCurrent's caller already took, per spec.md §5's
// task → address space → pte lock order).
func readU32(as *vm.AddressSpace, va uintptr) (uint32, defs.Err_t) {
	var buf [4]byte
	ub := vm.NewUserbuf(as, va, 4)
	if _, err := ub.Uioread(buf[:]); err != 0 {
		return 0, err
	}
	return uint32(util.Readn(buf[:], 4, 0)), 0
}

// Wait blocks t on (as, va) unless the word stored there no longer
// equals expect, spec.md's FUTEX_WAIT: "re-check the value, block only
// if it still matches". Returns -EAGAIN if the value already changed,
// -EINTR if a signal/doom interrupted the wait, -ETIMEDOUT if the
// deadline passed, 0 on a genuine wake.
func Wait(tm *sched.TaskManager, t *task.Task_t, as *vm.AddressSpace, va uintptr, expect uint32, timeout time.Duration) defs.Err_t {
	cur, err := readU32(as, va)
	if err != 0 {
		return err
	}
	if cur != expect {
		return -defs.EAGAIN
	}
	interrupted := tm.SleepCurrent(t, Key(as, va), nil, timeout)
	if !interrupted {
		return 0
	}
	if t.Note.Doomed() {
		return -defs.EINTR
	}
	return -defs.ETIMEDOUT
}

// Wake wakes up to n tasks blocked on (as, va), returning the count
// actually woken, original_source's FutexList::wake.
func Wake(tm *sched.TaskManager, as *vm.AddressSpace, va uintptr, n int) int {
	k := Key(as, va)
	woken := 0
	for i := 0; i < n; i++ {
		if tm.WakeTask(k) == nil {
			break
		}
		woken++
	}
	return woken
}

// Requeue wakes up to n1 tasks on (as, va1) and moves up to n2 of the
// remaining waiters there onto (as, va2) without waking them,
// FUTEX_CMP_REQUEUE's purpose: letting a condvar-style broadcast avoid a
// thundering herd by parking most waiters on the mutex's futex instead.
// sched has no native requeue primitive, so this is built from WakeTask
// (pop+wake) and SleepCurrent re-enqueue is not needed: a requeued
// waiter is still blocked on its own Wakec, only sched's bookkeeping of
// which key it's listed under needs to move, which sched exposes via
// RequeueWaiters.
func Requeue(tm *sched.TaskManager, as *vm.AddressSpace, va1, va2 uintptr, n1, n2 int) int {
	woken := Wake(tm, as, va1, n1)
	tm.RequeueWaiters(Key(as, va1), Key(as, va2), n2)
	return woken
}
