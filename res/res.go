// Package res tracks a process-wide kernel-heap budget so that long copy
// loops (K2user, User2k, file-backed read/write) fail with ENOHEAP instead
// of looping forever when the system is under memory pressure, the same
// role biscuit's res package plays for vm.Vm_t's copy helpers.
package res

import "sync/atomic"

// defaultBudget is the number of "page units" (see bounds.Bounds) the kernel may
// charge against before Resadd_noblock starts refusing. It is generous
// because the common case is a single page per iteration; it exists to
// bound pathological loops, not everyday copies.
const defaultBudget = 1 << 20

var avail int64 = defaultBudget

// Resadd_noblock charges n units against the global budget without
// blocking. It returns false if the budget is exhausted, in which case the
// caller must return -ENOHEAP rather than spin.
func Resadd_noblock(n int) bool {
	if n <= 0 {
		return true
	}
	left := atomic.AddInt64(&avail, -int64(n))
	if left < 0 {
		atomic.AddInt64(&avail, int64(n))
		return false
	}
	return true
}

// Resadd is the blocking call sites that can afford to wait use; the
// kernel core never blocks here (spec.md's suspension points are explicit),
// so it behaves identically to Resadd_noblock.
func Resadd(n int) bool {
	return Resadd_noblock(n)
}

// Give returns n units to the budget, e.g. when a bounded loop finishes
// early.
func Give(n int) {
	if n <= 0 {
		return
	}
	atomic.AddInt64(&avail, int64(n))
}

// Reset restores the default budget; used by tests to avoid cross-test
// budget exhaustion.
func Reset() {
	atomic.StoreInt64(&avail, defaultBudget)
}
