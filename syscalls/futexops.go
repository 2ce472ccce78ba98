package syscalls

import (
	"time"

	"oops/defs"
	"oops/futex"
	"oops/task"
	"oops/util"
	"oops/vm"
)

// Sys_futex implements the WAIT/WAKE/REQUEUE subset of futex(2) spec.md
// §4.9 names, dispatching onto package futex (which already sits on
// sched.TaskManager's own wait-queue machinery). FUTEX_PRIVATE_FLAG is
// accepted but ignored: every futex key here is already scoped to its
// owning AddressSpace, so private vs. shared makes no difference.
func (s *Syscalls_t) Sys_futex(t *task.Task_t, uaddr uintptr, op int, val uint32, utime, uaddr2 uintptr, val3 uint32) (int, defs.Err_t) {
	switch op & defs.FUTEX_CMD_MASK {
	case defs.FUTEX_WAIT:
		var timeout time.Duration
		if utime != 0 {
			var buf [16]byte
			if _, err := vm.NewUserbuf(t.AS, utime, 16).Uioread(buf[:]); err != 0 {
				return 0, err
			}
			sec := util.Readn(buf[:], 8, 0)
			nsec := util.Readn(buf[:], 8, 8)
			timeout = time.Duration(sec)*time.Second + time.Duration(nsec)
		}
		err := futex.Wait(s.TM, t, t.AS, uaddr, val, timeout)
		return 0, err
	case defs.FUTEX_WAKE:
		return futex.Wake(s.TM, t.AS, uaddr, int(val)), 0
	case defs.FUTEX_REQUEUE:
		return futex.Requeue(s.TM, t.AS, uaddr, uaddr2, int(val), int(val3)), 0
	default:
		return 0, -defs.ENOSYS
	}
}

func (s *Syscalls_t) Sys_set_robust_list(t *task.Task_t, head uintptr, length int) (int, defs.Err_t) {
	t.RobustListHead = head
	return 0, 0
}

// Sys_get_robust_list writes back the target's robust-list head pointer
// and a fixed length (sizeof struct robust_list_head); the kernel never
// walks the list itself (no in-kernel mutex-robustness recovery is
// implemented), so the length is informational only.
func (s *Syscalls_t) Sys_get_robust_list(t *task.Task_t, pid int, headva, lenva uintptr) (int, defs.Err_t) {
	target := t
	if pid != 0 {
		lt, ok := s.lookupTask(defs.Tid_t(pid))
		if !ok {
			return 0, -defs.ESRCH
		}
		target = lt
	}
	var hbuf [8]byte
	util.Writen(hbuf[:], 8, 0, int(target.RobustListHead))
	if _, err := vm.NewUserbuf(t.AS, headva, 8).Uiowrite(hbuf[:]); err != 0 {
		return 0, err
	}
	var lbuf [8]byte
	util.Writen(lbuf[:], 8, 0, 24)
	if _, err := vm.NewUserbuf(t.AS, lenva, 8).Uiowrite(lbuf[:]); err != 0 {
		return 0, err
	}
	return 0, 0
}
