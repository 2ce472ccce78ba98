package syscalls

import (
	"oops/defs"
	"oops/signal"
	"oops/task"
	"oops/util"
	"oops/vm"
)

// initSigacts gives a freshly spawned process a disposition table, called
// once by Spawn; clone/execve inherit or reset one that already exists
// (task.Task_t.Clone/Execve), so only the very first process needs it.
func (s *Syscalls_t) initSigacts(t *task.Task_t) {
	if t.Group.Sigacts == nil {
		t.Group.Sigacts = signal.NewActions()
	}
}

// deliverAsync marks sig pending on target and kicks it out of whatever
// blocking wait it's currently in, by pushing directly to its wakeup
// channel rather than through sched.TaskManager.WakeTask — which doesn't
// require knowing which sched.Chan_t the target is currently parked on.
// The tradeoff: the target's entry in TaskManager's stopped list for that
// channel is left behind; the next wake attempt on it simply finds and
// skips a waiter that has already returned, a one-time benign leak rather
// than a correctness problem.
//
// Only signals whose default or installed disposition is fatal actually
// doom the target (tinfo has no "undoom", so dooming a thread for a
// catchable signal would wedge every later blocking call it makes); a
// catchable signal still wakes the target so it can notice and re-check
// before blocking again.
func (s *Syscalls_t) deliverAsync(target *task.Task_t, sig defs.Signo_t) {
	target.RaiseSignal(sig)
	if acts, ok := target.Group.Sigacts.(*signal.Actions_t); ok {
		if _, fatal, _, _ := signal.Decide(acts, sig, target.SigMask); fatal {
			target.Note.Doom(-defs.EINTR)
		}
	} else if sig == defs.SIGKILL {
		target.Note.Doom(-defs.EINTR)
	}
	select {
	case target.Wakec() <- struct{}{}:
	default:
	}
}

func (s *Syscalls_t) Sys_kill(t *task.Task_t, pid int, sig defs.Signo_t) (int, defs.Err_t) {
	g, ok := s.lookupGroup(defs.Pid_t(pid))
	if !ok {
		return 0, -defs.ESRCH
	}
	g.Lock()
	target := g.Leader
	g.Unlock()
	if target == nil {
		return 0, -defs.ESRCH
	}
	s.deliverAsync(target, sig)
	return 0, 0
}

func (s *Syscalls_t) Sys_tkill(t *task.Task_t, tid int, sig defs.Signo_t) (int, defs.Err_t) {
	target, ok := s.lookupTask(defs.Tid_t(tid))
	if !ok {
		return 0, -defs.ESRCH
	}
	s.deliverAsync(target, sig)
	return 0, 0
}

func (s *Syscalls_t) Sys_tgkill(t *task.Task_t, tgid, tid int, sig defs.Signo_t) (int, defs.Err_t) {
	target, ok := s.lookupTask(defs.Tid_t(tid))
	if !ok || int(target.Group.Pid) != tgid {
		return 0, -defs.ESRCH
	}
	s.deliverAsync(target, sig)
	return 0, 0
}

// Sys_sigaltstack implements sigaltstack(2)'s 24-byte stack_t: {sp, flags,
// size}, each an 8-byte little-endian word (the kernel only ever reads
// SS_DISABLE out of flags; real ss_flags/ss_size are 4 and 8 bytes on a
// real ABI, widened to 8 each here for a uniform wire layout).
func (s *Syscalls_t) Sys_sigaltstack(t *task.Task_t, newva, oldva uintptr) (int, defs.Err_t) {
	if oldva != 0 {
		var buf [24]byte
		util.Writen(buf[:], 8, 0, int(t.AltStackSP))
		util.Writen(buf[:], 8, 8, t.AltStackFlags)
		util.Writen(buf[:], 8, 16, t.AltStackSize)
		if _, err := vm.NewUserbuf(t.AS, oldva, 24).Uiowrite(buf[:]); err != 0 {
			return 0, err
		}
	}
	if newva != 0 {
		var buf [24]byte
		if _, err := vm.NewUserbuf(t.AS, newva, 24).Uioread(buf[:]); err != 0 {
			return 0, err
		}
		sp := uintptr(util.Readn(buf[:], 8, 0))
		flags := util.Readn(buf[:], 8, 8)
		size := util.Readn(buf[:], 8, 16)
		if flags&defs.SS_DISABLE != 0 {
			t.AltStackSP, t.AltStackFlags, t.AltStackSize = 0, defs.SS_DISABLE, 0
		} else {
			t.AltStackSP, t.AltStackFlags, t.AltStackSize = sp, flags, size
		}
	}
	return 0, 0
}

// Sys_rt_sigaction implements rt_sigaction(2)'s 24-byte sigaction wire
// layout: {handler, mask, flags}, each an 8-byte word (flags truncated to
// its low 32 bits on read).
func (s *Syscalls_t) Sys_rt_sigaction(t *task.Task_t, sig defs.Signo_t, newva, oldva uintptr) (int, defs.Err_t) {
	if sig == defs.SIGKILL || sig == defs.SIGSTOP {
		return 0, -defs.EINVAL
	}
	acts, ok := t.Group.Sigacts.(*signal.Actions_t)
	if !ok {
		return 0, -defs.EINVAL
	}
	if oldva != 0 {
		old := acts.Get(sig)
		var buf [24]byte
		util.Writen(buf[:], 8, 0, int(old.Handler))
		util.Writen(buf[:], 8, 8, int(old.Mask))
		util.Writen(buf[:], 8, 16, int(old.Flags))
		if _, err := vm.NewUserbuf(t.AS, oldva, 24).Uiowrite(buf[:]); err != 0 {
			return 0, err
		}
	}
	if newva != 0 {
		var buf [24]byte
		if _, err := vm.NewUserbuf(t.AS, newva, 24).Uioread(buf[:]); err != 0 {
			return 0, err
		}
		act := signal.Sigaction_t{
			Handler: uintptr(util.Readn(buf[:], 8, 0)),
			Mask:    uint64(util.Readn(buf[:], 8, 8)),
			Flags:   uint32(util.Readn(buf[:], 8, 16)),
		}
		acts.Set(sig, act)
	}
	return 0, 0
}

func (s *Syscalls_t) Sys_rt_sigprocmask(t *task.Task_t, how int, newva, oldva uintptr) (int, defs.Err_t) {
	if oldva != 0 {
		var buf [8]byte
		util.Writen(buf[:], 8, 0, int(t.SigMask))
		if _, err := vm.NewUserbuf(t.AS, oldva, 8).Uiowrite(buf[:]); err != 0 {
			return 0, err
		}
	}
	if newva != 0 {
		var buf [8]byte
		if _, err := vm.NewUserbuf(t.AS, newva, 8).Uioread(buf[:]); err != 0 {
			return 0, err
		}
		t.SetSigMask(how, uint64(util.Readn(buf[:], 8, 0)))
	}
	return 0, 0
}

// Sys_rt_sigreturn is the target a handler's restorer trampoline calls
// into after the handler returns. It does nothing itself: the saved
// pre-handler register/mask frame lives in package trap, which owns the
// register file, and trap's Dispatch intercepts rt_sigreturn ecalls and
// restores that frame through Kernel_t.Sigreturn before this table is
// consulted. This entry only gives the number a slot in the table.
func (s *Syscalls_t) Sys_rt_sigreturn(t *task.Task_t) (int, defs.Err_t) {
	return 0, 0
}
