package syscalls

import (
	"sync/atomic"
	"time"

	"oops/defs"
	"oops/limits"
	"oops/task"
	"oops/util"
	"oops/vm"
)

func (s *Syscalls_t) Sys_clock_gettime(t *task.Task_t, clockid int, tsva uintptr) (int, defs.Err_t) {
	var sec, nsec int64
	switch clockid {
	case defs.CLOCK_REALTIME:
		now := time.Now()
		sec, nsec = now.Unix(), int64(now.Nanosecond())
	case defs.CLOCK_MONOTONIC:
		d := time.Since(s.boot)
		sec, nsec = int64(d/time.Second), int64(d%time.Second)
	default:
		return 0, -defs.EINVAL
	}
	var buf [16]byte
	util.Writen(buf[:], 8, 0, int(sec))
	util.Writen(buf[:], 8, 8, int(nsec))
	if _, err := vm.NewUserbuf(t.AS, tsva, 16).Uiowrite(buf[:]); err != 0 {
		return 0, err
	}
	return 0, 0
}

// Sys_setitimer stubs interval timers: no alarm/itimer delivery is
// implemented, so it always reports (and leaves) a disarmed timer.
func (s *Syscalls_t) Sys_setitimer(t *task.Task_t, which int, newva, oldva uintptr) (int, defs.Err_t) {
	if oldva != 0 {
		var buf [32]byte
		if _, err := vm.NewUserbuf(t.AS, oldva, 32).Uiowrite(buf[:]); err != 0 {
			return 0, err
		}
	}
	return 0, 0
}

// Sys_syslog stubs the kernel ring-buffer log read/control calls; no
// in-kernel message ring is implemented, so every action is a no-op.
func (s *Syscalls_t) Sys_syslog(t *task.Task_t, typ int, bufva uintptr, length int) (int, defs.Err_t) {
	return 0, 0
}

// Sys_getrandom fills the buffer with zeros; no random source is wired in.
func (s *Syscalls_t) Sys_getrandom(t *task.Task_t, bufva uintptr, length, flags int) (int, defs.Err_t) {
	buf := make([]byte, length)
	n, err := vm.NewUserbuf(t.AS, bufva, length).Uiowrite(buf)
	if err != 0 {
		return 0, err
	}
	return n, 0
}

// Sys_sysinfo fills the 112-byte struct sysinfo layout: uptime, 3 load
// averages, then the ram/swap/high fields, mem_unit last. Only uptime and
// the ram totals (sourced from the frame allocator's page budget) carry
// real data; load averages and swap stay zero since this kernel tracks
// neither as a rolling statistic.
func (s *Syscalls_t) Sys_sysinfo(t *task.Task_t, infova uintptr) (int, defs.Err_t) {
	buf := make([]byte, 112)
	uptime := int64(time.Since(s.boot) / time.Second)
	util.Writen(buf, 8, 0, int(uptime))
	if s.FA != nil {
		total := s.FA.Capacity()
		free := s.FA.Avail()
		util.Writen(buf, 8, 32, total) // totalram, in pages: mem_unit below is 1
		util.Writen(buf, 8, 40, free)  // freeram
	}
	util.Writen(buf, 4, 104, 1) // mem_unit
	if _, err := vm.NewUserbuf(t.AS, infova, len(buf)).Uiowrite(buf); err != 0 {
		return 0, err
	}
	return 0, 0
}

// Sys_uname fills the 6x65-byte utsname buffer uname(2) expects.
func (s *Syscalls_t) Sys_uname(t *task.Task_t, bufva uintptr) (int, defs.Err_t) {
	field := func(v string) []byte {
		b := make([]byte, 65)
		copy(b, v)
		return b
	}
	buf := make([]byte, 0, 390)
	buf = append(buf, field("Linux")...)
	buf = append(buf, field("oops")...)
	buf = append(buf, field("6.1.0-oops")...)
	buf = append(buf, field("#1 SMP")...)
	buf = append(buf, field("riscv64")...)
	buf = append(buf, field("(none)")...)
	if _, err := vm.NewUserbuf(t.AS, bufva, len(buf)).Uiowrite(buf); err != 0 {
		return 0, err
	}
	return 0, 0
}

func (s *Syscalls_t) Sys_getrusage(t *task.Task_t, who int, bufva uintptr) (int, defs.Err_t) {
	var src []uint8
	switch who {
	case defs.RUSAGE_SELF:
		src = t.Accnt.ToRusage()
	case defs.RUSAGE_CHILDREN:
		src = t.Group.DeadAccnt.ToRusage()
	default:
		return 0, -defs.EINVAL
	}
	buf := make([]byte, 144)
	copy(buf, src)
	if _, err := vm.NewUserbuf(t.AS, bufva, len(buf)).Uiowrite(buf); err != 0 {
		return 0, err
	}
	return 0, 0
}

func (s *Syscalls_t) Sys_umask(t *task.Task_t, mask int) (int, defs.Err_t) {
	g := t.Group
	g.Lock()
	old := g.Umask
	g.Umask = mask & 0777
	g.Unlock()
	return old, 0
}

// Sys_times fills struct tms (4 clock_t words: utime, stime, cutime,
// cstime) and returns an arbitrary monotonic tick count, both in
// USER_HZ==100 ticks per spec.md's accounting granularity.
func (s *Syscalls_t) Sys_times(t *task.Task_t, bufva uintptr) (int, defs.Err_t) {
	const hz = 100
	toTicks := func(ns int64) int { return int(ns * hz / 1e9) }

	buf := make([]byte, 32)
	util.Writen(buf, 8, 0, toTicks(atomic.LoadInt64(&t.Accnt.Userns)))
	util.Writen(buf, 8, 8, toTicks(atomic.LoadInt64(&t.Accnt.Sysns)))
	util.Writen(buf, 8, 16, toTicks(atomic.LoadInt64(&t.Group.DeadAccnt.Userns)))
	util.Writen(buf, 8, 24, toTicks(atomic.LoadInt64(&t.Group.DeadAccnt.Sysns)))
	if bufva != 0 {
		if _, err := vm.NewUserbuf(t.AS, bufva, len(buf)).Uiowrite(buf); err != 0 {
			return 0, err
		}
	}
	return toTicks(int64(time.Since(s.boot))), 0
}

// Sys_getpgid answers every pid with its own pid: process groups aren't
// modeled (setpgid is absent from spec.md's syscall table), so every
// process is its own group leader.
func (s *Syscalls_t) Sys_getpgid(t *task.Task_t, pid int) (int, defs.Err_t) {
	if pid == 0 {
		return int(t.Group.Pid), 0
	}
	g, ok := s.lookupGroup(defs.Pid_t(pid))
	if !ok {
		return 0, -defs.ESRCH
	}
	return int(g.Pid), 0
}

func (s *Syscalls_t) Sys_prlimit64(t *task.Task_t, pid, resource int, newva, oldva uintptr) (int, defs.Err_t) {
	g := t.Group
	if pid != 0 && pid != int(t.Group.Pid) {
		lg, ok := s.lookupGroup(defs.Pid_t(pid))
		if !ok {
			return 0, -defs.ESRCH
		}
		g = lg
	}
	if resource < 0 || resource >= len(g.Rlimits.Lims) {
		return 0, -defs.EINVAL
	}

	g.Lock()
	old := g.Rlimits.Lims[resource]
	g.Unlock()

	if oldva != 0 {
		var buf [16]byte
		util.Writen(buf[:], 8, 0, int(old.Cur))
		util.Writen(buf[:], 8, 8, int(old.Max))
		if _, err := vm.NewUserbuf(t.AS, oldva, 16).Uiowrite(buf[:]); err != 0 {
			return 0, err
		}
	}
	if newva != 0 {
		var buf [16]byte
		if _, err := vm.NewUserbuf(t.AS, newva, 16).Uioread(buf[:]); err != 0 {
			return 0, err
		}
		cur := uint64(util.Readn(buf[:], 8, 0))
		max := uint64(util.Readn(buf[:], 8, 8))
		g.Lock()
		g.Rlimits.Lims[resource] = limits.Rlimit_t{Cur: cur, Max: max}
		g.Unlock()
	}
	return 0, 0
}
