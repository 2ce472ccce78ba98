package syscalls

import (
	"time"

	"oops/defs"
	"oops/fdops"
	"oops/futex"
	"oops/stat"
	"oops/task"
	"oops/util"
	"oops/vm"
)

func toMapFlags(f int) vm.MapFlags {
	var m vm.MapFlags
	if f&defs.MAP_SHARED != 0 {
		m |= vm.MAP_SHARED
	}
	if f&defs.MAP_FIXED != 0 {
		m |= vm.MAP_FIXED
	}
	if f&defs.MAP_ANON != 0 {
		m |= vm.MAP_ANON
	}
	return m
}

func (s *Syscalls_t) Sys_mmap(t *task.Task_t, addr uintptr, length, prot, flags, fdn, offset int) (int, defs.Err_t) {
	var f fdops.Fdops_i
	if flags&defs.MAP_ANON == 0 {
		fobj, err := s.getFile(t, fdn)
		if err != 0 {
			return 0, err
		}
		f = fobj.Fops
	}
	r, err := t.AS.Mmap(addr, length, vm.Prot(prot), toMapFlags(flags), f, offset)
	if err != 0 {
		return 0, err
	}
	return int(r), 0
}

func (s *Syscalls_t) Sys_munmap(t *task.Task_t, addr uintptr, length int) (int, defs.Err_t) {
	return 0, t.AS.Munmap(addr, length)
}

func (s *Syscalls_t) Sys_mprotect(t *task.Task_t, addr uintptr, length, prot int) (int, defs.Err_t) {
	return 0, t.AS.Mprotect(addr, length, vm.Prot(prot))
}

func (s *Syscalls_t) Sys_brk(t *task.Task_t, addr uintptr) (int, defs.Err_t) {
	r, err := t.AS.Brk(addr)
	if err != 0 {
		return 0, err
	}
	return int(r), 0
}

func (s *Syscalls_t) Sys_sched_yield(t *task.Task_t) (int, defs.Err_t) {
	s.TM.SuspendCurrent(t)
	return 0, 0
}

// Sys_nanosleep blocks t on a channel no one else can name, so the only
// way out is the timer firing or a doom (fatal signal/exit_group); a
// doomed sleep returns -EINTR. The remaining-time output (rem) is never
// written, in either case.
func (s *Syscalls_t) Sys_nanosleep(t *task.Task_t, reqva, remva uintptr) (int, defs.Err_t) {
	var buf [16]byte
	if _, err := vm.NewUserbuf(t.AS, reqva, 16).Uioread(buf[:]); err != 0 {
		return 0, err
	}
	sec := util.Readn(buf[:], 8, 0)
	nsec := util.Readn(buf[:], 8, 8)
	dur := time.Duration(sec)*time.Second + time.Duration(nsec)
	if dur <= 0 {
		return 0, 0
	}
	interrupted := s.TM.SleepCurrent(t, new(int), nil, dur)
	if interrupted && t.Note.Doomed() {
		return 0, -defs.EINTR
	}
	return 0, 0
}

func (s *Syscalls_t) Sys_set_tid_address(t *task.Task_t, addr uintptr) (int, defs.Err_t) {
	t.ClearChildTid = addr
	return int(t.Tid), 0
}

// Sys_socketstub answers every socket(7) family entry in the dispatch
// table; spec.md §1 scopes networking out, so every call here just
// reports "not implemented" rather than silently succeeding.
func (s *Syscalls_t) Sys_socketstub(no uint64) (int, defs.Err_t) {
	return 0, -defs.ENOSYS
}

func (s *Syscalls_t) Sys_clone(t *task.Task_t, flags int, newsp, ptid, ctid, tls uintptr) (int, defs.Err_t) {
	child, err := t.Clone(flags, ptid, ctid, tls)
	if err != 0 {
		return 0, err
	}
	child.NewSP = newsp
	s.register(child)
	return int(child.Tid), 0
}

func readStringVec(as *vm.AddressSpace, va uintptr) ([]string, defs.Err_t) {
	if va == 0 {
		return nil, 0
	}
	var out []string
	for i := 0; ; i++ {
		var buf [8]byte
		if _, err := vm.NewUserbuf(as, va+uintptr(i*8), 8).Uioread(buf[:]); err != 0 {
			return nil, err
		}
		p := uintptr(util.Readn(buf[:], 8, 0))
		if p == 0 {
			break
		}
		cs, err := readCString(as, p)
		if err != 0 {
			return nil, err
		}
		out = append(out, string(cs))
	}
	return out, 0
}

// Sys_execve implements spec.md §4.7's execve: a fresh address space is
// built from the named file's ELF image, the new stack is laid out per
// the argv/envp/auxv diagram there, and the result is stashed on Task_t
// (ExecEntry/ExecSP/ExecArgv/ExecEnvp/ExecAuxv) for package trap to build
// the post-syscall trap frame from.
func (s *Syscalls_t) Sys_execve(t *task.Task_t, pathva, argvva, envpva uintptr) (int, defs.Err_t) {
	path, err := s.userPath(t, pathva)
	if err != 0 {
		return 0, err
	}
	argv, err := readStringVec(t.AS, argvva)
	if err != 0 {
		return 0, err
	}
	envp, err := readStringVec(t.AS, envpva)
	if err != 0 {
		return 0, err
	}

	dn, err := s.resolveDir(t, defs.AT_FDCWD)
	if err != 0 {
		return 0, err
	}
	n, err := s.Vfs.Open(dn, path, defs.O_RDONLY, 0)
	if err != 0 {
		return 0, err
	}
	var st stat.Stat_t
	if err := n.Fstat(&st); err != 0 {
		return 0, err
	}
	raw := make([]byte, st.Size())
	if _, err := n.Pread(&fakeBuf{data: raw}, 0); err != 0 {
		return 0, err
	}

	as, err := vm.New(s.FA, s.Swap)
	if err != 0 {
		return 0, err
	}
	info, err := vm.LoadELF(as, n, raw)
	if err != 0 {
		return 0, err
	}
	as.ProgramEnd = info.ProgramEnd
	as.CurrentEnd = info.ProgramEnd

	top := as.SearchBottom
	sp, argvp, envpp, auxvp, err := as.InitExecStack(top, argv, envp)
	if err != 0 {
		return 0, err
	}
	as.SearchBottom = top - vm.DefaultStackSize

	t.Fds.CloseOnExec()
	t.Execve(as)
	t.ExecEntry = info.Entry
	t.ExecSP = sp
	t.ExecArgv = argvp
	t.ExecEnvp = envpp
	t.ExecAuxv = auxvp
	return 0, 0
}

func (s *Syscalls_t) Sys_exit(t *task.Task_t, code int) (int, defs.Err_t) {
	s.doExit(t, code, false)
	return 0, 0
}

func (s *Syscalls_t) Sys_exit_group(t *task.Task_t, code int) (int, defs.Err_t) {
	s.doExit(t, code, true)
	return 0, 0
}

// doExit implements both exit(2) (one thread) and exit_group(2) (every
// thread), folding the exiting thread's accounting into its group's
// dead-descendants total and, once the whole group is a zombie, waking
// a parent blocked in wait4 on its own ThreadGroup_t.
func (s *Syscalls_t) doExit(t *task.Task_t, code int, group bool) {
	g := t.Group
	if t.ClearChildTid != 0 {
		var zero [8]byte
		vm.NewUserbuf(t.AS, t.ClearChildTid, 8).Uiowrite(zero[:])
		futex.Wake(s.TM, t.AS, t.ClearChildTid, 1)
	}

	var zombie bool
	if group {
		t.ExitGroup(code, s.Notes)
		zombie = true
	} else {
		zombie = t.ExitThread(code)
	}
	g.DeadAccnt.Add(t.Accnt)
	s.unregister(t)

	if zombie {
		t.AS.Destroy()
		if g.Parent != nil {
			s.TM.WakeAll(g.Parent)
		}
	}
}

// Sys_wait4 implements spec.md §4.7's wait4: block on the calling
// process's own ThreadGroup_t (which, embedding sync.Mutex, doubles as
// both the sched.Chan_t key and the lock SleepCurrent releases after
// enqueuing) until a matching child becomes a zombie.
func (s *Syscalls_t) Sys_wait4(t *task.Task_t, pid int, statusva uintptr, options int) (int, defs.Err_t) {
	g := t.Group
	for {
		g.Lock()
		var target *task.ThreadGroup_t
		anyMatch := false
		for _, c := range g.Children {
			cg := c.Group
			if pid > 0 && int(cg.Pid) != pid {
				continue
			}
			anyMatch = true
			if cg.Zombie {
				target = cg
				break
			}
		}
		if target == nil {
			if !anyMatch {
				g.Unlock()
				return 0, -defs.ECHILD
			}
			if options&defs.WNOHANG != 0 {
				g.Unlock()
				return 0, 0
			}
			s.TM.SleepCurrent(t, g, g, 0)
			continue
		}

		for i, c := range g.Children {
			if c.Group == target {
				g.Children = append(g.Children[:i], g.Children[i+1:]...)
				break
			}
		}
		g.DeadAccnt.Add(target.DeadAccnt)
		rpid := target.Pid
		code := target.ExitCode
		g.Unlock()

		if statusva != 0 {
			var buf [4]byte
			util.Writen(buf[:], 4, 0, (code&0xff)<<8) // WIFEXITED encoding
			if _, err := vm.NewUserbuf(t.AS, statusva, 4).Uiowrite(buf[:]); err != 0 {
				return 0, err
			}
		}
		return int(rpid), 0
	}
}
