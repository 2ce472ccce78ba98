package task

import (
	"testing"

	"oops/bounds"
	"oops/defs"
	"oops/fd"
	"oops/fdops"
	"oops/mem"
	"oops/res"
	"oops/stat"
	"oops/swap"
	"oops/ustr"
	"oops/vm"
)

type memBacking struct{ buf []byte }

func (m *memBacking) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m.buf[off:]), nil }
func (m *memBacking) WriteAt(p []byte, off int64) (int, error) { return copy(m.buf[off:], p), nil }

func newTestAS(t *testing.T) *vm.AddressSpace {
	t.Helper()
	fa := mem.NewFrameAllocator(32)
	sw := swap.New(&memBacking{buf: make([]byte, 8*mem.PGSIZE)}, 8)
	as, err := vm.New(fa, sw)
	if err != 0 {
		t.Fatalf("vm.New: %d", err)
	}
	return as
}

func TestFdTableInstallGetClose(t *testing.T) {
	ft := NewFdTable()
	f := &fd.Fd_t{Fops: nopFops{}}
	n := ft.Install(f, 0)
	if n != 0 {
		t.Fatalf("Install on an empty table returned %d, want 0", n)
	}
	got, ok := ft.Get(n)
	if !ok || got != f {
		t.Fatalf("Get(%d) = %v, %v, want %v, true", n, got, ok, f)
	}
	if err := ft.Close(n); err != 0 {
		t.Fatalf("Close: %d", err)
	}
	if _, ok := ft.Get(n); ok {
		t.Fatal("descriptor should be gone after Close")
	}
	if err := ft.Close(n); err != -defs.EBADF {
		t.Fatalf("double Close = %d, want -EBADF", err)
	}
}

func TestFdTableInstallSkipsOccupiedSlots(t *testing.T) {
	ft := NewFdTable()
	ft.Install(&fd.Fd_t{Fops: nopFops{}}, 0)
	n := ft.Install(&fd.Fd_t{Fops: nopFops{}}, 0)
	if n != 1 {
		t.Fatalf("second Install returned %d, want 1", n)
	}
}

func TestFdTableCloseOnExec(t *testing.T) {
	ft := NewFdTable()
	cloexec := &fd.Fd_t{Fops: nopFops{}, Perms: fd.FD_CLOEXEC}
	keep := &fd.Fd_t{Fops: nopFops{}}
	a := ft.Install(cloexec, 0)
	b := ft.Install(keep, 0)

	ft.CloseOnExec()

	if _, ok := ft.Get(a); ok {
		t.Fatal("FD_CLOEXEC descriptor should be closed by CloseOnExec")
	}
	if _, ok := ft.Get(b); !ok {
		t.Fatal("non-FD_CLOEXEC descriptor should survive CloseOnExec")
	}
}

func TestFdTableRefDeref(t *testing.T) {
	ft := NewFdTable()
	ft.Ref()
	if ft.Deref() {
		t.Fatal("Deref should not report zero refs with an outstanding Ref")
	}
	if !ft.Deref() {
		t.Fatal("Deref should report zero once every Ref is matched")
	}
}

func TestNewProcessStartsRunnableWithFreshState(t *testing.T) {
	as := newTestAS(t)
	tk := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	if tk.State() != RUNNABLE {
		t.Fatalf("new process state = %v, want RUNNABLE", tk.State())
	}
	if tk.Group.Leader != tk || len(tk.Group.Members) != 1 || tk.Group.Members[0] != tk {
		t.Fatal("new process should be the sole member and leader of its own group")
	}
	if tk.Group.Umask != 0022 {
		t.Fatalf("Umask = %#o, want 0022", tk.Group.Umask)
	}
}

func TestSetStateRoundTrips(t *testing.T) {
	as := newTestAS(t)
	tk := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	tk.SetState(BLOCKED)
	if tk.State() != BLOCKED {
		t.Fatalf("State() = %v, want BLOCKED", tk.State())
	}
}

func TestRaiseSignalAndDeliverable(t *testing.T) {
	as := newTestAS(t)
	tk := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})

	if _, ok := tk.Deliverable(); ok {
		t.Fatal("fresh task should have nothing deliverable")
	}

	tk.RaiseSignal(defs.SIGTERM)
	sig, ok := tk.Deliverable()
	if !ok || sig != defs.SIGTERM {
		t.Fatalf("Deliverable() = %d, %v, want SIGTERM, true", sig, ok)
	}
	if _, ok := tk.Deliverable(); ok {
		t.Fatal("Deliverable should consume the pending signal")
	}
}

func TestDeliverableHonorsSigMask(t *testing.T) {
	as := newTestAS(t)
	tk := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	tk.SetSigMask(defs.SIG_SETMASK, sigbit(defs.SIGTERM))
	tk.RaiseSignal(defs.SIGTERM)
	if _, ok := tk.Deliverable(); ok {
		t.Fatal("blocked signal should not be deliverable")
	}
}

func TestSetSigMaskNeverBlocksKillOrStop(t *testing.T) {
	as := newTestAS(t)
	tk := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	tk.SetSigMask(defs.SIG_BLOCK, sigbit(defs.SIGKILL)|sigbit(defs.SIGSTOP))
	if tk.SigMask != 0 {
		t.Fatalf("SigMask = %#x, want 0 (SIGKILL/SIGSTOP can't be masked)", tk.SigMask)
	}
}

func TestSetSigMaskReturnsPreviousMask(t *testing.T) {
	as := newTestAS(t)
	tk := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	tk.SetSigMask(defs.SIG_SETMASK, sigbit(defs.SIGUSR1))
	old := tk.SetSigMask(defs.SIG_SETMASK, sigbit(defs.SIGUSR2))
	if old != sigbit(defs.SIGUSR1) {
		t.Fatalf("SetSigMask returned %#x, want the prior mask", old)
	}
}

func TestCloneThreadSharesAddressSpaceAndFds(t *testing.T) {
	as := newTestAS(t)
	parent := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	child, err := parent.Clone(defs.CLONE_VM|defs.CLONE_FILES|defs.CLONE_THREAD, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %d", err)
	}
	if child.AS != parent.AS {
		t.Fatal("CLONE_VM should share the address space")
	}
	if child.Fds != parent.Fds {
		t.Fatal("CLONE_FILES should share the fd table")
	}
	if child.Group != parent.Group {
		t.Fatal("CLONE_THREAD should share the thread group")
	}
	if len(parent.Group.Members) != 2 {
		t.Fatalf("thread group should have 2 members after CLONE_THREAD, got %d", len(parent.Group.Members))
	}
}

func TestCloneWithoutThreadCreatesNewGroupAndChild(t *testing.T) {
	as := newTestAS(t)
	parent := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	child, err := parent.Clone(defs.CLONE_VM, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Clone: %d", err)
	}
	if child.Group == parent.Group {
		t.Fatal("fork-style clone should get its own thread group")
	}
	if child.Group.Parent != parent.Group || child.Group.ParentPid != parent.Group.Pid {
		t.Fatal("child's group should record the parent group/pid")
	}
	found := false
	for _, c := range parent.Group.Children {
		if c == child {
			found = true
		}
	}
	if !found {
		t.Fatal("parent's Children list should include the new child")
	}
}

func TestCloneSettlsAndClearChildTid(t *testing.T) {
	as := newTestAS(t)
	parent := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	child, err := parent.Clone(defs.CLONE_VM|defs.CLONE_SETTLS|defs.CLONE_CHILD_CLEARTID, 0, 0xdead, 0xbeef)
	if err != 0 {
		t.Fatalf("Clone: %d", err)
	}
	if child.TlsAddr != 0xbeef {
		t.Fatalf("TlsAddr = %#x, want 0xbeef", child.TlsAddr)
	}
	if child.ClearChildTid != 0xdead {
		t.Fatalf("ClearChildTid = %#x, want 0xdead", child.ClearChildTid)
	}
}

func TestExitThreadLastMemberZombifiesGroup(t *testing.T) {
	as := newTestAS(t)
	tk := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	if zombie := tk.ExitThread(7); !zombie {
		t.Fatal("exiting the sole member should zombify the group")
	}
	if !tk.Group.Exited || !tk.Group.Zombie || tk.Group.ExitCode != 7 {
		t.Fatalf("group = %+v, want Exited=true Zombie=true ExitCode=7", tk.Group)
	}
	if tk.State() != ZOMBIE {
		t.Fatalf("task state = %v, want ZOMBIE", tk.State())
	}
}

func TestExitThreadNonLastMemberDoesNotZombify(t *testing.T) {
	as := newTestAS(t)
	parent := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	child, _ := parent.Clone(defs.CLONE_VM|defs.CLONE_FILES|defs.CLONE_THREAD, 0, 0, 0)

	if zombie := child.ExitThread(0); zombie {
		t.Fatal("exiting one of two members should not zombify the group")
	}
	if len(parent.Group.Members) != 1 || parent.Group.Members[0] != parent {
		t.Fatal("exited member should be removed from Members")
	}
}

func TestExitGroupDoomsSiblingsAndZombifies(t *testing.T) {
	as := newTestAS(t)
	parent := NewProcess(as, &fd.Fd_t{Fops: nopFops{}})
	child, _ := parent.Clone(defs.CLONE_VM|defs.CLONE_FILES|defs.CLONE_THREAD, 0, 0, 0)

	parent.ExitGroup(1, nil)

	if !child.Note.Doomed() {
		t.Fatal("ExitGroup should doom every sibling thread")
	}
	if !parent.Group.Zombie {
		t.Fatal("ExitGroup should zombify the group once the caller itself exits")
	}
}

func TestResourceChargeSucceedsUnderBudget(t *testing.T) {
	res.Reset()
	defer res.Reset()
	if err := ResourceCharge(bounds.B_FAT32_T_FILEREAD); err != 0 {
		t.Fatalf("ResourceCharge under budget = %d, want 0", err)
	}
}

// nopFops is a minimal fdops.Fdops_i stub, just enough to populate an
// Fd_t for tests that never actually touch the file.
type nopFops struct{}

func (nopFops) Close() defs.Err_t                                     { return 0 }
func (nopFops) Fstat(*stat.Stat_t) defs.Err_t                         { return 0 }
func (nopFops) Lseek(int, int) (int, defs.Err_t)                      { return 0, -defs.ESPIPE }
func (nopFops) Mmapi(int, int, bool) ([]fdops.MmapInfo_t, defs.Err_t) { return nil, -defs.EINVAL }
func (nopFops) Pathi() ustr.Ustr                                      { return nil }
func (nopFops) Read(fdops.Userio_i) (int, defs.Err_t)                 { return 0, -defs.EINVAL }
func (nopFops) Reopen() defs.Err_t                                    { return 0 }
func (nopFops) Write(fdops.Userio_i) (int, defs.Err_t)                { return 0, -defs.EINVAL }
func (nopFops) Fullpath() (ustr.Ustr, defs.Err_t)                     { return nil, -defs.EINVAL }
func (nopFops) Truncate(uint) defs.Err_t                              { return -defs.EINVAL }
func (nopFops) Pread(fdops.Userio_i, int) (int, defs.Err_t)           { return 0, -defs.EINVAL }
func (nopFops) Pwrite(fdops.Userio_i, int) (int, defs.Err_t)          { return 0, -defs.EINVAL }
func (nopFops) Accept(fdops.Userio_i) (fdops.Userio_i, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (nopFops) Bind(fdops.Userio_i) defs.Err_t    { return -defs.EINVAL }
func (nopFops) Connect(fdops.Userio_i) defs.Err_t { return -defs.EINVAL }
func (nopFops) Listen(int) defs.Err_t             { return -defs.EINVAL }
func (nopFops) Sendmsg(src fdops.Userio_i, toaddr []uint8, cmsg []uint8, flags int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (nopFops) Recvmsg(dst fdops.Userio_i, fromsa fdops.Userio_i, cmsg fdops.Userio_i, flags int) (int, int, int, defs.Err_t) {
	return 0, 0, 0, -defs.EINVAL
}
func (nopFops) Poll(fdops.Pollkind_t) bool        { return false }
func (nopFops) GetSocket() (fdops.Socket_i, bool) { return nil, false }
func (nopFops) GetFile() (fdops.File_i, bool)     { return nil, false }
func (nopFops) GetDir() (fdops.Dir_i, bool)       { return nil, false }
func (nopFops) GetFifo() (fdops.Fifo_i, bool)     { return nil, false }
