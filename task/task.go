// Package task implements the thread control block and thread-group
// bookkeeping spec.md §4.7 describes, grounded on the teacher's
// combination of a Tid_t-keyed TCB plus a shared Tgroup/Proc record (the
// shape its proc package would have had, reconstructed here from
// spec.md's own clone-flag table since the teacher's proc/*.go files
// weren't part of the retrieval pack) and on original_source's
// proc/task.rs resource-limit and children-list fields. "Current task" is
// always an explicit *Task_t parameter, never goroutine-local state — see
// tinfo's package comment for why.
package task

import (
	"sync"

	"oops/accnt"
	"oops/bounds"
	"oops/defs"
	"oops/fd"
	"oops/limits"
	"oops/res"
	"oops/tinfo"
	"oops/util"
	"oops/vm"
)

// Tstate_t is a task's scheduling state as tracked by the owning
// ThreadGroup/TaskManager, independent of the Go goroutine actually
// running it.
type Tstate_t int

const (
	RUNNING Tstate_t = iota
	RUNNABLE
	BLOCKED
	ZOMBIE
)

// FdTable_t is a task's file-descriptor table: a sharable sub-object
// (CLONE_FILES), protected by its own mutex per spec.md §5's lock-order
// table (task → fd-table → file).
type FdTable_t struct {
	sync.Mutex
	refs  int
	Fds   map[int]*fd.Fd_t
	nextF int
}

// NewFdTable returns a fresh, empty fd table with one reference.
func NewFdTable() *FdTable_t {
	return &FdTable_t{refs: 1, Fds: make(map[int]*fd.Fd_t)}
}

// Install places nfd at the lowest unused descriptor number >= min.
func (ft *FdTable_t) Install(nfd *fd.Fd_t, min int) int {
	ft.Lock()
	defer ft.Unlock()
	n := min
	for {
		if _, ok := ft.Fds[n]; !ok {
			break
		}
		n++
	}
	ft.Fds[n] = nfd
	ft.nextF = n + 1
	return n
}

// Get returns the descriptor at n, if any.
func (ft *FdTable_t) Get(n int) (*fd.Fd_t, bool) {
	ft.Lock()
	defer ft.Unlock()
	f, ok := ft.Fds[n]
	return f, ok
}

// SetAt installs nfd at exactly descriptor n, overwriting whatever was
// there (the caller is expected to have already closed it), dup3(2)'s
// "atomically replace newfd" semantics.
func (ft *FdTable_t) SetAt(n int, nfd *fd.Fd_t) {
	ft.Lock()
	ft.Fds[n] = nfd
	if n >= ft.nextF {
		ft.nextF = n + 1
	}
	ft.Unlock()
}

// Close removes and closes descriptor n.
func (ft *FdTable_t) Close(n int) defs.Err_t {
	ft.Lock()
	f, ok := ft.Fds[n]
	if !ok {
		ft.Unlock()
		return -defs.EBADF
	}
	delete(ft.Fds, n)
	ft.Unlock()
	return f.Fops.Close()
}

// Ref/Deref implement the fd table's own reference count, bumped on
// CLONE_FILES (share) and dropped when a thread exits; the table's
// entries are only actually closed when the last reference drops.
func (ft *FdTable_t) Ref()   { ft.Lock(); ft.refs++; ft.Unlock() }
func (ft *FdTable_t) Deref() bool {
	ft.Lock()
	ft.refs--
	r := ft.refs
	ft.Unlock()
	return r == 0
}

// CloseOnExec closes every descriptor marked FD_CLOEXEC, execve(2)'s
// fd-table cleanup rule.
func (ft *FdTable_t) CloseOnExec() {
	ft.Lock()
	var doomed []int
	for n, f := range ft.Fds {
		if f.Perms&fd.FD_CLOEXEC != 0 {
			doomed = append(doomed, n)
		}
	}
	ft.Unlock()
	for _, n := range doomed {
		ft.Close(n)
	}
}

// Clone deep-copies every entry (CLONE_FILES clear): "shallow-copy the
// map (file handles themselves are already reference-counted)" per
// spec.md's clone table — each Fd_t is reopened rather than shared.
func (ft *FdTable_t) Clone() (*FdTable_t, defs.Err_t) {
	ft.Lock()
	defer ft.Unlock()
	n := NewFdTable()
	for k, f := range ft.Fds {
		nf, err := fd.Copyfd(f)
		if err != 0 {
			return nil, err
		}
		n.Fds[k] = nf
	}
	n.nextF = ft.nextF
	return n, 0
}

// SigActions_t is the per-process signal disposition table, a sharable
// sub-object (CLONE_SIGHAND); its concrete type lives in package signal,
// referenced here only as an opaque pointer so task doesn't import
// signal (signal imports task for this interface, so the reverse import
// would cycle).
type SigActions_t interface {
	Clone() SigActions_t
	ResetToDefault()
}

// ThreadGroup_t is the state shared by every thread of one process:
// children list, resource limits, futex/signal bookkeeping, exactly the
// set spec.md's clone table marks "share iff THREAD is set, else create
// fresh".
type ThreadGroup_t struct {
	sync.Mutex
	Pid        defs.Pid_t
	Leader     *Task_t
	Members    []*Task_t
	Children   []*Task_t
	Parent     *ThreadGroup_t // nil for the boot process
	ParentPid  defs.Pid_t
	Rlimits    *limits.Rlimits_t
	DeadAccnt  *accnt.Accnt_t // folded-in totals of reaped children
	ExitCode   int
	Exited     bool
	Zombie     bool
	WaitCh     chan struct{}
	Sigacts    SigActions_t
	PendingSig uint64 // process-wide pending-signal bitmask (bit i = signal i+1)
	Umask      int
}

// Task_t is one thread control block.
type Task_t struct {
	Tid   defs.Tid_t
	Group *ThreadGroup_t

	mu    sync.Mutex
	state Tstate_t

	AS  *vm.AddressSpace
	Fds *FdTable_t
	Cwd *fd.Cwd_t

	Note  *tinfo.Tnote_t
	Accnt *accnt.Accnt_t

	ClearChildTid  uintptr
	SetChildTid    uintptr
	TlsAddr        uintptr
	NewSP          uintptr // clone(2)'s requested child stack pointer, consumed by package trap
	RobustListHead uintptr

	// Populated by Execve for package trap to build the initial trapframe
	// from (sepc/sp/a1-a3), per spec.md §4.7's execve trap-frame layout.
	ExecEntry uintptr
	ExecSP    uintptr
	ExecArgv  uintptr
	ExecEnvp  uintptr
	ExecAuxv  uintptr

	AltStackSP    uintptr
	AltStackFlags int
	AltStackSize  int

	PendingSig uint64 // per-thread pending-signal bitmask
	SigMask    uint64

	wakec chan struct{}
}

var tidGen int64
var tidMu sync.Mutex

func newTid() defs.Tid_t {
	tidMu.Lock()
	defer tidMu.Unlock()
	tidGen++
	return defs.Tid_t(tidGen)
}

// NewProcess creates a fresh process: a new thread group with one
// member, a fresh address space, fd table, and cwd — used by the boot
// path (syscalls.Spawn). execve does not come through here: it keeps the
// caller's Task_t and ThreadGroup_t and swaps only the address space
// (see Execve).
func NewProcess(as *vm.AddressSpace, root *fd.Fd_t) *Task_t {
	tid := newTid()
	tg := &ThreadGroup_t{
		Pid:       defs.Pid_t(tid),
		Rlimits:   limits.Default(),
		DeadAccnt: &accnt.Accnt_t{},
		WaitCh:    make(chan struct{}, 1),
		Umask:     0022,
	}
	t := &Task_t{
		Tid:   tid,
		Group: tg,
		state: RUNNABLE,
		AS:    as,
		Fds:   NewFdTable(),
		Cwd:   fd.MkRootCwd(root),
		Note:  tinfo.NewTnote(),
		Accnt: &accnt.Accnt_t{},
		wakec: make(chan struct{}, 1),
	}
	tg.Leader = t
	tg.Members = []*Task_t{t}
	return t
}

func (t *Task_t) State() Tstate_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task_t) SetState(s Tstate_t) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Wakec exposes the task's private wakeup channel to package sched.
func (t *Task_t) Wakec() chan struct{} { return t.wakec }

// sigbit mirrors package signal's Bit(sig) formula; duplicated here (a
// one-line arithmetic identity, not domain logic) so this package's
// pending-signal bookkeeping doesn't need to import signal, which would
// cycle back since signal already imports task for SigActions_t.
func sigbit(sig defs.Signo_t) uint64 { return 1 << uint(sig-1) }

// RaiseSignal marks sig pending on this thread, rt_sigqueueinfo/kill(2)'s
// delivery-to-thread path.
func (t *Task_t) RaiseSignal(sig defs.Signo_t) {
	t.mu.Lock()
	t.PendingSig |= sigbit(sig)
	t.mu.Unlock()
}

// Deliverable pops the lowest-numbered pending, unblocked signal, or
// returns ok == false if none is ready.
func (t *Task_t) Deliverable() (sig defs.Signo_t, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ready := t.PendingSig &^ t.SigMask
	for i := 1; i <= defs.NSIG; i++ {
		s := defs.Signo_t(i)
		if s != defs.SIGKILL && s != defs.SIGSTOP && t.SigMask&sigbit(s) != 0 {
			continue
		}
		if ready&sigbit(s) != 0 {
			t.PendingSig &^= sigbit(s)
			return s, true
		}
	}
	return 0, false
}

// SetSigMask implements rt_sigprocmask(2)'s BLOCK/UNBLOCK/SETMASK verbs,
// returning the previous mask.
func (t *Task_t) SetSigMask(how int, set uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.SigMask
	switch how {
	case defs.SIG_BLOCK:
		t.SigMask |= set
	case defs.SIG_UNBLOCK:
		t.SigMask &^= set
	case defs.SIG_SETMASK:
		t.SigMask = set
	}
	t.SigMask &^= sigbit(defs.SIGKILL) | sigbit(defs.SIGSTOP)
	return old
}

// Clone implements spec.md §4.7's clone(flags, ...) table. The requested
// child stack is not a parameter here: syscalls.Sys_clone stores it in
// the child's NewSP, and a zero NewSP means "inherit parent's stack
// pointer" (see trap.CloneFrame); trapframe-level copying (return value register, stack
// register override) is the caller's (syscalls package's) job since
// Task_t doesn't know the trapframe layout — that's package trap's.
func (parent *Task_t) Clone(flags int, ptid, ctid, tls uintptr) (*Task_t, defs.Err_t) {
	child := &Task_t{
		Tid:   newTid(),
		state: RUNNABLE,
		Note:  tinfo.NewTnote(),
		Accnt: &accnt.Accnt_t{},
		wakec: make(chan struct{}, 1),
	}

	if flags&defs.CLONE_VM != 0 {
		child.AS = parent.AS
	} else {
		as, err := parent.AS.Fork()
		if err != 0 {
			return nil, err
		}
		child.AS = as
	}

	if flags&defs.CLONE_FS != 0 {
		child.Cwd = parent.Cwd
	} else {
		child.Cwd = parent.Cwd.Clone(parent.Cwd.Fd)
	}

	if flags&defs.CLONE_FILES != 0 {
		parent.Fds.Ref()
		child.Fds = parent.Fds
	} else {
		nf, err := parent.Fds.Clone()
		if err != 0 {
			return nil, err
		}
		child.Fds = nf
	}

	if flags&defs.CLONE_THREAD != 0 {
		child.Group = parent.Group
		parent.Group.Lock()
		parent.Group.Members = append(parent.Group.Members, child)
		parent.Group.Unlock()
	} else {
		tg := &ThreadGroup_t{
			Pid:       defs.Pid_t(child.Tid),
			Parent:    parent.Group,
			ParentPid: parent.Group.Pid,
			Rlimits:   parent.Group.Rlimits.Clone(),
			DeadAccnt: &accnt.Accnt_t{},
			WaitCh:    make(chan struct{}, 1),
			Umask:     parent.Group.Umask,
		}
		if flags&defs.CLONE_SIGHAND != 0 && parent.Group.Sigacts != nil {
			tg.Sigacts = parent.Group.Sigacts
		} else if parent.Group.Sigacts != nil {
			tg.Sigacts = parent.Group.Sigacts.Clone()
		}
		tg.Leader = child
		tg.Members = []*Task_t{child}
		child.Group = tg

		parent.Group.Lock()
		parent.Group.Children = append(parent.Group.Children, child)
		parent.Group.Unlock()
	}

	if flags&defs.CLONE_SETTLS != 0 {
		child.TlsAddr = tls
	}
	if flags&defs.CLONE_CHILD_CLEARTID != 0 {
		child.ClearChildTid = ctid
	}
	if flags&defs.CLONE_CHILD_SETTID != 0 {
		child.SetChildTid = ctid
	}
	if flags&defs.CLONE_PARENT_SETTID != 0 && ptid != 0 {
		var buf [8]byte
		util.Writen(buf[:], 4, 0, int(child.Tid))
		vm.NewUserbuf(parent.AS, ptid, 8).Uiowrite(buf[:])
	}

	return child, 0
}

// Execve replaces the task's address space and fd-table/pid identity
// stays fixed, resetting signal dispositions to default, per spec.md
// §4.7. The caller (syscalls.Sys_execve) builds `as` from the new ELF file
// and passes it in; Task_t only owns the swap.
func (t *Task_t) Execve(as *vm.AddressSpace) {
	t.AS = as
	if t.Group.Sigacts != nil {
		t.Group.Sigacts.ResetToDefault()
	}
}

// ExitThread removes t from its group; if it was the last member, the
// group becomes a zombie. Returns true if the whole process is now a
// zombie (so the caller should notify any wait4'er).
func (t *Task_t) ExitThread(code int) bool {
	t.SetState(ZOMBIE)
	g := t.Group
	g.Lock()
	defer g.Unlock()
	for i, m := range g.Members {
		if m == t {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			break
		}
	}
	if len(g.Members) == 0 && !g.Zombie {
		g.Exited = true
		g.Zombie = true
		g.ExitCode = code
		select {
		case g.WaitCh <- struct{}{}:
		default:
		}
		return true
	}
	return false
}

// ExitGroup dooms every sibling thread (tinfo's Doom), drops them from
// the group's member list, and exits the caller, so the group is a
// zombie with the caller's exit code when ExitGroup returns — the
// exit_group(2) semantics. A doomed sibling that later calls ExitThread
// does not change the recorded exit code.
func (t *Task_t) ExitGroup(code int, notes *tinfo.Threadinfo_t) {
	g := t.Group
	g.Lock()
	members := append([]*Task_t{}, g.Members...)
	g.Members = []*Task_t{t}
	g.Unlock()
	for _, m := range members {
		if m != t {
			m.Note.Doom(0)
		}
	}
	t.ExitThread(code)
}

// ResourceCharge gates a bounded copy loop (file read/write, pipe
// read/write) against the global kernel-heap budget, returning -ENOHEAP
// if the site's per-iteration cost can't be afforded right now.
func ResourceCharge(site bounds.Bkey_t) defs.Err_t {
	if !res.Resadd_noblock(bounds.Bounds(site)) {
		return -defs.ENOHEAP
	}
	return 0
}
