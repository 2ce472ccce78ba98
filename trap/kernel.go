package trap

import (
	"sync"
	"time"

	"oops/defs"
	"oops/sched"
	"oops/signal"
	"oops/syscalls"
	"oops/task"
	"oops/util"
	"oops/vm"
)

// savedFrame is what a signal delivery tucks away so sigreturn can
// restore the interrupted context wholesale: the pre-handler register
// file and the mask that was in effect before delivery installed the
// handler's. Kept kernel-side rather than solely marshaled onto the
// guest stack, since this module has no real sigreturn trampoline page
// whose assembly would otherwise hand these bytes back to us — only the
// ucontext/siginfo a SA_SIGINFO handler actually reads is written into
// guest memory (see deliverSignal).
type savedFrame struct {
	tf   Trapframe_t
	mask uint64
}

// Kernel_t is the dispatch target a trap vector (real or, here, a test
// playing one) calls after spilling a trap frame: it owns the pieces
// §4.10's handler needs to route a cause to (the syscall table, the
// scheduler) and the per-task signal-frame stack the return path
// consults.
type Kernel_t struct {
	Syscalls *syscalls.Syscalls_t
	Sched    *sched.TaskManager

	mu     sync.Mutex
	frames map[defs.Tid_t][]savedFrame
	last   map[defs.Tid_t]time.Time
}

// New returns a trap-dispatch kernel wired to an already-constructed
// syscall layer and scheduler.
func New(sc *syscalls.Syscalls_t, tm *sched.TaskManager) *Kernel_t {
	return &Kernel_t{
		Syscalls: sc,
		Sched:    tm,
		frames:   make(map[defs.Tid_t][]savedFrame),
		last:     make(map[defs.Tid_t]time.Time),
	}
}

func (k *Kernel_t) pushFrame(tid defs.Tid_t, f savedFrame) {
	k.mu.Lock()
	k.frames[tid] = append(k.frames[tid], f)
	k.mu.Unlock()
}

func (k *Kernel_t) popFrame(tid defs.Tid_t) (savedFrame, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	q := k.frames[tid]
	if len(q) == 0 {
		return savedFrame{}, false
	}
	f := q[len(q)-1]
	k.frames[tid] = q[:len(q)-1]
	return f, true
}

// accountEntry/accountExit fold the time spent between traps into a
// task's user/system counters (accnt.Accnt_t), getrusage/times(2)'s
// source data. User time is everything since the last return-to-user;
// system time is everything spent in this Dispatch call.
func (k *Kernel_t) accountEntry(t *task.Task_t) int64 {
	now := time.Now()
	k.mu.Lock()
	last, ok := k.last[t.Tid]
	k.mu.Unlock()
	if ok {
		t.Accnt.Utadd(int64(now.Sub(last)))
	}
	return now.UnixNano()
}

func (k *Kernel_t) accountExit(t *task.Task_t, entry int64) {
	t.Accnt.Finish(entry)
	k.mu.Lock()
	k.last[t.Tid] = time.Now()
	k.mu.Unlock()
}

// Dispatch is the trap vector's one entry point: it inspects scause,
// routes to the right subsystem per spec.md §4.10, then runs the
// return-to-user path (pending-signal delivery) before handing control
// back. tf is mutated in place; the caller (real vector or test) is
// responsible for restoring it and executing sret.
func (k *Kernel_t) Dispatch(t *task.Task_t, tf *Trapframe_t) {
	entry := k.accountEntry(t)
	intr := tf.Scause&defs.InterruptBit != 0
	cause := tf.Scause &^ defs.InterruptBit

	switch {
	case intr && cause == defs.InterruptSupervisorTimer:
		k.Sched.Tick(time.Now())
	case !intr && cause == defs.CauseUserEcall && tf.A7 == syscalls.SYS_RT_SIGRETURN:
		// rt_sigreturn restores the frame deliverSignal saved, sepc and
		// a0 included; only a missing frame falls through to an error.
		if err := k.Sigreturn(t, tf); err != 0 {
			tf.Sepc += 4
			tf.SetReturn(int64(err))
		}
	case !intr && cause == defs.CauseUserEcall:
		tf.Sepc += 4
		ret := k.Syscalls.Dispatch(t, uint64(tf.A7), tf.Args())
		tf.SetReturn(ret)
	case !intr && isPageFault(cause):
		isStore := cause == defs.CauseStorePageFault
		if err := t.AS.Fault(tf.Stval, isStore); err != 0 {
			t.RaiseSignal(defs.SIGSEGV)
		}
	default:
		// "Anything else — kill the task." (spec.md §4.10); a genuine
		// kernel-invariant violation (a nil AS, a corrupt frame) panics
		// on its own well before reaching here.
		t.Note.Doom(-defs.EINTR)
	}

	k.accountExit(t, entry)
	k.returnToUser(t, tf)
}

func isPageFault(cause uint64) bool {
	switch cause {
	case defs.CauseInstrPageFault, defs.CauseLoadPageFault, defs.CauseStorePageFault:
		return true
	}
	return false
}

// returnToUser implements §4.10's "deliver pending signals" step: pick
// the lowest-numbered unmasked signal from the thread's own pending set
// (Task_t.Deliverable; ThreadGroup_t.PendingSig is not consulted), consult its disposition, and either do
// nothing more (ignored/stop/cont — not modeled beyond no-op, since this
// kernel never pauses a task's Go goroutine for job control), doom the
// task (fatal), or build a handler invocation frame on the user stack.
func (k *Kernel_t) returnToUser(t *task.Task_t, tf *Trapframe_t) {
	for {
		sig, ok := t.Deliverable()
		if !ok {
			return
		}
		acts, isActs := t.Group.Sigacts.(*signal.Actions_t)
		if !isActs {
			return
		}
		ctx, fatal, _, handle := signal.Decide(acts, sig, t.SigMask)
		if fatal {
			t.Note.Doom(-defs.EINTR)
			return
		}
		if !handle {
			continue // ignored/stop/cont: re-check for another pending signal
		}
		k.deliverSignal(t, tf, ctx)
		return
	}
}

// ucontext/siginfo layout this kernel writes for a custom handler: a
// compact 24-byte ucontext {sepc, mask, sp} and a 16-byte siginfo
// {signo, pad}, not the full Linux ABI structs (no real libc here to
// parse them against) but enough for a test-written handler to recover
// what it needs via SA_SIGINFO.
const (
	ucontextSize = 24
	siginfoSize  = 16
)

// deliverSignal constructs the user-stack SignalContext spec.md §4.8
// describes and rewrites tf so sepc/sp point into the handler (ra is
// cleared, see below). The
// pre-handler frame and mask are pushed onto this task's savedFrame
// stack for sigreturn to pop.
func (k *Kernel_t) deliverSignal(t *task.Task_t, tf *Trapframe_t, ctx signal.Context_t) {
	k.pushFrame(t.Tid, savedFrame{tf: *tf, mask: t.SigMask})

	sp := tf.Sp
	if ctx.Act.Flags&defs.SA_ONSTACK != 0 && t.AltStackSP != 0 && t.AltStackFlags&defs.SS_DISABLE == 0 {
		sp = t.AltStackSP + uintptr(t.AltStackSize)
	}
	sp &^= 0xf

	sp -= ucontextSize
	ucVA := sp
	var ucBuf [ucontextSize]byte
	util.Writen(ucBuf[:], 8, 0, int(tf.Sepc))
	util.Writen(ucBuf[:], 8, 8, int(ctx.SavedMask))
	util.Writen(ucBuf[:], 8, 16, int(tf.Sp))
	vm.NewUserbuf(t.AS, ucVA, ucontextSize).Uiowrite(ucBuf[:])

	sp -= siginfoSize
	siVA := sp
	var siBuf [siginfoSize]byte
	util.Writen(siBuf[:], 8, 0, int(ctx.Signo))
	vm.NewUserbuf(t.AS, siVA, siginfoSize).Uiowrite(siBuf[:])

	sp &^= 0xf

	newMask := ctx.SavedMask | ctx.Act.Mask | signal.Bit(ctx.Signo)
	t.SigMask = newMask &^ (signal.Bit(defs.SIGKILL) | signal.Bit(defs.SIGSTOP))

	*tf = Trapframe_t{}
	tf.Sepc = ctx.Act.Handler
	tf.Sp = sp
	tf.A0 = uintptr(ctx.Signo)
	if ctx.Act.Flags&defs.SA_SIGINFO != 0 {
		tf.A1 = siVA
		tf.A2 = ucVA
	}
	// No real sigreturn trampoline page exists to point ra at; the
	// handler's restorer (SA_RESTORER, glibc's usual arrangement) is
	// expected to issue the rt_sigreturn ecall directly, which Dispatch
	// routes to Sigreturn to pop the same savedFrame stack.
	tf.Ra = 0
}

// Sigreturn implements the tail end of rt_sigreturn(2): restore the
// trap frame and signal mask a matching deliverSignal call saved.
// Dispatch calls it for every rt_sigreturn ecall; the syscalls package's
// Sys_rt_sigreturn is a no-op, since the register-file restore has to
// happen here, where the frame layout lives.
func (k *Kernel_t) Sigreturn(t *task.Task_t, tf *Trapframe_t) defs.Err_t {
	f, ok := k.popFrame(t.Tid)
	if !ok {
		return -defs.EINVAL
	}
	*tf = f.tf
	t.SigMask = f.mask
	return 0
}

// CloneFrame builds the child's initial trap frame: a copy of the
// parent's, return value register zeroed, stack register replaced if
// clone(2) supplied one (spec.md §4.7).
func CloneFrame(parent *Trapframe_t, child *task.Task_t) *Trapframe_t {
	cf := *parent
	cf.A0 = 0
	if child.NewSP != 0 {
		cf.Sp = child.NewSP
	}
	return &cf
}

// ExecFrame builds the trap frame execve(2) resumes into: sepc at the
// loaded entry point, sp at the stack InitExecStack built, and
// a1/a2/a3 pointing at argv/envp/auxv per spec.md §4.7. Task_t's
// Exec* fields are populated by syscalls.Sys_execve just before it
// returns.
func ExecFrame(t *task.Task_t) *Trapframe_t {
	return &Trapframe_t{
		Sepc: t.ExecEntry,
		Sp:   t.ExecSP,
		A1:   t.ExecArgv,
		A2:   t.ExecEnvp,
		A3:   t.ExecAuxv,
	}
}
