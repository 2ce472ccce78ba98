// Package signal implements the per-process disposition table, pending
// sets, and delivery logic spec.md §4.8 describes. Grounded on
// original_source's proc/signal.rs (SIGNAL_HANDLERS default-action table,
// Sigaction layout, SA_* flag set) translated into the teacher's
// Go idiom, and on the teacher's tinfo-style "doom" mechanism for making
// a blocked syscall unwind early when a fatal signal arrives.
//
// Actions_t implements task.SigActions_t so a ThreadGroup_t can hold one
// without package task importing package signal; signal imports task
// (for that interface) and defs, and task never imports signal, so
// there is no cycle.
package signal

import (
	"sync"

	"oops/defs"
	"oops/task"
)

// Disposition classifies what happens when a signal with no custom
// handler is delivered, original_source's def_ignore/def_terminate_self/
// def_terminate_self_with_core_dump/def_stop/def_continue split.
type Disposition int

const (
	DispTerm Disposition = iota
	DispCore
	DispIgnore
	DispStop
	DispCont
)

// defaultDisposition is SIGNAL_HANDLERS translated from original_source's
// signal.rs, indexed by Signo_t.
var defaultDisposition = map[defs.Signo_t]Disposition{
	defs.SIGHUP:    DispTerm,
	defs.SIGINT:    DispTerm,
	defs.SIGQUIT:   DispTerm,
	defs.SIGILL:    DispTerm,
	defs.SIGTRAP:   DispIgnore,
	defs.SIGABRT:   DispCore,
	defs.SIGBUS:    DispCore,
	defs.SIGFPE:    DispCore,
	defs.SIGKILL:   DispTerm,
	defs.SIGUSR1:   DispIgnore,
	defs.SIGSEGV:   DispCore,
	defs.SIGUSR2:   DispIgnore,
	defs.SIGPIPE:   DispTerm,
	defs.SIGALRM:   DispTerm,
	defs.SIGTERM:   DispTerm,
	defs.SIGSTKFLT: DispTerm,
	// SIGCHLD defaults to ignore, not terminate, per DESIGN.md's Open
	// Question 4 resolution (original_source/proc/signal.rs).
	defs.SIGCHLD:   DispIgnore,
	defs.SIGCONT:   DispCont,
	defs.SIGSTOP:   DispStop,
	defs.SIGTSTP:   DispStop,
	defs.SIGTTIN:   DispStop,
	defs.SIGTTOU:   DispStop,
	defs.SIGURG:    DispIgnore,
	defs.SIGXCPU:   DispTerm,
	defs.SIGXFSZ:   DispTerm,
	defs.SIGVTALRM: DispTerm,
	defs.SIGPROF:   DispTerm,
	defs.SIGWINCH:  DispIgnore,
	defs.SIGIO:     DispIgnore,
	defs.SIGSYS:    DispTerm,
}

func defaultFor(sig defs.Signo_t) Disposition {
	if d, ok := defaultDisposition[sig]; ok {
		return d
	}
	return DispTerm
}

// Sigaction_t is one entry of the disposition table, original_source's
// Sigaction struct.
type Sigaction_t struct {
	Handler uintptr // SIG_DFL, SIG_IGN, or a user va
	Mask    uint64  // signals blocked while the handler runs
	Flags   uint32
}

// Actions_t is the per-process signal disposition table, a sharable
// sub-object (CLONE_SIGHAND) satisfying task.SigActions_t.
type Actions_t struct {
	sync.Mutex
	Table [defs.NSIG + 1]Sigaction_t // 1-indexed; [0] unused
}

// NewActions returns a table with every signal at its default
// disposition (Handler == SIG_DFL).
func NewActions() *Actions_t {
	return &Actions_t{}
}

// Clone deep-copies the table, the CLONE_SIGHAND-clear path, and
// satisfies task.SigActions_t so a ThreadGroup_t can hold an *Actions_t
// without package task importing package signal.
func (a *Actions_t) Clone() task.SigActions_t {
	a.Lock()
	defer a.Unlock()
	n := &Actions_t{}
	n.Table = a.Table
	return n
}

// ResetToDefault clears every handler to SIG_DFL, keeping SIG_IGN
// dispositions intact, the execve(2) rule POSIX and spec.md §4.7 share:
// a new program image inherits ignored signals but not installed
// handlers (which would point at code that no longer exists).
func (a *Actions_t) ResetToDefault() {
	a.Lock()
	defer a.Unlock()
	for i := range a.Table {
		if a.Table[i].Handler != defs.SIG_IGN {
			a.Table[i] = Sigaction_t{}
		}
	}
}

// Get/Set implement rt_sigaction(2)'s table access.
func (a *Actions_t) Get(sig defs.Signo_t) Sigaction_t {
	a.Lock()
	defer a.Unlock()
	return a.Table[sig]
}

func (a *Actions_t) Set(sig defs.Signo_t, act Sigaction_t) Sigaction_t {
	a.Lock()
	defer a.Unlock()
	old := a.Table[sig]
	a.Table[sig] = act
	return old
}

// Bit returns the bitmask position for sig within the uint64 pending/mask
// words Task_t and ThreadGroup_t each carry directly (task can't import
// signal without a cycle, so the bitmask bookkeeping itself lives on
// Task_t/ThreadGroup_t's own locked methods; this helper just keeps the
// bit-position formula in one place for both packages to agree on).
func Bit(sig defs.Signo_t) uint64 { return 1 << uint(sig-1) }

// NextDeliverable scans set&^mask for the lowest-numbered ready signal,
// honoring that SIGKILL/SIGSTOP are never blockable.
func NextDeliverable(set, mask uint64) (sig defs.Signo_t, rest uint64, ok bool) {
	for i := 1; i <= defs.NSIG; i++ {
		s := defs.Signo_t(i)
		if s != defs.SIGKILL && s != defs.SIGSTOP && mask&Bit(s) != 0 {
			continue
		}
		if set&Bit(s) != 0 {
			return s, set &^ Bit(s), true
		}
	}
	return 0, set, false
}

// ApplyMask implements rt_sigprocmask(2)'s BLOCK/UNBLOCK/SETMASK verbs
// over an existing mask word, forcing SIGKILL/SIGSTOP to stay unblocked.
func ApplyMask(cur uint64, how int, set uint64) uint64 {
	switch how {
	case defs.SIG_BLOCK:
		cur |= set
	case defs.SIG_UNBLOCK:
		cur &^= set
	case defs.SIG_SETMASK:
		cur = set
	}
	return cur &^ (Bit(defs.SIGKILL) | Bit(defs.SIGSTOP))
}

// Context_t is the information a handler invocation needs to build the
// user-mode signal frame: which signal, its default action if no
// handler is installed, and the saved mask to restore on sigreturn.
// Package trap owns the actual register-level frame layout; Context_t is
// the handoff between signal delivery and that frame construction.
type Context_t struct {
	Signo     defs.Signo_t
	Act       Sigaction_t
	SavedMask uint64
}

// Decide computes what should happen for a just-dequeued signal given a
// process's disposition table: either it's fully handled by the kernel
// (ignored, stopped, continued, or fatal) or a user handler needs to run,
// in which case ok is true and ctx describes it.
func Decide(acts *Actions_t, sig defs.Signo_t, curMask uint64) (ctx Context_t, fatal bool, core bool, ok bool) {
	act := acts.Get(sig)
	switch act.Handler {
	case defs.SIG_IGN:
		return Context_t{}, false, false, false
	case defs.SIG_DFL:
		switch defaultFor(sig) {
		case DispIgnore, DispCont, DispStop:
			return Context_t{}, false, false, false
		case DispCore:
			return Context_t{}, true, true, false
		default:
			return Context_t{}, true, false, false
		}
	default:
		return Context_t{Signo: sig, Act: act, SavedMask: curMask}, false, false, true
	}
}
