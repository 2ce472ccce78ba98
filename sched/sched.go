// Package sched implements the single-hart cooperative scheduler spec.md
// §4.6 describes: a FIFO ready queue, a flat (channel, task) stopped
// list, and a clock wake list, all behind one TASK_MANAGER mutex per
// spec.md §5's shared-resource table. Grounded on the teacher's
// CPU-local "current task" design generalized to this module's explicit-
// parameter style (see tinfo's package comment) and on
// original_source's proc/manager.rs wait-channel/wake bookkeeping.
//
// Context switching itself is simulated with a real Go goroutine per
// task plus a buffered wakeup channel: "moving to Ready and switching
// into idle" is a goroutine yield (runtime.Gosched), and "moving to
// Stopped and switching into idle" is the goroutine actually blocking on
// its own wakeup channel — there is no separate idle TaskContext to
// switch into because the host Go scheduler already multiplexes
// goroutines onto harts. This is the same trade spec.md's own notes
// allow (§9): the simulated kernel behaves like a uniprocessor
// scheduler from the guest's point of view without hand-written
// context-switch assembly.
package sched

import (
	"runtime"
	"sync"
	"time"

	"oops/defs"
	"oops/task"
)

// Chan_t identifies a wait channel: any comparable value both the
// sleeper and the waker agree on (a futex address, a pipe pointer, a
// child's tid for wait4, etc).
type Chan_t interface{}

type waiter struct {
	t        *task.Task_t
	deadline time.Time
	hasDL    bool
	expired  bool // set under mu by Tick when it wakes this waiter
}

// TaskManager owns the ready queue, the per-channel stopped lists, and
// the clock wake list, all under one mutex.
type TaskManager struct {
	mu      sync.Mutex
	ready   []*task.Task_t
	stopped map[Chan_t][]*waiter
}

// New returns an empty task manager; one instance is shared process-wide.
func New() *TaskManager {
	return &TaskManager{stopped: make(map[Chan_t][]*waiter)}
}

// SuspendCurrent moves t to Ready and yields the hart, spec.md's
// suspend_current().
func (tm *TaskManager) SuspendCurrent(t *task.Task_t) {
	tm.mu.Lock()
	t.SetState(task.RUNNABLE)
	tm.ready = append(tm.ready, t)
	tm.mu.Unlock()
	runtime.Gosched()
	t.SetState(task.RUNNING)
}

// SleepCurrent moves t to Stopped under ch, releases held after the
// state transition (the two-phase release spec.md calls out to avoid
// lost wakeups), then blocks until woken. It returns true if the wait
// was interrupted (timeout or signal) rather than a matching wake.
func (tm *TaskManager) SleepCurrent(t *task.Task_t, ch Chan_t, held sync.Locker, timeout time.Duration) bool {
	w := &waiter{t: t}
	if timeout > 0 {
		w.deadline = time.Now().Add(timeout)
		w.hasDL = true
	}
	tm.mu.Lock()
	t.SetState(task.BLOCKED)
	tm.stopped[ch] = append(tm.stopped[ch], w)
	tm.mu.Unlock()

	if held != nil {
		held.Unlock()
	}

	if w.hasDL {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-t.Wakec():
			tm.mu.Lock()
			expired := w.expired
			tm.mu.Unlock()
			t.SetState(task.RUNNING)
			return expired || t.Note.Doomed()
		case <-timer.C:
			tm.removeWaiter(ch, w)
			t.SetState(task.RUNNING)
			return true
		}
	}

	<-t.Wakec()
	t.SetState(task.RUNNING)
	return t.Note.Doomed()
}

func (tm *TaskManager) removeWaiter(ch Chan_t, w *waiter) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	q := tm.stopped[ch]
	for i, e := range q {
		if e == w {
			tm.stopped[ch] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// WakeTask wakes the first task blocked on ch, if any, preserving FIFO
// arrival order within the channel (spec.md §5: "per channel: FIFO
// wakeup"). Returns the woken task or nil.
func (tm *TaskManager) WakeTask(ch Chan_t) *task.Task_t {
	tm.mu.Lock()
	q := tm.stopped[ch]
	if len(q) == 0 {
		tm.mu.Unlock()
		return nil
	}
	w := q[0]
	tm.stopped[ch] = q[1:]
	tm.mu.Unlock()
	select {
	case w.t.Wakec() <- struct{}{}:
	default:
	}
	return w.t
}

// WakeAll wakes every task blocked on ch (e.g. a pipe's last writer
// closing, so every blocked reader re-checks and observes EOF).
func (tm *TaskManager) WakeAll(ch Chan_t) {
	tm.mu.Lock()
	q := tm.stopped[ch]
	delete(tm.stopped, ch)
	tm.mu.Unlock()
	for _, w := range q {
		select {
		case w.t.Wakec() <- struct{}{}:
		default:
		}
	}
}

// Tick scans the clock wake list (folded into the stopped lists here:
// any waiter with hasDL set is found by sweeping every channel), waking
// everyone whose deadline has passed. Call this periodically from the
// timer-interrupt path (spec.md §4.6). Tick marks each waiter it wakes
// as expired, so SleepCurrent reports *interrupted* = true for it, the
// same result SleepCurrent's own timer select gives when that timer
// fires first.
func (tm *TaskManager) Tick(now time.Time) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for ch, q := range tm.stopped {
		var kept []*waiter
		for _, w := range q {
			if w.hasDL && !now.Before(w.deadline) {
				w.expired = true
				select {
				case w.t.Wakec() <- struct{}{}:
				default:
				}
				continue
			}
			kept = append(kept, w)
		}
		tm.stopped[ch] = kept
	}
}

// RequeueWaiters moves up to n waiters from the head of from's stopped
// list onto to's, without waking them — futex's FUTEX_CMP_REQUEUE
// primitive, original_source's FutexList::requeue.
func (tm *TaskManager) RequeueWaiters(from, to Chan_t, n int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	q := tm.stopped[from]
	if len(q) == 0 {
		return
	}
	if n > len(q) {
		n = len(q)
	}
	moved := q[:n]
	tm.stopped[from] = q[n:]
	tm.stopped[to] = append(tm.stopped[to], moved...)
}

// KillTask dooms t and wakes it if it is currently blocked on ch, the
// mechanism a signal delivery or exit_group uses to cut short a blocked
// syscall.
func (tm *TaskManager) KillTask(t *task.Task_t, ch Chan_t, err defs.Err_t) {
	t.Note.Doom(err)
	tm.WakeTask(ch)
}
