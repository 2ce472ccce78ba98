// Package accnt accumulates per-task CPU-time accounting, used to answer
// getrusage and to fold a reaped child's usage into its parent's
// dead-descendants totals (spec.md §4.7's wait4).
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"oops/util"
)

// Accnt_t accumulates user and system nanoseconds. The embedded mutex lets
// Add/Fetch take a consistent snapshot while Utadd/Systadd stay lock-free
// on the hot path (every trap entry/exit).
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

func (a *Accnt_t) Utadd(delta int64)   { atomic.AddInt64(&a.Userns, delta) }
func (a *Accnt_t) Systadd(delta int64) { atomic.AddInt64(&a.Sysns, delta) }

func now() int64 { return time.Now().UnixNano() }

// Finish adds the time elapsed since inttime to the system-time counter,
// called when a syscall returns to user mode.
func (a *Accnt_t) Finish(inttime int64) {
	a.Systadd(now() - inttime)
}

// Add merges n's totals into a, used when reaping a zombie child.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	defer a.Unlock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
}

// ToRusage renders the accounting record as a getrusage(2) buffer: two
// {sec,usec} timevals (user, then system).
func (a *Accnt_t) ToRusage() []uint8 {
	a.Lock()
	defer a.Unlock()
	ret := make([]uint8, 4*8)
	totv := func(nano int64) (int, int) {
		return int(nano / 1e9), int((nano % 1e9) / 1000)
	}
	off := 0
	write := func(nano int64) {
		s, us := totv(nano)
		util.Writen(ret, 8, off, s)
		off += 8
		util.Writen(ret, 8, off, us)
		off += 8
	}
	write(a.Userns)
	write(a.Sysns)
	return ret
}
