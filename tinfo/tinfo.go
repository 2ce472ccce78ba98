// Package tinfo tracks per-thread kill/doom bookkeeping, adapted from the
// teacher's tinfo package with its runtime.Gptr()/Setgptr() thread-local
// lookup dropped entirely: that trick requires a patched Go runtime this
// module doesn't have, so every kernel package that would have called
// tinfo.Current() instead receives "current task" explicitly as a
// function parameter (task.Task_t carries its own *Tnote_t).
package tinfo

import (
	"sync"

	"oops/defs"
)

// Tnote_t is one thread's kill/doom state: whether a pending SIGKILL (or
// exit_group from a sibling) should make the next blocking operation
// unwind instead of completing.
type Tnote_t struct {
	sync.Mutex
	Alive    bool
	Killed   bool
	Isdoomed bool
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

// NewTnote returns a freshly alive, undoomed thread note.
func NewTnote() *Tnote_t {
	t := &Tnote_t{Alive: true}
	t.Killnaps.Killch = make(chan bool, 1)
	t.Killnaps.Cond = sync.NewCond(t)
	return t
}

// Doomed reports whether the thread is marked to die at its next chance.
func (t *Tnote_t) Doomed() bool {
	t.Lock()
	defer t.Unlock()
	return t.Isdoomed
}

// Doom marks the thread doomed, waking anything waiting on Killnaps.Cond
// so a blocked syscall notices and unwinds with err.
func (t *Tnote_t) Doom(err defs.Err_t) {
	t.Lock()
	t.Isdoomed = true
	t.Killed = true
	t.Killnaps.Kerr = err
	t.Killnaps.Cond.Broadcast()
	t.Unlock()
	select {
	case t.Killnaps.Killch <- true:
	default:
	}
}

// Threadinfo_t tracks every live thread's note, keyed by tid, so
// exit_group/kill(pid) can doom every sibling without walking the
// scheduler's own lists.
type Threadinfo_t struct {
	sync.Mutex
	Notes map[defs.Tid_t]*Tnote_t
}

// NewThreadinfo returns an empty thread-note registry.
func NewThreadinfo() *Threadinfo_t {
	return &Threadinfo_t{Notes: make(map[defs.Tid_t]*Tnote_t)}
}

func (ti *Threadinfo_t) Add(tid defs.Tid_t, note *Tnote_t) {
	ti.Lock()
	defer ti.Unlock()
	ti.Notes[tid] = note
}

func (ti *Threadinfo_t) Remove(tid defs.Tid_t) {
	ti.Lock()
	defer ti.Unlock()
	delete(ti.Notes, tid)
}

// DoomAll marks every registered thread doomed, used by exit_group.
func (ti *Threadinfo_t) DoomAll(err defs.Err_t) {
	ti.Lock()
	notes := make([]*Tnote_t, 0, len(ti.Notes))
	for _, n := range ti.Notes {
		notes = append(notes, n)
	}
	ti.Unlock()
	for _, n := range notes {
		n.Doom(err)
	}
}
