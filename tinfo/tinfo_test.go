package tinfo

import (
	"testing"

	"oops/defs"
)

func TestNewTnoteStartsAliveAndUndoomed(t *testing.T) {
	n := NewTnote()
	if !n.Alive {
		t.Fatal("new note should start alive")
	}
	if n.Doomed() {
		t.Fatal("new note should not start doomed")
	}
}

func TestDoomSetsIsdoomedAndKerr(t *testing.T) {
	n := NewTnote()
	n.Doom(-defs.EINTR)
	if !n.Doomed() {
		t.Fatal("expected Doomed() true after Doom")
	}
	if n.Killnaps.Kerr != -defs.EINTR {
		t.Fatalf("Kerr = %d, want %d", n.Killnaps.Kerr, -defs.EINTR)
	}
	select {
	case <-n.Killnaps.Killch:
	default:
		t.Fatal("expected a pending send on Killch after Doom")
	}
}

func TestDoomIsIdempotent(t *testing.T) {
	n := NewTnote()
	n.Doom(-defs.EINTR)
	n.Doom(-defs.EINTR)
	select {
	case <-n.Killnaps.Killch:
	default:
		t.Fatal("expected Killch to still hold a pending send")
	}
	select {
	case <-n.Killnaps.Killch:
		t.Fatal("second Doom should not have queued a second send")
	default:
	}
}

func TestThreadinfoAddRemove(t *testing.T) {
	ti := NewThreadinfo()
	note := NewTnote()
	ti.Add(1, note)
	if got := ti.Notes[1]; got != note {
		t.Fatalf("Notes[1] = %v, want %v", got, note)
	}
	ti.Remove(1)
	if _, ok := ti.Notes[1]; ok {
		t.Fatal("expected tid 1 to be removed")
	}
}

func TestDoomAllDoomsEveryRegisteredThread(t *testing.T) {
	ti := NewThreadinfo()
	a, b := NewTnote(), NewTnote()
	ti.Add(1, a)
	ti.Add(2, b)

	ti.DoomAll(-defs.EINTR)

	if !a.Doomed() || !b.Doomed() {
		t.Fatal("expected both threads doomed")
	}
}

func TestDoomAllOnEmptyRegistryDoesNothing(t *testing.T) {
	ti := NewThreadinfo()
	ti.DoomAll(-defs.EINTR) // must not panic or block
}
