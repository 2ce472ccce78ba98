package signal

import (
	"testing"

	"oops/defs"
)

func TestNewActionsStartsAtDefault(t *testing.T) {
	a := NewActions()
	if got := a.Get(defs.SIGTERM).Handler; got != 0 {
		t.Fatalf("fresh table entry handler = %#x, want SIG_DFL (0)", got)
	}
}

func TestSetReturnsPreviousAction(t *testing.T) {
	a := NewActions()
	first := Sigaction_t{Handler: 0x1000}
	if old := a.Set(defs.SIGTERM, first); old.Handler != 0 {
		t.Fatalf("first Set should return the zero-value old action, got %+v", old)
	}
	second := Sigaction_t{Handler: 0x2000}
	old := a.Set(defs.SIGTERM, second)
	if old != first {
		t.Fatalf("Set returned %+v, want %+v", old, first)
	}
	if got := a.Get(defs.SIGTERM); got != second {
		t.Fatalf("Get after Set = %+v, want %+v", got, second)
	}
}

func TestCloneIsIndependentCopy(t *testing.T) {
	a := NewActions()
	a.Set(defs.SIGTERM, Sigaction_t{Handler: 0x1000})

	clone := a.Clone().(*Actions_t)
	clone.Set(defs.SIGTERM, Sigaction_t{Handler: 0x2000})

	if got := a.Get(defs.SIGTERM).Handler; got != 0x1000 {
		t.Fatalf("mutating the clone changed the original: handler = %#x", got)
	}
}

func TestResetToDefaultKeepsIgnoreButClearsHandlers(t *testing.T) {
	a := NewActions()
	a.Set(defs.SIGTERM, Sigaction_t{Handler: 0x1000})
	a.Set(defs.SIGUSR1, Sigaction_t{Handler: defs.SIG_IGN})

	a.ResetToDefault()

	if got := a.Get(defs.SIGTERM).Handler; got != 0 {
		t.Fatalf("installed handler should reset to SIG_DFL, got %#x", got)
	}
	if got := a.Get(defs.SIGUSR1).Handler; got != defs.SIG_IGN {
		t.Fatalf("SIG_IGN should survive execve reset, got %#x", got)
	}
}

func TestBitIsOneIndexed(t *testing.T) {
	if Bit(defs.Signo_t(1)) != 1 {
		t.Fatalf("Bit(1) = %#x, want 1", Bit(defs.Signo_t(1)))
	}
	if Bit(defs.Signo_t(2)) != 2 {
		t.Fatalf("Bit(2) = %#x, want 2", Bit(defs.Signo_t(2)))
	}
}

func TestNextDeliverablePicksLowestUnblocked(t *testing.T) {
	set := Bit(defs.SIGUSR1) | Bit(defs.SIGUSR2)
	var mask uint64
	sig, rest, ok := NextDeliverable(set, mask)
	if !ok {
		t.Fatal("expected a deliverable signal")
	}
	if sig != minSig(defs.SIGUSR1, defs.SIGUSR2) {
		t.Fatalf("got sig %d, want the lowest-numbered of SIGUSR1/SIGUSR2", sig)
	}
	if rest&Bit(sig) != 0 {
		t.Fatalf("rest %#x should have delivered bit cleared", rest)
	}
}

func TestNextDeliverableSkipsBlockedSignals(t *testing.T) {
	set := Bit(defs.SIGTERM)
	mask := Bit(defs.SIGTERM)
	if _, _, ok := NextDeliverable(set, mask); ok {
		t.Fatal("blocked signal should not be deliverable")
	}
}

func TestNextDeliverableIgnoresMaskForKillAndStop(t *testing.T) {
	set := Bit(defs.SIGKILL)
	mask := Bit(defs.SIGKILL) // attempting to block SIGKILL
	sig, _, ok := NextDeliverable(set, mask)
	if !ok || sig != defs.SIGKILL {
		t.Fatalf("SIGKILL must be deliverable even if mask claims to block it: sig=%d ok=%v", sig, ok)
	}
}

func TestApplyMaskBlockUnblockSetmask(t *testing.T) {
	var cur uint64
	cur = ApplyMask(cur, defs.SIG_BLOCK, Bit(defs.SIGTERM))
	if cur&Bit(defs.SIGTERM) == 0 {
		t.Fatal("SIG_BLOCK should set the bit")
	}
	cur = ApplyMask(cur, defs.SIG_UNBLOCK, Bit(defs.SIGTERM))
	if cur&Bit(defs.SIGTERM) != 0 {
		t.Fatal("SIG_UNBLOCK should clear the bit")
	}
	cur = ApplyMask(cur, defs.SIG_SETMASK, Bit(defs.SIGUSR1))
	if cur != Bit(defs.SIGUSR1) {
		t.Fatalf("SIG_SETMASK should replace the mask wholesale, got %#x", cur)
	}
}

func TestApplyMaskNeverBlocksKillOrStop(t *testing.T) {
	cur := ApplyMask(0, defs.SIG_BLOCK, Bit(defs.SIGKILL)|Bit(defs.SIGSTOP))
	if cur != 0 {
		t.Fatalf("SIGKILL/SIGSTOP must never end up blocked, got mask %#x", cur)
	}
}

func TestDecideIgnoredSignalIsNotFatal(t *testing.T) {
	a := NewActions()
	a.Set(defs.SIGUSR1, Sigaction_t{Handler: defs.SIG_IGN})
	_, fatal, core, ok := Decide(a, defs.SIGUSR1, 0)
	if fatal || core || ok {
		t.Fatalf("ignored signal should be fully handled by the kernel, got fatal=%v core=%v ok=%v", fatal, core, ok)
	}
}

func TestDecideDefaultCoreDumpingSignal(t *testing.T) {
	a := NewActions()
	_, fatal, core, ok := Decide(a, defs.SIGSEGV, 0)
	if !fatal || !core || ok {
		t.Fatalf("SIGSEGV at SIG_DFL should be fatal+core, got fatal=%v core=%v ok=%v", fatal, core, ok)
	}
}

func TestDecideDefaultTerminatingSignal(t *testing.T) {
	a := NewActions()
	_, fatal, core, ok := Decide(a, defs.SIGTERM, 0)
	if !fatal || core || ok {
		t.Fatalf("SIGTERM at SIG_DFL should be fatal, not core-dumping, got fatal=%v core=%v ok=%v", fatal, core, ok)
	}
}

func TestDecideCustomHandlerRequestsDelivery(t *testing.T) {
	a := NewActions()
	act := Sigaction_t{Handler: 0x4000, Mask: Bit(defs.SIGUSR2)}
	a.Set(defs.SIGTERM, act)
	ctx, fatal, core, ok := Decide(a, defs.SIGTERM, 0x7)
	if fatal || core || !ok {
		t.Fatalf("custom handler should request delivery, got fatal=%v core=%v ok=%v", fatal, core, ok)
	}
	if ctx.Signo != defs.SIGTERM || ctx.Act != act || ctx.SavedMask != 0x7 {
		t.Fatalf("ctx = %+v, want signo=%d act=%+v savedMask=0x7", ctx, defs.SIGTERM, act)
	}
}

func minSig(a, b defs.Signo_t) defs.Signo_t {
	if a < b {
		return a
	}
	return b
}
