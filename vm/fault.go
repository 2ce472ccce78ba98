package vm

import (
	"fmt"
	"strconv"

	"oops/defs"
	"oops/mem"
	"oops/pagetable"
)

// Fault resolves a page fault at va (spec.md §4.3's four-case dispatch).
// isStore distinguishes a store fault from a load fault for the
// permission check in step 2.
func (as *AddressSpace) Fault(va uintptr, isStore bool) defs.Err_t {
	vpn := pground(va)
	// Concurrent faults on the same page collapse into one resolution,
	// the "two harts fault on the same page" case SPEC_FULL.md's
	// singleflight wiring note calls out.
	key := strconv.FormatUint(uint64(vpn), 16)
	_, err, _ := as.flight.Do(key, func() (interface{}, error) {
		return nil, toError(as.faultLocked(vpn, isStore))
	})
	if err != nil {
		return err.(errWrap).e
	}
	return 0
}

// errWrap lets a defs.Err_t travel through singleflight's error channel,
// which wants a real error.
type errWrap struct{ e defs.Err_t }

func (w errWrap) Error() string { return fmt.Sprintf("err %d", w.e) }

func toError(e defs.Err_t) error {
	if e == 0 {
		return nil
	}
	return errWrap{e}
}

func (as *AddressSpace) faultLocked(vpn uintptr, isStore bool) defs.Err_t {
	as.Lock()
	defer as.Unlock()

	m := as.find(vpn)
	if m == nil {
		return -defs.EFAULT // no area: trap's Dispatch raises SIGSEGV on this
	}
	if isStore && m.Prot&PROT_WRITE == 0 {
		return -defs.EFAULT
	}
	if !isStore && m.Prot&PROT_READ == 0 {
		return -defs.EFAULT
	}

	pte, ok := as.pt.WalkCreate(vpn)
	if !ok {
		if !as.swapOutLocked() {
			return -defs.ENOHEAP
		}
		pte, ok = as.pt.WalkCreate(vpn)
		if !ok {
			return -defs.ENOHEAP
		}
	}

	switch {
	case *pte&pagetable.PTE_S != 0:
		return as.faultSwapin(vpn, pte)
	case *pte&pagetable.PTE_C != 0:
		return as.faultCOW(vpn, pte, m)
	case *pte&pagetable.PTE_V == 0:
		return as.faultAbsent(vpn, pte, m)
	default:
		return 0 // spurious
	}
}

func (as *AddressSpace) faultAbsent(vpn uintptr, pte *pagetable.PTE, m *MapArea) defs.Err_t {
	pa, pg, ok := as.fa.Alloc()
	if !ok {
		if !as.swapOutLocked() {
			return -defs.ENOHEAP
		}
		pa, pg, ok = as.fa.Alloc()
		if !ok {
			return -defs.ENOHEAP
		}
	}
	if m.Kind == BkFile {
		off := m.FileOff + int(vpn-m.Start)
		ub := &Fakeubuf_t{}
		n, rerr := m.File.Pread(ub.init(pg[:]), off)
		if rerr != 0 && rerr != -defs.EINVAL {
			as.fa.Refdown(pa)
			return rerr
		}
		_ = n // short/zero reads leave the remainder zeroed, per spec.md §4.3
	}
	if !as.pt.Map(vpn, pa, m.Prot.pte()) {
		as.fa.Refdown(pa)
		return -defs.ENOMEM
	}
	return 0
}

func (as *AddressSpace) faultSwapin(vpn uintptr, pte *pagetable.PTE) defs.Err_t {
	slot, ok := as.swapidx[vpn]
	if !ok {
		panic("swapped PTE with no slot index")
	}
	pa, _, allocok := as.fa.AllocNoZero()
	if !allocok {
		if !as.swapOutLocked() {
			return -defs.ENOHEAP
		}
		pa, _, allocok = as.fa.AllocNoZero()
		if !allocok {
			return -defs.ENOHEAP
		}
	}
	if err := as.sw.In(as.fa, slot, pa); err != 0 {
		as.fa.Refdown(pa)
		return err
	}
	delete(as.swapidx, vpn)
	as.sw.Refdown(slot)
	flags := (pagetable.Flags(*pte) &^ pagetable.PTE_S) | pagetable.PTE_V
	*pte = pagetable.Repoint(pa, flags)
	return 0
}

func (as *AddressSpace) faultCOW(vpn uintptr, pte *pagetable.PTE, m *MapArea) defs.Err_t {
	pa := pte.Ppn()
	if as.fa.Refcnt(pa) == 1 {
		pagetable.ClearCOW(pte)
		return 0
	}
	npa, npg, ok := as.fa.AllocNoZero()
	if !ok {
		if !as.swapOutLocked() {
			return -defs.ENOHEAP
		}
		npa, npg, ok = as.fa.AllocNoZero()
		if !ok {
			return -defs.ENOHEAP
		}
	}
	*npg = *as.fa.Dmap(pa)
	as.fa.Refdown(pa)
	*pte = pagetable.Repoint(npa, pagetable.Flags(*pte))
	pagetable.ClearCOW(pte)
	return 0
}

// swapOutLocked evicts one victim page, per spec.md §4.3's preference
// order: no A bit, then no D bit, then refcount == 1; entries skipped
// along the way have their A/D bits cleared so they become eligible on
// the next pass. Must be called with as already locked.
func (as *AddressSpace) swapOutLocked() bool {
	type cand struct {
		va  uintptr
		pte *pagetable.PTE
	}
	var noA, noD, single *cand
	as.pt.ForEachUserLeaf(0, userTop, func(va uintptr, pte *pagetable.PTE) {
		if *pte&(pagetable.PTE_C|pagetable.PTE_S) != 0 {
			return // never evict a COW or already-swapped entry
		}
		c := &cand{va: va, pte: pte}
		if *pte&pagetable.PTE_A == 0 && noA == nil {
			noA = c
			return
		}
		if *pte&pagetable.PTE_D == 0 && noD == nil {
			noD = c
		}
		if as.fa.Refcnt(pte.Ppn()) == 1 && single == nil {
			single = c
		}
		*pte &^= pagetable.PTE_A | pagetable.PTE_D
	})
	victim := noA
	if victim == nil {
		victim = noD
	}
	if victim == nil {
		victim = single
	}
	if victim == nil {
		return false
	}
	slot, serr := as.sw.Alloc()
	if serr != 0 {
		return false
	}
	pa := victim.pte.Ppn()
	if err := as.sw.Out(as.fa, pa, slot); err != 0 {
		as.sw.Refdown(slot)
		return false
	}
	as.swapidx[victim.va] = slot
	pagetable.SetSwap(victim.pte)
	as.fa.Refdown(pa)
	if Debug {
		fmt.Printf("vm: swapped out va=%#x to slot %d\n", victim.va, slot)
	}
	return true
}
