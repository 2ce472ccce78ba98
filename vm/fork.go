package vm

import (
	"oops/defs"
	"oops/pagetable"
)

// Fork clones as for spec.md §4.7's clone(CLONE_VM clear): every map area
// is duplicated, every resident writable user PTE in both the parent and
// the child is marked copy-on-write (read-only ones are shared as they
// are), and frame reference counts are bumped instead
// of copying bytes — "frame count after fork of a parent with P writable
// pages increases by 0" (spec.md §8's testable property 2).
func (as *AddressSpace) Fork() (*AddressSpace, defs.Err_t) {
	child, err := New(as.fa, as.sw)
	if err != 0 {
		return nil, err
	}

	as.Lock()
	defer as.Unlock()

	for _, a := range as.areas {
		na := *a
		child.areas = append(child.areas, &na)
	}
	child.ProgramEnd = as.ProgramEnd
	child.CurrentEnd = as.CurrentEnd
	child.SearchBottom = as.SearchBottom

	var walkErr defs.Err_t
	as.pt.ForEachUserLeaf(0, userTop, func(va uintptr, pte *pagetable.PTE) {
		if walkErr != 0 {
			return
		}
		if *pte&pagetable.PTE_S != 0 {
			slot := as.swapidx[va]
			as.sw.Refup(slot)
			child.swapidx[va] = slot
			cpte, ok := child.pt.WalkCreate(va)
			if !ok {
				walkErr = -defs.ENOMEM
				return
			}
			*cpte = *pte
			return
		}
		pa := pte.Ppn()
		if *pte&pagetable.PTE_W != 0 {
			pagetable.SetCOW(pte)
		}
		as.fa.Refup(pa)
		cpte, ok := child.pt.WalkCreate(va)
		if !ok {
			as.fa.Refdown(pa)
			walkErr = -defs.ENOMEM
			return
		}
		*cpte = *pte
	})
	if walkErr != 0 {
		child.Destroy()
		return nil, walkErr
	}
	return child, 0
}

// DupShared returns as itself: under clone(CLONE_VM set) both tasks share
// every map area and frame, no COW marking needed because they are, by
// construction, the same address space, not a copy of it. task.Clone
// shares the parent's *AddressSpace pointer directly and does not call it.
func (as *AddressSpace) DupShared() *AddressSpace { return as }
