package vm

import (
	"oops/defs"
	"oops/fdops"
	"oops/mem"
	"oops/pagetable"
)

// MapFlags mirrors the subset of mmap(2)'s MAP_* flags spec.md §6 names.
type MapFlags int

const (
	MAP_SHARED MapFlags = 1 << iota
	MAP_FIXED
	MAP_ANON
)

// Mmap implements spec.md §4.3's mmap: placement search when addr == 0 and
// MAP_FIXED is clear, munmap-then-install when MAP_FIXED is set.
func (as *AddressSpace) Mmap(addr uintptr, len int, prot Prot, flags MapFlags, f fdops.Fdops_i, foff int) (uintptr, defs.Err_t) {
	if len <= 0 {
		return 0, -defs.EINVAL
	}
	n := int(pgroundup(uintptr(len)))

	as.Lock()
	if flags&MAP_FIXED != 0 {
		as.Unlock()
		if err := as.Munmap(pground(addr), n); err != 0 {
			return 0, err
		}
		as.Lock()
	} else {
		addr = as.findFreeLocked(n)
		if addr == 0 {
			as.Unlock()
			return 0, -defs.ENOMEM
		}
	}

	shared := flags&MAP_SHARED != 0
	if shared {
		prot |= PROT_WRITE
	}
	m := &MapArea{Start: addr, Len: n, Prot: prot, Shared: shared}
	if flags&MAP_ANON != 0 || f == nil {
		m.Kind = BkAnon
	} else {
		m.Kind = BkFile
		m.File = f
		m.FileOff = foff
	}
	as.insert(m)
	as.Unlock()
	return addr, 0
}

// findFreeLocked searches downward from SearchBottom for n contiguous
// free bytes, the placement policy spec.md §4.3 names for addr==NULL.
// Caller holds as's lock.
func (as *AddressSpace) findFreeLocked(n int) uintptr {
	top := as.SearchBottom
	for {
		if top < uintptr(n) {
			return 0
		}
		cand := pground(top - uintptr(n))
		if cand < uintptr(mem.PGSIZE) {
			return 0
		}
		if as.overlapsLocked(cand, cand+uintptr(n)) == nil {
			as.SearchBottom = cand
			return cand
		}
		top = cand
	}
}

func (as *AddressSpace) overlapsLocked(lo, hi uintptr) *MapArea {
	for _, a := range as.areas {
		if a.Start < hi && a.end() > lo {
			return a
		}
	}
	return nil
}

// Munmap implements spec.md §4.3's munmap: bisecting overlapping areas,
// unmapping frames in the removed span, and writing back dirty
// shared+writable file-backed pages before the unmap completes.
func (as *AddressSpace) Munmap(addr uintptr, len int) defs.Err_t {
	lo := pground(addr)
	hi := pgroundup(addr + uintptr(len))

	as.Lock()
	defer as.Unlock()

	var touched []*MapArea
	for _, a := range as.areas {
		if a.Start < hi && a.end() > lo {
			touched = append(touched, a)
		}
	}
	for _, a := range touched {
		as.writebackLocked(a, lo, hi)
		as.unmapRangeLocked(maxu(a.Start, lo), minu(a.end(), hi))
		as.remove(a)
		if a.Start < lo { // leading remnant
			as.insert(&MapArea{Start: a.Start, Len: int(lo - a.Start), Prot: a.Prot, Kind: a.Kind, Shared: a.Shared, File: a.File, FileOff: a.FileOff})
		}
		if a.end() > hi { // trailing remnant
			off := a.FileOff
			if a.Kind == BkFile {
				off += int(hi - a.Start)
			}
			as.insert(&MapArea{Start: hi, Len: int(a.end() - hi), Prot: a.Prot, Kind: a.Kind, Shared: a.Shared, File: a.File, FileOff: off})
		}
	}
	return 0
}

func (as *AddressSpace) unmapRangeLocked(lo, hi uintptr) {
	for va := lo; va < hi; va += uintptr(mem.PGSIZE) {
		pte, ok := as.pt.Walk(va)
		if !ok {
			continue
		}
		if *pte&pagetable.PTE_S != 0 {
			if slot, has := as.swapidx[va]; has {
				as.sw.Refdown(slot)
				delete(as.swapidx, va)
			}
		} else if *pte&pagetable.PTE_V != 0 {
			as.fa.Refdown(pte.Ppn())
		}
		as.pt.Unmap(va)
	}
}

// writebackLocked flushes dirty pages of a writable shared file-backed area
// back to its file before the range [lo,hi) is unmapped, per spec.md
// §4.3's "writable file-backed shared areas get a write-back pass before
// unmapping".
func (as *AddressSpace) writebackLocked(a *MapArea, lo, hi uintptr) {
	if a.Kind != BkFile || !a.Shared || a.Prot&PROT_WRITE == 0 {
		return
	}
	from := maxu(a.Start, lo)
	to := minu(a.end(), hi)
	for va := from; va < to; va += uintptr(mem.PGSIZE) {
		pte, ok := as.pt.Walk(va)
		if !ok || *pte&(pagetable.PTE_V|pagetable.PTE_D) != (pagetable.PTE_V|pagetable.PTE_D) {
			continue
		}
		pg := as.fa.Dmap(pte.Ppn())
		off := a.FileOff + int(va-a.Start)
		fb := (&Fakeubuf_t{}).init(pg[:])
		a.File.Pwrite(fb, off)
	}
}

// Mprotect implements spec.md §4.3's mprotect: the same bisection as
// munmap, but the middle span gets a new protection instead of being
// unmapped; S and C bits survive.
func (as *AddressSpace) Mprotect(addr uintptr, len int, prot Prot) defs.Err_t {
	lo := pground(addr)
	hi := pgroundup(addr + uintptr(len))

	as.Lock()
	defer as.Unlock()

	var touched []*MapArea
	for _, a := range as.areas {
		if a.Start < hi && a.end() > lo {
			touched = append(touched, a)
		}
	}
	for _, a := range touched {
		mlo, mhi := maxu(a.Start, lo), minu(a.end(), hi)
		as.remove(a)
		if a.Start < mlo {
			as.insert(&MapArea{Start: a.Start, Len: int(mlo - a.Start), Prot: a.Prot, Kind: a.Kind, Shared: a.Shared, File: a.File, FileOff: a.FileOff})
		}
		off := a.FileOff
		if a.Kind == BkFile {
			off += int(mlo - a.Start)
		}
		as.insert(&MapArea{Start: mlo, Len: int(mhi - mlo), Prot: prot, Kind: a.Kind, Shared: a.Shared, File: a.File, FileOff: off})
		if a.end() > mhi {
			off2 := a.FileOff
			if a.Kind == BkFile {
				off2 += int(mhi - a.Start)
			}
			as.insert(&MapArea{Start: mhi, Len: int(a.end() - mhi), Prot: a.Prot, Kind: a.Kind, Shared: a.Shared, File: a.File, FileOff: off2})
		}
		for va := mlo; va < mhi; va += uintptr(mem.PGSIZE) {
			pte, ok := as.pt.Walk(va)
			if !ok || *pte&pagetable.PTE_V == 0 {
				continue
			}
			keep := pagetable.Flags(*pte) & (pagetable.PTE_C | pagetable.PTE_S | pagetable.PTE_A | pagetable.PTE_D)
			newperm := prot.pte()
			if *pte&pagetable.PTE_C != 0 {
				newperm &^= pagetable.PTE_W // mprotect never re-grants W past a COW entry
			}
			*pte = pagetable.Repoint(pte.Ppn(), (newperm&^(pagetable.PTE_C|pagetable.PTE_S))|keep)
		}
	}
	return 0
}

// Brk implements spec.md §4.3's brk: grows or shrinks the heap area
// anchored at ProgramEnd, enforcing CurrentEnd >= ProgramEnd.
func (as *AddressSpace) Brk(newend uintptr) (uintptr, defs.Err_t) {
	as.Lock()
	cur := as.CurrentEnd
	progend := as.ProgramEnd
	as.Unlock()

	if newend == 0 {
		return cur, 0
	}
	if newend < progend {
		return 0, -defs.EINVAL
	}
	if newend == cur {
		return cur, 0
	}
	if newend > cur {
		as.AddAnon(cur, int(newend-cur), PROT_READ|PROT_WRITE, false)
	} else {
		if err := as.Munmap(pground(newend), int(cur-newend)); err != 0 {
			return 0, err
		}
	}
	as.Lock()
	as.CurrentEnd = newend
	as.Unlock()
	return newend, 0
}

func maxu(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}
func minu(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}
