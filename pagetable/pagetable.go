// Package pagetable implements the SV39 three-level page table (component 2
// of spec.md §2): a 9+9+9+12 bit split with permission and two
// software-defined bits (C for copy-on-write, S for swapped-out).
package pagetable

import (
	"unsafe"

	"oops/mem"
)

// PTE is one SV39 page-table entry.
type PTE uint64

// Permission and status bits. V/R/W/X/U/G/A/D follow the SV39 encoding;
// C and S are software-defined, using two of the RSW bits the hardware
// ignores, matching spec.md's data-model entry for page-table entries.
const (
	PTE_V PTE = 1 << 0 // valid
	PTE_R PTE = 1 << 1 // readable
	PTE_W PTE = 1 << 2 // writable
	PTE_X PTE = 1 << 3 // executable
	PTE_U PTE = 1 << 4 // user-accessible
	PTE_G PTE = 1 << 5 // global
	PTE_A PTE = 1 << 6 // accessed
	PTE_D PTE = 1 << 7 // dirty
	PTE_C PTE = 1 << 8 // copy-on-write sentinel (software)
	PTE_S PTE = 1 << 9 // swapped-out sentinel (software)

	pteFlagMask = PTE(1<<10 - 1)
	ppnShift    = 10
)

// Table is one 4 KiB page-table page: 512 eight-byte entries, the same
// size as mem.Pg_t so it can be carved out of a frame-allocator frame.
type Table [512]PTE

func pg2table(pg *mem.Pg_t) *Table {
	return (*Table)(unsafe.Pointer(pg))
}

func vpn(va uintptr, level int) int {
	return int((va >> (12 + 9*uint(level))) & 0x1ff)
}

// Ppn extracts the physical page number a leaf or intermediate PTE points
// at.
func (p PTE) Ppn() mem.Pa_t {
	return mem.Pa_t(p>>ppnShift) << mem.PGSHIFT
}

func mkpte(pa mem.Pa_t, flags PTE) PTE {
	return PTE(pa>>mem.PGSHIFT)<<ppnShift | (flags & pteFlagMask) | PTE_V
}

// Flags returns just the low flag bits of a PTE, with the PPN masked out.
func Flags(p PTE) PTE { return p & pteFlagMask }

// Repoint rebuilds a leaf entry pointing at pa with the given flag bits,
// used by vm's COW/swap-in paths and by Mprotect to change permission
// without reaching into this package's unexported PPN encoding.
func Repoint(pa mem.Pa_t, flags PTE) PTE { return mkpte(pa, flags) }

// PageTable owns a root SV39 table and every intermediate table frame it
// allocates; it does not own the leaf data frames it maps (those are
// reference-counted independently by address space / frame allocator, per
// spec.md's "Physical frame" lifecycle).
type PageTable struct {
	fa   *mem.FrameAllocator
	Root mem.Pa_t
}

// New allocates a zeroed root table.
func New(fa *mem.FrameAllocator) (*PageTable, bool) {
	pa, _, ok := fa.Alloc()
	if !ok {
		return nil, false
	}
	return &PageTable{fa: fa, Root: pa}, true
}

// Walk traverses the three levels, returning the leaf slot iff every
// intermediate table is valid. It never allocates.
func (pt *PageTable) Walk(va uintptr) (*PTE, bool) {
	return pt.walk(va, false)
}

// WalkCreate traverses the three levels, allocating any missing
// intermediate table. It returns false only on allocator exhaustion.
func (pt *PageTable) WalkCreate(va uintptr) (*PTE, bool) {
	return pt.walk(va, true)
}

func (pt *PageTable) walk(va uintptr, create bool) (*PTE, bool) {
	table := pg2table(pt.fa.Dmap(pt.Root))
	for level := 2; level > 0; level-- {
		idx := vpn(va, level)
		pte := &table[idx]
		if *pte&PTE_V == 0 {
			if !create {
				return nil, false
			}
			pa, pg, ok := pt.fa.Alloc()
			if !ok {
				return nil, false
			}
			_ = pg
			*pte = mkpte(pa, 0) // non-leaf: RWX clear
		}
		table = pg2table(pt.fa.Dmap(pte.Ppn()))
	}
	idx := vpn(va, 0)
	return &table[idx], true
}

// Map installs a leaf mapping at va pointing at pa with the given
// permission bits (which must include PTE_V's siblings but not PTE_V
// itself — Map always sets it).
func (pt *PageTable) Map(va uintptr, pa mem.Pa_t, perm PTE) bool {
	pte, ok := pt.WalkCreate(va)
	if !ok {
		return false
	}
	*pte = mkpte(pa, perm|PTE_V)
	return true
}

// Unmap clears a leaf entry, returning whether one was present.
func (pt *PageTable) Unmap(va uintptr) bool {
	pte, ok := pt.Walk(va)
	if !ok || *pte&PTE_V == 0 {
		return false
	}
	*pte = 0
	return true
}

// SetCOW clears W and sets C, enforcing C ⇒ U ∧ ¬W ∧ ¬S.
func SetCOW(pte *PTE) {
	*pte = (*pte &^ (PTE_W | PTE_S)) | PTE_C | PTE_U
}

// SetSwap clears V and C and sets S, enforcing S ⇒ ¬V ∧ ¬C. The PPN field
// is left as garbage; the real slot location lives in the task's swap
// index, never in the PTE itself.
func SetSwap(pte *PTE) {
	*pte = (*pte &^ (PTE_V | PTE_C)) | PTE_S
}

// ClearCOW clears C and sets W, used when a COW fault resolves by
// reclaiming a singly-held page rather than copying it.
func ClearCOW(pte *PTE) {
	*pte = (*pte &^ PTE_C) | PTE_W
}

// Flush is a TLB shootdown. The kernel is single-hart (spec.md's
// Non-goals) and this implementation has no real TLB to invalidate; the
// hook exists so an SMP extension has one call site to extend.
func (pt *PageTable) Flush(uintptr, int) {}

// ForEachUserLeaf calls fn for every valid, user-accessible leaf entry
// between [lo, hi) virtual pages, in ascending virtual-address order. It is
// used for fork's COW-marking pass and for swap-out victim selection,
// which both need to walk an address space's resident pages without a
// separate reverse index.
func (pt *PageTable) ForEachUserLeaf(lo, hi uintptr, fn func(va uintptr, pte *PTE)) {
	root := pg2table(pt.fa.Dmap(pt.Root))
	for i2 := 0; i2 < 512; i2++ {
		e2 := root[i2]
		if e2&PTE_V == 0 {
			continue
		}
		l1 := pg2table(pt.fa.Dmap(e2.Ppn()))
		for i1 := 0; i1 < 512; i1++ {
			e1 := l1[i1]
			if e1&PTE_V == 0 {
				continue
			}
			l0 := pg2table(pt.fa.Dmap(e1.Ppn()))
			for i0 := 0; i0 < 512; i0++ {
				pte := &l0[i0]
				if *pte&(PTE_V|PTE_U) != (PTE_V | PTE_U) {
					continue
				}
				va := uintptr(i2)<<30 | uintptr(i1)<<21 | uintptr(i0)<<12
				if va < lo || va >= hi {
					continue
				}
				fn(va, pte)
			}
		}
	}
}

// Destroy frees every table frame this structure owns: the root, every
// level-1 table, and every level-0 table. It never touches the leaf data
// frames a level-0 table's entries point at — those are owned by the
// address space, which must have already unmapped and Refdown'd them
// (vm.AddressSpace.Teardown does this before calling Destroy).
func (pt *PageTable) Destroy() {
	// depth counts remaining table levels below the table at pa; 0 means
	// this table's own entries point at leaves, not further tables.
	var walkTable func(pa mem.Pa_t, depth int)
	walkTable = func(pa mem.Pa_t, depth int) {
		if depth > 0 {
			table := pg2table(pt.fa.Dmap(pa))
			for _, e := range table {
				if e&PTE_V != 0 {
					walkTable(e.Ppn(), depth-1)
				}
			}
		}
		pt.fa.Refdown(pa)
	}
	walkTable(pt.Root, 2)
}
