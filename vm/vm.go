// Package vm implements the address space (component 3 of spec.md §2): an
// ordered collection of map areas backed by a pagetable.PageTable, with
// page-fault resolution, mmap/munmap/mprotect/brk, and a COW fork. Adapted
// from the teacher's vm package (Vm_t in as.go), generalized from its
// x86 two-level Pmap_t to the SV39 pagetable package and from its amd64
// PTE_COW/PTE_P bits to pagetable.PTE_C/PTE_V.
package vm

import (
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"oops/defs"
	"oops/fdops"
	"oops/mem"
	"oops/pagetable"
	"oops/swap"
)

// Debug gates verbose fault-path logging, the same texture as mem.Debug.
var Debug = false

// Prot is a protection/backing bitmask mirrored onto pagetable.PTE's R/W/X/U
// bits; kept as its own type so callers of Mmap/Mprotect don't need to know
// about pagetable internals.
type Prot int

const (
	PROT_READ  Prot = 1 << 0
	PROT_WRITE Prot = 1 << 1
	PROT_EXEC  Prot = 1 << 2
)

func (p Prot) pte() pagetable.PTE {
	var f pagetable.PTE
	if p&PROT_READ != 0 {
		f |= pagetable.PTE_R
	}
	if p&PROT_WRITE != 0 {
		f |= pagetable.PTE_W
	}
	if p&PROT_EXEC != 0 {
		f |= pagetable.PTE_X
	}
	return f | pagetable.PTE_U
}

// backing_t distinguishes the three ways spec.md §3's "Map area" can source
// its bytes. Identical (VA==PA) is used only for the reserved kernel
// mapping; Anon and File are the two Framed sub-kinds.
type backing_t int

const (
	BkIdentical backing_t = iota
	BkAnon
	BkFile
)

// MapArea is a contiguous half-open virtual-page range with a uniform
// protection and backing, spec.md §3's "Map area".
type MapArea struct {
	Start  uintptr // page-aligned
	Len    int     // bytes, page-aligned
	Prot   Prot
	Kind   backing_t
	Shared bool
	File   fdops.Fdops_i
	FileOff int
}

func (m *MapArea) end() uintptr { return m.Start + uintptr(m.Len) }

// AddressSpace is spec.md §3's "Address space": map areas plus a page
// table plus the program-end/current-end/search-bottom watermarks.
type AddressSpace struct {
	sync.Mutex

	fa   *mem.FrameAllocator
	sw   *swap.Store
	pt   *pagetable.PageTable

	areas []*MapArea // kept sorted by Start; invariant: pairwise disjoint

	ProgramEnd   uintptr
	CurrentEnd   uintptr
	SearchBottom uintptr

	// swapidx maps a swapped-out page's VA to its swap.Store slot number,
	// standing in for the teacher's PTE-embedded slot index — SV39's PTE
	// doesn't have enough free bits to hold a full slot number next to
	// the V/C/S bits, so the index lives here instead (spec.md §4.3's
	// "task's swap-slot reverse index").
	swapidx map[uintptr]int

	flight singleflight.Group
}

const userTop = uintptr(1) << 38 // top of SV39 user half, below the kernel's

// New creates an empty address space with a fresh root page table.
func New(fa *mem.FrameAllocator, sw *swap.Store) (*AddressSpace, defs.Err_t) {
	pt, ok := pagetable.New(fa)
	if !ok {
		return nil, -defs.ENOMEM
	}
	return &AddressSpace{
		fa:           fa,
		sw:           sw,
		pt:           pt,
		swapidx:      make(map[uintptr]int),
		SearchBottom: userTop,
	}, 0
}

func pground(x uintptr) uintptr { return x &^ uintptr(mem.PGSIZE-1) }
func pgroundup(x uintptr) uintptr {
	return pground(x + uintptr(mem.PGSIZE) - 1)
}

// find returns the area containing va, or nil.
func (as *AddressSpace) find(va uintptr) *MapArea {
	i := sort.Search(len(as.areas), func(i int) bool { return as.areas[i].end() > va })
	if i < len(as.areas) && as.areas[i].Start <= va {
		return as.areas[i]
	}
	return nil
}

// insert adds an area, keeping as.areas sorted. Callers must already have
// ensured disjointness (via munmap of the target range, or placement
// search).
func (as *AddressSpace) insert(m *MapArea) {
	i := sort.Search(len(as.areas), func(i int) bool { return as.areas[i].Start >= m.Start })
	as.areas = append(as.areas, nil)
	copy(as.areas[i+1:], as.areas[i:])
	as.areas[i] = m
}

func (as *AddressSpace) remove(m *MapArea) {
	for i, a := range as.areas {
		if a == m {
			as.areas = append(as.areas[:i], as.areas[i+1:]...)
			return
		}
	}
}

// AddAnon installs an anonymous, lazily-faulted area — used by the ELF
// loader for segments with a BSS tail, by InitExecStack for the stack,
// and by brk's heap growth.
func (as *AddressSpace) AddAnon(start uintptr, len int, prot Prot, shared bool) {
	as.Lock()
	defer as.Unlock()
	as.insert(&MapArea{Start: pground(start), Len: int(pgroundup(uintptr(len))), Prot: prot, Kind: BkAnon, Shared: shared})
}

// AddFile installs a lazily-faulted file-backed area.
func (as *AddressSpace) AddFile(start uintptr, len int, prot Prot, f fdops.Fdops_i, foff int, shared bool) {
	as.Lock()
	defer as.Unlock()
	as.insert(&MapArea{Start: pground(start), Len: int(pgroundup(uintptr(len))), Prot: prot, Kind: BkFile, File: f, FileOff: foff, Shared: shared})
}

// AddIdentical installs the kernel's VA==PA mapping, used only for the
// reserved kernel image/MMIO/trampoline range.
func (as *AddressSpace) AddIdentical(start uintptr, len int, prot Prot) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	start = pground(start)
	n := int(pgroundup(uintptr(len))) / mem.PGSIZE
	for i := 0; i < n; i++ {
		va := start + uintptr(i*mem.PGSIZE)
		if !as.pt.Map(va, mem.Pa_t(va), prot.pte()) {
			return -defs.ENOMEM
		}
	}
	as.insert(&MapArea{Start: start, Len: n * mem.PGSIZE, Prot: prot, Kind: BkIdentical})
	return 0
}

// Destroy frees every resident frame, every swap slot still indexed, and
// the page table itself. Called once, when the owning task's last
// CLONE_VM sharer exits.
func (as *AddressSpace) Destroy() {
	as.Lock()
	defer as.Unlock()
	as.pt.ForEachUserLeaf(0, userTop, func(va uintptr, pte *pagetable.PTE) {
		as.fa.Refdown(pte.Ppn())
	})
	for _, slot := range as.swapidx {
		as.sw.Refdown(slot)
	}
	as.swapidx = make(map[uintptr]int)
	as.pt.Destroy()
}
