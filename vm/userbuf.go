package vm

import (
	"oops/defs"
	"oops/mem"
)

// Userbuf_t assists moving bytes between a kernel buffer and a user virtual
// address range, faulting in absent pages lazily via AddressSpace.Fault as
// it goes — the copy_in/copy_out primitives spec.md §9's design notes call
// for, adapted from the teacher's Userbuf_t.
type Userbuf_t struct {
	as   *AddressSpace
	va   uintptr
	len  int
	off  int
}

// NewUserbuf returns a Userbuf_t over [va, va+n) in as.
func NewUserbuf(as *AddressSpace, va uintptr, n int) *Userbuf_t {
	return &Userbuf_t{as: as, va: va, len: n}
}

func (ub *Userbuf_t) Remain() int  { return ub.len - ub.off }
func (ub *Userbuf_t) Totalsz() int { return ub.len }

// Uioread copies user memory [va+off, ...) into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

// Uiowrite copies src into user memory [va+off, ...).
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub.tx(src, true)
}

func (ub *Userbuf_t) tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.va + uintptr(ub.off)
		pgoff := int(va) & (mem.PGSIZE - 1)
		kbuf, err := ub.as.kmap(va, write)
		if err != 0 {
			return ret, err
		}
		kbuf = kbuf[pgoff:]
		left := ub.len - ub.off
		if len(kbuf) > left {
			kbuf = kbuf[:left]
		}
		var c int
		if write {
			c = copy(kbuf, buf)
		} else {
			c = copy(buf, kbuf)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
		if c == 0 {
			// kmap succeeded but produced no room, e.g. a zero-length
			// trailing page; avoid spinning.
			break
		}
	}
	return ret, 0
}

// kmap resolves va to a kernel-addressable slice of the frame it's
// currently mapped to, faulting it in (or COW/swap-resolving it) first.
// write selects whether the access requires the store permission check.
func (as *AddressSpace) kmap(va uintptr, write bool) ([]uint8, defs.Err_t) {
	as.Lock()
	m := as.find(pground(va))
	as.Unlock()
	if m == nil {
		return nil, -defs.EFAULT
	}
	if err := as.Fault(va, write); err != 0 {
		return nil, err
	}
	as.Lock()
	pte, ok := as.pt.Walk(pground(va))
	as.Unlock()
	if !ok {
		return nil, -defs.EFAULT
	}
	pg := as.fa.Dmap(pte.Ppn())
	return pg[:], nil
}

// Fakeubuf_t implements fdops.Userio_i over a plain kernel byte slice, used
// when the kernel needs to hand a "user buffer" interface to code (e.g. the
// page-fault path's file read, or tests) that has no real user address —
// adapted from the teacher's Fakeubuf_t.
type Fakeubuf_t struct {
	buf []uint8
	len int
}

func (fb *Fakeubuf_t) init(b []uint8) *Fakeubuf_t {
	fb.buf = b
	fb.len = len(b)
	return fb
}

func (fb *Fakeubuf_t) Remain() int  { return len(fb.buf) }
func (fb *Fakeubuf_t) Totalsz() int { return fb.len }

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	c := copy(dst, fb.buf)
	fb.buf = fb.buf[c:]
	return c, 0
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	c := copy(fb.buf, src)
	fb.buf = fb.buf[c:]
	return c, 0
}
