package vm

import (
	"bytes"
	dbgelf "debug/elf"

	"oops/defs"
	"oops/fdops"
	"oops/mem"
)

// The pack carries no third-party ELF-parsing library (biscuit's own
// forked compiler/runtime never needed one; none of the other example
// repos touch executable formats at all), so this is one of the few
// places this module reaches for the standard library's debug/elf instead
// of an ecosystem package — see DESIGN.md's stdlib-justification entry.

// LoadInfo describes the result of loading an ELF image into an address
// space, enough for the caller (syscalls.Sys_execve) to build the initial
// trap frame and auxiliary vector.
type LoadInfo struct {
	Entry       uintptr
	ProgramEnd  uintptr
	Interp      string // dynamic linker path, empty if statically linked
}

// LoadELF implements spec.md §4.3's ELF loading: one map area per LOAD
// segment, lazy (file-backed, fault-populated) when file_size == mem_size,
// eager (frames allocated and bytes copied now, BSS tail zeroed) otherwise.
// raw is the whole file's bytes, already read by the caller; f is the same
// file's Fdops_i, kept on lazy areas so the fault path can Pread from it.
func LoadELF(as *AddressSpace, f fdops.Fdops_i, raw []byte) (LoadInfo, defs.Err_t) {
	ef, err := dbgelf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return LoadInfo{}, -defs.ENOEXEC
	}
	defer ef.Close()

	var info LoadInfo
	info.Entry = uintptr(ef.Entry)

	for _, p := range ef.Progs {
		switch p.Type {
		case dbgelf.PT_INTERP:
			lo := p.Off
			hi := lo + p.Filesz
			if hi > uint64(len(raw)) {
				return LoadInfo{}, -defs.ENOEXEC
			}
			b := raw[lo:hi]
			if n := bytes.IndexByte(b, 0); n >= 0 {
				b = b[:n]
			}
			info.Interp = string(b)
		case dbgelf.PT_LOAD:
			if err := loadSegment(as, f, raw, p, &info); err != 0 {
				return LoadInfo{}, err
			}
		}
	}
	return info, 0
}

func progProt(p *dbgelf.Prog) Prot {
	var pr Prot
	if p.Flags&dbgelf.PF_R != 0 {
		pr |= PROT_READ
	}
	if p.Flags&dbgelf.PF_W != 0 {
		pr |= PROT_WRITE
	}
	if p.Flags&dbgelf.PF_X != 0 {
		pr |= PROT_EXEC
	}
	return pr
}

func loadSegment(as *AddressSpace, f fdops.Fdops_i, raw []byte, p *dbgelf.Prog, info *LoadInfo) defs.Err_t {
	start := uintptr(p.Vaddr)
	prot := progProt(p)

	if p.Filesz == p.Memsz {
		// no BSS tail: lazy, fault-populated from the file.
		as.AddFile(start, int(p.Memsz), prot, f, int(p.Off), false)
	} else {
		// eager: allocate now, copy file bytes, zero the remainder.
		as.AddAnon(start, int(p.Memsz), prot|PROT_WRITE, false)
		for va := pground(start); va < pgroundup(start+uintptr(p.Memsz)); va += uintptr(mem.PGSIZE) {
			if err := as.Fault(va, true); err != 0 {
				return err
			}
		}
		if p.Filesz > 0 {
			lo := p.Off
			hi := lo + p.Filesz
			if hi > uint64(len(raw)) {
				return -defs.ENOEXEC
			}
			if err := as.writeIn(start, raw[lo:hi]); err != 0 {
				return err
			}
		}
		if !prot.canWrite() {
			as.Mprotect(start, int(p.Memsz), prot)
		}
	}
	if end := start + uintptr(p.Memsz); end > info.ProgramEnd {
		info.ProgramEnd = pgroundup(end)
	}
	return 0
}

func (p Prot) canWrite() bool { return p&PROT_WRITE != 0 }

// writeIn copies data into an already-faulted-in anonymous area
// starting at va, used for eager ELF segment population.
func (as *AddressSpace) writeIn(va uintptr, data []byte) defs.Err_t {
	ub := NewUserbuf(as, va, len(data))
	n, err := ub.Uiowrite(data)
	if err != 0 {
		return err
	}
	if n != len(data) {
		return -defs.ENOEXEC
	}
	return 0
}
