// Package fdops defines the capability-set file interface every concrete
// filesystem and pseudo-file (pipe, device node, FAT32 file) implements,
// and the small Userio_i abstraction circbuf/vm use to move bytes between
// kernel buffers and either user memory or another kernel buffer without
// caring which.
package fdops

import (
	"oops/defs"
	"oops/stat"
	"oops/ustr"
)

// Pollkind_t selects which readiness condition Poll checks.
type Pollkind_t int

const (
	POLLRD Pollkind_t = iota
	POLLWR
)

// Userio_i abstracts "somewhere bytes come from or go to": a user virtual
// address range (via vm.Userbuf_t) or a plain kernel byte slice (via
// Fakeubuf_t in tests). circbuf's ring buffer and the pipe both read and
// write through this interface instead of assuming user memory.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

// Fdopt_t selects seek/whence semantics for Seek, matching lseek(2).
type Fdopt_t int

// Fdops_i is the capability set a file descriptor's concrete object
// implements. Every method may return ENOSYS-equivalent behavior (via
// -defs.EINVAL or -defs.ESPIPE, as POSIX dictates per call) if the
// underlying file kind doesn't support it; spec.md §4.5 calls this the
// "uniform file interface with fallible downcasts".
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(*stat.Stat_t) defs.Err_t
	Lseek(off, whence int) (int, defs.Err_t)
	Mmapi(off, len int, inc bool) ([]MmapInfo_t, defs.Err_t)
	Pathi() ustr.Ustr
	Read(Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Write(Userio_i) (int, defs.Err_t)
	Fullpath() (ustr.Ustr, defs.Err_t)
	Truncate(newlen uint) defs.Err_t
	Pread(Userio_i, int) (int, defs.Err_t)
	Pwrite(Userio_i, int) (int, defs.Err_t)
	Accept(Userio_i) (Userio_i, defs.Err_t)
	Bind(Userio_i) defs.Err_t
	Connect(Userio_i) defs.Err_t
	Listen(int) defs.Err_t
	Sendmsg(src Userio_i, toaddr []uint8, cmsg []uint8, flags int) (int, defs.Err_t)
	Recvmsg(dst Userio_i, fromsa Userio_i, cmsg Userio_i, flags int) (int, int, int, defs.Err_t)
	Poll(Pollkind_t) bool

	// downcasts, following the capability-set pattern spec.md §9 endorses
	// for an open set of concrete filesystems.
	GetSocket() (Socket_i, bool)
	GetFile() (File_i, bool)
	GetDir() (Dir_i, bool)
	GetFifo() (Fifo_i, bool)
}

// MmapInfo_t is a single physical-page/virtual-offset pair returned when a
// file is mapped, used by vm.AddressSpace to install the resulting page
// table entries without the VFS knowing about page tables.
type MmapInfo_t struct {
	Pgoff int
	Phys  uintptr
}

// File_i is the capability set of a regular (or device) file that supports
// random-access byte ranges.
type File_i interface {
	GetIndex() (int, int)
}

// Dir_i is the capability set of a directory.
type Dir_i interface {
	GetIndex() (int, int)
}

// Fifo_i is the capability set of a named or anonymous pipe.
type Fifo_i interface {
	GetIndex() (int, int)
}

// Socket_i is the capability set of a socket file. Networking is a stub
// per spec.md §1; the interface exists only so the syscall table's
// socket family has a uniform place to return -ENOSYS or a fixed value.
type Socket_i interface {
	GetIndex() (int, int)
}
