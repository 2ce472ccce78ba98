// Package procfs synthesizes the `/proc`-style directory spec.md §4.5
// names: "mounts" and "meminfo". Grounded on
// original_source/kernel/src/fs/procfs/{mod,meminfo}.rs — that package's
// own `mounts.rs` is referenced by `mod.rs` but missing from the
// retrieval pack, and `meminfo.rs`'s `read()` is an unfilled stub
// (`Ok(Vec::new())`), so both files here are built from spec.md's
// description plus this kernel's own `vfs.MountTable`/`mem.FrameAllocator`
// rather than ported line-by-line.
package procfs

import (
	"oops/defs"
	"oops/fdops"
	"oops/ustr"
	"oops/vfs"
)

// baseNode supplies the Fdops_i methods every procfs entry answers
// identically, the same shortcut devfs.baseDev takes for its own fixed
// entries — by this point the third instance of the pattern in this
// kernel, so it's promoted from "one package's trick" to "how this
// kernel writes a synthetic file".
type baseNode struct {
	fsid vfs.FsId
	ino  int
	kind uint
}

func (b *baseNode) FsId() vfs.FsId { return b.fsid }
func (b *baseNode) Ino() int       { return b.ino }
func (b *baseNode) Kind() uint     { return b.kind }

func (b *baseNode) Close() defs.Err_t  { return 0 }
func (b *baseNode) Reopen() defs.Err_t { return 0 }

func (b *baseNode) Lseek(off, whence int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (b *baseNode) Mmapi(off, length int, inc bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (b *baseNode) Pathi() ustr.Ustr                  { return ustr.MkUstr() }
func (b *baseNode) Fullpath() (ustr.Ustr, defs.Err_t) { return nil, -defs.EINVAL }
func (b *baseNode) Truncate(newlen uint) defs.Err_t   { return -defs.EINVAL }

func (b *baseNode) Accept(fdops.Userio_i) (fdops.Userio_i, defs.Err_t) { return nil, -defs.EINVAL }
func (b *baseNode) Bind(fdops.Userio_i) defs.Err_t                     { return -defs.EINVAL }
func (b *baseNode) Connect(fdops.Userio_i) defs.Err_t                  { return -defs.EINVAL }
func (b *baseNode) Listen(int) defs.Err_t                              { return -defs.EINVAL }
func (b *baseNode) Sendmsg(fdops.Userio_i, []uint8, []uint8, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (b *baseNode) Recvmsg(fdops.Userio_i, fdops.Userio_i, fdops.Userio_i, int) (int, int, int, defs.Err_t) {
	return 0, 0, 0, -defs.EINVAL
}
func (b *baseNode) Poll(fdops.Pollkind_t) bool { return true }

func (b *baseNode) GetSocket() (fdops.Socket_i, bool) { return nil, false }
func (b *baseNode) GetFile() (fdops.File_i, bool)     { return nil, false }
func (b *baseNode) GetDir() (fdops.Dir_i, bool)       { return nil, false }
func (b *baseNode) GetFifo() (fdops.Fifo_i, bool)     { return nil, false }
func (b *baseNode) GetIndex() (int, int)              { return int(b.fsid), b.ino }

// procIno mirrors devfs.devIno: every open of the same procfs entry
// reports the same (fsid, ino) pair.
func procIno(n int) int { return 0x2000 + n }
