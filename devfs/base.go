package devfs

import (
	"oops/defs"
	"oops/fdops"
	"oops/ustr"
	"oops/vfs"
)

// baseDev supplies the Fdops_i methods every fixed device entry answers
// identically (no seeking, no mmap, no socket ops), the same "fallible
// downcast defaults to EINVAL/ESPIPE" shape fat32.FileHandle_t and
// vfs.PipeEnd already use for the methods their own file kind can't
// support. Concrete devices embed this and override Read/Write/Fstat and
// whichever Get* downcast applies to them.
type baseDev struct {
	fsid vfs.FsId
	ino  int
	kind uint
}

func (b *baseDev) FsId() vfs.FsId { return b.fsid }
func (b *baseDev) Ino() int       { return b.ino }
func (b *baseDev) Kind() uint     { return b.kind }

func (b *baseDev) Close() defs.Err_t  { return 0 }
func (b *baseDev) Reopen() defs.Err_t { return 0 }

func (b *baseDev) Lseek(off, whence int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (b *baseDev) Mmapi(off, length int, inc bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (b *baseDev) Pathi() ustr.Ustr                             { return ustr.MkUstr() }
func (b *baseDev) Fullpath() (ustr.Ustr, defs.Err_t)            { return nil, -defs.EINVAL }
func (b *baseDev) Truncate(newlen uint) defs.Err_t              { return -defs.EINVAL }
func (b *baseDev) Pread(fdops.Userio_i, int) (int, defs.Err_t)  { return 0, -defs.ESPIPE }
func (b *baseDev) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) { return 0, -defs.ESPIPE }

func (b *baseDev) Accept(fdops.Userio_i) (fdops.Userio_i, defs.Err_t) { return nil, -defs.EINVAL }
func (b *baseDev) Bind(fdops.Userio_i) defs.Err_t                     { return -defs.EINVAL }
func (b *baseDev) Connect(fdops.Userio_i) defs.Err_t                  { return -defs.EINVAL }
func (b *baseDev) Listen(int) defs.Err_t                              { return -defs.EINVAL }
func (b *baseDev) Sendmsg(fdops.Userio_i, []uint8, []uint8, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (b *baseDev) Recvmsg(fdops.Userio_i, fdops.Userio_i, fdops.Userio_i, int) (int, int, int, defs.Err_t) {
	return 0, 0, 0, -defs.EINVAL
}
func (b *baseDev) Poll(fdops.Pollkind_t) bool { return true }

func (b *baseDev) GetSocket() (fdops.Socket_i, bool) { return nil, false }
func (b *baseDev) GetFile() (fdops.File_i, bool)     { return nil, false }
func (b *baseDev) GetDir() (fdops.Dir_i, bool)       { return nil, false }
func (b *baseDev) GetFifo() (fdops.Fifo_i, bool)     { return nil, false }
func (b *baseDev) GetIndex() (int, int)              { return int(b.fsid), b.ino }

// devIno assigns a stable inode number to a fixed device, keyed by its
// defs.D_* identifier so every open of e.g. /dev/null reports the same
// (fsid, ino) pair.
func devIno(devid int) int { return 0x1000 + devid }
