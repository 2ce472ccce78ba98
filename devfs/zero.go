package devfs

import (
	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/vfs"
)

// Zero_t is /dev/zero: reads fill the destination with zero bytes,
// writes are discarded, grounded directly on zero.rs (no analogous bug to
// fix here, unlike Null_t).
type Zero_t struct{ baseDev }

func newZero(fsid vfs.FsId) *Zero_t {
	return &Zero_t{baseDev{fsid: fsid, ino: devIno(defs.D_DEVZERO), kind: defs.S_IFCHR}}
}

func (z *Zero_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, dst.Remain())
	return dst.Uiowrite(buf)
}

func (z *Zero_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	return src.Uioread(buf)
}

func (z *Zero_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFCHR | 0666))
	st.Wrdev(defs.Mkdev(defs.D_DEVZERO, 0))
	st.Wnlink(1)
	return 0
}

func (z *Zero_t) GetFile() (fdops.File_i, bool) { return z, true }
