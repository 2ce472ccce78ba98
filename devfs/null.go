package devfs

import (
	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/vfs"
)

// Null_t is /dev/null: every write succeeds and is discarded, every read
// returns zero bytes (EOF). Grounded on null.rs, with one deliberate
// fix: null.rs's read() always returns Err(EINVAL), which would make
// `cat /dev/null` fail instead of finishing instantly — the hanwen-go-fuse
// pack member's DevNullFile.Read ([]byte{}, OK) shows the behavior a real
// /dev/null has, so this port follows that instead of the apparent
// original_source bug.
type Null_t struct{ baseDev }

func newNull(fsid vfs.FsId) *Null_t {
	return &Null_t{baseDev{fsid: fsid, ino: devIno(defs.D_DEVNULL), kind: defs.S_IFCHR}}
}

func (n *Null_t) Read(dst fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }
func (n *Null_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	return src.Uioread(buf)
}

func (n *Null_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFCHR | 0666))
	st.Wrdev(defs.Mkdev(defs.D_DEVNULL, 0))
	st.Wnlink(1)
	return 0
}

func (n *Null_t) GetFile() (fdops.File_i, bool) { return n, true }
