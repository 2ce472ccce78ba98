package devfs

import (
	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/ustr"
	"oops/vfs"
)

// DevDir_t is devfs's root: a fixed, read-only directory of device nodes
// plus "misc" and "shm", grounded on mod.rs's DevDir (openat dispatch
// table, getdent of a fixed entry list). Unlike DevDir's internal
// mutex-guarded cursor (a one-shot "list once, then empty" getdent),
// this one answers Getdent(off) statelessly like fat32's listFrom, which
// is what this kernel's Dirnode_i contract expects of every filesystem.
type DevDir_t struct {
	baseDev
	fs *FileSystem_t
}

var devEntries = []struct {
	name  string
	ino   int
	ftype uint8
}{
	{"sda2", devIno(defs.D_RAWDISK), 6}, // DT_BLK
	{"tty", devIno(defs.D_PTS), 2},      // DT_CHR
	{"pts", devIno(defs.D_PTS), 2},
	{"null", devIno(defs.D_DEVNULL), 2},
	{"zero", devIno(defs.D_DEVZERO), 2},
	{"misc", devIno(defs.D_RTC) + 1, 4}, // DT_DIR
	{"shm", devIno(defs.D_LAST) + 1, 4},
}

func (d *DevDir_t) Read(fdops.Userio_i) (int, defs.Err_t)  { return 0, -defs.EISDIR }
func (d *DevDir_t) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EISDIR }

func (d *DevDir_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFDIR | 0755))
	st.Wnlink(2)
	return 0
}

func (d *DevDir_t) GetDir() (fdops.Dir_i, bool) { return d, true }

// OpenAt dispatches by fixed name exactly as spec.md §4.5 lists them:
// sda2, tty/pts, null, zero, misc/rtc, shm.
func (d *DevDir_t) OpenAt(name ustr.Ustr, flags int, mode uint) (vfs.Node_i, defs.Err_t) {
	switch name.String() {
	case "sda2":
		if d.fs.disk == nil {
			return nil, -defs.ENODEV
		}
		return newSda2(d.fs.fsid, d.fs.disk), 0
	case "tty", "pts":
		if d.fs.console == nil {
			return nil, -defs.ENODEV
		}
		return newTTY(d.fs.fsid, d.fs.console), 0
	case "null":
		return newNull(d.fs.fsid), 0
	case "zero":
		return newZero(d.fs.fsid), 0
	case "misc":
		return newMiscDir(d.fs.fsid), 0
	case "shm":
		if d.fs.shm == nil {
			return nil, -defs.ENODEV
		}
		if err := d.fs.shm.Reopen(); err != 0 {
			return nil, err
		}
		return d.fs.shm, 0
	default:
		return nil, -defs.ENODEV
	}
}

func (d *DevDir_t) Mknod(ustr.Ustr, uint, uint, uint) (vfs.Node_i, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (d *DevDir_t) Delete(ustr.Ustr, bool) defs.Err_t { return -defs.EINVAL }

func (d *DevDir_t) Getdent(off int) ([]vfs.Dirent, int, defs.Err_t) {
	if off >= len(devEntries) {
		return nil, off, 0
	}
	out := make([]vfs.Dirent, 0, len(devEntries)-off)
	for _, e := range devEntries[off:] {
		out = append(out, vfs.Dirent{Name: e.name, Ino: uint(e.ino), Ftype: e.ftype})
	}
	return out, off + len(out), 0
}

func (d *DevDir_t) Rename(ustr.Ustr, vfs.Dirnode_i, ustr.Ustr) defs.Err_t { return -defs.EINVAL }
