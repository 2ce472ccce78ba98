package devfs

import (
	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/ustr"
	"oops/vfs"
)

// MiscDir_t is devfs's "misc" subdirectory, holding only "rtc", grounded
// on misc/mod.rs's MiscDir (openat dispatch of one name, getdent listing
// it).
type MiscDir_t struct {
	baseDev
	fsid vfs.FsId
}

func newMiscDir(fsid vfs.FsId) *MiscDir_t {
	return &MiscDir_t{baseDev: baseDev{fsid: fsid, ino: devIno(defs.D_RTC) + 1, kind: defs.S_IFDIR}, fsid: fsid}
}

func (m *MiscDir_t) Read(fdops.Userio_i) (int, defs.Err_t)  { return 0, -defs.EISDIR }
func (m *MiscDir_t) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EISDIR }

func (m *MiscDir_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFDIR | 0755))
	st.Wnlink(2)
	return 0
}

func (m *MiscDir_t) GetDir() (fdops.Dir_i, bool) { return m, true }

func (m *MiscDir_t) OpenAt(name ustr.Ustr, flags int, mode uint) (vfs.Node_i, defs.Err_t) {
	switch name.String() {
	case "rtc":
		return newRtc(m.fsid), 0
	default:
		return nil, -defs.ENODEV
	}
}

func (m *MiscDir_t) Mknod(ustr.Ustr, uint, uint, uint) (vfs.Node_i, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (m *MiscDir_t) Delete(ustr.Ustr, bool) defs.Err_t { return -defs.EINVAL }

func (m *MiscDir_t) Getdent(off int) ([]vfs.Dirent, int, defs.Err_t) {
	entries := []vfs.Dirent{
		{Name: "rtc", Ino: uint(devIno(defs.D_RTC)), Ftype: 2}, // DT_CHR
	}
	if off >= len(entries) {
		return nil, off, 0
	}
	out := entries[off:]
	return out, off + len(out), 0
}

func (m *MiscDir_t) Rename(ustr.Ustr, vfs.Dirnode_i, ustr.Ustr) defs.Err_t { return -defs.EINVAL }
