package procfs

import (
	"oops/defs"
	"oops/fdops"
	"oops/mem"
	"oops/stat"
	"oops/ustr"
	"oops/vfs"
)

// ProcDir_t is the procfs root, with a fixed OpenAt dispatch and a
// stateless Getdent — the same departure from original_source's
// one-shot cursor-gated getdent that devfs.DevDir_t/MiscDir_t already
// make, now a second instance of the same idiom.
type ProcDir_t struct {
	baseNode
	fsid   vfs.FsId
	mt     mountsProvider
	frames *mem.FrameAllocator
}

var procEntries = []vfs.Dirent{
	{Name: "mounts", Ino: uint(procIno(1)), Ftype: 8}, // DT_REG
	{Name: "meminfo", Ino: uint(procIno(2)), Ftype: 8},
	{Name: "prof", Ino: uint(procIno(3)), Ftype: 8},
}

func newProcDir(fsid vfs.FsId, mt mountsProvider, frames *mem.FrameAllocator) *ProcDir_t {
	return &ProcDir_t{
		baseNode: baseNode{fsid: fsid, ino: procIno(0), kind: defs.S_IFDIR},
		fsid:     fsid,
		mt:       mt,
		frames:   frames,
	}
}

func (d *ProcDir_t) OpenAt(name ustr.Ustr, _ int, _ uint) (vfs.Node_i, defs.Err_t) {
	switch name.String() {
	case "mounts":
		return newMounts(d.fsid, d.mt), 0
	case "meminfo":
		return newMeminfo(d.fsid, d.frames), 0
	case "prof":
		return newProf(d.fsid), 0
	default:
		return nil, -defs.ENOENT
	}
}

func (d *ProcDir_t) Mknod(ustr.Ustr, uint, uint, uint) (vfs.Node_i, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (d *ProcDir_t) Delete(ustr.Ustr, bool) defs.Err_t { return -defs.EINVAL }
func (d *ProcDir_t) Rename(ustr.Ustr, vfs.Dirnode_i, ustr.Ustr) defs.Err_t {
	return -defs.EINVAL
}

func (d *ProcDir_t) Getdent(off int) ([]vfs.Dirent, int, defs.Err_t) {
	if off >= len(procEntries) {
		return nil, off, 0
	}
	return procEntries[off:], len(procEntries), 0
}

func (d *ProcDir_t) Read(fdops.Userio_i) (int, defs.Err_t)  { return 0, -defs.EISDIR }
func (d *ProcDir_t) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EISDIR }

func (d *ProcDir_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFDIR | 0555))
	st.Wnlink(2)
	return 0
}

func (d *ProcDir_t) GetDir() (fdops.Dir_i, bool) { return d, true }
