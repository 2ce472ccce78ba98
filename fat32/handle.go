package fat32

import (
	"sync"

	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/ustr"
	"oops/vfs"
)

// FileHandle_t is the per-open wrapper a single OpenAt/Mknod call
// returns: its own read/write cursor over a shared Dirent_t, grounded on
// original_source's Fat32File/Fat32FileInner split (the dirent itself is
// cached and shared across opens; the cursor is not).
type FileHandle_t struct {
	d *Dirent_t

	mu     sync.Mutex
	cursor int
	closed bool
}

func newHandle(d *Dirent_t) *FileHandle_t {
	return &FileHandle_t{d: d}
}

func (h *FileHandle_t) FsId() vfs.FsId { return h.d.fs.fsid }
func (h *FileHandle_t) Ino() int       { return int(h.d.startCluster) }
func (h *FileHandle_t) Kind() uint     { return kindFromAttr(h.d.attr) }

// --- Dirnode_i ---

func (h *FileHandle_t) OpenAt(name ustr.Ustr, flags int, mode uint) (vfs.Node_i, defs.Err_t) {
	if h.d.attr&attrDir == 0 {
		return nil, -defs.ENOTDIR
	}
	n := name.String()
	if n == "." {
		h.d.fs.direntMu.Lock()
		if r, ok := h.d.fs.dirents[h.d.startCluster]; ok {
			r.refs++
		}
		h.d.fs.direntMu.Unlock()
		return newHandle(h.d), 0
	}
	e, err := h.d.findByName(n)
	if err != 0 {
		if flags&defs.O_CREAT != 0 {
			child, cerr := h.d.createChild(n, attrFromMode(mode))
			if cerr != 0 {
				return nil, cerr
			}
			return newHandle(child), 0
		}
		return nil, err
	}
	child := h.d.fs.lookupDirent(e, h.d.startCluster)
	return newHandle(child), 0
}

func attrFromMode(mode uint) uint8 {
	if mode&defs.S_IFDIR != 0 {
		return attrDir
	}
	return 0
}

func (h *FileHandle_t) Mknod(name ustr.Ustr, kind uint, perm uint, rdev uint) (vfs.Node_i, defs.Err_t) {
	if h.d.attr&attrDir == 0 {
		return nil, -defs.ENOTDIR
	}
	attr := uint8(0)
	if kind == defs.S_IFDIR {
		attr = attrDir
	}
	child, err := h.d.createChild(name.String(), attr)
	if err != 0 {
		return nil, err
	}
	return newHandle(child), 0
}

func (h *FileHandle_t) Delete(name ustr.Ustr, isdir bool) defs.Err_t {
	if h.d.attr&attrDir == 0 {
		return -defs.ENOTDIR
	}
	return h.d.deleteChild(name.String(), isdir)
}

func (h *FileHandle_t) Getdent(off int) ([]vfs.Dirent, int, defs.Err_t) {
	if h.d.attr&attrDir == 0 {
		return nil, 0, -defs.ENOTDIR
	}
	entries, err := h.d.listFrom(off)
	if err != 0 {
		return nil, 0, err
	}
	out := make([]vfs.Dirent, len(entries))
	for i, e := range entries {
		ftype := uint8(8) // DT_REG
		if e.attr&attrDir != 0 {
			ftype = 4 // DT_DIR
		}
		out[i] = vfs.Dirent{Name: e.name, Ino: uint(e.cluster), Ftype: ftype}
	}
	return out, off + len(out), 0
}

func (h *FileHandle_t) Rename(oldname ustr.Ustr, newdir vfs.Dirnode_i, newname ustr.Ustr) defs.Err_t {
	if h.d.attr&attrDir == 0 {
		return -defs.ENOTDIR
	}
	nd, ok := newdir.(*FileHandle_t)
	if !ok {
		return -defs.EINVAL
	}
	return h.d.renameChild(oldname.String(), nd.d, newname.String())
}

// --- Fdops_i ---

func (h *FileHandle_t) Close() defs.Err_t {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	h.closed = true
	h.mu.Unlock()
	h.d.fs.releaseDirent(h.d)
	return 0
}

func (h *FileHandle_t) Reopen() defs.Err_t {
	h.d.fs.direntMu.Lock()
	if r, ok := h.d.fs.dirents[h.d.startCluster]; ok {
		r.refs++
	}
	h.d.fs.direntMu.Unlock()
	return 0
}

func (h *FileHandle_t) Fstat(st *stat.Stat_t) defs.Err_t {
	h.d.mu.Lock()
	size, ino := h.d.size, h.d.startCluster
	h.d.mu.Unlock()
	st.Wino(uint(ino))
	st.Wmode(kindFromAttr(h.d.attr) | 0644)
	st.Wsize(uint(size))
	st.Wblksize(uint(bytesPerBlock))
	st.Wblocks(uint((size + bytesPerBlock - 1) / bytesPerBlock))
	st.Wnlink(1)
	return 0
}

func (h *FileHandle_t) Lseek(off, whence int) (int, defs.Err_t) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch whence {
	case 0: // SEEK_SET
		h.cursor = off
	case 1: // SEEK_CUR
		h.cursor += off
	case 2: // SEEK_END
		h.d.mu.Lock()
		h.cursor = int(h.d.size) + off
		h.d.mu.Unlock()
	default:
		return 0, -defs.EINVAL
	}
	if h.cursor < 0 {
		h.cursor = 0
		return 0, -defs.EINVAL
	}
	return h.cursor, 0
}

func (h *FileHandle_t) Mmapi(off, length int, inc bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.EINVAL
}

func (h *FileHandle_t) Pathi() ustr.Ustr { return ustr.NewUstr(h.d.name) }

func (h *FileHandle_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if h.d.attr&attrDir != 0 {
		return 0, -defs.EISDIR
	}
	h.mu.Lock()
	off := h.cursor
	h.mu.Unlock()
	n, err := h.pread(dst, off)
	if err != 0 {
		return n, err
	}
	h.mu.Lock()
	h.cursor += n
	h.mu.Unlock()
	return n, 0
}

func (h *FileHandle_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if h.d.attr&attrDir != 0 {
		return 0, -defs.EISDIR
	}
	h.mu.Lock()
	off := h.cursor
	h.mu.Unlock()
	n, err := h.pwrite(src, off)
	if err != 0 {
		return n, err
	}
	h.mu.Lock()
	h.cursor += n
	h.mu.Unlock()
	return n, 0
}

func (h *FileHandle_t) Fullpath() (ustr.Ustr, defs.Err_t) { return nil, -defs.EINVAL }

func (h *FileHandle_t) Truncate(newlen uint) defs.Err_t {
	if h.d.attr&attrDir != 0 {
		return -defs.EISDIR
	}
	h.d.mu.Lock()
	cur := h.d.size
	h.d.mu.Unlock()
	if uint(cur) == newlen {
		return 0
	}
	if uint(cur) < newlen {
		return h.d.growSizeTo(int(newlen))
	}
	// shrinking: the logical size drops; the now-unused tail clusters
	// stay allocated until the file is deleted, matching this driver's
	// "growing allocates and stitches; shrinking only on deletion" rule.
	return h.d.setSizeOnDisk(int(newlen))
}

func (h *FileHandle_t) pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	buf := make([]byte, dst.Remain())
	n, err := h.d.readAt(off, buf)
	if err != 0 {
		return 0, err
	}
	wn, werr := dst.Uiowrite(buf[:n])
	if werr != 0 {
		return 0, werr
	}
	return wn, 0
}

func (h *FileHandle_t) pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	return h.d.writeAt(off, buf[:n])
}

func (h *FileHandle_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	if h.d.attr&attrDir != 0 {
		return 0, -defs.EISDIR
	}
	return h.pread(dst, off)
}

func (h *FileHandle_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	if h.d.attr&attrDir != 0 {
		return 0, -defs.EISDIR
	}
	return h.pwrite(src, off)
}

func (h *FileHandle_t) Accept(fdops.Userio_i) (fdops.Userio_i, defs.Err_t) { return nil, -defs.EINVAL }
func (h *FileHandle_t) Bind(fdops.Userio_i) defs.Err_t                     { return -defs.EINVAL }
func (h *FileHandle_t) Connect(fdops.Userio_i) defs.Err_t                  { return -defs.EINVAL }
func (h *FileHandle_t) Listen(int) defs.Err_t                              { return -defs.EINVAL }
func (h *FileHandle_t) Sendmsg(fdops.Userio_i, []uint8, []uint8, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (h *FileHandle_t) Recvmsg(fdops.Userio_i, fdops.Userio_i, fdops.Userio_i, int) (int, int, int, defs.Err_t) {
	return 0, 0, 0, -defs.EINVAL
}
func (h *FileHandle_t) Poll(fdops.Pollkind_t) bool { return true }

func (h *FileHandle_t) GetSocket() (fdops.Socket_i, bool) { return nil, false }
func (h *FileHandle_t) GetFile() (fdops.File_i, bool) {
	if h.d.attr&attrDir != 0 {
		return nil, false
	}
	return h, true
}
func (h *FileHandle_t) GetDir() (fdops.Dir_i, bool) {
	if h.d.attr&attrDir == 0 {
		return nil, false
	}
	return h, true
}
func (h *FileHandle_t) GetFifo() (fdops.Fifo_i, bool) { return nil, false }

func (h *FileHandle_t) GetIndex() (int, int) { return int(h.d.fs.fsid), int(h.d.startCluster) }
