package procfs

import (
	"sync"

	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/vfs"
)

// contentFile is a read-only regular file whose bytes are regenerated by
// gen on every read rather than stored, the same "render fresh each time"
// behavior devfs.DevDir_t/MiscDir_t use for their Getdent lists instead of
// caching a snapshot from open time. This matches how a real /proc always
// reflects current kernel state rather than the state at open(2) time.
type contentFile struct {
	baseNode
	gen func() []byte

	mu     sync.Mutex
	cursor int
}

func newContentFile(fsid vfs.FsId, ino int, gen func() []byte) *contentFile {
	return &contentFile{baseNode: baseNode{fsid: fsid, ino: ino, kind: defs.S_IFREG}, gen: gen}
}

func (f *contentFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	off := f.cursor
	f.mu.Unlock()
	n, err := f.Pread(dst, off)
	if err == 0 {
		f.mu.Lock()
		f.cursor += n
		f.mu.Unlock()
	}
	return n, err
}

func (f *contentFile) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	body := f.gen()
	if off < 0 {
		return 0, -defs.EINVAL
	}
	if off >= len(body) {
		return 0, 0
	}
	end := off + dst.Remain()
	if end > len(body) {
		end = len(body)
	}
	return dst.Uiowrite(body[off:end])
}

func (f *contentFile) Write(fdops.Userio_i) (int, defs.Err_t)       { return 0, -defs.EINVAL }
func (f *contentFile) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) { return 0, -defs.EINVAL }

func (f *contentFile) Fstat(st *stat.Stat_t) defs.Err_t {
	body := f.gen()
	st.Wmode(uint(defs.S_IFREG | 0444))
	st.Wsize(uint(len(body)))
	st.Wnlink(1)
	return 0
}

func (f *contentFile) GetFile() (fdops.File_i, bool) { return f, true }
