package devfs

import (
	"sync"

	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/vfs"
)

// TTY_t backs both the "tty" and "pts" devfs entries: a single console
// serialized through Console_i. Grounded on pts.rs: Read pulls bytes one
// at a time until a line terminator, normalizing '\r' to '\n'; Write
// pushes bytes one at a time. original_source serializes access through
// a global STDIO mutex; here each TTY_t carries its own mu, and every
// OpenAt of "tty" or "pts" returns a fresh TTY_t, so only reads and
// writes through the same handle are serialized against each other.
type TTY_t struct {
	baseDev
	mu      sync.Mutex
	console Console_i
}

func newTTY(fsid vfs.FsId, console Console_i) *TTY_t {
	return &TTY_t{baseDev: baseDev{fsid: fsid, ino: devIno(defs.D_PTS), kind: defs.S_IFCHR}, console: console}
}

func (t *TTY_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, 0, dst.Remain())
	for len(buf) < cap(buf) {
		c := t.console.Getchar()
		if c == '\r' {
			c = '\n'
		}
		buf = append(buf, c)
		if c == '\n' {
			break
		}
	}
	return dst.Uiowrite(buf)
}

func (t *TTY_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	for _, c := range buf[:n] {
		t.console.Putchar(c)
	}
	return n, 0
}

func (t *TTY_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFCHR | 0620))
	st.Wrdev(defs.Mkdev(defs.D_PTS, 0))
	st.Wnlink(1)
	return 0
}

// Poll reports POLLRD true only when a byte can be read without
// blocking, per pts.rs's poll(); POLLWR is always ready, matching a
// console that never backpressures the writer.
func (t *TTY_t) Poll(kind fdops.Pollkind_t) bool {
	if kind == fdops.POLLRD {
		return t.console.Ready()
	}
	return true
}

func (t *TTY_t) GetFile() (fdops.File_i, bool) { return t, true }
