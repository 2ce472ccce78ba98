package procfs

import (
	"strings"
	"testing"

	"oops/defs"
	"oops/fdops"
	"oops/mem"
	"oops/stats"
	"oops/ustr"
	"oops/vfs"
)

type fakeMounts struct{ s string }

func (f fakeMounts) Mounts() string { return f.s }

func mountTest() (*FileSystem_t, *mem.FrameAllocator) {
	frames := mem.NewFrameAllocator(64)
	fs := New(vfs.FsId(2), fakeMounts{s: "/ rootfs\n/dev devfs\n"}, frames)
	return fs, frames
}

func TestProcDirListsFixedEntries(t *testing.T) {
	fs, _ := mountTest()
	ents, next, err := fs.Root().Getdent(0)
	if err != 0 {
		t.Fatalf("getdent: %d", err)
	}
	want := map[string]bool{"mounts": true, "meminfo": true, "prof": true}
	for _, e := range ents {
		delete(want, e.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing entries %v in %+v", want, ents)
	}
	if more, _, _ := fs.Root().Getdent(next); len(more) != 0 {
		t.Fatalf("expected no more entries past %d, got %+v", next, more)
	}
}

func TestUnknownNameIsENOENT(t *testing.T) {
	fs, _ := mountTest()
	if _, err := fs.Root().OpenAt(ustr.NewUstr("nope"), defs.O_RDONLY, 0); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT, got %d", err)
	}
}

func TestMountsReflectsMountTable(t *testing.T) {
	fs, _ := mountTest()
	n, err := fs.Root().OpenAt(ustr.NewUstr("mounts"), defs.O_RDONLY, 0)
	if err != 0 {
		t.Fatalf("open mounts: %d", err)
	}
	cf := n.(*contentFile)
	dst := &fakeUioRead{buf: make([]byte, 64)}
	rn, rerr := cf.Read(dst)
	if rerr != 0 {
		t.Fatalf("read: %d", rerr)
	}
	got := string(dst.buf[:rn])
	if got != "/ rootfs\n/dev devfs\n" {
		t.Fatalf("mounts content = %q", got)
	}
}

func TestMeminfoReportsFrameCounts(t *testing.T) {
	fs, frames := mountTest()
	frames.Alloc()
	frames.Alloc()

	n, err := fs.Root().OpenAt(ustr.NewUstr("meminfo"), defs.O_RDONLY, 0)
	if err != 0 {
		t.Fatalf("open meminfo: %d", err)
	}
	cf := n.(*contentFile)
	dst := &fakeUioRead{buf: make([]byte, 256)}
	rn, rerr := cf.Read(dst)
	if rerr != 0 {
		t.Fatalf("read: %d", rerr)
	}
	got := string(dst.buf[:rn])
	if !strings.HasPrefix(got, "MemTotal:") {
		t.Fatalf("meminfo content = %q", got)
	}
	wantFree := (frames.Capacity() - 2) * mem.PGSIZE / 1024
	if !strings.Contains(got, itoa(wantFree)) {
		t.Fatalf("meminfo content %q missing expected free kB %d", got, wantFree)
	}
}

func TestMeminfoPreadHonorsOffsetAndRemain(t *testing.T) {
	fs, _ := mountTest()
	n, _ := fs.Root().OpenAt(ustr.NewUstr("meminfo"), defs.O_RDONLY, 0)
	cf := n.(*contentFile)

	full := cf.gen()
	small := &fakeUioRead{buf: make([]byte, 4)}
	rn, rerr := cf.Pread(small, 2)
	if rerr != 0 {
		t.Fatalf("pread: %d", rerr)
	}
	if string(small.buf[:rn]) != string(full[2:6]) {
		t.Fatalf("pread at offset 2 got %q, want %q", small.buf[:rn], full[2:6])
	}

	past := &fakeUioRead{buf: make([]byte, 4)}
	rn2, rerr2 := cf.Pread(past, len(full)+10)
	if rerr2 != 0 || rn2 != 0 {
		t.Fatalf("pread past EOF: n=%d err=%d", rn2, rerr2)
	}
}

func TestProfEmitsNonEmptyPprofPayload(t *testing.T) {
	stats.RecordIrq(3)
	fs, _ := mountTest()
	n, err := fs.Root().OpenAt(ustr.NewUstr("prof"), defs.O_RDONLY, 0)
	if err != 0 {
		t.Fatalf("open prof: %d", err)
	}
	cf := n.(*contentFile)
	dst := &fakeUioRead{buf: make([]byte, 4096)}
	rn, rerr := cf.Read(dst)
	if rerr != 0 {
		t.Fatalf("read: %d", rerr)
	}
	if rn == 0 {
		t.Fatalf("expected a non-empty pprof-encoded profile")
	}
	// gzip magic bytes: profile.Write always emits a gzip stream.
	if dst.buf[0] != 0x1f || dst.buf[1] != 0x8b {
		t.Fatalf("prof content does not look gzip-compressed: %v", dst.buf[:2])
	}
}

func TestWritesToProcfsFilesAreRejected(t *testing.T) {
	fs, _ := mountTest()
	n, _ := fs.Root().OpenAt(ustr.NewUstr("meminfo"), defs.O_RDONLY, 0)
	cf := n.(*contentFile)
	if _, err := cf.Write(fakeUio{buf: []byte("x")}); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL, got %d", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// fakeUio/fakeUioRead mirror devfs's own test doubles of the same name.
type fakeUio struct {
	buf []byte
	off int
}

func (u fakeUio) Uioread(dst []byte) (int, defs.Err_t) {
	n := copy(dst, u.buf[u.off:])
	return n, 0
}
func (u fakeUio) Uiowrite(src []byte) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (u fakeUio) Remain() int                           { return len(u.buf) - u.off }
func (u fakeUio) Totalsz() int                          { return len(u.buf) }

type fakeUioRead struct {
	buf []byte
	off int
}

func (u *fakeUioRead) Uioread(dst []byte) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (u *fakeUioRead) Uiowrite(src []byte) (int, defs.Err_t) {
	n := copy(u.buf[u.off:], src)
	u.off += n
	return n, 0
}
func (u *fakeUioRead) Remain() int  { return len(u.buf) - u.off }
func (u *fakeUioRead) Totalsz() int { return len(u.buf) }

var _ fdops.Userio_i = fakeUio{}
var _ fdops.Userio_i = &fakeUioRead{}
