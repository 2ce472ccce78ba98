package devfs

import (
	"testing"
	"time"

	"oops/blockdev"
	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/ustr"
	"oops/vfs"
)

// memDisk is a tiny in-process blockdev.BlockDevice, the same role
// fat32's own memDisk test helper plays.
type memDisk struct {
	blocks [][blockdev.BSIZE]byte
}

func newMemDisk(n int) *memDisk { return &memDisk{blocks: make([][blockdev.BSIZE]byte, n)} }

func (m *memDisk) ReadBlock(blkno int, dst []byte) defs.Err_t {
	if blkno < 0 || blkno >= len(m.blocks) {
		return -defs.EINVAL
	}
	copy(dst, m.blocks[blkno][:])
	return 0
}
func (m *memDisk) WriteBlock(blkno int, src []byte) defs.Err_t {
	if blkno < 0 || blkno >= len(m.blocks) {
		return -defs.EINVAL
	}
	copy(m.blocks[blkno][:], src)
	return 0
}
func (m *memDisk) NumBlocks() int   { return len(m.blocks) }
func (m *memDisk) Sync() defs.Err_t { return 0 }

// memShmDir is a minimal vfs.Dirnode_i stand-in for the "/shm" directory
// devfs delegates to, just enough to prove OpenAt("shm") hands it back
// unmodified rather than synthesizing a device node of its own. Embeds
// this package's own baseDev for the bulk of the Fdops_i contract, the
// same shortcut DevDir_t/MiscDir_t take.
type memShmDir struct {
	baseDev
	reopened int
}

func newMemShmDir() *memShmDir {
	return &memShmDir{baseDev: baseDev{fsid: 99, ino: 42, kind: defs.S_IFDIR}}
}

func (d *memShmDir) Reopen() defs.Err_t                     { d.reopened++; return 0 }
func (d *memShmDir) Fstat(*stat.Stat_t) defs.Err_t          { return 0 }
func (d *memShmDir) Read(fdops.Userio_i) (int, defs.Err_t)  { return 0, -defs.EISDIR }
func (d *memShmDir) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, -defs.EISDIR }
func (d *memShmDir) GetDir() (fdops.Dir_i, bool)            { return d, true }

func (d *memShmDir) OpenAt(ustr.Ustr, int, uint) (vfs.Node_i, defs.Err_t) { return nil, -defs.ENOENT }
func (d *memShmDir) Mknod(ustr.Ustr, uint, uint, uint) (vfs.Node_i, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (d *memShmDir) Delete(ustr.Ustr, bool) defs.Err_t                     { return -defs.EINVAL }
func (d *memShmDir) Getdent(off int) ([]vfs.Dirent, int, defs.Err_t)       { return nil, off, 0 }
func (d *memShmDir) Rename(ustr.Ustr, vfs.Dirnode_i, ustr.Ustr) defs.Err_t { return -defs.EINVAL }

func mountTest() (*FileSystem_t, *memDisk, *MemConsole, *memShmDir) {
	disk := newMemDisk(4)
	console := NewMemConsole(16)
	shm := newMemShmDir()
	fs := New(vfs.FsId(1), disk, console, shm)
	return fs, disk, console, shm
}

func openDev(t *testing.T, root vfs.Dirnode_i, name string) vfs.Node_i {
	t.Helper()
	n, err := root.OpenAt(ustr.NewUstr(name), defs.O_RDWR, 0)
	if err != 0 {
		t.Fatalf("open %s: %d", name, err)
	}
	return n
}

func TestDevDirListsFixedEntries(t *testing.T) {
	fs, _, _, _ := mountTest()
	ents, next, err := fs.Root().Getdent(0)
	if err != 0 {
		t.Fatalf("getdent: %d", err)
	}
	want := map[string]bool{"sda2": true, "tty": true, "pts": true, "null": true, "zero": true, "misc": true, "shm": true}
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

func TestNullDiscardsWritesAndReadsEOF(t *testing.T) {
	fs, _, _, _ := mountTest()
	n := openDev(t, fs.Root(), "null")
	fops := n.(*Null_t)

	wn, werr := fops.Write(fakeUio{buf: []byte("hello")})
	if werr != 0 || wn != 5 {
		t.Fatalf("write: n=%d err=%d", wn, werr)
	}
	dst := &fakeUioRead{buf: make([]byte, 10)}
	rn, rerr := fops.Read(dst)
	if rerr != 0 || rn != 0 {
		t.Fatalf("read: n=%d err=%d, want 0,0 (EOF)", rn, rerr)
	}
}

func TestZeroFillsReadsAndDiscardsWrites(t *testing.T) {
	fs, _, _, _ := mountTest()
	n := openDev(t, fs.Root(), "zero")
	fops := n.(*Zero_t)

	dst := &fakeUioRead{buf: make([]byte, 8)}
	for i := range dst.buf {
		dst.buf[i] = 0xFF
	}
	rn, rerr := fops.Read(dst)
	if rerr != 0 || rn != 8 {
		t.Fatalf("read: n=%d err=%d", rn, rerr)
	}
	for i, b := range dst.buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %v", i, dst.buf)
		}
	}

	wn, werr := fops.Write(fakeUio{buf: []byte("discarded")})
	if werr != 0 || wn != len("discarded") {
		t.Fatalf("write: n=%d err=%d", wn, werr)
	}
}

func TestRtcReturnsPlausibleTimestamp(t *testing.T) {
	fs, _, _, _ := mountTest()
	n, err := newMiscDirAt(t, fs)
	if err != 0 {
		t.Fatalf("open misc: %d", err)
	}
	rtcNode, err := n.OpenAt(ustr.NewUstr("rtc"), defs.O_RDONLY, 0)
	if err != 0 {
		t.Fatalf("open rtc: %d", err)
	}
	rtc := rtcNode.(*Rtc_t)
	dst := &fakeUioRead{buf: make([]byte, 8)}
	rn, rerr := rtc.Read(dst)
	if rerr != 0 || rn != 8 {
		t.Fatalf("read: n=%d err=%d", rn, rerr)
	}
	var secs int64
	for i := 7; i >= 0; i-- {
		secs = (secs << 8) | int64(dst.buf[i])
	}
	now := time.Now().Unix()
	if secs < now-5 || secs > now+5 {
		t.Fatalf("rtc returned implausible time %d, want near %d", secs, now)
	}
}

func newMiscDirAt(t *testing.T, fs *FileSystem_t) (vfs.Dirnode_i, defs.Err_t) {
	t.Helper()
	n, err := fs.Root().OpenAt(ustr.NewUstr("misc"), defs.O_RDONLY, 0)
	if err != 0 {
		return nil, err
	}
	return n.(vfs.Dirnode_i), 0
}

func TestTTYEchoesThroughConsole(t *testing.T) {
	fs, _, console, _ := mountTest()
	n := openDev(t, fs.Root(), "tty")
	tty := n.(*TTY_t)

	console.Feed('h', 'i', '\n')
	dst := &fakeUioRead{buf: make([]byte, 10)}
	rn, rerr := tty.Read(dst)
	if rerr != 0 {
		t.Fatalf("read err: %d", rerr)
	}
	if got := string(dst.buf[:rn]); got != "hi\n" {
		t.Fatalf("read got %q, want %q", got, "hi\n")
	}

	wn, werr := tty.Write(fakeUio{buf: []byte("ok")})
	if werr != 0 || wn != 2 {
		t.Fatalf("write: n=%d err=%d", wn, werr)
	}
	if string(console.Written) != "ok" {
		t.Fatalf("console.Written = %q, want %q", console.Written, "ok")
	}
}

func TestTTYNormalizesCRtoLF(t *testing.T) {
	fs, _, console, _ := mountTest()
	n := openDev(t, fs.Root(), "pts")
	tty := n.(*TTY_t)

	console.Feed('x', '\r')
	dst := &fakeUioRead{buf: make([]byte, 10)}
	rn, rerr := tty.Read(dst)
	if rerr != 0 {
		t.Fatalf("read err: %d", rerr)
	}
	if got := string(dst.buf[:rn]); got != "x\n" {
		t.Fatalf("read got %q, want %q", got, "x\n")
	}
}

func TestSda2ReadWriteGoesThroughDisk(t *testing.T) {
	fs, disk, _, _ := mountTest()
	n := openDev(t, fs.Root(), "sda2")
	sda := n.(*Sda2_t)

	payload := make([]byte, blockdev.BSIZE+16)
	for i := range payload {
		payload[i] = byte(i)
	}
	wn, werr := sda.Pwrite(fakeUio{buf: payload}, 0)
	if werr != 0 || wn != len(payload) {
		t.Fatalf("pwrite: n=%d err=%d", wn, werr)
	}
	var raw [blockdev.BSIZE]byte
	disk.ReadBlock(0, raw[:])
	if raw[5] != 5 {
		t.Fatalf("write did not reach backing disk: raw[5]=%d", raw[5])
	}

	dst := &fakeUioRead{buf: make([]byte, len(payload))}
	rn, rerr := sda.Pread(dst, 0)
	if rerr != 0 || rn != len(payload) {
		t.Fatalf("pread: n=%d err=%d", rn, rerr)
	}
	for i, b := range dst.buf {
		if b != byte(i) {
			t.Fatalf("pread mismatch at %d: got %d want %d", i, b, byte(i))
		}
	}
}

func TestShmDelegatesToProvidedDirectory(t *testing.T) {
	fs, _, _, shm := mountTest()
	n, err := fs.Root().OpenAt(ustr.NewUstr("shm"), defs.O_RDWR, 0)
	if err != 0 {
		t.Fatalf("open shm: %d", err)
	}
	if got, ok := n.(*memShmDir); !ok || got != shm {
		t.Fatalf("shm open did not return the delegated directory")
	}
	if shm.reopened != 1 {
		t.Fatalf("expected shm.Reopen to be bumped once, got %d", shm.reopened)
	}
}

func TestUnknownNameIsENODEV(t *testing.T) {
	fs, _, _, _ := mountTest()
	if _, err := fs.Root().OpenAt(ustr.NewUstr("nope"), defs.O_RDONLY, 0); err != -defs.ENODEV {
		t.Fatalf("expected ENODEV, got %d", err)
	}
}

// fakeUio/fakeUioRead are minimal fdops.Userio_i stand-ins, the same
// shape fat32's own test file uses for write-source and read-destination
// roles respectively.
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
