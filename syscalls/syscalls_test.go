package syscalls

import (
	"testing"
	"time"

	"oops/blkcache"
	"oops/defs"
	"oops/fat32"
	"oops/fd"
	"oops/mem"
	"oops/sched"
	"oops/swap"
	"oops/task"
	"oops/ustr"
	"oops/vfs"
	"oops/vm"
)

// memDisk is the same in-process BlockDevice double fat32_test.go uses,
// reimplemented locally since that type isn't exported across packages.
type memDisk struct {
	blocks [][4096]byte
}

func newMemDisk(nblocks int) *memDisk {
	return &memDisk{blocks: make([][4096]byte, nblocks)}
}

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

type memBacking struct{ buf []byte }

func (m *memBacking) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m.buf[off:]), nil }
func (m *memBacking) WriteAt(p []byte, off int64) (int, error) { return copy(m.buf[off:], p), nil }

const testDev = 9

// harness bundles everything a syscall test needs: a mounted fat32 root,
// a running Syscalls_t, and one spawned process to drive calls through.
type harness struct {
	sc *Syscalls_t
	tm *sched.TaskManager
	t0 *task.Task_t
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	disk := newMemDisk(128)
	if err := fat32.Format(disk, 1); err != 0 {
		t.Fatalf("format: %d", err)
	}
	cache := blkcache.New(32)
	cache.Register(testDev, disk)
	fs, err := fat32.Mount(testDev, cache, vfs.FsId(1))
	if err != 0 {
		t.Fatalf("mount: %d", err)
	}
	v := vfs.New(fs)

	fa := mem.NewFrameAllocator(64)
	sw := swap.New(&memBacking{buf: make([]byte, 32*mem.PGSIZE)}, 16)
	as, everr := vm.New(fa, sw)
	if everr != 0 {
		t.Fatalf("vm.New: %d", everr)
	}

	tm := sched.New()
	sc := New(v, tm, fa, sw, time.Now())
	root := &fd.Fd_t{Fops: v.Mounts.Root()}
	t0 := sc.Spawn(as, root)
	return &harness{sc: sc, tm: tm, t0: t0}
}

func putCString(t *testing.T, as *vm.AddressSpace, va uintptr, s string) {
	t.Helper()
	buf := append([]byte(s), 0)
	if _, err := vm.NewUserbuf(as, va, len(buf)).Uiowrite(buf); err != 0 {
		t.Fatalf("stage path %q: %d", s, err)
	}
}

const scratchVA = 0x20000

func TestOpenWriteLseekReadCloseRoundTrip(t *testing.T) {
	h := newHarness(t)
	t0 := h.t0
	if e := t0.AS.AddAnon(scratchVA, 4*mem.PGSIZE, vm.PROT_READ|vm.PROT_WRITE, false); e != 0 {
		t.Fatalf("AddAnon: %d", e)
	}
	if e := t0.AS.Fault(scratchVA, true); e != 0 {
		t.Fatalf("Fault: %d", e)
	}

	pathVA := uintptr(scratchVA)
	putCString(t, t0.AS, pathVA, "hello.txt")

	fdn, err := h.sc.Sys_openat(t0, defs.AT_FDCWD, pathVA, defs.O_CREAT|defs.O_RDWR, 0644)
	if err != 0 {
		t.Fatalf("Sys_openat: %d", err)
	}

	dataVA := pathVA + 512
	payload := []byte("0123456789")
	if _, werr := vm.NewUserbuf(t0.AS, dataVA, len(payload)).Uiowrite(payload); werr != 0 {
		t.Fatalf("stage payload: %d", werr)
	}

	n, err := h.sc.Sys_write(t0, fdn, dataVA, len(payload))
	if err != 0 || n != len(payload) {
		t.Fatalf("Sys_write = (%d, %d), want (%d, 0)", n, err, len(payload))
	}

	if off, err := h.sc.Sys_lseek(t0, fdn, 0, defs.SEEK_SET); err != 0 || off != 0 {
		t.Fatalf("Sys_lseek = (%d, %d), want (0, 0)", off, err)
	}

	readVA := dataVA + 512
	n, err = h.sc.Sys_read(t0, fdn, readVA, len(payload))
	if err != 0 || n != len(payload) {
		t.Fatalf("Sys_read = (%d, %d), want (%d, 0)", n, err, len(payload))
	}
	got := make([]byte, len(payload))
	if _, rerr := vm.NewUserbuf(t0.AS, readVA, len(payload)).Uioread(got); rerr != 0 {
		t.Fatalf("drain read buffer: %d", rerr)
	}
	if string(got) != string(payload) {
		t.Fatalf("read back %q, want %q", got, payload)
	}

	if _, err := h.sc.Sys_close(t0, fdn); err != 0 {
		t.Fatalf("Sys_close: %d", err)
	}
}

func TestMkdiratAndGetdents64(t *testing.T) {
	h := newHarness(t)
	t0 := h.t0
	if e := t0.AS.AddAnon(scratchVA, 4*mem.PGSIZE, vm.PROT_READ|vm.PROT_WRITE, false); e != 0 {
		t.Fatalf("AddAnon: %d", e)
	}
	if e := t0.AS.Fault(scratchVA, true); e != 0 {
		t.Fatalf("Fault: %d", e)
	}

	putCString(t, t0.AS, scratchVA, "sub")
	if _, err := h.sc.Sys_mkdirat(t0, defs.AT_FDCWD, scratchVA, 0755); err != 0 {
		t.Fatalf("Sys_mkdirat: %d", err)
	}
	innerVA := uintptr(scratchVA + 256)
	putCString(t, t0.AS, innerVA, "sub/inner")
	if _, err := h.sc.Sys_mkdirat(t0, defs.AT_FDCWD, innerVA, 0755); err != 0 {
		t.Fatalf("Sys_mkdirat(sub/inner): %d", err)
	}

	dirFd, err := h.sc.Sys_openat(t0, defs.AT_FDCWD, scratchVA, defs.O_RDONLY|defs.O_DIRECTORY, 0)
	if err != 0 {
		t.Fatalf("Sys_openat(O_DIRECTORY): %d", err)
	}

	bufVA := scratchVA + 512
	n, err := h.sc.Sys_getdents64(t0, dirFd, bufVA, 512)
	if err != 0 {
		t.Fatalf("Sys_getdents64: %d", err)
	}
	if n <= 0 {
		t.Fatalf("Sys_getdents64 returned %d bytes, want > 0 (expected the entry for inner)", n)
	}
}

func TestDupAndDup3(t *testing.T) {
	h := newHarness(t)
	t0 := h.t0
	if e := t0.AS.AddAnon(scratchVA, mem.PGSIZE, vm.PROT_READ|vm.PROT_WRITE, false); e != 0 {
		t.Fatalf("AddAnon: %d", e)
	}
	if e := t0.AS.Fault(scratchVA, true); e != 0 {
		t.Fatalf("Fault: %d", e)
	}
	putCString(t, t0.AS, scratchVA, "dupme.txt")

	fdn, err := h.sc.Sys_openat(t0, defs.AT_FDCWD, scratchVA, defs.O_CREAT|defs.O_RDWR, 0644)
	if err != 0 {
		t.Fatalf("Sys_openat: %d", err)
	}

	dupfd, err := h.sc.Sys_dup(t0, fdn)
	if err != 0 {
		t.Fatalf("Sys_dup: %d", err)
	}
	if dupfd == fdn {
		t.Fatalf("Sys_dup returned the same descriptor %d", fdn)
	}

	const target = 50
	got, err := h.sc.Sys_dup3(t0, fdn, target, 0)
	if err != 0 || got != target {
		t.Fatalf("Sys_dup3 = (%d, %d), want (%d, 0)", got, err, target)
	}
	if _, ok := t0.Fds.Get(target); !ok {
		t.Fatalf("fd %d should exist after Sys_dup3", target)
	}

	if _, err := h.sc.Sys_dup3(t0, fdn, fdn, 0); err != -defs.EINVAL {
		t.Fatalf("Sys_dup3(fd, fd) = %d, want -EINVAL", err)
	}
}

func TestFutexWaitWakeThroughSyscalls(t *testing.T) {
	h := newHarness(t)
	t0 := h.t0
	if e := t0.AS.AddAnon(scratchVA, mem.PGSIZE, vm.PROT_READ|vm.PROT_WRITE, false); e != 0 {
		t.Fatalf("AddAnon: %d", e)
	}
	if e := t0.AS.Fault(scratchVA, true); e != 0 {
		t.Fatalf("Fault: %d", e)
	}
	var zero [4]byte
	if _, err := vm.NewUserbuf(t0.AS, scratchVA, 4).Uiowrite(zero[:]); err != 0 {
		t.Fatalf("stage futex word: %d", err)
	}

	done := make(chan defs.Err_t, 1)
	go func() {
		n, err := h.sc.Sys_futex(t0, scratchVA, defs.FUTEX_WAIT, 0, 0, 0, 0)
		if err != 0 {
			done <- defs.Err_t(err)
			return
		}
		done <- defs.Err_t(n)
	}()
	time.Sleep(20 * time.Millisecond)

	woken, err := h.sc.Sys_futex(t0, scratchVA, defs.FUTEX_WAKE, 1, 0, 0, 0)
	if err != 0 || woken != 1 {
		t.Fatalf("Sys_futex(WAKE) = (%d, %d), want (1, 0)", woken, err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sys_futex(WAIT) never returned after WAKE")
	}
}

func TestCloneThreadSharesAddressSpace(t *testing.T) {
	h := newHarness(t)
	t0 := h.t0

	childTid, err := h.sc.Sys_clone(t0, defs.CLONE_VM|defs.CLONE_THREAD|defs.CLONE_SIGHAND, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Sys_clone: %d", err)
	}
	child, ok := h.sc.lookupTask(defs.Tid_t(childTid))
	if !ok {
		t.Fatalf("cloned child tid %d not registered", childTid)
	}
	if child.AS != t0.AS {
		t.Fatal("CLONE_VM should share the address space")
	}
	if child.Group != t0.Group {
		t.Fatal("CLONE_THREAD should share the thread group")
	}
}

func TestKillAndTkillDeliverSignal(t *testing.T) {
	h := newHarness(t)
	t0 := h.t0

	if _, err := h.sc.Sys_tkill(t0, int(t0.Tid), defs.SIGUSR1); err != 0 {
		t.Fatalf("Sys_tkill: %d", err)
	}
	sig, ok := t0.Deliverable()
	if !ok || sig != defs.SIGUSR1 {
		t.Fatalf("expected SIGUSR1 pending after tkill, got sig=%d ok=%v", sig, ok)
	}

	if _, err := h.sc.Sys_kill(t0, int(t0.Group.Pid), defs.SIGKILL); err != 0 {
		t.Fatalf("Sys_kill: %d", err)
	}
	if !t0.Note.Doomed() {
		t.Fatal("SIGKILL via Sys_kill should doom the target")
	}
}

func TestExitGroupThenWait4ReapsChild(t *testing.T) {
	h := newHarness(t)
	parent := h.t0

	childTid, err := h.sc.Sys_clone(parent, 0, 0, 0, 0, 0)
	if err != 0 {
		t.Fatalf("Sys_clone: %d", err)
	}
	child, ok := h.sc.lookupTask(defs.Tid_t(childTid))
	if !ok {
		t.Fatalf("child tid %d not registered", childTid)
	}

	if _, err := h.sc.Sys_exit_group(child, 7); err != 0 {
		t.Fatalf("Sys_exit_group: %d", err)
	}

	done := make(chan struct{})
	go func() {
		pid, werr := h.sc.Sys_wait4(parent, int(child.Group.Pid), 0, 0)
		if werr != 0 {
			t.Errorf("Sys_wait4: %d", werr)
		}
		if pid != int(child.Group.Pid) {
			t.Errorf("Sys_wait4 returned pid %d, want %d", pid, child.Group.Pid)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sys_wait4 never reaped the exited child")
	}
}

func TestGetcwdReturnsRootPath(t *testing.T) {
	h := newHarness(t)
	t0 := h.t0
	if e := t0.AS.AddAnon(scratchVA, mem.PGSIZE, vm.PROT_READ|vm.PROT_WRITE, false); e != 0 {
		t.Fatalf("AddAnon: %d", e)
	}
	if e := t0.AS.Fault(scratchVA, true); e != 0 {
		t.Fatalf("Fault: %d", e)
	}

	n, err := h.sc.Sys_getcwd(t0, scratchVA, 64)
	if err != 0 {
		t.Fatalf("Sys_getcwd: %d", err)
	}
	got := make([]byte, n)
	if _, rerr := vm.NewUserbuf(t0.AS, scratchVA, n).Uioread(got); rerr != 0 {
		t.Fatalf("drain getcwd buffer: %d", rerr)
	}
	if len(got) == 0 || got[len(got)-1] != 0 {
		t.Fatalf("Sys_getcwd buffer %q not NUL-terminated", got)
	}
	if ustr.Ustr(got[:len(got)-1]).String() == "" {
		t.Fatal("Sys_getcwd returned an empty path")
	}
}
