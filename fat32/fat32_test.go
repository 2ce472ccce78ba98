package fat32

import (
	"strings"
	"testing"

	"oops/blkcache"
	"oops/defs"
	"oops/ustr"
	"oops/vfs"
)

// memDisk is an in-process BlockDevice, the same role newTestKernel's
// memBacking plays for swap in trap_test.go, sized generously enough for
// a handful of multi-cluster files.
type memDisk struct {
	blocks [][bytesPerBlock]byte
}

func newMemDisk(nblocks int) *memDisk {
	return &memDisk{blocks: make([][bytesPerBlock]byte, nblocks)}
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

func (m *memDisk) NumBlocks() int { return len(m.blocks) }
func (m *memDisk) Sync() defs.Err_t { return 0 }

const testDev = 7

// mountFresh formats and mounts a small volume, one sector per cluster so
// multi-cluster growth is easy to trigger with modest file sizes.
func mountFresh(t *testing.T) (*FileSystem_t, *memDisk) {
	t.Helper()
	disk := newMemDisk(64)
	if err := Format(disk, 1); err != 0 {
		t.Fatalf("format: %d", err)
	}
	cache := blkcache.New(32)
	cache.Register(testDev, disk)
	fs, err := Mount(testDev, cache, vfs.FsId(1))
	if err != 0 {
		t.Fatalf("mount: %d", err)
	}
	return fs, disk
}

func TestFormatMountRoundTrip(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()
	if root.Kind() != defs.S_IFDIR {
		t.Fatalf("root kind should be S_IFDIR, got %#o", root.Kind())
	}
	ents, _, err := root.Getdent(0)
	if err != 0 {
		t.Fatalf("getdent on fresh root: %d", err)
	}
	if len(ents) != 0 {
		t.Fatalf("fresh root should be empty, got %d entries", len(ents))
	}
}

func TestCreateWriteReadShortName(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()

	n, err := root.OpenAt(ustr.NewUstr("hi.txt"), defs.O_CREAT, 0)
	if err != 0 {
		t.Fatalf("create: %d", err)
	}
	fh := n.(*FileHandle_t)

	payload := []byte("hello, fat32")
	if nw, werr := fh.pwrite(fakeUio{buf: payload}, 0); werr != 0 || nw != len(payload) {
		t.Fatalf("write: n=%d err=%d", nw, werr)
	}

	out := make([]byte, len(payload))
	u := &fakeUioRead{buf: out}
	nr, rerr := fh.pread(u, 0)
	if rerr != 0 {
		t.Fatalf("read: %d", rerr)
	}
	if nr != len(payload) || string(out) != string(payload) {
		t.Fatalf("read back %q, want %q", out[:nr], payload)
	}

	// reopening by name should share the same cached Dirent_t identity.
	n2, err := root.OpenAt(ustr.NewUstr("hi.txt"), 0, 0)
	if err != 0 {
		t.Fatalf("reopen: %d", err)
	}
	fh2 := n2.(*FileHandle_t)
	if fh2.d != fh.d {
		t.Fatal("two opens of the same file should share one Dirent_t")
	}
}

func TestLongFilenameRoundTrips(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()

	long := "a-rather-long-descriptive-filename.data"
	n, err := root.OpenAt(ustr.NewUstr(long), defs.O_CREAT, 0)
	if err != 0 {
		t.Fatalf("create long name: %d", err)
	}
	_ = n

	ents, _, err := root.Getdent(0)
	if err != 0 {
		t.Fatalf("getdent: %d", err)
	}
	found := false
	for _, e := range ents {
		if e.Name == long {
			found = true
		}
	}
	if !found {
		t.Fatalf("long name %q did not round-trip through entries %+v", long, ents)
	}

	n2, err := root.OpenAt(ustr.NewUstr(long), 0, 0)
	if err != 0 {
		t.Fatalf("reopen by long name: %d", err)
	}
	if n2.(*FileHandle_t).d.name != long {
		t.Fatalf("reopened dirent name mismatch: got %q", n2.(*FileHandle_t).d.name)
	}
}

func TestDirectoryNestingAndListing(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()

	sub, err := root.Mknod(ustr.NewUstr("sub"), defs.S_IFDIR, 0, 0)
	if err != 0 {
		t.Fatalf("mkdir: %d", err)
	}
	subh := sub.(*FileHandle_t)

	names := []string{"one", "two", "three"}
	for _, nm := range names {
		if _, err := subh.OpenAt(ustr.NewUstr(nm), defs.O_CREAT, 0); err != 0 {
			t.Fatalf("create %s: %d", nm, err)
		}
	}

	ents, _, err := subh.Getdent(0)
	if err != 0 {
		t.Fatalf("getdent sub: %d", err)
	}
	if len(ents) != len(names) {
		t.Fatalf("expected %d entries, got %d: %+v", len(names), len(ents), ents)
	}

	// root itself should list exactly "sub".
	rootEnts, _, err := root.Getdent(0)
	if err != 0 {
		t.Fatalf("getdent root: %d", err)
	}
	if len(rootEnts) != 1 || rootEnts[0].Name != "sub" || rootEnts[0].Ftype != 4 {
		t.Fatalf("root listing wrong: %+v", rootEnts)
	}
}

func TestDeleteDefersFreeUntilClose(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()

	n, err := root.OpenAt(ustr.NewUstr("gone.txt"), defs.O_CREAT, 0)
	if err != 0 {
		t.Fatalf("create: %d", err)
	}
	fh := n.(*FileHandle_t)
	startCluster := fh.d.startCluster

	if err := root.Delete(ustr.NewUstr("gone.txt"), false); err != 0 {
		t.Fatalf("delete: %d", err)
	}

	// still open: the entry is gone from the directory, but the chain
	// hasn't been freed and the held handle still reads its data back.
	ents, _, _ := root.Getdent(0)
	for _, e := range ents {
		if e.Name == "gone.txt" {
			t.Fatal("deleted name should no longer list")
		}
	}
	fs.direntMu.Lock()
	_, stillCached := fs.dirents[startCluster]
	fs.direntMu.Unlock()
	if !stillCached {
		t.Fatal("dirent should remain cached while a handle is still open")
	}

	if err := fh.Close(); err != 0 {
		t.Fatalf("close: %d", err)
	}
	fs.direntMu.Lock()
	_, stillCached = fs.dirents[startCluster]
	fs.direntMu.Unlock()
	if stillCached {
		t.Fatal("dirent should be evicted from the cache once its last handle closes")
	}
	kind, err := fs.nextCluster(startCluster)
	_ = kind
	if err != -defs.EINVAL {
		t.Fatalf("freed cluster's FAT entry should classify free (EINVAL from nextCluster), got err=%d", err)
	}
}

func TestRenameMovesEntryAcrossDirectories(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()

	if _, err := root.OpenAt(ustr.NewUstr("movable.txt"), defs.O_CREAT, 0); err != 0 {
		t.Fatalf("create: %d", err)
	}
	sub, err := root.Mknod(ustr.NewUstr("dest"), defs.S_IFDIR, 0, 0)
	if err != 0 {
		t.Fatalf("mkdir: %d", err)
	}
	subh := sub.(*FileHandle_t)

	if err := root.Rename(ustr.NewUstr("movable.txt"), subh, ustr.NewUstr("renamed.txt")); err != 0 {
		t.Fatalf("rename: %d", err)
	}

	rootEnts, _, _ := root.Getdent(0)
	for _, e := range rootEnts {
		if e.Name == "movable.txt" {
			t.Fatal("old name should no longer be listed in the source directory")
		}
	}

	subEnts, _, err := subh.Getdent(0)
	if err != 0 {
		t.Fatalf("getdent dest: %d", err)
	}
	found := false
	for _, e := range subEnts {
		if e.Name == "renamed.txt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("renamed entry not found in destination: %+v", subEnts)
	}
}

func TestMultiClusterGrowth(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()

	n, err := root.OpenAt(ustr.NewUstr("big.bin"), defs.O_CREAT, 0)
	if err != 0 {
		t.Fatalf("create: %d", err)
	}
	fh := n.(*FileHandle_t)

	// one cluster is bytesPerBlock bytes (sectorsPerCluster==1 here);
	// write enough to span at least two clusters.
	payload := make([]byte, bytesPerBlock+512)
	for i := range payload {
		payload[i] = byte(i)
	}
	if nw, werr := fh.pwrite(fakeUio{buf: payload}, 0); werr != 0 || nw != len(payload) {
		t.Fatalf("write: n=%d err=%d", nw, werr)
	}
	if len(fh.d.clusterChain) < 2 {
		t.Fatalf("expected the chain to grow past one cluster, got %d", len(fh.d.clusterChain))
	}

	out := make([]byte, len(payload))
	u := &fakeUioRead{buf: out}
	if nr, rerr := fh.pread(u, 0); rerr != 0 || nr != len(payload) {
		t.Fatalf("read: n=%d err=%d", nr, rerr)
	}
	if string(out) != string(payload) {
		t.Fatal("multi-cluster read back didn't match what was written")
	}
}

func TestTruncateShrinkPersists(t *testing.T) {
	fs, _ := mountFresh(t)
	root := fs.Root()

	n, err := root.OpenAt(ustr.NewUstr("shrink.txt"), defs.O_CREAT, 0)
	if err != 0 {
		t.Fatalf("create: %d", err)
	}
	fh := n.(*FileHandle_t)
	payload := []byte(strings.Repeat("x", 100))
	if _, werr := fh.pwrite(fakeUio{buf: payload}, 0); werr != 0 {
		t.Fatalf("write: %d", werr)
	}
	if err := fh.Truncate(10); err != 0 {
		t.Fatalf("truncate: %d", err)
	}
	if fh.d.size != 10 {
		t.Fatalf("in-memory size should be 10, got %d", fh.d.size)
	}

	// reopen through a fresh lookup path to confirm the shrink actually
	// landed on disk, not just in the live Dirent_t.
	fh.Close()
	n2, err := root.OpenAt(ustr.NewUstr("shrink.txt"), 0, 0)
	if err != 0 {
		t.Fatalf("reopen: %d", err)
	}
	if n2.(*FileHandle_t).d.size != 10 {
		t.Fatalf("persisted size after shrink should be 10, got %d", n2.(*FileHandle_t).d.size)
	}
}

func TestRemountSeesExistingRootEntries(t *testing.T) {
	fs, disk := mountFresh(t)
	root := fs.Root()
	if _, err := root.OpenAt(ustr.NewUstr("survives.txt"), defs.O_CREAT, 0); err != 0 {
		t.Fatalf("create: %d", err)
	}
	if err := fs.Sync(); err != 0 {
		t.Fatalf("sync: %d", err)
	}

	cache2 := blkcache.New(32)
	cache2.Register(testDev, disk)
	fs2, err := Mount(testDev, cache2, vfs.FsId(1))
	if err != 0 {
		t.Fatalf("remount: %d", err)
	}
	root2 := fs2.Root()
	ents, _, err := root2.Getdent(0)
	if err != 0 {
		t.Fatalf("getdent after remount: %d", err)
	}
	found := false
	for _, e := range ents {
		if e.Name == "survives.txt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("entry written before remount should still be visible, got %+v", ents)
	}
}

// fakeUio/fakeUioRead are minimal fdops.Userio_i stand-ins, the same
// shape as vfs_test.go's fakeUio, adapted here to wrap a plain byte slice
// for write-source and read-destination roles respectively.
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
