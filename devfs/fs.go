package devfs

import (
	"oops/blockdev"
	"oops/defs"
	"oops/vfs"
)

// FileSystem_t is devfs: no backing storage of its own (device nodes are
// synthesized), but it carries the handles its fixed entries need — the
// raw block device for sda2, a Console_i for tty/pts, and the directory
// in the real filesystem that "shm" delegates to, the same way mod.rs's
// DevFS::init mounts over an already-created "/shm" directory rather
// than implementing its own tmpfs.
type FileSystem_t struct {
	fsid    vfs.FsId
	disk    blockdev.BlockDevice
	console Console_i
	shm     vfs.Dirnode_i

	root *DevDir_t
}

// New creates a devfs instance. disk and console may be nil (sda2/tty
// then answer ENODEV instead of panicking); shm should be a directory
// already created in the filesystem devfs is mounted alongside, typically
// by creating "/shm" before mounting devfs over "/dev".
func New(fsid vfs.FsId, disk blockdev.BlockDevice, console Console_i, shm vfs.Dirnode_i) *FileSystem_t {
	fs := &FileSystem_t{fsid: fsid, disk: disk, console: console, shm: shm}
	fs.root = &DevDir_t{baseDev: baseDev{fsid: fsid, ino: devIno(defs.D_FIRST) - 1, kind: defs.S_IFDIR}, fs: fs}
	return fs
}

func (fs *FileSystem_t) Root() vfs.Dirnode_i { return fs.root }
func (fs *FileSystem_t) Sync() defs.Err_t    { return 0 }
func (fs *FileSystem_t) Statistics() string  { return "devfs" }
