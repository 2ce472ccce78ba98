package procfs

import (
	"oops/defs"
	"oops/mem"
	"oops/vfs"
)

// FileSystem_t is procfs: no backing storage, just live views over the
// mount table and the frame allocator, mirroring devfs.FileSystem_t's
// "carry the handles the fixed entries need" shape.
type FileSystem_t struct {
	fsid   vfs.FsId
	mt     mountsProvider
	frames *mem.FrameAllocator

	root *ProcDir_t
}

// New creates a procfs instance. mt is the mount table whose Mounts()
// backs "mounts"; frames is the frame allocator whose Avail()/Capacity()
// back "meminfo".
func New(fsid vfs.FsId, mt mountsProvider, frames *mem.FrameAllocator) *FileSystem_t {
	return &FileSystem_t{fsid: fsid, mt: mt, frames: frames, root: newProcDir(fsid, mt, frames)}
}

func (fs *FileSystem_t) Root() vfs.Dirnode_i { return fs.root }
func (fs *FileSystem_t) Sync() defs.Err_t    { return 0 }
func (fs *FileSystem_t) Statistics() string  { return "procfs" }
