// Package vfs implements the uniform file interface and mount manager of
// spec.md §4.5, generalizing the teacher's ufs.Ufs_t/fs.Fs_t wrapper
// (teacher_src/ufs/ufs.go) — whose own filesystem-core files weren't part
// of the retrieval pack — into an explicit FS_i plugin interface so
// fat32, devfs, and procfs can all sit behind the same mount table instead
// of ufs's single hard-wired on-disk filesystem.
package vfs

import (
	"sync"

	"oops/defs"
	"oops/fd"
	"oops/fdops"
	"oops/ustr"
)

// Debug gates verbose path-resolution logging.
var Debug = false

// FsId distinguishes one mounted filesystem instance from another; file
// indices (fsid, fileid) returned by Fdops_i.GetFile/GetDir/GetFifo are
// only unique within one FsId.
type FsId int

// Node_i is the capability every mounted filesystem's file objects share:
// enough to be found, stat'd, and recognized as a mount point. Concrete
// kinds (regular file, directory, device, fifo, symlink) layer Fdops_i
// capabilities on top, following spec.md §4.5's "fallible downcast"
// design already encoded in fdops.Fdops_i.
type Node_i interface {
	fdops.Fdops_i
	FsId() FsId
	Ino() int
	// Kind returns one of the defs.S_IF* bits, letting the path walker
	// recognize directories/symlinks without a type assertion per node
	// kind — the uniform interface spec.md §4.5 calls for.
	Kind() uint
}

// Dirnode_i is the directory-specific half of the uniform file interface:
// open_at/mknod/delete/getdent/rename from spec.md §4.5. A filesystem's
// root and every directory within it implements this in addition to
// Node_i.
type Dirnode_i interface {
	Node_i
	OpenAt(name ustr.Ustr, flags int, mode uint) (Node_i, defs.Err_t)
	Mknod(name ustr.Ustr, kind uint, perm uint, rdev uint) (Node_i, defs.Err_t)
	Delete(name ustr.Ustr, isdir bool) defs.Err_t
	Getdent(off int) ([]Dirent, int, defs.Err_t)
	Rename(oldname ustr.Ustr, newdir Dirnode_i, newname ustr.Ustr) defs.Err_t
}

// Linknode_i is the capability a symlink node adds: its target path.
// Kept separate from Dirnode_i since a symlink is never itself a
// directory.
type Linknode_i interface {
	Node_i
	Readlink() (ustr.Ustr, defs.Err_t)
}

// Dirent is one entry returned by getdent(2).
type Dirent struct {
	Name  string
	Ino   uint
	Ftype uint8
}

// FS_i is what a pluggable filesystem (fat32, devfs, procfs) must supply
// to be mountable: its root directory and a way to flush pending writes.
type FS_i interface {
	Root() Dirnode_i
	Sync() defs.Err_t
	Statistics() string
}

// mountKey identifies the directory a filesystem is mounted on top of by
// the covered directory's (fsid, fileid); MountTable.mounts maps it to the
// mounted filesystem, per spec.md
// §4.5's "path resolution... if the current file's index is a mount
// point, the current file is replaced by the target filesystem's root".
type mountKey struct {
	fs  FsId
	ino int
}

// MountTable holds the root filesystem and every mount layered on top of
// it, grounded on the teacher's single-Ufs_t setup generalized to many.
type MountTable struct {
	sync.RWMutex
	root   FS_i
	mounts map[mountKey]FS_i
}

// NewMountTable creates a mount table rooted at root.
func NewMountTable(root FS_i) *MountTable {
	return &MountTable{root: root, mounts: make(map[mountKey]FS_i)}
}

// Root returns the root filesystem's root directory.
func (mt *MountTable) Root() Dirnode_i {
	return mt.root.Root()
}

// Mount covers dir (a directory in an already-mounted filesystem) with
// fs's root.
func (mt *MountTable) Mount(dir Dirnode_i, fs FS_i) defs.Err_t {
	mt.Lock()
	defer mt.Unlock()
	k := mountKey{dir.FsId(), dir.Ino()}
	if _, ok := mt.mounts[k]; ok {
		return -defs.EEXIST
	}
	mt.mounts[k] = fs
	return 0
}

// Unmount removes whatever filesystem is mounted on dir.
func (mt *MountTable) Unmount(dir Dirnode_i) defs.Err_t {
	mt.Lock()
	defer mt.Unlock()
	k := mountKey{dir.FsId(), dir.Ino()}
	if _, ok := mt.mounts[k]; !ok {
		return -defs.EINVAL
	}
	delete(mt.mounts, k)
	return 0
}

// crossLocked returns fs's root in place of dir if dir is a mount point,
// else dir unchanged. Caller holds mt's lock for reading.
func (mt *MountTable) crossLocked(dir Dirnode_i) Dirnode_i {
	k := mountKey{dir.FsId(), dir.Ino()}
	if fs, ok := mt.mounts[k]; ok {
		return fs.Root()
	}
	return dir
}

// Mounts renders the mount table for procfs's "mounts" pseudo-file.
func (mt *MountTable) Mounts() string {
	mt.RLock()
	defer mt.RUnlock()
	s := "/ rootfs\n"
	for range mt.mounts {
		s += "(mount) \n"
	}
	return s
}

// Cwd re-exports fd.Cwd_t under the vfs package for callers that only
// import vfs, matching the teacher's habit of re-exporting small helper
// types from the package that uses them most.
type Cwd_t = fd.Cwd_t
