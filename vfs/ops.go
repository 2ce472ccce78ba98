package vfs

import (
	"oops/defs"
	"oops/stat"
	"oops/ustr"
)

// Vfs_t is the syscall layer's single entry point into the filesystem:
// the mount table plus the open/mkdir/rename/unlink/stat operations
// spec.md §4.5 names, generalizing the teacher's Ufs_t (which wrapped one
// hard-coded fs.Fs_t) to the pluggable multi-filesystem MountTable above.
type Vfs_t struct {
	Mounts *MountTable
}

// New wraps a root filesystem into a Vfs_t ready to serve opens.
func New(root FS_i) *Vfs_t {
	return &Vfs_t{Mounts: NewMountTable(root)}
}

// Open resolves path relative to cwd and, if O_CREAT is set and nothing
// exists there, creates a regular file in the parent directory — the
// open_at/mknod pairing spec.md §4.5 describes.
func (v *Vfs_t) Open(cwd Dirnode_i, path ustr.Ustr, flags int, mode uint) (Node_i, defs.Err_t) {
	nofollow := flags&defs.O_NOFOLLOW != 0
	n, err := v.Mounts.Resolve(cwd, path, nofollow)
	if err == 0 {
		if flags&defs.O_CREAT != 0 && flags&defs.O_EXCL != 0 {
			return nil, -defs.EEXIST
		}
		if flags&defs.O_DIRECTORY != 0 && n.Kind() != defs.S_IFDIR {
			return nil, -defs.ENOTDIR
		}
		return n, 0
	}
	if err != -defs.ENOENT || flags&defs.O_CREAT == 0 {
		return nil, err
	}
	parent, name, perr := v.Mounts.ResolveParent(cwd, path)
	if perr != 0 {
		return nil, perr
	}
	return parent.Mknod(name, defs.S_IFREG, mode, 0)
}

// Mkdir creates a directory at path.
func (v *Vfs_t) Mkdir(cwd Dirnode_i, path ustr.Ustr, mode uint) defs.Err_t {
	parent, name, err := v.Mounts.ResolveParent(cwd, path)
	if err != 0 {
		return err
	}
	_, err = parent.Mknod(name, defs.S_IFDIR, mode, 0)
	return err
}

// Unlink removes a file or (if isdir) an empty directory at path.
func (v *Vfs_t) Unlink(cwd Dirnode_i, path ustr.Ustr, isdir bool) defs.Err_t {
	parent, name, err := v.Mounts.ResolveParent(cwd, path)
	if err != 0 {
		return err
	}
	return parent.Delete(name, isdir)
}

// Rename moves oldpath to newpath, both resolved relative to cwd.
func (v *Vfs_t) Rename(cwd Dirnode_i, oldpath, newpath ustr.Ustr) defs.Err_t {
	oldparent, oldname, err := v.Mounts.ResolveParent(cwd, oldpath)
	if err != 0 {
		return err
	}
	newparent, newname, err := v.Mounts.ResolveParent(cwd, newpath)
	if err != 0 {
		return err
	}
	return oldparent.Rename(oldname, newparent, newname)
}

// Stat resolves path and fills st, following the final symlink.
func (v *Vfs_t) Stat(cwd Dirnode_i, path ustr.Ustr, st *stat.Stat_t) defs.Err_t {
	n, err := v.Mounts.Resolve(cwd, path, false)
	if err != 0 {
		return err
	}
	return n.Fstat(st)
}

// Sync flushes the root filesystem's pending writes only; filesystems
// mounted on top of it are not synced here.
func (v *Vfs_t) Sync() defs.Err_t {
	return v.Mounts.root.Sync()
}
