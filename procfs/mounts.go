package procfs

import "oops/vfs"

// mountsProvider is the slice of vfs.MountTable procfs needs; narrowing
// the dependency to an interface keeps this package from importing all of
// vfs.Vfs_t just to read the mount list.
type mountsProvider interface {
	Mounts() string
}

// newMounts backs the "mounts" entry with vfs.MountTable.Mounts(), which
// already renders "/ rootfs\n" plus one "(mount) \n" line per live mount —
// exactly the table original_source's mod.rs delegates to a mounts.rs
// that isn't present in this retrieval pack, so this entry is grounded on
// this kernel's own mount table instead of a ported file.
func newMounts(fsid vfs.FsId, mt mountsProvider) *contentFile {
	return newContentFile(fsid, procIno(1), func() []byte {
		return []byte(mt.Mounts())
	})
}
