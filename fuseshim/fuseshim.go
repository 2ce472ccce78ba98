// Package fuseshim adapts the kernel's vfs.Node_i/Dirnode_i tree to a
// real FUSE mount via github.com/hanwen/go-fuse/v2's InodeEmbedder API,
// grounded on the pack's fs/loopback.go (loopbackNode/NewLoopbackRoot):
// one node type embeds fs.Inode and keeps a handle to the real backing
// object, exactly the shape loopbackNode wraps around an on-disk path.
// This lets the FAT32/devfs/procfs tree mounted inside cmd/oops be
// inspected with ordinary host tools (ls, cat) during development.
package fuseshim

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"oops/defs"
	"oops/stat"
	"oops/ustr"
	"oops/vfs"
)

// node wraps one vfs.Node_i as a FUSE inode.
type node struct {
	fs.Inode
	vn vfs.Node_i
}

var (
	_ fs.NodeLookuper  = (*node)(nil)
	_ fs.NodeGetattrer = (*node)(nil)
	_ fs.NodeOpendirer = (*node)(nil)
	_ fs.NodeReaddirer = (*node)(nil)
	_ fs.NodeOpener    = (*node)(nil)
	_ fs.NodeReader    = (*node)(nil)
	_ fs.NodeWriter    = (*node)(nil)
)

// toErrno relies on defs.Err_t already being a negated unix errno (see
// defs.go's ENOENT/EIO/... definitions), so the conversion is a bare
// negate-and-cast rather than a translation table.
func toErrno(err defs.Err_t) syscall.Errno {
	if err == 0 {
		return 0
	}
	return syscall.Errno(-err)
}

func modeFor(kind uint) uint32 {
	switch kind {
	case defs.S_IFDIR:
		return syscall.S_IFDIR
	case defs.S_IFCHR:
		return syscall.S_IFCHR
	case defs.S_IFLNK:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// dtToMode translates the DT_* getdents64 type fat32/devfs/procfs's own
// Getdent implementations already fill Dirent.Ftype with into a FUSE
// DirEntry.Mode's high bits.
func dtToMode(dt uint8) uint32 {
	switch dt {
	case 4:
		return syscall.S_IFDIR
	case 2:
		return syscall.S_IFCHR
	default:
		return syscall.S_IFREG
	}
}

func stableAttr(vn vfs.Node_i) fs.StableAttr {
	return fs.StableAttr{Mode: modeFor(vn.Kind()), Ino: uint64(vn.Ino())}
}

func fillAttr(vn vfs.Node_i, out *fuse.Attr) syscall.Errno {
	var st stat.Stat_t
	if err := vn.Fstat(&st); err != 0 {
		return toErrno(err)
	}
	out.Mode = uint32(st.Mode())
	out.Size = uint64(st.Size())
	out.Ino = uint64(st.Rino())
	return 0
}

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return fillAttr(n.vn, &out.Attr)
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	dn, ok := n.vn.(vfs.Dirnode_i)
	if !ok {
		return nil, syscall.ENOTDIR
	}
	child, err := dn.OpenAt(ustr.Ustr(name), defs.O_RDONLY, 0)
	if err != 0 {
		return nil, toErrno(err)
	}
	if errno := fillAttr(child, &out.Attr); errno != 0 {
		return nil, errno
	}
	return n.NewInode(ctx, &node{vn: child}, stableAttr(child)), 0
}

func (n *node) Opendir(ctx context.Context) syscall.Errno {
	if n.vn.Kind() != defs.S_IFDIR {
		return syscall.ENOTDIR
	}
	return 0
}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	dn, ok := n.vn.(vfs.Dirnode_i)
	if !ok {
		return nil, syscall.ENOTDIR
	}
	var entries []fuse.DirEntry
	off := 0
	for {
		ents, next, err := dn.Getdent(off)
		if err != 0 {
			return nil, toErrno(err)
		}
		if len(ents) == 0 {
			break
		}
		for _, e := range ents {
			entries = append(entries, fuse.DirEntry{
				Name: e.Name,
				Ino:  uint64(e.Ino),
				Mode: dtToMode(e.Ftype),
			})
		}
		if next <= off {
			break
		}
		off = next
	}
	return fs.NewListDirStream(entries), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, 0, 0
}

// byteSink adapts a single []byte read destination to fdops.Userio_i so
// Node_i.Pread can write straight into the FUSE reply buffer.
type byteSink struct {
	buf []byte
	off int
}

func (s *byteSink) Uioread(dst []uint8) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (s *byteSink) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(s.buf[s.off:], src)
	s.off += n
	return n, 0
}
func (s *byteSink) Remain() int  { return len(s.buf) - s.off }
func (s *byteSink) Totalsz() int { return len(s.buf) }

// byteSource is byteSink's write-side counterpart, feeding FUSE's
// incoming write payload to Node_i.Pwrite.
type byteSource struct {
	buf []byte
	off int
}

func (s *byteSource) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, s.buf[s.off:])
	s.off += n
	return n, 0
}
func (s *byteSource) Uiowrite(src []uint8) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (s *byteSource) Remain() int                            { return len(s.buf) - s.off }
func (s *byteSource) Totalsz() int                           { return len(s.buf) }

func (n *node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	sink := &byteSink{buf: dest}
	got, err := n.vn.Pread(sink, int(off))
	if err != 0 {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:got]), 0
}

func (n *node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	src := &byteSource{buf: data}
	written, err := n.vn.Pwrite(src, int(off))
	if err != 0 {
		return 0, toErrno(err)
	}
	return uint32(written), 0
}

// Root wraps a mounted filesystem's root directory as the InodeEmbedder
// fs.Mount (or fs.NewNodeFS) expects.
func Root(root vfs.Dirnode_i) fs.InodeEmbedder {
	return &node{vn: root}
}

// Mount starts serving root at dir until the returned server is later
// stopped (Unmount), the same convenience fs.Mount already wraps around
// fs.NewNodeFS/fuse.NewServer that example/loopback's main.go built by
// hand against the older nodefs package.
func Mount(dir string, root vfs.Dirnode_i, debug bool) (*fuse.Server, error) {
	opts := &fs.Options{}
	opts.Debug = debug
	return fs.Mount(dir, Root(root), opts)
}
