// Command mkfs builds a FAT32 disk image and populates it from a host
// skeleton directory tree, grounded on mkfs.go's addfiles/copydata shape
// (walk a host directory, create the same tree in the target filesystem,
// stream file contents block by block) with the target filesystem
// swapped for this kernel's own fat32/blkcache/blockdev stack instead of
// ufs's log-structured image.
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/mountinfo"

	"oops/blkcache"
	"oops/blockdev"
	"oops/defs"
	"oops/fat32"
	"oops/ustr"
	"oops/vfs"
)

const (
	// diskBlocks is the image size in 4 KiB blocks, sized generously for
	// a skeleton directory of configs/binaries rather than tuned to any
	// particular payload.
	diskBlocks        = 65536
	sectorsPerCluster = 8
	cacheBlocks       = 256
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mkfs <output image> <skel dir>\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage()
	}
	image, skeldir := os.Args[1], os.Args[2]

	if err := checkNotBindMounted(image); err != nil {
		fmt.Fprintf(os.Stderr, "refusing to regenerate %s: %v\n", image, err)
		os.Exit(1)
	}

	disk, err := blockdev.Open(image, diskBlocks, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", image, err)
		os.Exit(1)
	}
	defer disk.Close()

	if e := fat32.Format(disk, sectorsPerCluster); e != 0 {
		fmt.Fprintf(os.Stderr, "format: %d\n", e)
		os.Exit(1)
	}

	cache := blkcache.New(cacheBlocks)
	cache.Register(0, disk)
	volume, e := fat32.Mount(0, cache, vfs.FsId(1))
	if e != 0 {
		fmt.Fprintf(os.Stderr, "mount: %d\n", e)
		os.Exit(1)
	}

	if err := addfiles(volume.Root(), skeldir); err != nil {
		fmt.Fprintf(os.Stderr, "error walking %q: %v\n", skeldir, err)
		os.Exit(1)
	}

	if e := volume.Sync(); e != 0 {
		fmt.Fprintf(os.Stderr, "sync: %d\n", e)
		os.Exit(1)
	}
}

// checkNotBindMounted refuses to proceed if path is itself a live mount
// point, reading /proc/self/mountinfo through moby/sys/mountinfo the way
// dockerd uses the same library to avoid stepping on a container's bind
// mount. Rewriting the backing file of a bind mount some other process
// has open would hand that process a half-formatted image mid-read.
func checkNotBindMounted(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	mounts, err := mountinfo.GetMounts(func(m *mountinfo.Info) (skip, stop bool) {
		return m.Mountpoint != abs, false
	})
	if err != nil {
		// /proc/self/mountinfo isn't available on every host (e.g. in a
		// sandbox with no /proc); treat that as "nothing mounted" rather
		// than failing mkfs outright.
		return nil
	}
	if len(mounts) > 0 {
		return fmt.Errorf("%s is a live mount point (%s)", abs, mounts[0].FSType)
	}
	return nil
}

// addfiles walks skeldir on the host and replicates its contents under
// root, creating intermediate directories with Mknod and regular files
// with OpenAt(O_CREAT), the same two-operation split mkfs.go's addfiles
// relies on from ufs.Ufs_t.
func addfiles(root vfs.Dirnode_i, skeldir string) error {
	return filepath.WalkDir(skeldir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skeldir), string(filepath.Separator))
		if rel == "" {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")

		if d.IsDir() {
			if _, e := mkdirAt(root, parts); e != 0 {
				return fmt.Errorf("mkdir %s: %d", rel, e)
			}
			return nil
		}

		parent, e := mkdirAt(root, parts[:len(parts)-1])
		if e != 0 {
			return fmt.Errorf("resolve parent of %s: %d", rel, e)
		}
		name := parts[len(parts)-1]
		node, e := parent.OpenAt(ustr.NewUstr(name), defs.O_CREAT|defs.O_RDWR, 0644)
		if e != 0 {
			return fmt.Errorf("create %s: %d", rel, e)
		}
		return copydata(path, node)
	})
}

// mkdirAt walks parts from root, creating any missing directory along
// the way, and returns the final directory handle.
func mkdirAt(root vfs.Dirnode_i, parts []string) (vfs.Dirnode_i, defs.Err_t) {
	cur := root
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := cur.OpenAt(ustr.NewUstr(p), defs.O_RDONLY, 0)
		if err == 0 {
			dn, ok := n.(vfs.Dirnode_i)
			if !ok {
				return nil, -defs.ENOTDIR
			}
			cur = dn
			continue
		}
		n, err = cur.Mknod(ustr.NewUstr(p), defs.S_IFDIR, 0755, 0)
		if err != 0 {
			return nil, err
		}
		dn, ok := n.(vfs.Dirnode_i)
		if !ok {
			return nil, -defs.ENOTDIR
		}
		cur = dn
	}
	return cur, 0
}

// copydata streams src's contents into node in blockdev.BSIZE-sized
// chunks, the same buffer-and-append loop copydata uses in mkfs.go.
func copydata(src string, node vfs.Node_i) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, blockdev.BSIZE)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if wn, werr := node.Write(&hostUio{buf: buf[:n]}); werr != 0 || wn != n {
				return fmt.Errorf("write: n=%d err=%d", wn, werr)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// hostUio adapts a host-memory []byte into a single-use fdops.Userio_i,
// the source side of the same Userio_i contract fat32.FileHandle_t.pwrite
// consumes in exactly one Uioread call per Write.
type hostUio struct {
	buf []byte
	off int
}

func (u *hostUio) Uioread(dst []byte) (int, defs.Err_t) {
	n := copy(dst, u.buf[u.off:])
	u.off += n
	return n, 0
}
func (u *hostUio) Uiowrite([]byte) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (u *hostUio) Remain() int                       { return len(u.buf) - u.off }
func (u *hostUio) Totalsz() int                      { return len(u.buf) }
