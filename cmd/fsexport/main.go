// Command fsexport mounts an existing FAT32 image on a host directory
// via FUSE, so the contents cmd/mkfs staged (or cmd/oops exercised) can
// be browsed with ordinary tools (ls, cat) instead of a bespoke dumper.
// Grounded on fuseshim, which adapts this kernel's vfs.Dirnode_i tree to
// github.com/hanwen/go-fuse/v2's InodeEmbedder API the same way
// example/loopback's main.go wires a host directory to FUSE.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"oops/blkcache"
	"oops/blockdev"
	"oops/fat32"
	"oops/fuseshim"
	"oops/vfs"
)

const (
	cacheBlocks = 256
	fsDev       = 0
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: fsexport [-debug] <image> <mountpoint>\n")
	os.Exit(1)
}

func main() {
	args := os.Args[1:]
	debug := false
	if len(args) > 0 && args[0] == "-debug" {
		debug = true
		args = args[1:]
	}
	if len(args) != 2 {
		usage()
	}
	image, mountpoint := args[0], args[1]

	info, err := os.Stat(image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stat %s: %v\n", image, err)
		os.Exit(1)
	}
	nblocks := int(info.Size() / blockdev.BSIZE)

	disk, err := blockdev.Open(image, nblocks, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", image, err)
		os.Exit(1)
	}
	defer disk.Close()

	cache := blkcache.New(cacheBlocks)
	cache.Register(fsDev, disk)
	volume, everr := fat32.Mount(fsDev, cache, vfs.FsId(1))
	if everr != 0 {
		fmt.Fprintf(os.Stderr, "mount %s: %d\n", image, everr)
		os.Exit(1)
	}

	server, err := fuseshim.Mount(mountpoint, volume.Root(), debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fuse mount %s: %v\n", mountpoint, err)
		os.Exit(1)
	}
	fmt.Printf("exported %s at %s; ctrl-c to unmount\n", image, mountpoint)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	if err := server.Unmount(); err != nil {
		fmt.Fprintf(os.Stderr, "unmount: %v\n", err)
		os.Exit(1)
	}
	if err := volume.Sync(); err != 0 {
		fmt.Fprintf(os.Stderr, "sync: %d\n", err)
		os.Exit(1)
	}
}
