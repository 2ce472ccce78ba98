// Package blockdev implements the BlockDevice contract spec.md §1 leaves
// external, simulated as a regular host file instead of a real SD/virtio
// controller. Adapted from the teacher's ahci/ufs disk driver shape
// (Disk_i's Start/Stats, a request/ack-channel pattern) but fronting a
// plain os.File instead of AHCI command queues.
package blockdev

import (
	"context"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"oops/defs"
)

const BSIZE = 4096

// BlockDevice is the contract every concrete disk (real or simulated)
// satisfies; vfs/fat32/blkcache never see anything more concrete than
// this.
type BlockDevice interface {
	ReadBlock(blkno int, dst []byte) defs.Err_t
	WriteBlock(blkno int, src []byte) defs.Err_t
	NumBlocks() int
	Sync() defs.Err_t
}

// FileDisk backs a BlockDevice with a regular host file, throttled with
// golang.org/x/time/rate to emulate SD-over-SPI throughput so blkcache
// eviction and swap-under-pressure tests observe realistic backpressure
// instead of instantaneous I/O.
type FileDisk struct {
	mu   sync.Mutex
	f    *os.File
	nblk int
	lim  *rate.Limiter
}

// Open opens (creating if needed) path as a BlockDevice of nblocks blocks,
// throttled to bytesPerSec; bytesPerSec <= 0 disables throttling.
func Open(path string, nblocks int, bytesPerSec int) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	want := int64(nblocks) * BSIZE
	if sz, _ := f.Seek(0, io.SeekEnd); sz < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, err
		}
	}
	fd := &FileDisk{f: f, nblk: nblocks}
	if bytesPerSec > 0 {
		fd.lim = rate.NewLimiter(rate.Limit(bytesPerSec), BSIZE)
	}
	return fd, nil
}

func (fd *FileDisk) throttle(n int) {
	if fd.lim == nil {
		return
	}
	fd.lim.WaitN(context.Background(), n) //nolint:errcheck // a non-cancellable simulated disk never errors here
}

// ReadBlock reads one BSIZE-byte block into dst.
func (fd *FileDisk) ReadBlock(blkno int, dst []byte) defs.Err_t {
	if blkno < 0 || blkno >= fd.nblk {
		return -defs.EINVAL
	}
	fd.throttle(BSIZE)
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if _, err := fd.f.ReadAt(dst[:BSIZE], int64(blkno)*BSIZE); err != nil {
		return -defs.EIO
	}
	return 0
}

// WriteBlock writes one BSIZE-byte block from src.
func (fd *FileDisk) WriteBlock(blkno int, src []byte) defs.Err_t {
	if blkno < 0 || blkno >= fd.nblk {
		return -defs.EINVAL
	}
	fd.throttle(BSIZE)
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if _, err := fd.f.WriteAt(src[:BSIZE], int64(blkno)*BSIZE); err != nil {
		return -defs.EIO
	}
	return 0
}

func (fd *FileDisk) NumBlocks() int { return fd.nblk }

func (fd *FileDisk) Sync() defs.Err_t {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if err := fd.f.Sync(); err != nil {
		return -defs.EIO
	}
	return 0
}

// Close releases the backing file; used by host tools (cmd/mkfs,
// cmd/fsexport), not by the kernel packages themselves.
func (fd *FileDisk) Close() error { return fd.f.Close() }
