package devfs

import (
	"sync"

	"oops/blockdev"
	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/vfs"
)

// Sda2_t exposes the underlying block device as a byte-addressable file,
// grounded on sda2.rs: SDA2's read_block/write_block forward straight to
// BLOCK_DEVICE, with no cache in between — the same "raw disk interface"
// the teacher's defs.D_RAWDISK comment describes. Unlike sda2.rs (whose
// File::read/write operate in whole blocks), this port does byte-range
// pread/pwrite with read-modify-write on partial blocks, since
// Fdops_i.Read/Write hands back an arbitrary-length Userio_i rather than
// a fixed block_id.
type Sda2_t struct {
	baseDev
	disk blockdev.BlockDevice

	mu     sync.Mutex
	cursor int
}

func newSda2(fsid vfs.FsId, disk blockdev.BlockDevice) *Sda2_t {
	return &Sda2_t{baseDev: baseDev{fsid: fsid, ino: devIno(defs.D_RAWDISK), kind: defs.S_IFBLK}, disk: disk}
}

func (s *Sda2_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	s.mu.Lock()
	off := s.cursor
	s.mu.Unlock()
	n, err := s.pread(dst, off)
	if err == 0 {
		s.mu.Lock()
		s.cursor += n
		s.mu.Unlock()
	}
	return n, err
}

func (s *Sda2_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	s.mu.Lock()
	off := s.cursor
	s.mu.Unlock()
	n, err := s.pwrite(src, off)
	if err == 0 {
		s.mu.Lock()
		s.cursor += n
		s.mu.Unlock()
	}
	return n, err
}

func (s *Sda2_t) Lseek(off, whence int) (int, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch whence {
	case 0: // SEEK_SET
		s.cursor = off
	case 1: // SEEK_CUR
		s.cursor += off
	case 2: // SEEK_END
		s.cursor = s.disk.NumBlocks()*blockdev.BSIZE + off
	default:
		return 0, -defs.EINVAL
	}
	if s.cursor < 0 {
		s.cursor = 0
		return 0, -defs.EINVAL
	}
	return s.cursor, 0
}

func (s *Sda2_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) { return s.pread(dst, off) }
func (s *Sda2_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return s.pwrite(src, off)
}

// pread/pwrite move the whole transfer through Userio_i in one Uioread/
// Uiowrite call and do the block-at-a-time disk traffic against a plain
// local buffer, the same split fat32.FileHandle_t.pread/pwrite use — a
// Userio_i is a cursor over user memory, so reading or writing it in
// several separate calls (one per disk block) would silently re-consume
// the same bytes instead of advancing.
func (s *Sda2_t) pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	buf := make([]byte, dst.Remain())
	n, err := s.readAt(off, buf)
	if err != 0 {
		return 0, err
	}
	wn, werr := dst.Uiowrite(buf[:n])
	if werr != 0 {
		return 0, werr
	}
	return wn, 0
}

func (s *Sda2_t) pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	return s.writeAt(off, buf[:n])
}

func (s *Sda2_t) readAt(off int, buf []byte) (int, defs.Err_t) {
	total := 0
	for total < len(buf) {
		blk := (off + total) / blockdev.BSIZE
		inblk := (off + total) % blockdev.BSIZE
		if blk >= s.disk.NumBlocks() {
			break
		}
		var raw [blockdev.BSIZE]byte
		if err := s.disk.ReadBlock(blk, raw[:]); err != 0 {
			return total, err
		}
		n := blockdev.BSIZE - inblk
		if n > len(buf)-total {
			n = len(buf) - total
		}
		copy(buf[total:total+n], raw[inblk:inblk+n])
		total += n
	}
	return total, 0
}

func (s *Sda2_t) writeAt(off int, buf []byte) (int, defs.Err_t) {
	total := 0
	for total < len(buf) {
		blk := (off + total) / blockdev.BSIZE
		inblk := (off + total) % blockdev.BSIZE
		if blk >= s.disk.NumBlocks() {
			return total, -defs.ENOSPC
		}
		n := blockdev.BSIZE - inblk
		if n > len(buf)-total {
			n = len(buf) - total
		}
		var raw [blockdev.BSIZE]byte
		if n != blockdev.BSIZE {
			if err := s.disk.ReadBlock(blk, raw[:]); err != 0 {
				return total, err
			}
		}
		copy(raw[inblk:inblk+n], buf[total:total+n])
		if err := s.disk.WriteBlock(blk, raw[:]); err != 0 {
			return total, err
		}
		total += n
	}
	return total, 0
}

func (s *Sda2_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFBLK | 0660))
	st.Wrdev(defs.Mkdev(defs.D_RAWDISK, 0))
	st.Wsize(uint(s.disk.NumBlocks() * blockdev.BSIZE))
	st.Wblksize(uint(blockdev.BSIZE))
	st.Wnlink(1)
	return 0
}

func (s *Sda2_t) GetFile() (fdops.File_i, bool) { return s, true }
