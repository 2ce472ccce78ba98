// Package stat defines the on-the-wire stat structure the fstat/newfstatat
// family of syscalls copies out to user space.
package stat

import "unsafe"

// Stat_t mirrors struct stat's kernel-relevant fields. Field names are
// unexported; callers go through the Wxxx/accessor methods the same way
// the teacher's stat.Stat_t does, keeping the byte layout returned by
// Bytes() independent of Go's field reordering.
type Stat_t struct {
	_dev     uint
	_ino     uint
	_mode    uint
	_nlink   uint
	_size    uint
	_rdev    uint
	_blksize uint
	_blocks  uint
	_atimeS  uint
	_atimeN  uint
	_mtimeS  uint
	_mtimeN  uint
	_ctimeS  uint
	_ctimeN  uint
}

func (st *Stat_t) Wdev(v uint)     { st._dev = v }
func (st *Stat_t) Wino(v uint)     { st._ino = v }
func (st *Stat_t) Wmode(v uint)    { st._mode = v }
func (st *Stat_t) Wnlink(v uint)   { st._nlink = v }
func (st *Stat_t) Wsize(v uint)    { st._size = v }
func (st *Stat_t) Wrdev(v uint)    { st._rdev = v }
func (st *Stat_t) Wblksize(v uint) { st._blksize = v }
func (st *Stat_t) Wblocks(v uint)  { st._blocks = v }
func (st *Stat_t) Watime(s, n uint) { st._atimeS, st._atimeN = s, n }
func (st *Stat_t) Wmtime(s, n uint) { st._mtimeS, st._mtimeN = s, n }
func (st *Stat_t) Wctime(s, n uint) { st._ctimeS, st._ctimeN = s, n }

func (st *Stat_t) Mode() uint  { return st._mode }
func (st *Stat_t) Size() uint  { return st._size }
func (st *Stat_t) Rdev() uint  { return st._rdev }
func (st *Stat_t) Rino() uint  { return st._ino }
func (st *Stat_t) Rdev_() uint { return st._rdev }

// Bytes exposes the raw struct contents for a K2user copy.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._dev))
	return sl[:]
}
