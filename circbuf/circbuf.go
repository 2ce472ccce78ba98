// Package circbuf implements the fixed-size ring buffer spec.md's pipe is
// built on (§4.5), adapted from the teacher's circbuf package. It is not
// safe for concurrent use by itself; vfs.Pipe_t serializes access with its
// own mutex and condition variables.
package circbuf

import "oops/fdops"

// Circbuf_t is a byte ring buffer of fixed capacity.
type Circbuf_t struct {
	buf   []uint8
	head  int // write position, monotonically increasing
	tail  int // read position, monotonically increasing
}

// MkCircbuf allocates a buffer of the given size (spec.md's pipe uses 512
// bytes).
func MkCircbuf(sz int) *Circbuf_t {
	if sz <= 0 {
		panic("bad circbuf size")
	}
	return &Circbuf_t{buf: make([]uint8, sz)}
}

func (cb *Circbuf_t) Bufsz() int { return len(cb.buf) }
func (cb *Circbuf_t) Full() bool  { return cb.head-cb.tail == len(cb.buf) }
func (cb *Circbuf_t) Empty() bool { return cb.head == cb.tail }
func (cb *Circbuf_t) Left() int   { return len(cb.buf) - (cb.head - cb.tail) }
func (cb *Circbuf_t) Used() int   { return cb.head - cb.tail }

// Copyin reads as much of src as fits into the free space, returning 0
// bytes (not an error) if the buffer is already full — the caller
// (vfs.Pipe_t.Write) decides whether that means "block" or "EAGAIN".
func (cb *Circbuf_t) Copyin(src fdops.Userio_i) (int, int) {
	if cb.Full() {
		return 0, 0
	}
	bufsz := len(cb.buf)
	hi := cb.head % bufsz
	ti := cb.tail % bufsz
	c := 0
	if ti <= hi {
		dst := cb.buf[hi:]
		wrote, err := src.Uioread(dst)
		c += wrote
		cb.head += wrote
		if err != 0 || wrote != len(dst) {
			return c, int(err)
		}
		hi = cb.head % bufsz
	}
	dst := cb.buf[hi:ti]
	wrote, err := src.Uioread(dst)
	c += wrote
	cb.head += wrote
	return c, int(err)
}

// Copyout writes up to max bytes of buffered data to dst (max == 0 means
// "all of it").
func (cb *Circbuf_t) Copyout(dst fdops.Userio_i, max int) (int, int) {
	if cb.Empty() {
		return 0, 0
	}
	bufsz := len(cb.buf)
	hi := cb.head % bufsz
	ti := cb.tail % bufsz
	c := 0
	if hi <= ti {
		src := cb.buf[ti:]
		if max != 0 && max < len(src) {
			src = src[:max]
		}
		wrote, err := dst.Uiowrite(src)
		c += wrote
		cb.tail += wrote
		if err != 0 || wrote != len(src) {
			return c, int(err)
		}
		if max != 0 {
			max -= wrote
			if max == 0 {
				return c, 0
			}
		}
		ti = cb.tail % bufsz
	}
	src := cb.buf[ti:hi]
	if max != 0 && max < len(src) {
		src = src[:max]
	}
	wrote, err := dst.Uiowrite(src)
	c += wrote
	cb.tail += wrote
	return c, int(err)
}
