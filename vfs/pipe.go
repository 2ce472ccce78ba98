package vfs

import (
	"sync"

	"oops/circbuf"
	"oops/defs"
	"oops/fdops"
	"oops/stat"
	"oops/ustr"
)

// pipeBufSize is the ring size spec.md §4.5 names: "a shared 512-byte ring
// buffer".
const pipeBufSize = 512

// Interrupted is polled by a blocked pipe read/write before each wait;
// when it reports true the call returns -EINTR. nil means "never
// interrupted". Sys_pipe2 passes a callback that always reports false,
// so pipes created through it are never interrupted by a signal.
type Interrupted func() bool

// Pipe_t is an anonymous pipe: one shared ring buffer, reference-counted
// read and write ends. Grounded on spec.md §4.5's description and on the
// circbuf package the teacher ships for exactly this purpose.
type Pipe_t struct {
	mu       sync.Mutex
	rcond    sync.Cond
	wcond    sync.Cond
	buf      *circbuf.Circbuf_t
	readers  int
	writers  int
	fsid     FsId
	ino      int
}

// MkPipe allocates a fresh pipe with one reader and one writer end.
func MkPipe(fsid FsId, ino int) *Pipe_t {
	p := &Pipe_t{buf: circbuf.MkCircbuf(pipeBufSize), readers: 1, writers: 1, fsid: fsid, ino: ino}
	p.rcond.L = &p.mu
	p.wcond.L = &p.mu
	return p
}

// PipeEnd is one of a pipe's two file descriptors (read or write); it
// implements fdops.Fdops_i so it can sit in a task's fd table like any
// other file.
type PipeEnd struct {
	p          *Pipe_t
	write      bool
	closed     bool
	interrupt  Interrupted
}

// Reader/Writer return the two ends of a freshly created pipe.
func (p *Pipe_t) Reader(intr Interrupted) *PipeEnd { return &PipeEnd{p: p, write: false, interrupt: intr} }
func (p *Pipe_t) Writer(intr Interrupted) *PipeEnd { return &PipeEnd{p: p, write: true, interrupt: intr} }

func (e *PipeEnd) FsId() FsId { return e.p.fsid }
func (e *PipeEnd) Ino() int   { return e.p.ino }
func (e *PipeEnd) Kind() uint { return defs.S_IFIFO }

func (e *PipeEnd) interrupted() bool {
	return e.interrupt != nil && e.interrupt()
}

// Read blocks until data is available or the write end is fully closed,
// per spec.md §4.5; it returns -EINTR early only if the end's Interrupted
// callback reports true when checked before a wait (nothing wakes a
// blocked reader to re-check it).
func (e *PipeEnd) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.buf.Empty() && p.writers > 0 {
		if e.interrupted() {
			return 0, -defs.EINTR
		}
		p.rcond.Wait()
	}
	n, uerr := p.buf.Copyout(dst, 0)
	p.wcond.Signal()
	if uerr != 0 {
		return n, defs.Err_t(uerr)
	}
	return n, 0
}

// Write blocks until space is available or all read ends are gone, in
// which case it returns EPIPE rather than blocking forever.
func (e *PipeEnd) Write(src fdops.Userio_i) (int, defs.Err_t) {
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for src.Remain() > 0 {
		if p.readers == 0 {
			return total, -defs.EPIPE
		}
		for p.buf.Full() && p.readers > 0 {
			if e.interrupted() {
				return total, -defs.EINTR
			}
			p.wcond.Wait()
		}
		if p.readers == 0 {
			return total, -defs.EPIPE
		}
		n, uerr := p.buf.Copyin(src)
		total += n
		p.rcond.Signal()
		if uerr != 0 {
			return total, defs.Err_t(uerr)
		}
		if n == 0 {
			break
		}
	}
	return total, 0
}

// Close drops this end's reference; when the last end of a kind closes,
// blocked peers are woken so they observe EOF/EPIPE.
func (e *PipeEnd) Close() defs.Err_t {
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.closed {
		return 0
	}
	e.closed = true
	if e.write {
		p.writers--
		p.rcond.Broadcast()
	} else {
		p.readers--
		p.wcond.Broadcast()
	}
	return 0
}

func (e *PipeEnd) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFIFO | 0600))
	p := e.p
	p.mu.Lock()
	st.Wsize(uint(p.buf.Used()))
	p.mu.Unlock()
	return 0
}

func (e *PipeEnd) Lseek(off, whence int) (int, defs.Err_t)          { return 0, -defs.ESPIPE }
func (e *PipeEnd) Mmapi(off, len int, inc bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (e *PipeEnd) Pathi() ustr.Ustr { return ustr.MkUstr() }
func (e *PipeEnd) Reopen() defs.Err_t {
	e.p.mu.Lock()
	if e.write {
		e.p.writers++
	} else {
		e.p.readers++
	}
	e.p.mu.Unlock()
	return 0
}
func (e *PipeEnd) Fullpath() (ustr.Ustr, defs.Err_t)      { return nil, -defs.EINVAL }
func (e *PipeEnd) Truncate(newlen uint) defs.Err_t        { return -defs.EINVAL }
func (e *PipeEnd) Pread(u fdops.Userio_i, o int) (int, defs.Err_t)  { return 0, -defs.ESPIPE }
func (e *PipeEnd) Pwrite(u fdops.Userio_i, o int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (e *PipeEnd) Accept(u fdops.Userio_i) (fdops.Userio_i, defs.Err_t) {
	return nil, -defs.EINVAL
}
func (e *PipeEnd) Bind(u fdops.Userio_i) defs.Err_t    { return -defs.EINVAL }
func (e *PipeEnd) Connect(u fdops.Userio_i) defs.Err_t { return -defs.EINVAL }
func (e *PipeEnd) Listen(n int) defs.Err_t             { return -defs.EINVAL }
func (e *PipeEnd) Sendmsg(src fdops.Userio_i, toaddr, cmsg []uint8, flags int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (e *PipeEnd) Recvmsg(dst fdops.Userio_i, fromsa, cmsg fdops.Userio_i, flags int) (int, int, int, defs.Err_t) {
	return 0, 0, 0, -defs.EINVAL
}
func (e *PipeEnd) Poll(kind fdops.Pollkind_t) bool {
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == fdops.POLLRD {
		return !p.buf.Empty() || p.writers == 0
	}
	return !p.buf.Full() || p.readers == 0
}

func (e *PipeEnd) GetSocket() (fdops.Socket_i, bool) { return nil, false }
func (e *PipeEnd) GetFile() (fdops.File_i, bool)     { return nil, false }
func (e *PipeEnd) GetDir() (fdops.Dir_i, bool)       { return nil, false }
func (e *PipeEnd) GetFifo() (fdops.Fifo_i, bool)     { return e, true }
func (e *PipeEnd) GetIndex() (int, int)              { return int(e.p.fsid), e.p.ino }
