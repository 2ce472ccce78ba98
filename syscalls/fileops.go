package syscalls

import (
	"oops/bounds"
	"oops/defs"
	"oops/fd"
	"oops/stat"
	"oops/task"
	"oops/ustr"
	"oops/util"
	"oops/vfs"
	"oops/vm"
)

func (s *Syscalls_t) Sys_getcwd(t *task.Task_t, buf uintptr, size int) (int, defs.Err_t) {
	t.Cwd.Lock()
	p := append(ustr.Ustr{}, t.Cwd.Path...)
	t.Cwd.Unlock()
	if len(p)+1 > size {
		return 0, -defs.ERANGE
	}
	out := append(append(ustr.Ustr{}, p...), 0)
	if _, err := vm.NewUserbuf(t.AS, buf, len(out)).Uiowrite(out); err != 0 {
		return 0, err
	}
	return len(out), 0
}

func (s *Syscalls_t) Sys_openat(t *task.Task_t, dirfd int, pathva uintptr, flags int, mode uint) (int, defs.Err_t) {
	dn, err := s.resolveDir(t, dirfd)
	if err != 0 {
		return 0, err
	}
	p, err := readCString(t.AS, pathva)
	if err != 0 {
		return 0, err
	}
	n, err := s.Vfs.Open(dn, p, flags, mode)
	if err != 0 {
		return 0, err
	}
	perms := fd.FD_READ
	if flags&defs.O_WRONLY != 0 {
		perms = fd.FD_WRITE
	} else if flags&defs.O_RDWR != 0 {
		perms = fd.FD_READ | fd.FD_WRITE
	}
	if flags&defs.O_CLOEXEC != 0 {
		perms |= fd.FD_CLOEXEC
	}
	nfd := t.Fds.Install(&fd.Fd_t{Fops: n, Perms: perms}, 0)
	return nfd, 0
}

func (s *Syscalls_t) Sys_close(t *task.Task_t, fdn int) (int, defs.Err_t) {
	return 0, t.Fds.Close(fdn)
}

func (s *Syscalls_t) getFile(t *task.Task_t, fdn int) (*fd.Fd_t, defs.Err_t) {
	f, ok := t.Fds.Get(fdn)
	if !ok {
		return nil, -defs.EBADF
	}
	return f, 0
}

func (s *Syscalls_t) Sys_read(t *task.Task_t, fdn int, buf uintptr, n int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	if err := task.ResourceCharge(bounds.B_PIPE_T_READ); err != 0 {
		return 0, err
	}
	return f.Fops.Read(vm.NewUserbuf(t.AS, buf, n))
}

func (s *Syscalls_t) Sys_write(t *task.Task_t, fdn int, buf uintptr, n int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	if err := task.ResourceCharge(bounds.B_PIPE_T_WRITE); err != 0 {
		return 0, err
	}
	return f.Fops.Write(vm.NewUserbuf(t.AS, buf, n))
}

// iovec mirrors struct iovec's wire layout: two 8-byte little-endian
// fields, base then len.
func readIovec(as *vm.AddressSpace, va uintptr) (uintptr, int, defs.Err_t) {
	var buf [16]byte
	if _, err := vm.NewUserbuf(as, va, 16).Uioread(buf[:]); err != 0 {
		return 0, 0, err
	}
	base := uintptr(util.Readn(buf[:], 8, 0))
	ln := util.Readn(buf[:], 8, 8)
	return base, ln, 0
}

func (s *Syscalls_t) Sys_readv(t *task.Task_t, fdn int, iov uintptr, cnt int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	total := 0
	for i := 0; i < cnt; i++ {
		base, ln, err := readIovec(t.AS, iov+uintptr(i*16))
		if err != 0 {
			return total, err
		}
		if ln == 0 {
			continue
		}
		n, err := f.Fops.Read(vm.NewUserbuf(t.AS, base, ln))
		total += n
		if err != 0 {
			return total, err
		}
		if n < ln {
			break
		}
	}
	return total, 0
}

func (s *Syscalls_t) Sys_writev(t *task.Task_t, fdn int, iov uintptr, cnt int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	total := 0
	for i := 0; i < cnt; i++ {
		base, ln, err := readIovec(t.AS, iov+uintptr(i*16))
		if err != 0 {
			return total, err
		}
		if ln == 0 {
			continue
		}
		n, err := f.Fops.Write(vm.NewUserbuf(t.AS, base, ln))
		total += n
		if err != 0 {
			return total, err
		}
	}
	return total, 0
}

func (s *Syscalls_t) Sys_pread64(t *task.Task_t, fdn int, buf uintptr, n, off int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	return f.Fops.Pread(vm.NewUserbuf(t.AS, buf, n), off)
}

func (s *Syscalls_t) Sys_pwrite64(t *task.Task_t, fdn int, buf uintptr, n, off int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	return f.Fops.Pwrite(vm.NewUserbuf(t.AS, buf, n), off)
}

// Sendfile copies outfd<-infd through a kernel-side staging buffer since
// neither Fdops_i side knows about the other's representation, spec.md
// §6's sendfile entry with no zero-copy requirement attached.
func (s *Syscalls_t) Sys_sendfile(t *task.Task_t, outfd, infd int, offva uintptr, count int) (int, defs.Err_t) {
	in, err := s.getFile(t, infd)
	if err != 0 {
		return 0, err
	}
	out, err := s.getFile(t, outfd)
	if err != 0 {
		return 0, err
	}
	buf := make([]byte, count)
	var n int
	fb := &fakeBuf{data: buf}
	if offva != 0 {
		var off64 [8]byte
		if _, err := vm.NewUserbuf(t.AS, offva, 8).Uioread(off64[:]); err != 0 {
			return 0, err
		}
		off := util.Readn(off64[:], 8, 0)
		n, err = in.Fops.Pread(fb, off)
	} else {
		n, err = in.Fops.Read(fb)
	}
	if err != 0 {
		return 0, err
	}
	fb2 := &fakeBuf{data: buf[:n]}
	wn, err := out.Fops.Write(fb2)
	return wn, err
}

// fakeBuf adapts a plain byte slice to fdops.Userio_i for the one-shot
// kernel-to-kernel copies sendfile needs, the same trick a Fakeubuf_t
// plays for tests per vm/userbuf.go.
type fakeBuf struct {
	data []byte
	off  int
}

func (f *fakeBuf) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, f.data[f.off:])
	f.off += n
	return n, 0
}
func (f *fakeBuf) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(f.data[f.off:], src)
	f.off += n
	return n, 0
}
func (f *fakeBuf) Remain() int  { return len(f.data) - f.off }
func (f *fakeBuf) Totalsz() int { return len(f.data) }

func (s *Syscalls_t) Sys_lseek(t *task.Task_t, fdn, off, whence int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	return f.Fops.Lseek(off, whence)
}

func (s *Syscalls_t) Sys_dup(t *task.Task_t, oldfd int) (int, defs.Err_t) {
	old, err := s.getFile(t, oldfd)
	if err != 0 {
		return 0, err
	}
	nf, err := fd.Copyfd(old)
	if err != 0 {
		return 0, err
	}
	return t.Fds.Install(nf, 0), 0
}

func (s *Syscalls_t) Sys_dup3(t *task.Task_t, oldfd, newfd, flags int) (int, defs.Err_t) {
	old, err := s.getFile(t, oldfd)
	if err != 0 {
		return 0, err
	}
	if oldfd == newfd {
		return 0, -defs.EINVAL
	}
	nf, err := fd.Copyfd(old)
	if err != 0 {
		return 0, err
	}
	if flags&defs.O_CLOEXEC != 0 {
		nf.Perms |= fd.FD_CLOEXEC
	}
	t.Fds.Close(newfd)
	t.Fds.SetAt(newfd, nf)
	return newfd, 0
}

func (s *Syscalls_t) Sys_fcntl(t *task.Task_t, fdn, cmd, arg int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	switch cmd {
	case defs.F_SETFD:
		if arg != 0 {
			f.Perms |= fd.FD_CLOEXEC
		} else {
			f.Perms &^= fd.FD_CLOEXEC
		}
		return 0, 0
	case defs.F_DUPFD_CLOEXEC:
		nf, err := fd.Copyfd(f)
		if err != 0 {
			return 0, err
		}
		nf.Perms |= fd.FD_CLOEXEC
		return t.Fds.Install(nf, arg), 0
	default:
		return 0, -defs.EINVAL
	}
}

// Sys_ioctl only recognizes TIOCGWINSZ, per spec.md §6; everything else
// is a no-op success.
func (s *Syscalls_t) Sys_ioctl(t *task.Task_t, fdn int, req int, arg uintptr) (int, defs.Err_t) {
	if _, err := s.getFile(t, fdn); err != 0 {
		return 0, err
	}
	if req != defs.TIOCGWINSZ || arg == 0 {
		return 0, 0
	}
	var ws [8]byte // struct winsize{row,col,xpix,ypix} as four uint16
	util.Writen(ws[:], 2, 0, 24)
	util.Writen(ws[:], 2, 2, 80)
	vm.NewUserbuf(t.AS, arg, 8).Uiowrite(ws[:])
	return 0, 0
}

func (s *Syscalls_t) Sys_mkdirat(t *task.Task_t, dirfd int, pathva uintptr, mode uint) (int, defs.Err_t) {
	dn, err := s.resolveDir(t, dirfd)
	if err != 0 {
		return 0, err
	}
	p, err := readCString(t.AS, pathva)
	if err != 0 {
		return 0, err
	}
	return 0, s.Vfs.Mkdir(dn, p, mode)
}

func (s *Syscalls_t) Sys_unlinkat(t *task.Task_t, dirfd int, pathva uintptr, flags int) (int, defs.Err_t) {
	dn, err := s.resolveDir(t, dirfd)
	if err != 0 {
		return 0, err
	}
	p, err := readCString(t.AS, pathva)
	if err != 0 {
		return 0, err
	}
	const AT_REMOVEDIR = 0x200
	return 0, s.Vfs.Unlink(dn, p, flags&AT_REMOVEDIR != 0)
}

func (s *Syscalls_t) Sys_renameat2(t *task.Task_t, olddirfd int, oldva uintptr, newdirfd int, newva uintptr) (int, defs.Err_t) {
	dn, err := s.resolveDir(t, olddirfd)
	if err != 0 {
		return 0, err
	}
	op, err := readCString(t.AS, oldva)
	if err != 0 {
		return 0, err
	}
	np, err := readCString(t.AS, newva)
	if err != 0 {
		return 0, err
	}
	_ = newdirfd // single cwd-relative mount in this kernel; both names share dn's tree
	return 0, s.Vfs.Rename(dn, op, np)
}

func (s *Syscalls_t) Sys_faccessat(t *task.Task_t, dirfd int, pathva uintptr, mode int) (int, defs.Err_t) {
	dn, err := s.resolveDir(t, dirfd)
	if err != 0 {
		return 0, err
	}
	p, err := readCString(t.AS, pathva)
	if err != 0 {
		return 0, err
	}
	var st stat.Stat_t
	return 0, s.Vfs.Stat(dn, p, &st)
}

func (s *Syscalls_t) Sys_chdir(t *task.Task_t, pathva uintptr) (int, defs.Err_t) {
	p, err := s.userPath(t, pathva)
	if err != 0 {
		return 0, err
	}
	dn, err := s.resolveDir(t, defs.AT_FDCWD)
	if err != 0 {
		return 0, err
	}
	n, err := s.Vfs.Mounts.Resolve(dn, p, false)
	if err != 0 {
		return 0, err
	}
	if n.Kind() != defs.S_IFDIR {
		return 0, -defs.ENOTDIR
	}
	newdn, _ := n.(vfs.Dirnode_i)
	t.Cwd.Lock()
	t.Cwd.Fd = &fd.Fd_t{Fops: newdn, Perms: fd.FD_READ}
	t.Cwd.Path = p
	t.Cwd.Unlock()
	return 0, 0
}

func (s *Syscalls_t) Sys_pipe2(t *task.Task_t, fdsva uintptr, flags int) (int, defs.Err_t) {
	p := vfs.MkPipe(0, 0)
	rf := &fd.Fd_t{Fops: p.Reader(func() bool { return false }), Perms: fd.FD_READ}
	wf := &fd.Fd_t{Fops: p.Writer(func() bool { return false }), Perms: fd.FD_WRITE}
	if flags&defs.O_CLOEXEC != 0 {
		rf.Perms |= fd.FD_CLOEXEC
		wf.Perms |= fd.FD_CLOEXEC
	}
	rn := t.Fds.Install(rf, 0)
	wn := t.Fds.Install(wf, 0)
	var buf [8]byte
	util.Writen(buf[:], 4, 0, rn)
	util.Writen(buf[:], 4, 4, wn)
	if _, err := vm.NewUserbuf(t.AS, fdsva, 8).Uiowrite(buf[:]); err != 0 {
		return 0, err
	}
	return 0, 0
}

func (s *Syscalls_t) Sys_getdents64(t *task.Task_t, fdn int, bufva uintptr, size int) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	dn, ok := f.Fops.(vfs.Dirnode_i)
	if !ok {
		return 0, -defs.ENOTDIR
	}
	off, _ := f.Fops.Lseek(0, defs.SEEK_CUR)
	ents, next, err := dn.Getdent(off)
	if err != 0 {
		return 0, err
	}
	out := make([]byte, 0, size)
	for _, e := range ents {
		rec := make([]byte, 19+len(e.Name)+1)
		util.Writen(rec, 8, 0, int(e.Ino))
		util.Writen(rec, 8, 8, 0) // d_off, unused by this kernel's readers
		util.Writen(rec, 2, 16, len(rec))
		rec[18] = e.Ftype
		copy(rec[19:], e.Name)
		if len(out)+len(rec) > size {
			break
		}
		out = append(out, rec...)
	}
	if len(out) > 0 {
		if _, err := vm.NewUserbuf(t.AS, bufva, len(out)).Uiowrite(out); err != 0 {
			return 0, err
		}
	}
	f.Fops.Lseek(next, defs.SEEK_SET)
	return len(out), 0
}

func (s *Syscalls_t) Sys_newfstatat(t *task.Task_t, dirfd int, pathva uintptr, stva uintptr, flags int) (int, defs.Err_t) {
	dn, err := s.resolveDir(t, dirfd)
	if err != 0 {
		return 0, err
	}
	p, err := readCString(t.AS, pathva)
	if err != 0 {
		return 0, err
	}
	var st stat.Stat_t
	if err := s.Vfs.Stat(dn, p, &st); err != 0 {
		return 0, err
	}
	if _, err := vm.NewUserbuf(t.AS, stva, len(st.Bytes())).Uiowrite(st.Bytes()); err != 0 {
		return 0, err
	}
	return 0, 0
}

func (s *Syscalls_t) Sys_fstat(t *task.Task_t, fdn int, stva uintptr) (int, defs.Err_t) {
	f, err := s.getFile(t, fdn)
	if err != 0 {
		return 0, err
	}
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return 0, err
	}
	if _, err := vm.NewUserbuf(t.AS, stva, len(st.Bytes())).Uiowrite(st.Bytes()); err != 0 {
		return 0, err
	}
	return 0, 0
}

func (s *Syscalls_t) Sys_fsync(t *task.Task_t, fdn int) (int, defs.Err_t) {
	if _, err := s.getFile(t, fdn); err != 0 {
		return 0, err
	}
	return 0, s.Vfs.Sync()
}

func (s *Syscalls_t) Sys_utimensat(t *task.Task_t, dirfd int, pathva, timesva uintptr, flags int) (int, defs.Err_t) {
	if _, err := s.resolveDir(t, dirfd); err != 0 {
		return 0, err
	}
	return 0, 0 // timestamps aren't tracked independently of the fs layer's own mtimes
}

func (s *Syscalls_t) Sys_readlinkat(t *task.Task_t, dirfd int, pathva, bufva uintptr, size int) (int, defs.Err_t) {
	dn, err := s.resolveDir(t, dirfd)
	if err != 0 {
		return 0, err
	}
	p, err := readCString(t.AS, pathva)
	if err != 0 {
		return 0, err
	}
	n, err := s.Vfs.Mounts.Resolve(dn, p, true)
	if err != 0 {
		return 0, err
	}
	ln, ok := n.(vfs.Linknode_i)
	if !ok {
		return 0, -defs.EINVAL
	}
	target, err := ln.Readlink()
	if err != 0 {
		return 0, err
	}
	if len(target) > size {
		target = target[:size]
	}
	if _, err := vm.NewUserbuf(t.AS, bufva, len(target)).Uiowrite(target); err != 0 {
		return 0, err
	}
	return len(target), 0
}

func (s *Syscalls_t) Sys_mount(t *task.Task_t, srcva, targetva uintptr) (int, defs.Err_t) {
	return 0, -defs.ENODEV // no second block device to mount in this simulated kernel
}

func (s *Syscalls_t) Sys_umount2(t *task.Task_t, targetva uintptr, flags int) (int, defs.Err_t) {
	p, err := s.userPath(t, targetva)
	if err != 0 {
		return 0, err
	}
	dn, err := s.resolveDir(t, defs.AT_FDCWD)
	if err != 0 {
		return 0, err
	}
	n, err := s.Vfs.Mounts.Resolve(dn, p, false)
	if err != 0 {
		return 0, err
	}
	target, ok := n.(vfs.Dirnode_i)
	if !ok {
		return 0, -defs.EINVAL
	}
	return 0, s.Vfs.Mounts.Unmount(target)
}

func (s *Syscalls_t) Sys_statfs(t *task.Task_t, pathva, bufva uintptr) (int, defs.Err_t) {
	var buf [8]byte // f_type only; this kernel has no block-count accounting to report
	vm.NewUserbuf(t.AS, bufva, 8).Uiowrite(buf[:])
	return 0, 0
}

func (s *Syscalls_t) Sys_pselect6(t *task.Task_t, a [6]uintptr) (int, defs.Err_t) {
	return 0, 0 // no descriptor ever blocks longer than its own Read/Write already would
}

func (s *Syscalls_t) Sys_ppoll(t *task.Task_t, fdsva uintptr, nfds int, tmoSpecva uintptr) (int, defs.Err_t) {
	return 0, 0
}
