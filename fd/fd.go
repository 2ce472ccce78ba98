// Package fd implements the per-process file-descriptor table entry and
// the current-working-directory handle, both sharable sub-objects of a
// task per spec.md's data model.
package fd

import (
	"sync"

	"oops/bpath"
	"oops/defs"
	"oops/fdops"
	"oops/ustr"
)

// Descriptor permission bits, independent of the underlying file's open
// mode so dup2-style aliasing can narrow access.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t is one entry in a task's fd table.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Perms int
}

// Copyfd duplicates a descriptor by reopening its underlying file object,
// used by dup/dup3/clone(CLONE_FILES clear).
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{Fops: fd.Fops, Perms: fd.Perms}
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// Cwd_t tracks a task's current working directory, shared across threads
// unless CLONE_FS is clear.
type Cwd_t struct {
	sync.Mutex
	Fd   *Fd_t
	Path ustr.Ustr
}

// MkRootCwd returns a Cwd_t rooted at "/".
func MkRootCwd(root *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: root, Path: ustr.MkUstrRoot()}
}

// Fullpath joins cwd onto p if p isn't already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(append(ustr.Ustr{}, cwd.Path...), '/')
	return append(full, p...)
}

// Canonicalpath resolves p relative to cwd and removes "." / ".." parts.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	cwd.Lock()
	full := cwd.Fullpath(p)
	cwd.Unlock()
	return bpath.Canonicalize(full)
}

// Clone deep-copies the cwd string (CLONE_FS clear); the descriptor is
// re-opened by the caller, as it is itself a sharable Fd_t.
func (cwd *Cwd_t) Clone(fd *Fd_t) *Cwd_t {
	cwd.Lock()
	defer cwd.Unlock()
	p := append(ustr.Ustr{}, cwd.Path...)
	return &Cwd_t{Fd: fd, Path: p}
}
