package main

import (
	"fmt"

	"oops/defs"
	"oops/syscalls"
	"oops/task"
	"oops/vm"
)

// runSmokeTest drives a handful of syscalls on init's address space
// directly, the way a real trap vector would after decoding an ecall,
// proving the mounted FAT32/devfs/procfs tree and the syscall table
// agree on behavior end to end.
func runSmokeTest(sc *syscalls.Syscalls_t, t *task.Task_t) {
	const (
		pathVA = scratch
		bufVA  = scratch + 256
	)

	putCString(t, pathVA, "/greeting.txt")
	fd, err := sc.Sys_openat(t, int(defs.AT_FDCWD), pathVA, defs.O_CREAT|defs.O_RDWR, 0644)
	if err != 0 {
		die("open /greeting.txt: %d", err)
	}

	msg := "hello from the assembled kernel stack\n"
	putBytes(t, bufVA, []byte(msg))
	if n, err := sc.Sys_write(t, fd, bufVA, len(msg)); err != 0 || n != len(msg) {
		die("write: n=%d err=%d", n, err)
	}
	if _, err := sc.Sys_lseek(t, fd, 0, 0); err != 0 {
		die("lseek: %d", err)
	}

	n, err := sc.Sys_read(t, fd, bufVA, len(msg))
	if err != 0 {
		die("read: %d", err)
	}
	got := readBytes(t, bufVA, n)
	fmt.Printf("read back %d bytes: %q\n", n, got)

	if _, err := sc.Sys_close(t, fd); err != 0 {
		die("close: %d", err)
	}

	putCString(t, pathVA, "/dev")
	devfd, err := sc.Sys_openat(t, int(defs.AT_FDCWD), pathVA, defs.O_RDONLY|defs.O_DIRECTORY, 0)
	if err != 0 {
		die("open /dev: %d", err)
	}
	n, err = sc.Sys_getdents64(t, devfd, bufVA, scratchSize-256)
	if err != 0 {
		die("getdents64 /dev: %d", err)
	}
	fmt.Printf("/dev getdents64 returned %d bytes of directory entries\n", n)
	sc.Sys_close(t, devfd)
}

// putCString stages a NUL-terminated path at va in t's address space,
// the form readCString on the syscall side expects.
func putCString(t *task.Task_t, va uintptr, s string) {
	putBytes(t, va, append([]byte(s), 0))
}

func putBytes(t *task.Task_t, va uintptr, data []byte) {
	if _, err := vm.NewUserbuf(t.AS, va, len(data)).Uiowrite(data); err != 0 {
		die("stage bytes at %#x: %d", va, err)
	}
}

func readBytes(t *task.Task_t, va uintptr, n int) []byte {
	buf := make([]byte, n)
	if _, err := vm.NewUserbuf(t.AS, va, n).Uioread(buf); err != 0 {
		die("read bytes at %#x: %d", va, err)
	}
	return buf
}
