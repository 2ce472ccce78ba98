package vm

import (
	"oops/defs"
	"oops/mem"
	"oops/util"
)

// DefaultStackSize is the size of the stack area execve maps for a new
// program image.
const DefaultStackSize = 8 * mem.PGSIZE

// InitExecStack lays out argv/envp/auxv atop a freshly mapped stack,
// following the layout spec.md §4.7 gives for execve(2):
//
//	(high)  env strings (null-terminated), aligned
//	        argv strings
//	        auxv terminator {0,0}
//	        envp pointers (null-terminated)
//	        argv pointers (null-terminated)
//	(low)   argc
//
// It returns the initial stack pointer and the argv/envp/auxv pointers the
// new trap frame's a1/a2/a3 carry. Only the {0,0} auxv terminator is
// written — there's no AT_PHDR/AT_ENTRY/AT_RANDOM vector, since nothing in
// this kernel drives a real dynamic linker or libc startup past that point
// (see DESIGN.md).
func (as *AddressSpace) InitExecStack(top uintptr, argv, envp []string) (sp, argvp, envpp, auxvp uintptr, reterr defs.Err_t) {
	base := pground(top) - DefaultStackSize
	as.AddAnon(base, DefaultStackSize, PROT_READ|PROT_WRITE, false)

	sp = top

	writeStr := func(str string) uintptr {
		b := append([]byte(str), 0)
		sp -= uintptr(len(b))
		sp &^= 0x7
		if _, err := NewUserbuf(as, sp, len(b)).Uiowrite(b); err != 0 {
			reterr = err
		}
		return sp
	}

	envPtrs := make([]uintptr, len(envp))
	for i := len(envp) - 1; i >= 0; i-- {
		envPtrs[i] = writeStr(envp[i])
	}
	argvPtrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		argvPtrs[i] = writeStr(argv[i])
	}
	if reterr != 0 {
		return 0, 0, 0, 0, reterr
	}

	writeWord := func(v uintptr) {
		sp -= 8
		var b [8]byte
		util.Writen(b[:], 8, 0, int(v))
		if _, err := NewUserbuf(as, sp, 8).Uiowrite(b[:]); err != 0 {
			reterr = err
		}
	}

	writeWord(0) // auxv AT_NULL value
	writeWord(0) // auxv AT_NULL type
	auxvp = sp

	writeWord(0) // envp NULL terminator
	for i := len(envPtrs) - 1; i >= 0; i-- {
		writeWord(envPtrs[i])
	}
	envpp = sp

	writeWord(0) // argv NULL terminator
	for i := len(argvPtrs) - 1; i >= 0; i-- {
		writeWord(argvPtrs[i])
	}
	argvp = sp

	writeWord(uintptr(len(argv))) // argc
	sp &^= 0xf

	if reterr != 0 {
		return 0, 0, 0, 0, reterr
	}
	return sp, argvp, envpp, auxvp, 0
}
