// Package trap implements the user/supervisor transition layer spec.md
// §4.10 describes: a per-thread trap frame, dispatch-by-cause routing
// into package vm (page faults), package sched (timer), and package
// syscalls (ecall), and the return-to-user signal-delivery check.
//
// The actual trap vector — the assembly that spills hart registers into
// a trap frame at a per-thread fixed VA, switches satp to the kernel
// page table, and later restores the frame and sret's — is not part of
// this module (spec.md scopes the boot stub and trap vector out as
// external collaborators this kernel is tested without). What lives
// here is everything on the Go side of that boundary: the frame layout
// itself and the logic a real vector would call into once it lands in
// supervisor mode. Tests drive Dispatch directly, playing the hart.
//
// Grounded on original_source's trap_context.rs (the x[32]/sepc/sstatus
// register-file shape, translated to named RISC-V ABI fields instead of
// a bare array) and on the teacher's errno-as-negative-int convention
// for what Dispatch writes back into a0.
package trap

// Trapframe_t is the per-thread saved integer register file, spec.md's
// "per-thread saved register file used across user/supervisor
// transitions." x0 (hard-wired zero) isn't saved; x1-x31 are, under
// their RISC-V calling-convention names.
type Trapframe_t struct {
	Ra, Sp, Gp, Tp uintptr
	T0, T1, T2     uintptr
	S0, S1         uintptr
	A0, A1, A2, A3, A4, A5, A6, A7           uintptr
	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uintptr
	T3, T4, T5, T6 uintptr

	Sepc    uintptr
	Sstatus uint64
	Scause  uint64
	Stval   uintptr
}

// Args returns a0-a5, the argument registers the syscall ABI passes.
func (tf *Trapframe_t) Args() [6]uintptr {
	return [6]uintptr{tf.A0, tf.A1, tf.A2, tf.A3, tf.A4, tf.A5}
}

// SetReturn writes a syscall's return value (already errno-as-negative
// encoded by package syscalls) into a0, two's-complement into a uintptr
// the way a real sd a0 store would.
func (tf *Trapframe_t) SetReturn(v int64) {
	tf.A0 = uintptr(v)
}
