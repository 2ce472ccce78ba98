package defs

// Scause values this kernel recognizes, RISC-V privileged spec numbering
// with the interrupt bit (bit 63) folded into a separate IsInterrupt
// check by the caller rather than encoded here (trap.Trapframe_t keeps
// the raw scause around for that test).
const (
	CauseInstrPageFault = 12
	CauseLoadPageFault  = 13
	CauseStorePageFault = 15
	CauseUserEcall      = 8

	InterruptSupervisorTimer = 5
	InterruptBit      uint64 = 1 << 63
)
