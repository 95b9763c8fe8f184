package irq

import (
	"io"

	"nanokernel/kernel/kfmt"
)

// Registers is the full register snapshot an interrupt or exception
// trampoline saves before calling into Go. Fault handlers read it to
// diagnose the failure; the scheduler's timer handler copies it into the
// outgoing task's RegisterStore and then resumes the next task through
// that task's own synthetic IRETQ frame.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	// VectorOrCode holds the error code the CPU pushes for exceptions
	// that have one (double fault, GPF, page fault, ...); trampolines for
	// vectors without an error code push 0 here. The vector is implied by
	// which handler ran.
	VectorOrCode uint64

	// The hardware-pushed IRETQ frame.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo writes a human-readable register dump to w, used by fault
// handlers right before they panic.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x INFO= %16x\n", r.RFlags, r.VectorOrCode)
}

// Vector identifies an IDT slot: an x86 exception number (0-31) or a
// PIC-remapped hardware IRQ (irq.VectorOffsetMaster..+15). Syscalls do not
// go through the IDT; they enter via SYSCALL (see kernel/syscall).
type Vector uint8

const (
	VectorDivideByZero      Vector = 0
	VectorNMI               Vector = 2
	VectorBreakpoint        Vector = 3
	VectorOverflow          Vector = 4
	VectorBoundRange        Vector = 5
	VectorInvalidOpcode     Vector = 6
	VectorDeviceNotAvail    Vector = 7
	VectorDoubleFault       Vector = 8
	VectorInvalidTSS        Vector = 10
	VectorSegmentNotPresent Vector = 11
	VectorStackSegmentFault Vector = 12
	VectorGPFault           Vector = 13
	VectorPageFault         Vector = 14

	// VectorTimer is IRQ0 after the PIC remap in pic.go.
	VectorTimer Vector = VectorOffsetMaster + 0
)

// hasErrorCode reports whether the CPU itself pushes an error code for this
// vector, which shifts where the saved register frame's VectorOrCode field
// comes from in the trampoline.
func hasErrorCode(v Vector) bool {
	switch v {
	case VectorDoubleFault, VectorInvalidTSS, VectorSegmentNotPresent,
		VectorStackSegmentFault, VectorGPFault, VectorPageFault:
		return true
	default:
		return false
	}
}
