package task

import (
	"nanokernel/kernel/boot"
	"nanokernel/kernel/gdt"
)

// RegisterStore is a task's saved register file, laid out in a fixed
// field order so switchTo (registers_amd64.s) can address each field by a
// constant byte offset. Do not reorder these fields without updating the
// offsets in registers_amd64.s.
type RegisterStore struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI           uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	RBP                uint64
	RSP                uint64 // user (or kernel, for a kernel task) stack pointer
	KernelRSP          uint64 // top of this task's kernel stack; loaded into TSS.rsp0 on switch
	RFlags             uint64
	RIP                uint64
}

// flagsInterruptEnable is RFLAGS.IF; every new task starts with interrupts
// enabled so the timer can preempt it.
const flagsInterruptEnable = 1 << 9

// NewRegisterStore builds the initial register file for a task about to
// run for the first time: general-purpose registers zeroed, RIP/RSP set
// to the entry point and stack requested, interrupts enabled.
func NewRegisterStore(entry, userStack, kernelRSP uint64) RegisterStore {
	return RegisterStore{
		RIP:       entry,
		RSP:       userStack,
		KernelRSP: kernelRSP,
		RFlags:    flagsInterruptEnable,
	}
}

// switchTo loads every register from r and jumps to RIP via a synthetic
// IRETQ frame, selecting ring-3 or ring-0 segment selectors depending on
// whether RIP falls below boot.KernelRegionBegin. It never returns: the
// only way back into Go is through the next trap or timer interrupt,
// which saves a fresh RegisterStore for whatever task was running.
func switchTo(r *RegisterStore, kernelRegionBegin uint64)

// SwitchTo is switchTo's Go-callable entry point; it exists so callers
// don't need to know about the kernel/user boundary constant themselves.
func (r *RegisterStore) SwitchTo() {
	gdt.SetKernelStack(uintptr(r.KernelRSP))
	switchTo(r, uint64(boot.KernelRegionBegin))
}
