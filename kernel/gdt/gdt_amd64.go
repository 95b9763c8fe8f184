// Package gdt builds the global descriptor table and task state segment
// that the kernel needs for ring 0 / ring 3 switching and for the
// interrupt stack table used by the trap dispatcher.
//
// Layout is grounded on the segment numbering used throughout the syscall
// and task-switch paths: the null, kernel-code, kernel-data, user-data and
// user-code descriptors are deliberately packed so that SYSRET's selector
// arithmetic (STAR splits the kernel and user selector bases 16 bits
// apart, with user code/data swapped relative to SYSCALL) lines up without
// per-descriptor patching.
package gdt

import (
	"unsafe"

	"nanokernel/kernel/cpu"
)

// Selector is a GDT/LDT segment selector (an index * 8, plus RPL).
type Selector uint16

const (
	// NullSelector occupies GDT slot 0, as mandated by the architecture.
	NullSelector Selector = 0 * 8

	// KernelCodeSelector is the ring-0 code segment used by trap and
	// interrupt handlers.
	KernelCodeSelector Selector = 1 * 8

	// KernelDataSelector is the ring-0 data/stack segment.
	KernelDataSelector Selector = 2 * 8

	// userSelectorsBase is the GDT slot at which the user descriptors
	// begin; SYSRET requires user data to sit directly below user code.
	userSelectorsBase Selector = 3 * 8

	// UserDataSelector is the ring-3 data/stack segment. Bits 0-1 (RPL)
	// are set to 3 by callers that load it into a segment register.
	UserDataSelector Selector = userSelectorsBase + 8

	// UserCodeSelector is the ring-3 code segment.
	UserCodeSelector Selector = userSelectorsBase + 16

	// tssSelector is the selector of the 16-byte (two GDT slot) TSS
	// descriptor that follows the five segment descriptors above.
	tssSelector Selector = userSelectorsBase + 24
)

// RPL3 ORs in requested-privilege-level 3, turning a selector into the
// form expected in a ring-3 register or IRET frame.
const RPL3 = 3

// descriptor is a raw 64-bit GDT entry. The kernel never needs per-segment
// base/limit (long mode ignores them for code/data segments other than FS
// and GS) so these are literal encoded constants rather than a bitfield
// builder.
type descriptor uint64

const (
	nullDescriptor       descriptor = 0
	kernelCodeDescriptor descriptor = 0x00AF9A000000FFFF
	kernelDataDescriptor descriptor = 0x00CF92000000FFFF
	userDataDescriptor   descriptor = 0x00CFF2000000FFFF
	userCodeDescriptor   descriptor = 0x00AFFA000000FFFF
)

// tss is the 64-bit task state segment. Only rsp0 (the stack loaded on a
// ring3->ring0 transition that does not use the interrupt stack table) and
// the seven IST slots are used; the I/O permission bitmap is disabled by
// pointing ioMapBase past the segment limit.
type tss struct {
	reserved0 uint32
	rsp0      uint64
	rsp1      uint64
	rsp2      uint64
	reserved1 uint64
	ist       [7]uint64
	reserved2 uint64
	reserved3 uint16
	ioMapBase uint16
}

const (
	// istSlotTrap is the interrupt stack table index (1-based per the
	// architecture) used by every trampoline that needs a guaranteed
	// clean kernel stack, i.e. faults that may occur with a corrupt
	// user stack.
	istSlotTrap = 1
)

var (
	theTSS tss

	// table holds the eight consecutive GDT slots: null, kernel code,
	// kernel data, unused (padding to keep the user pair 16-byte
	// aligned the way SYSRET expects), user data, user code, and the
	// two slots of the 128-bit TSS descriptor.
	table [8]descriptor

	gdtr struct {
		limit uint16
		base  uintptr
	}
)

// Init builds the GDT and TSS, points the TSS's IST[istSlotTrap-1] entry at
// the shared interrupt stack and rsp0 at kernelStackTop (used for the rare
// case of a ring3->ring0 trap that does not request an IST slot), then
// loads both via LGDT/LTR.
func Init(interruptStackTop, kernelStackTop uintptr) {
	theTSS = tss{
		rsp0:      uint64(kernelStackTop),
		ioMapBase: 0xFFFF,
	}
	theTSS.ist[istSlotTrap-1] = uint64(interruptStackTop)

	table[0] = nullDescriptor
	table[1] = kernelCodeDescriptor
	table[2] = kernelDataDescriptor
	table[3] = nullDescriptor
	table[4] = userDataDescriptor
	table[5] = userCodeDescriptor
	table[6], table[7] = tssDescriptorPair()

	gdtr.limit = uint16(len(table)*8 - 1)
	gdtr.base = uintptr(unsafe.Pointer(&table[0]))

	cpu.LoadGDT(uintptr(unsafe.Pointer(&gdtr)), uint16(KernelCodeSelector), uint16(KernelDataSelector))
	loadCS(uint16(KernelCodeSelector))
	cpu.LoadTaskRegister(uint16(tssSelector))
}

// tssDescriptorPair encodes the 128-bit system-segment descriptor for
// theTSS across the two GDT slots that follow the five segment
// descriptors.
func tssDescriptorPair() (lo, hi descriptor) {
	base := uint64(uintptr(unsafe.Pointer(&theTSS)))
	limit := uint64(sizeOfTSS - 1)

	lo = descriptor(limit&0xFFFF) |
		descriptor((base&0xFFFFFF)<<16) |
		descriptor(0x89)<<40 | // present, type=0x9 (64-bit TSS, available)
		descriptor((limit>>16)&0xF)<<48 |
		descriptor((base>>24)&0xFF)<<56
	hi = descriptor(base >> 32)
	return lo, hi
}

const sizeOfTSS = 104 // 4 + 8*3 + 8 + 8*7 + 8 + 2 + 2 bytes, see struct tss above

// SetKernelStack updates rsp0, the stack the CPU loads on any ring3->ring0
// transition that doesn't target an IST slot. The scheduler calls this on
// every task switch so a trap taken while the new task is running lands on
// that task's own kernel stack.
func SetKernelStack(rsp0 uintptr) {
	theTSS.rsp0 = uint64(rsp0)
}

// loadCS reloads the CS register to the given selector. There is no mnemonic
// for a far jump in the Go assembler, so the actual opcode bytes for
// "lea rax, [rip+after]; pushq selector; pushq rax; lretq" live in
// gdt_amd64.s as loadCS; this is just its Go-callable declaration.
func loadCS(selector uint16)
