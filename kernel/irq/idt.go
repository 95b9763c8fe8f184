package irq

import (
	"unsafe"

	"nanokernel/kernel/cpu"
)

// idtEntry is one 64-bit-mode IDT gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	istAndZero uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const (
	gateTypeInterrupt64 = 0xE
	gatePresent         = 1 << 7
)

func newGate(handler uintptr, codeSelector uint16, ist uint8) idtEntry {
	return idtEntry{
		offsetLow:  uint16(handler),
		selector:   codeSelector,
		istAndZero: ist & 0x7,
		typeAttr:   gatePresent | gateTypeInterrupt64,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

var (
	idt [256]idtEntry

	idtr struct {
		limit uint16
		base  uintptr
	}
)

// interruptStackIST is the IST slot every gate below uses; it forces the
// CPU to switch to the dedicated interrupt stack (and always push
// RSP/SS, even on a same-privilege trap) regardless of which ring faulted.
const interruptStackIST = 1

// Each vector's trampoline entry point, fetched from the assembly side.
func stubBreakpointAddr() uint64
func stubDoubleFaultAddr() uint64
func stubGPFaultAddr() uint64
func stubPageFaultAddr() uint64
func stubTimerAddr() uint64

// Init installs gates for the vectors this kernel actually handles
// (breakpoint, #DF, #GP, #PF, the remapped timer IRQ) and loads the IDT.
// codeSelector is the kernel code segment selector used on gate entry.
func Init(codeSelector uint16) {
	idt[VectorBreakpoint] = newGate(uintptr(stubBreakpointAddr()), codeSelector, interruptStackIST)
	idt[VectorDoubleFault] = newGate(uintptr(stubDoubleFaultAddr()), codeSelector, interruptStackIST)
	idt[VectorGPFault] = newGate(uintptr(stubGPFaultAddr()), codeSelector, interruptStackIST)
	idt[VectorPageFault] = newGate(uintptr(stubPageFaultAddr()), codeSelector, interruptStackIST)
	idt[VectorTimer] = newGate(uintptr(stubTimerAddr()), codeSelector, interruptStackIST)

	idtr.limit = uint16(len(idt)*16 - 1)
	idtr.base = uintptr(unsafe.Pointer(&idt[0]))
	cpu.LoadIDT(uintptr(unsafe.Pointer(&idtr)))
}
