// Package cpu provides Go-callable wrappers around the privileged amd64
// instructions the kernel needs: interrupt masking, port I/O, control and
// model-specific register access, TLB maintenance and CPU identification.
// Every exported function below is declared without a body; its
// implementation lives in cpu_amd64.s.
package cpu

// EnableInterrupts executes STI.
func EnableInterrupts()

// DisableInterrupts executes CLI.
func DisableInterrupts()

// InterruptsEnabled reads RFLAGS.IF and reports whether interrupts are
// currently enabled.
func InterruptsEnabled() bool

// Halt executes HLT. It does not return until the next interrupt.
func Halt()

// PauseHint executes PAUSE, the recommended spin-loop body on amd64.
func PauseHint()

// Out8 writes a byte to the given I/O port.
func Out8(port uint16, value uint8)

// In8 reads a byte from the given I/O port.
func In8(port uint16) uint8

// WriteCR3 loads the page-table base register with a physical address.
func WriteCR3(physAddr uintptr)

// ReadCR3 returns the physical address currently loaded in CR3.
func ReadCR3() uintptr

// ReadCR2 returns the faulting address recorded by the last page fault.
func ReadCR2() uintptr

// FlushTLBEntry invalidates the TLB entry for the given virtual address
// using INVLPG.
func FlushTLBEntry(virtAddr uintptr)

// WriteMSR writes a 64-bit value to the model-specific register numbered by
// id.
func WriteMSR(id uint32, value uint64)

// ReadMSR reads the model-specific register numbered by id.
func ReadMSR(id uint32) uint64

// CPUID executes the CPUID instruction with the given leaf in EAX and
// returns the resulting EAX, EBX, ECX, EDX values.
func CPUID(leaf uint32) (eax, ebx, ecx, edx uint32)

// SwapGS executes the SWAPGS instruction, exchanging the KERNELGSBASE MSR
// with the active GS base.
func SwapGS()

// LoadIDT loads the interrupt descriptor table register from the given
// {limit, base} descriptor address.
func LoadIDT(idtrAddr uintptr)

// LoadGDT loads the global descriptor table register and reloads DS, ES,
// FS, GS and SS with dataSelector. CS is not reloaded here: codeSelector
// is accepted but unused, and the caller reloads CS with a far return.
func LoadGDT(gdtrAddr uintptr, codeSelector, dataSelector uint16)

// LoadTaskRegister executes LTR with the given TSS selector.
func LoadTaskRegister(selector uint16)
