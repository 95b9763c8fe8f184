// Package syscall implements the kernel's fast-syscall entry path and the
// small set of syscalls user tasks can make: write, getpid, spawn, yield.
package syscall

import (
	"nanokernel/kernel/boot"
	"nanokernel/kernel/console"
	"nanokernel/kernel/cpu"
	"nanokernel/kernel/gdt"
	"nanokernel/kernel/task"
)

// Number identifies a syscall, passed to the kernel in RAX per the
// SYSCALL calling convention this entry point expects.
type Number uint64

const (
	Write  Number = 1
	GetPID Number = 3
	Spawn  Number = 4
	Yield  Number = 5
)

// errInvalid is returned (as an all-ones unsigned value, matching an
// unsigned -1) for an unrecognized syscall number.
const errInvalid = ^uint64(0)

// fdStdout is the only valid file descriptor accepted by Write.
const fdStdout = 1

// Scheduler is the subset of *task.Manager the syscall handlers need.
type Scheduler interface {
	Current() *task.Task
	Spawn(elfImage []byte) (*task.Task, error)
}

var (
	scheduler   Scheduler
	initProgram []byte

	// consoleWriteByteFn and cpuHaltFn are mocked by tests so dispatchWrite
	// and dispatchYield can be exercised without real IO-port/HLT
	// instructions, which a hosted test process has no privilege to run.
	consoleWriteByteFn    = console.COM1.WriteByte
	cpuEnableInterruptsFn = cpu.EnableInterrupts
	cpuHaltFn             = cpu.Halt
)

// Init wires the syscall handlers to the running scheduler and records the
// ELF image spawn() clones, then enables the SYSCALL/SYSRET instructions
// via the EFER.SCE bit and programs STAR/LSTAR/SFMASK so the CPU knows
// where to land and which segments to load.
func Init(s Scheduler, initImage []byte) {
	scheduler = s
	initProgram = initImage

	const (
		msrEFER  = 0xC000_0080
		msrSTAR  = 0xC000_0081
		msrLSTAR = 0xC000_0082
		msrFMASK = 0xC000_0084

		eferSCE = 1 << 0
	)

	efer := cpu.ReadMSR(msrEFER)
	cpu.WriteMSR(msrEFER, efer|eferSCE)

	// STAR bits 32-47 hold the kernel CS/SS base used on entry; bits
	// 48-63 hold the user CS/SS base used on SYSRET, which per the
	// architecture must be 16 bytes below the user code selector with
	// RPL 0 (the CPU adds 8 for SS, 16 for CS64).
	star := uint64(gdt.KernelCodeSelector)<<32 | uint64(gdt.UserDataSelector-8)<<48
	cpu.WriteMSR(msrSTAR, star)
	cpu.WriteMSR(msrLSTAR, entryAddr())
	cpu.WriteMSR(msrFMASK, flagsInterruptEnableMask)
}

const flagsInterruptEnableMask = 1 << 9 // clear IF on entry; syscalls run with interrupts off, except yield, which enables them before HLT

// entryAddr returns the address of the assembly SYSCALL entry point,
// syscallEntry, for programming into LSTAR.
func entryAddr() uint64

// Dispatch is called directly by syscallEntry once arguments have been
// collected from registers. It
// returns the value to place back in RAX for SYSRET.
func Dispatch(num Number, arg0, arg1, arg2 uint64) uint64 {
	switch num {
	case Write:
		return dispatchWrite(arg0, arg1, arg2)
	case GetPID:
		return dispatchGetPID()
	case Spawn:
		return dispatchSpawn()
	case Yield:
		return dispatchYield()
	default:
		return errInvalid
	}
}

// dispatchWrite validates that the caller's buffer lies entirely below the
// kernel/user split and that fd is stdout, then copies the bytes to the
// console one at a time. ptr and length arrive as their own argument
// registers rather than packed into one: a packed ptr<<32|len collapses to
// just len whenever ptr's own high bits are already occupied, which is
// every kernel-half address.
func dispatchWrite(fd, ptr, length uint64) uint64 {
	if fd != fdStdout {
		return 1
	}
	if ptr+length >= uint64(boot.KernelRegionBegin) || ptr+length < ptr {
		return 1
	}

	buf := unsafeBytesAt(uintptr(ptr), int(length))
	for _, b := range buf {
		consoleWriteByteFn(b)
	}
	return 0
}

func dispatchGetPID() uint64 {
	cur := scheduler.Current()
	if cur == nil {
		return 0
	}
	return uint64(cur.ID)
}

func dispatchSpawn() uint64 {
	if _, err := scheduler.Spawn(initProgram); err != nil {
		return errInvalid
	}
	return 0
}

func dispatchYield() uint64 {
	cpuEnableInterruptsFn()
	cpuHaltFn()
	return 0
}
