package irq

import (
	"nanokernel/kernel/cpu"
	"nanokernel/kernel/kfmt"
	"nanokernel/kernel/syscall"
	"nanokernel/kernel/task"
)

var manager *task.Manager

// Bind installs the scheduler the timer handler rotates through. Called
// once during boot, after the task manager exists.
func Bind(m *task.Manager) {
	manager = m
}

func handleBreakpoint(r *Registers) {
	fault("breakpoint", r)
}

func handleDoubleFault(r *Registers) {
	fault("double fault", r)
}

func handleGPFault(r *Registers) {
	fault("general protection fault", r)
}

func handlePageFault(r *Registers) {
	addr := cpu.ReadCR2()
	kfmt.Printf("\n*** page fault: fault_addr=%16x rip=%16x error=%16x ***\n", addr, r.RIP, r.VectorOrCode)
	r.DumpTo(kfmt.Sink())
	haltForever()
}

// fault logs the register frame and halts. No fault handled here is
// recoverable.
func fault(name string, r *Registers) {
	kfmt.Printf("\n*** %s ***\n", name)
	r.DumpTo(kfmt.Sink())
	haltForever()
}

func haltForever() {
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}

// handleTimer acknowledges the interrupt controller, copies the
// interrupted register frame into the outgoing task's save area, rotates
// the run queue and jumps to whatever comes next. It never returns:
// SwitchTo installs the next task's frame via a synthetic IRETQ.
func handleTimer(r *Registers) {
	SendEOI(uint8(VectorTimer - VectorOffsetMaster))

	if cur := manager.Current(); cur != nil {
		saveFrame(cur, r)
	}

	next := manager.ScheduleNext()
	if next == nil {
		haltForever()
	}
	syscall.SetKernelStack(uintptr(next.Registers.KernelRSP))
	next.Registers.SwitchTo()
}

// saveFrame copies the interrupted hardware frame into t's register save
// area. KernelRSP is left untouched: it is a fixed property of the task's
// slot, not something the interrupt frame carries.
func saveFrame(t *task.Task, r *Registers) {
	t.Registers.RAX, t.Registers.RBX = r.RAX, r.RBX
	t.Registers.RCX, t.Registers.RDX = r.RCX, r.RDX
	t.Registers.RSI, t.Registers.RDI = r.RSI, r.RDI
	t.Registers.R8, t.Registers.R9 = r.R8, r.R9
	t.Registers.R10, t.Registers.R11 = r.R10, r.R11
	t.Registers.R12, t.Registers.R13 = r.R12, r.R13
	t.Registers.R14, t.Registers.R15 = r.R14, r.R15
	t.Registers.RBP = r.RBP
	t.Registers.RSP = r.RSP
	t.Registers.RFlags = r.RFlags
	t.Registers.RIP = r.RIP
}
