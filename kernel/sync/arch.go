package sync

import "nanokernel/kernel/cpu"

func archDisableInterrupts() { cpu.DisableInterrupts() }
func archEnableInterrupts()  { cpu.EnableInterrupts() }
func archInterruptsEnabled() bool { return cpu.InterruptsEnabled() }

// spinHint is a no-op hint to the CPU that this is a busy-wait loop. On
// amd64 it executes PAUSE, which reduces power draw and avoids starving the
// other hyperthread on the same core; there is no SMP support here but the
// instruction is still cheap and correct on a single CPU.
func spinHint() { cpu.PauseHint() }
