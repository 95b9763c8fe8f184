package irq

import "nanokernel/kernel/cpu"

// 8253/8254 PIT ports and command byte for channel 0, rate generator mode,
// lobyte/hibyte access.
const (
	pitChannel0 = 0x40
	pitCommand  = 0x43

	pitCommandChannel0RateGenerator = 0x36
)

// TimerDivisor is the PIT reload value used to drive the scheduler tick at
// approximately 100 Hz (the PIT's 1.193182 MHz input clock divided by this
// value).
const TimerDivisor = 11932

// InitTimer programs PIT channel 0 to fire at roughly 100 Hz. The
// resulting IRQ0 is delivered through the PIC once RemapPIC has run.
func InitTimer() {
	cpu.Out8(pitCommand, pitCommandChannel0RateGenerator)
	cpu.Out8(pitChannel0, uint8(TimerDivisor&0xFF))
	cpu.Out8(pitChannel0, uint8(TimerDivisor>>8))
}
