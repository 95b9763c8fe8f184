package irq

import "nanokernel/kernel/cpu"

// 8259 PIC (master/slave) ports and remap sequence.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	icw1Init     = 0x11 // ICW4 present, cascade mode, edge triggered
	icw4_8086    = 0x01 // 8086/88 mode
	picEOI       = 0x20
)

// VectorOffsetMaster and VectorOffsetSlave are the IDT vector numbers the
// PIC's IRQ lines 0-7 and 8-15 are remapped to, clear of the CPU's
// architectural exception vectors (0-31).
const (
	VectorOffsetMaster = 0x20
	VectorOffsetSlave   = 0x28
)

// RemapPIC reprograms the master and slave 8259 controllers so that
// hardware IRQs land on vectors VectorOffsetMaster..+7 and
// VectorOffsetSlave..+7 instead of the BIOS default, which collides with
// CPU exception vectors.
func RemapPIC() {
	masterMask := cpu.In8(picMasterData)
	slaveMask := cpu.In8(picSlaveData)

	cpu.Out8(picMasterCommand, icw1Init)
	cpu.Out8(picSlaveCommand, icw1Init)
	cpu.Out8(picMasterData, VectorOffsetMaster)
	cpu.Out8(picSlaveData, VectorOffsetSlave)
	cpu.Out8(picMasterData, 0x04) // tell master a slave sits at IRQ2
	cpu.Out8(picSlaveData, 0x02)  // tell slave its cascade identity
	cpu.Out8(picMasterData, icw4_8086)
	cpu.Out8(picSlaveData, icw4_8086)

	cpu.Out8(picMasterData, masterMask)
	cpu.Out8(picSlaveData, slaveMask)
}

// SendEOI acknowledges the interrupt at the given IRQ line (0-15, relative
// to the PIC, not the IDT vector). IRQs 8-15 need the slave acknowledged
// before the master, since the slave is cascaded through the master's
// IRQ2.
func SendEOI(irqLine uint8) {
	if irqLine >= 8 {
		cpu.Out8(picSlaveCommand, picEOI)
	}
	cpu.Out8(picMasterCommand, picEOI)
}
