// Package console implements the kernel's only output device: a 16550
// UART on the legacy COM1 port. There is no VGA text-mode console in this
// design; every diagnostic and every syscall write lands on the serial
// line.
package console

import "nanokernel/kernel/cpu"

const (
	com1Base = 0x3F8

	regData        = com1Base + 0
	regIntEnable   = com1Base + 1
	regFIFOCtrl    = com1Base + 2
	regLineControl = com1Base + 3
	regModemCtrl   = com1Base + 4
	regLineStatus  = com1Base + 5

	lineStatusTxEmpty = 1 << 5
)

// UART16550 is an io.Writer over the COM1 serial port.
type UART16550 struct{}

// COM1 is the kernel's single serial console instance.
var COM1 UART16550

// Init programs the UART for 38400 8N1 with FIFOs enabled, following the
// standard init sequence for a 16550-compatible part.
func (UART16550) Init() {
	cpu.Out8(regIntEnable, 0x00)   // disable interrupts
	cpu.Out8(regLineControl, 0x80) // enable DLAB to set baud divisor
	cpu.Out8(regData, 0x03)        // divisor low byte: 38400 baud
	cpu.Out8(regIntEnable, 0x00)   // divisor high byte
	cpu.Out8(regLineControl, 0x03) // 8 bits, no parity, one stop bit
	cpu.Out8(regFIFOCtrl, 0xC7)    // enable FIFO, clear, 14-byte threshold
	cpu.Out8(regModemCtrl, 0x0B)   // DTR/RTS set, OUT2 enables IRQs on the line
}

// WriteByte blocks until the transmit holding register is empty, then
// writes a single byte to the serial line.
func (UART16550) WriteByte(b byte) {
	for cpu.In8(regLineStatus)&lineStatusTxEmpty == 0 {
	}
	cpu.Out8(regData, b)
}

// Write implements io.Writer, translating '\n' to "\r\n" the way a serial
// terminal expects.
func (u UART16550) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			u.WriteByte('\r')
		}
		u.WriteByte(b)
	}
	return len(p), nil
}
