// Command payloadgen assembles payload/init.elf: the tiny ring-3 ELF64
// executable embedded into the kernel binary as the first and only user
// task. It runs as an ordinary hosted Go program against a host OS, before
// any kernel image exists — the opposite of everything under kernel/, which
// never touches os/fmt-backed I/O because it has no OS underneath it.
//
// There is no userland toolchain to assemble a real init program with, so
// this tool hand-encodes the handful of x86_64 instructions it needs
// directly, the same way makelogo hand-builds its output file rather than
// shelling out to an external converter.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
)

const (
	loadVirtAddr = 0x400000
	pageSize     = 0x1000

	ehdrSize = 64
	phdrSize = 56
)

// Syscall numbers, matching kernel/syscall.
const (
	sysWrite  = 1
	sysGetPID = 3
	sysYield  = 5
)

// buildText assembles the init program: write(1, msg, len(msg)); getpid();
// yield(); jmp back to the write. msgAddr is the load-time virtual address
// of the message bytes, appended immediately after the code.
func buildText(msgAddr uint64, msgLen int) []byte {
	var code []byte

	emit := func(b ...byte) { code = append(code, b...) }
	emitU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		emit(b[:]...)
	}
	emitU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		emit(b[:]...)
	}

	loopStart := len(code)

	// mov edi, 1 (fd)
	emit(0xbf)
	emitU32(1)

	// movabs rsi, msgAddr (buffer pointer, arg1)
	emit(0x48, 0xbe)
	emitU64(msgAddr)

	// mov edx, msgLen (length, arg2)
	emit(0xba)
	emitU32(uint32(msgLen))

	// mov eax, sysWrite ; syscall
	emit(0xb8)
	emitU32(sysWrite)
	emit(0x0f, 0x05)

	// mov eax, sysGetPID ; syscall
	emit(0xb8)
	emitU32(sysGetPID)
	emit(0x0f, 0x05)

	// mov eax, sysYield ; syscall
	emit(0xb8)
	emitU32(sysYield)
	emit(0x0f, 0x05)

	// jmp loopStart (rel8)
	rel := loopStart - (len(code) + 2)
	emit(0xeb, byte(int8(rel)))

	return code
}

func buildELF(msg []byte) []byte {
	// buildText's length never depends on msgAddr's value, only msgLen, so
	// a throwaway pass with a placeholder address gives the real text
	// length up front, which is all that's needed to place the message.
	textLen := len(buildText(0, len(msg)))
	msgAddr := loadVirtAddr + uint64(ehdrSize+phdrSize+textLen)
	text := buildText(msgAddr, len(msg))

	image := append(append([]byte{}, text...), msg...)
	fileSize := ehdrSize + phdrSize + len(image)

	buf := make([]byte, fileSize)

	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	binary.LittleEndian.PutUint16(buf[16:], 2)      // e_type = ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:], 0x3e)   // e_machine = EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:], 1)       // e_version
	binary.LittleEndian.PutUint64(buf[24:], loadVirtAddr+ehdrSize+phdrSize) // e_entry
	binary.LittleEndian.PutUint64(buf[32:], ehdrSize)                       // e_phoff
	binary.LittleEndian.PutUint16(buf[52:], ehdrSize)                       // e_ehsize
	binary.LittleEndian.PutUint16(buf[54:], phdrSize)                       // e_phentsize
	binary.LittleEndian.PutUint16(buf[56:], 1)                              // e_phnum

	ph := buf[ehdrSize:]
	binary.LittleEndian.PutUint32(ph[0:], 1)          // p_type = PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:], 5)          // p_flags = R+X
	binary.LittleEndian.PutUint64(ph[8:], 0)          // p_offset
	binary.LittleEndian.PutUint64(ph[16:], loadVirtAddr)
	binary.LittleEndian.PutUint64(ph[24:], loadVirtAddr)
	binary.LittleEndian.PutUint64(ph[32:], uint64(fileSize))
	binary.LittleEndian.PutUint64(ph[40:], uint64(fileSize))
	binary.LittleEndian.PutUint64(ph[48:], pageSize)

	copy(buf[ehdrSize+phdrSize:], image)
	return buf
}

func runTool() error {
	out := flag.String("out", "payload/init.elf", "path to write the generated ELF image")
	msg := flag.String("msg", "hello from user\n", "message the init program writes to fd 1")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "payloadgen: build the embedded init.elf user payload\n\n")
		fmt.Fprint(os.Stderr, "Usage: payloadgen [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	image := buildELF([]byte(*msg))
	return os.WriteFile(*out, image, 0o644)
}

func main() {
	if err := runTool(); err != nil {
		fmt.Fprintf(os.Stderr, "[payloadgen] error: %s\n", err.Error())
		os.Exit(1)
	}
}
