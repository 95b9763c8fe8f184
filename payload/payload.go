// Package payload embeds the init program: the first and only user task
// spawned at boot, and the image every Spawn syscall clones thereafter.
package payload

import _ "embed"

// Init is the raw ELF64 image loaded into the first task's (pid 1)
// address space by kmain, and again by every subsequent spawn() syscall. It is a tiny
// ring-3 loop that writes a greeting to the console, reads back its own
// pid, and yields, grounding the syscall path end to end without needing
// a real userland toolchain.
//
//go:embed init.elf
var Init []byte
