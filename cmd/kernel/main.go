// Command kernel is the Go-visible entrypoint the rt0 assembly stub jumps
// to once it has set up a minimal g0 and a usable stack.
package main

import "nanokernel/kernel"

// bootInfoPtr, kernelPhysStart and kernelPhysEnd are populated by the rt0
// stub before calling main; they are package-level variables (rather than
// parameters baked in at the call site) purely so the compiler can't
// inline main and optimize the real kernel code out of the image.
var (
	bootInfoPtr     uintptr
	kernelPhysStart uintptr
	kernelPhysEnd   uintptr
)

func main() {
	kernel.Kmain(bootInfoPtr, kernelPhysStart, kernelPhysEnd)
}
