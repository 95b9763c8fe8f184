// Package goruntime bootstraps the Go runtime features (the memory
// allocator, map/interface machinery) that ordinary kernel code relies on,
// by redirecting the runtime's own sysReserve/sysMap/sysAlloc hooks onto
// this kernel's heap allocator instead of a host OS's mmap.
package goruntime

import (
	"unsafe"

	"nanokernel/kernel/mm"
	"nanokernel/kernel/mm/heap"
)

var (
	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	kernelHeap *heap.Heap
)

// Bind installs the heap the runtime hooks below allocate from. Called once
// during boot, right after heap.Init.
func Bind(h *heap.Heap) {
	kernelHeap = h
}

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// sysReserve reserves address space without committing it to physical
// memory. This kernel's heap has no separate commit step — the whole arena
// is mapped and zeroed up front by the boot sequence — so reserving is the
// same operation as allocating.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	addr := kernelHeap.Alloc(size, uintptr(mm.PageSize))
	if addr == 0 {
		*reserved = false
		return nil
	}
	*reserved = true
	return unsafe.Pointer(addr)
}

// sysMap finishes committing a region sysReserve already carved out of the
// heap. Since nothing here is lazily mapped, there is no further work
// beyond the runtime's own allocator accounting.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}
	mSysStatInc(sysStat, size)
	return virtAddr
}

// sysAlloc reserves and commits size bytes in one step, for callers that
// never went through sysReserve first.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	addr := kernelHeap.Alloc(size, uintptr(mm.PageSize))
	if addr == 0 {
		return nil
	}
	mSysStatInc(sysStat, size)
	return unsafe.Pointer(addr)
}

// nanotime returns a monotonically increasing clock value. There is no
// timekeeping subsystem yet, so this is a constant that merely satisfies
// callers (chiefly the allocator's span bookkeeping) that need *a* value.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	for i := 0; i < 100; i++ {
	}
	return 1
}

var prngSeed = 0xdeadc0de

// getRandomData populates r with pseudo-random bytes. There is no entropy
// source in this kernel, so this is a simple LCG seeded at boot.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := range r {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables the Go runtime features ordinary kernel code depends on:
// heap allocation (new, make), maps, and interfaces. Call it once, after
// Bind, and before any code that might allocate.
func Init() {
	mallocInitFn()
	algInitFn()
	modulesInitFn()
	typeLinksInitFn()
	itabsInitFn()
}

func init() {
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
