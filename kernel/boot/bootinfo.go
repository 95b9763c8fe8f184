// Package boot describes the contract between the bootloader and the
// kernel: the physical memory map handed in, and the fixed virtual layout
// every subsystem agrees on without needing to discover it at runtime.
package boot

import "nanokernel/kernel/mm"

// Fixed virtual layout. Every address here is a kernel-half address
// (canonical high half); user space occupies everything below
// UserRegionEnd.
const (
	// KernelRegionBegin is the start of the kernel's own text/rodata/
	// data/bss mapping, as loaded by the bootloader.
	KernelRegionBegin = mm.VirtAddr(0xffff_8000_0000_0000)

	// DirectMapBegin is the start of the 1 TiB direct physical map: byte
	// p of physical memory is always readable/writable at
	// DirectMapBegin+p.
	DirectMapBegin = mm.VirtAddr(0xffff_8100_0000_0000)
	DirectMapSize  = 1 << 40

	// KernelHeapBegin is the start of the fixed 16 MiB kernel heap
	// range.
	KernelHeapBegin = mm.VirtAddr(0xffff_8200_0000_0000)
	KernelHeapSize  = 16 * uint64(mm.Mb)

	// TaskStackRegionBegin is the start of the 1 TiB region holding
	// every task's kernel stack. Task i's stack occupies the page pair
	// at TaskStackRegionBegin + 2*i*PageSize, i.e. one unmapped guard
	// page plus the live stack page above it; the stack's initial RSP
	// (the value loaded into RegisterStore.KernelRSP) is the top of the
	// *second* page: TaskStackRegionBegin + (2*i+2)*PageSize.
	TaskStackRegionBegin = mm.VirtAddr(0xffff_8800_0000_0000)

	// InterruptStackTop is the single shared stack every trap trampoline
	// switches to while running in kernel context with interrupts
	// disabled.
	InterruptStackTop = mm.VirtAddr(0xffff_8900_0000_0000)

	// UserRegionEnd is the top of user-space addresses; the user stack's
	// initial top is this same address.
	UserRegionEnd  = mm.VirtAddr(0x0000_8000_0000_0000)
	UserStackTop   = UserRegionEnd
)

// TaskKernelStackPage returns the virtual address of the first byte of
// task i's live kernel stack page (the second of its two-page slot).
func TaskKernelStackPage(i uint64) mm.VirtAddr {
	return TaskStackRegionBegin + mm.VirtAddr((2*i+1)*uint64(mm.PageSize))
}

// TaskKernelStackTop returns the initial kernel RSP for task i: the top of
// its live stack page.
func TaskKernelStackTop(i uint64) mm.VirtAddr {
	return TaskStackRegionBegin + mm.VirtAddr((2*i+2)*uint64(mm.PageSize))
}

// RegionKind classifies a physical memory region reported by the
// bootloader's memory map.
type RegionKind int

const (
	RegionReserved RegionKind = iota
	RegionUsable
)

// MemoryMapEntry is one range in the bootloader-provided physical memory
// map.
type MemoryMapEntry struct {
	Start mm.PhysAddr
	End   mm.PhysAddr
	Kind  RegionKind
}

// Info is everything the bootloader hands the kernel at entry: the memory
// map to seed the frame allocator with, and the fixed addresses that let
// every subsystem agree on the virtual layout above without further
// negotiation.
type Info struct {
	MemoryMap       []MemoryMapEntry
	KernelStackBase mm.VirtAddr

	// KernelPhysBase and KernelPhysEnd bound the kernel image's own
	// physical footprint, as loaded by the bootloader. kmain excludes
	// this range from the frame allocator and reuses it verbatim as the
	// physical half of the KernelRegionBegin mapping every task carries.
	KernelPhysBase mm.PhysAddr
	KernelPhysEnd  mm.PhysAddr

	// KernelHeapPhysBase is the physical frame range, already mapped by
	// the bootloader at KernelHeapBegin, that backs the kernel heap.
	// kmain excludes it from the frame allocator for the same reason as
	// KernelPhysBase/KernelPhysEnd, and every task's address space maps
	// it at the same virtual and physical addresses so the Go runtime's
	// heap stays in sync across task switches.
	KernelHeapPhysBase mm.PhysAddr
}

// UsableRegions returns the subset of the memory map tagged usable.
func (i *Info) UsableRegions() []MemoryMapEntry {
	out := make([]MemoryMapEntry, 0, len(i.MemoryMap))
	for _, e := range i.MemoryMap {
		if e.Kind == RegionUsable {
			out = append(out, e)
		}
	}
	return out
}
