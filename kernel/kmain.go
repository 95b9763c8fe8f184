package kernel

import (
	"unsafe"

	"nanokernel/kernel/boot"
	"nanokernel/kernel/console"
	"nanokernel/kernel/gdt"
	"nanokernel/kernel/goruntime"
	"nanokernel/kernel/irq"
	"nanokernel/kernel/kfmt"
	"nanokernel/kernel/mm"
	"nanokernel/kernel/mm/heap"
	"nanokernel/kernel/mm/pmm"
	"nanokernel/kernel/mm/vmm"
	"nanokernel/kernel/syscall"
	"nanokernel/kernel/task"
	"nanokernel/payload"
)

var (
	errKmainReturned = &Error{Module: "kmain", Message: "Kmain returned"}
	errNoUsableMem   = &Error{Module: "kmain", Message: "no usable memory regions reported by the bootloader"}
)

// theFrameAllocator and theHeap back the whole kernel for its entire
// lifetime, so they live at package scope rather than as locals Kmain
// would otherwise have to thread through every subsystem's Init call.
var (
	theFrameAllocator = pmm.New()
	theHeap           heap.Heap
)

// Kmain is the only Go symbol visible (exported) from the rt0
// initialization code. It is invoked by the rt0 assembly stub after that
// stub has set up a minimal g0 struct and a usable boot stack, with
// interrupts still disabled and the fixed virtual layout described in
// package boot already mapped.
//
// bootInfoPtr points at a boot.Info value the stub built from whatever
// protocol it speaks with the bootloader; kernelPhysStart/kernelPhysEnd
// bound the kernel image's own physical footprint, so the frame allocator
// never hands out memory the kernel itself occupies.
//
// Kmain is not expected to return. If it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(bootInfoPtr, kernelPhysStart, kernelPhysEnd uintptr) {
	info := (*boot.Info)(unsafe.Pointer(bootInfoPtr))
	info.KernelPhysBase = mm.PhysAddr(kernelPhysStart)
	info.KernelPhysEnd = mm.PhysAddr(kernelPhysEnd)

	console.COM1.Init()
	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: console.COM1, Prefix: []byte("[kernel] ")})
	kfmt.Printf("nanokernel: starting\n")

	if err := seedFrameAllocator(info); err != nil {
		Panic(err)
	}

	heapPhys, allocErr := theFrameAllocator.Alloc(mm.Size(boot.KernelHeapSize).Pages())
	if allocErr != nil {
		Panic(&Error{Module: "kmain", Message: allocErr.Error()})
	}
	info.KernelHeapPhysBase = heapPhys
	theHeap.Init(uintptr(boot.KernelHeapBegin), mm.Size(boot.KernelHeapSize))

	goruntime.Bind(&theHeap)
	goruntime.Init()

	vmm.Init(boot.DirectMapBegin)

	// The interrupt stack and task 0's own kernel stack are not live
	// until the first task's page table maps them, so rsp0 here is a
	// placeholder that is never actually used: RegisterStore.SwitchTo
	// overwrites it before every switch into ring 3, starting with the
	// very first one below.
	gdt.Init(uintptr(boot.InterruptStackTop), uintptr(info.KernelStackBase))
	irq.Init(uint16(gdt.KernelCodeSelector))
	irq.RemapPIC()
	irq.InitTimer()

	// The interrupt stack is identity across every task (spec.md §4.6): one
	// physical frame, allocated once here, mapped at the same virtual
	// address in every task's page table via KernelImage.Regions below —
	// never re-allocated per task.
	istPhys, allocErr := theFrameAllocator.Alloc(1)
	if allocErr != nil {
		Panic(&Error{Module: "kmain", Message: allocErr.Error()})
	}

	builder := &task.Builder{
		FrameAlloc: theFrameAllocator,
		Kernel: task.KernelImage{
			Regions: []mm.MappingRegion{
				{
					PhysBegin: info.KernelPhysBase,
					VirtBegin: boot.KernelRegionBegin,
					Count:     mm.Size(uint64(info.KernelPhysEnd - info.KernelPhysBase)).Pages(),
				},
				{
					PhysBegin: info.KernelHeapPhysBase,
					VirtBegin: boot.KernelHeapBegin,
					Count:     mm.Size(boot.KernelHeapSize).Pages(),
				},
				{
					PhysBegin: istPhys,
					VirtBegin: boot.InterruptStackTop - mm.VirtAddr(mm.PageSize),
					Count:     1,
				},
			},
			Flags: []vmm.Flags{
				{Writable: true, Executable: true},
				{Writable: true},
				{Writable: true},
			},
		},
	}

	manager := task.NewManager(builder)
	irq.Bind(manager)

	initTask, spawnErr := manager.Spawn(payload.Init)
	if spawnErr != nil {
		Panic(&Error{Module: "kmain", Message: spawnErr.Error()})
	}

	syscall.Init(manager, payload.Init)

	kfmt.Printf("nanokernel: spawned init (pid %d), entering ring 3\n", uint64(initTask.ID))
	initTask.Registers.SwitchTo()

	// SwitchTo never returns; Panic (rather than a bare infinite loop)
	// keeps the compiler from treating this path as provably dead and
	// eliminating it.
	Panic(errKmainReturned)
}

// seedFrameAllocator donates every usable region reported by the
// bootloader to the frame allocator, after carving the kernel image's own
// physical footprint back out so the allocator never hands those frames
// to a task.
func seedFrameAllocator(info *boot.Info) *Error {
	usable := info.UsableRegions()
	if len(usable) == 0 {
		return errNoUsableMem
	}

	excluded := mm.FrameRegion{
		Begin: info.KernelPhysBase,
		Count: mm.Size(uint64(info.KernelPhysEnd - info.KernelPhysBase)).Pages(),
	}

	for _, e := range usable {
		for _, r := range subtractFrameRegion(pageAlignedRegion(e), excluded) {
			if r.Count == 0 {
				continue
			}
			if err := theFrameAllocator.AddRegion(r); err != nil {
				return &Error{Module: "kmain", Message: err.Error()}
			}
		}
	}
	return nil
}

// pageAlignedRegion rounds e's bounds inward to whole pages: the
// bootloader's memory map is not guaranteed to be page-aligned at its
// edges the way frame accounting requires.
func pageAlignedRegion(e boot.MemoryMapEntry) mm.FrameRegion {
	begin := (uint64(e.Start) + uint64(mm.PageSize) - 1) &^ (uint64(mm.PageSize) - 1)
	end := uint64(e.End) &^ (uint64(mm.PageSize) - 1)
	if end <= begin {
		return mm.FrameRegion{}
	}
	return mm.FrameRegion{Begin: mm.PhysAddr(begin), Count: (end - begin) / uint64(mm.PageSize)}
}

// subtractFrameRegion removes the portion of r that overlaps excl,
// returning up to two remaining sub-regions: none if excl fully covers r,
// one if excl only clips an edge, two if excl is a hole in the middle.
func subtractFrameRegion(r, excl mm.FrameRegion) []mm.FrameRegion {
	if excl.Count == 0 || r.Count == 0 {
		return []mm.FrameRegion{r}
	}

	rBegin, rEnd := uint64(r.Begin), uint64(r.End())
	eBegin, eEnd := uint64(excl.Begin), uint64(excl.End())

	if eEnd <= rBegin || eBegin >= rEnd {
		return []mm.FrameRegion{r}
	}

	var out []mm.FrameRegion
	if eBegin > rBegin {
		out = append(out, mm.FrameRegion{Begin: r.Begin, Count: (eBegin - rBegin) / uint64(mm.PageSize)})
	}
	if eEnd < rEnd {
		out = append(out, mm.FrameRegion{Begin: mm.PhysAddr(eEnd), Count: (rEnd - eEnd) / uint64(mm.PageSize)})
	}
	return out
}
