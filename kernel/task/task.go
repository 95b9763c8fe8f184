// Package task implements the preemptible task model: a task's saved
// register file and private address space, and the round-robin scheduler
// that rotates the CPU between them off the timer interrupt.
package task

import (
	"nanokernel/kernel/boot"
	"nanokernel/kernel/mm"
	"nanokernel/kernel/mm/vmm"
)

// ID is a task identifier. Zero is never a valid live task ID; it is used
// as the "no current task" sentinel before the first task starts.
type ID uint64

// Task is a schedulable unit: one register file, one private address
// space, and the identity used by getpid/spawn.
type Task struct {
	ID         ID
	Registers  RegisterStore
	PageTable  *vmm.PageTable
	userStackFrame mm.PhysAddr
}

// KernelImage describes the already-running kernel's own mappings, which
// every task's address space must also carry so traps and syscalls taken
// while "in" a task can still reach kernel code and data.
type KernelImage struct {
	Regions []mm.MappingRegion
	Flags   []vmm.Flags // parallel to Regions
}

// Builder constructs new tasks: it owns the frame allocator and the
// description of the kernel image every address space must map.
type Builder struct {
	FrameAlloc vmm.FrameAllocator
	Kernel     KernelImage
}

// New builds a task with its own address space, mapping (in order): the
// kernel image (which includes the kernel heap and the shared interrupt
// stack — see KernelImage), the physical direct map, this task's own
// kernel stack, and a single-page user stack, before loading elfImage as
// the task's user program.
func (b *Builder) New(id ID, elfImage []byte) (*Task, error) {
	pt, err := vmm.New(b.FrameAlloc)
	if err != nil {
		return nil, err
	}

	for i, region := range b.Kernel.Regions {
		if err := pt.Map(region, b.Kernel.Flags[i]); err != nil {
			return nil, err
		}
	}

	directMapFrames := mm.Size(vmm.DirectMapSize).Pages()
	if err := pt.Map(mm.MappingRegion{
		PhysBegin: 0,
		VirtBegin: mm.VirtAddr(boot.DirectMapBegin),
		Count:     directMapFrames,
	}, vmm.Flags{Writable: true}); err != nil {
		return nil, err
	}

	kstackFrame, err := b.FrameAlloc.Alloc(1)
	if err != nil {
		return nil, err
	}
	if err := pt.Map(mm.MappingRegion{
		PhysBegin: kstackFrame,
		VirtBegin: boot.TaskKernelStackPage(uint64(id)),
		Count:     1,
	}, vmm.Flags{Writable: true}); err != nil {
		return nil, err
	}

	// The kernel heap's physical backing is allocated once, by kmain
	// before the first task exists, and mapped into every task's address
	// space at the same virtual and physical addresses via
	// b.Kernel.Regions/Flags above. A task-private mapping here would
	// give every task its own copy of the heap's backing memory, which
	// would desync the Go runtime's heap the moment two tasks' page
	// tables disagreed on what lived at boot.KernelHeapBegin.

	userStackFrame, err := b.FrameAlloc.Alloc(1)
	if err != nil {
		return nil, err
	}
	if err := pt.Map(mm.MappingRegion{
		PhysBegin: userStackFrame,
		VirtBegin: boot.UserStackTop - mm.VirtAddr(mm.PageSize),
		Count:     1,
	}, vmm.Flags{Writable: true, Usermode: true}); err != nil {
		return nil, err
	}

	entry, err := loadELF(elfImage, pt, b.FrameAlloc)
	if err != nil {
		return nil, err
	}

	return &Task{
		ID:             id,
		PageTable:      pt,
		userStackFrame: userStackFrame,
		Registers: NewRegisterStore(
			entry,
			uint64(boot.UserStackTop),
			uint64(boot.TaskKernelStackTop(uint64(id))),
		),
	}, nil
}
