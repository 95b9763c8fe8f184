// Package vmm is the kernel's 4-level page-table engine. It relies on a
// bootloader-established direct physical map: every physical frame is
// always reachable at DirectMapBase+addr, so walking or allocating
// intermediate table frames never needs a temporary mapping trick the way
// a recursively self-mapped design would.
package vmm

import (
	"unsafe"

	"nanokernel/kernel/mm"
)

// DirectMapBase is the virtual address at which physical address 0 is
// mapped by the bootloader, covering DirectMapSize bytes of physical
// memory. It is set by Init before any PageTable is constructed.
var DirectMapBase mm.VirtAddr

// DirectMapSize bounds how much physical memory the direct map covers; a
// request to map or resolve a frame beyond it is a bug in the caller, not
// a recoverable error, since it would mean the bootloader under-provisioned
// the map.
const DirectMapSize = 1 << 40 // 1 TiB

// Init records where the direct physical map begins. Called once during
// boot before any PageTable is built.
func Init(directMapBase mm.VirtAddr) {
	DirectMapBase = directMapBase
}

// physPtr returns a pointer to the live memory backing a physical frame,
// via the direct map. T is almost always tableFrame; exported call sites
// (e.g. ELF segment loading) use PhysSlice instead.
func physPtr[T any](addr mm.PhysAddr) *T {
	return (*T)(unsafe.Pointer(uintptr(DirectMapBase) + uintptr(addr)))
}

// PhysSlice returns a byte slice over n bytes of physical memory starting
// at addr, via the direct map. Used by the ELF segment loader to write
// frames without a dedicated mapping.
func PhysSlice(addr mm.PhysAddr, n int) []byte {
	ptr := (*byte)(unsafe.Pointer(uintptr(DirectMapBase) + uintptr(addr)))
	return unsafe.Slice(ptr, n)
}

// Flags describes the permissions of a mapped page. Unlike the recursively
// self-mapped design this replaces, the executable bit is honoured exactly
// as given rather than being unconditionally cleared on every leaf: only
// code pages should ever be mapped executable, and the caller (the ELF
// loader) is what decides that per segment.
type Flags struct {
	Writable   bool
	Usermode   bool
	Executable bool
	Huge       bool
}

// entry is a single page-table entry: present/writable/usermode/global/huge
// bits, the physical frame number in bits 12-51, and the no-execute bit at
// bit 63 (x86_64 uses NX semantics, so Executable=true clears it rather
// than setting it).
type entry uint64

const (
	flagPresent  entry = 1 << 0
	flagWritable entry = 1 << 1
	flagUsermode entry = 1 << 2
	flagGlobal   entry = 1 << 8
	flagHuge     entry = 1 << 7
	flagNX       entry = 1 << 63

	frameMask = entry(0x000F_FFFF_FFFF_F000)
)

func (e entry) present() bool { return e&flagPresent != 0 }
func (e entry) huge() bool    { return e&flagHuge != 0 }
func (e entry) frame() mm.PhysAddr {
	return mm.PhysAddr(e & frameMask)
}

func newEntry(frame mm.PhysAddr, f Flags) entry {
	e := entry(frame) & frameMask
	e |= flagPresent
	if f.Writable {
		e |= flagWritable
	}
	if f.Usermode {
		e |= flagUsermode
	}
	if f.Huge {
		e |= flagHuge
	}
	if !f.Executable {
		e |= flagNX
	}
	return e
}

// intermediateEntry builds the entry for a non-leaf table (PML4/PDPT/PD).
// Intermediate tables are always present+writable+usermode so that leaf
// permissions are the only thing that actually restricts access; x86_64
// ANDs permissions down the walk, so a narrower intermediate entry would
// silently override a more permissive leaf.
func intermediateEntry(frame mm.PhysAddr) entry {
	return entry(frame)&frameMask | flagPresent | flagWritable | flagUsermode
}

const entriesPerTable = 512

type table [entriesPerTable]entry

const (
	shiftPML4 = 39
	shiftPDPT = 30
	shiftPD   = 21
	shiftPT   = 12
	indexMask = entriesPerTable - 1
)

func pml4Index(v mm.VirtAddr) int { return int(v>>shiftPML4) & indexMask }
func pdptIndex(v mm.VirtAddr) int { return int(v>>shiftPDPT) & indexMask }
func pdIndex(v mm.VirtAddr) int   { return int(v>>shiftPD) & indexMask }
func ptIndex(v mm.VirtAddr) int   { return int(v>>shiftPT) & indexMask }

// FrameAllocator is the subset of pmm.Allocator that the page-table engine
// needs to allocate and free intermediate table frames.
type FrameAllocator interface {
	Alloc(n uint64) (mm.PhysAddr, error)
	Free(begin mm.PhysAddr, n uint64) error
}

// PageTable is an address space's 4-level paging structure, rooted at a
// single PML4 frame obtained from the given allocator.
type PageTable struct {
	pml4 mm.PhysAddr
	fa   FrameAllocator
}

// New allocates a fresh, zeroed PML4 table and returns a PageTable rooted
// at it.
func New(fa FrameAllocator) (*PageTable, error) {
	frame, err := fa.Alloc(1)
	if err != nil {
		return nil, err
	}
	zeroTable(frame)
	return &PageTable{pml4: frame, fa: fa}, nil
}

func zeroTable(frame mm.PhysAddr) {
	t := physPtr[table](frame)
	*t = table{}
}

// Root returns the physical address of the PML4 table, suitable for
// loading into CR3.
func (pt *PageTable) Root() mm.PhysAddr { return pt.pml4 }

// walkOrAlloc returns the next-level table frame referenced by e, allocating
// and zeroing a fresh one (and writing it back through parent/idx) if e is
// not yet present.
func (pt *PageTable) walkOrAlloc(parent *table, idx int) (*table, error) {
	e := parent[idx]
	if e.present() {
		return physPtr[table](e.frame()), nil
	}
	frame, err := pt.fa.Alloc(1)
	if err != nil {
		return nil, err
	}
	zeroTable(frame)
	parent[idx] = intermediateEntry(frame)
	return physPtr[table](frame), nil
}

// Map installs a mapping for every page in region, pointing at the
// correspondingly-offset run of physical frames, with the given flags
// applied to each leaf entry. Intermediate tables are allocated as needed.
func (pt *PageTable) Map(region mm.MappingRegion, flags Flags) error {
	pml4t := physPtr[table](pt.pml4)

	for i := uint64(0); i < region.Count; i++ {
		v := region.VirtBegin + mm.VirtAddr(i*uint64(mm.PageSize))
		p := region.PhysBegin + mm.PhysAddr(i*uint64(mm.PageSize))

		pdpt, err := pt.walkOrAlloc(pml4t, pml4Index(v))
		if err != nil {
			return err
		}
		pdt, err := pt.walkOrAlloc(pdpt, pdptIndex(v))
		if err != nil {
			return err
		}
		ptbl, err := pt.walkOrAlloc(pdt, pdIndex(v))
		if err != nil {
			return err
		}
		ptbl[ptIndex(v)] = newEntry(p, flags)
	}
	return nil
}

// Unmap clears the leaf entry for every page in region. Intermediate
// tables that become empty as a result are left in place rather than
// freed; the next mapping into the same range reuses them, and a PageTable
// that is genuinely done with a region is expected to be dropped via Drop
// rather than incrementally unmapped down to nothing.
func (pt *PageTable) Unmap(region mm.PageRegion) {
	pml4t := physPtr[table](pt.pml4)

	for i := uint64(0); i < region.Count; i++ {
		v := region.Begin + mm.VirtAddr(i*uint64(mm.PageSize))

		pml4e := pml4t[pml4Index(v)]
		if !pml4e.present() {
			continue
		}
		pdpt := physPtr[table](pml4e.frame())
		pdpe := pdpt[pdptIndex(v)]
		if !pdpe.present() {
			continue
		}
		pdt := physPtr[table](pdpe.frame())
		pde := pdt[pdIndex(v)]
		if !pde.present() {
			continue
		}
		ptbl := physPtr[table](pde.frame())
		ptbl[ptIndex(v)] = 0
	}
}

// Resolve returns the physical frame a virtual address is mapped to, and
// whether it is mapped at all. Huge mappings at the PDPT or PD level are
// honoured by adding the appropriate sub-index offset.
func (pt *PageTable) Resolve(v mm.VirtAddr) (mm.PhysAddr, bool) {
	pml4t := physPtr[table](pt.pml4)

	pml4e := pml4t[pml4Index(v)]
	if !pml4e.present() {
		return 0, false
	}
	pdpt := physPtr[table](pml4e.frame())
	pdpe := pdpt[pdptIndex(v)]
	if !pdpe.present() {
		return 0, false
	}
	if pdpe.huge() {
		off := uint64(pdIndex(v)*entriesPerTable + ptIndex(v))
		return pdpe.frame() + mm.PhysAddr(off*uint64(mm.PageSize)), true
	}
	pdt := physPtr[table](pdpe.frame())
	pde := pdt[pdIndex(v)]
	if !pde.present() {
		return 0, false
	}
	if pde.huge() {
		return pde.frame() + mm.PhysAddr(uint64(ptIndex(v))*uint64(mm.PageSize)), true
	}
	ptbl := physPtr[table](pde.frame())
	pte := ptbl[ptIndex(v)]
	if !pte.present() {
		return 0, false
	}
	return pte.frame(), true
}

// Drop frees every intermediate table frame owned by pt, depth first, and
// finally the PML4 frame itself. Leaf frames (the actual mapped memory)
// are never touched here: they are owned by whoever asked for the mapping,
// not by the PageTable, and must be freed separately.
func (pt *PageTable) Drop() error {
	pml4t := physPtr[table](pt.pml4)

	for i4 := 0; i4 < entriesPerTable; i4++ {
		pml4e := pml4t[i4]
		if !pml4e.present() {
			continue
		}
		pdptFrame := pml4e.frame()
		pdpt := physPtr[table](pdptFrame)

		for i3 := 0; i3 < entriesPerTable; i3++ {
			pdpe := pdpt[i3]
			if !pdpe.present() || pdpe.huge() {
				continue
			}
			pdtFrame := pdpe.frame()
			pdt := physPtr[table](pdtFrame)

			for i2 := 0; i2 < entriesPerTable; i2++ {
				pde := pdt[i2]
				if !pde.present() || pde.huge() {
					continue
				}
				if err := pt.fa.Free(pde.frame(), 1); err != nil {
					return err
				}
			}
			if err := pt.fa.Free(pdtFrame, 1); err != nil {
				return err
			}
		}
		if err := pt.fa.Free(pdptFrame, 1); err != nil {
			return err
		}
	}
	return pt.fa.Free(pt.pml4, 1)
}
