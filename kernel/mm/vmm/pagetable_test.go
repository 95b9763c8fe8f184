package vmm

import (
	"testing"
	"unsafe"

	"nanokernel/kernel/mm"
)

// bumpAllocator is a trivial frame allocator backed by a plain Go byte
// slice standing in for physical memory, letting the page-table engine be
// exercised without any real hardware or privileged instructions.
type bumpAllocator struct {
	arena []byte
	next  uint64
	freed uint64
}

func newBumpAllocator(t *testing.T, frames int) *bumpAllocator {
	t.Helper()
	a := &bumpAllocator{arena: make([]byte, frames*int(mm.PageSize))}
	return a
}

func (a *bumpAllocator) base() mm.VirtAddr {
	return mm.VirtAddr(uintptr(unsafe.Pointer(&a.arena[0])))
}

func (a *bumpAllocator) Alloc(n uint64) (mm.PhysAddr, error) {
	begin := a.next
	a.next += n
	return mm.PhysAddr(begin * uint64(mm.PageSize)), nil
}

func (a *bumpAllocator) Free(begin mm.PhysAddr, n uint64) error {
	a.freed += n // frames are never reused; only the count of freed frames is kept
	return nil
}

func setup(t *testing.T, frames int) (*PageTable, *bumpAllocator) {
	t.Helper()
	fa := newBumpAllocator(t, frames)
	Init(fa.base())
	pt, err := New(fa)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return pt, fa
}

func TestMapAndResolve(t *testing.T) {
	pt, fa := setup(t, 64)

	phys, err := fa.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	const virt = mm.VirtAddr(0x4000_0000)

	if err := pt.Map(mm.MappingRegion{PhysBegin: phys, VirtBegin: virt, Count: 4}, Flags{Writable: true}); err != nil {
		t.Fatalf("Map: %v", err)
	}

	for i := uint64(0); i < 4; i++ {
		got, ok := pt.Resolve(virt + mm.VirtAddr(i*uint64(mm.PageSize)))
		if !ok {
			t.Fatalf("page %d: expected mapped", i)
		}
		want := phys + mm.PhysAddr(i*uint64(mm.PageSize))
		if got != want {
			t.Fatalf("page %d: resolve = %v, want %v", i, got, want)
		}
	}
}

func TestResolveUnmappedReturnsFalse(t *testing.T) {
	pt, _ := setup(t, 64)

	if _, ok := pt.Resolve(0x1000); ok {
		t.Fatal("expected unmapped page to resolve to false")
	}
}

func TestUnmapClearsResolve(t *testing.T) {
	pt, fa := setup(t, 64)

	phys, _ := fa.Alloc(1)
	const virt = mm.VirtAddr(0x2000_0000)
	pt.Map(mm.MappingRegion{PhysBegin: phys, VirtBegin: virt, Count: 1}, Flags{Writable: true})

	pt.Unmap(mm.PageRegion{Begin: virt, Count: 1})

	if _, ok := pt.Resolve(virt); ok {
		t.Fatal("expected page to be unmapped")
	}
}

func TestMapAcrossTableBoundaries(t *testing.T) {
	pt, fa := setup(t, 1100)

	// 600 contiguous pages crosses a single page-table's 512-entry span,
	// forcing a second PT (and possibly PD) allocation mid-region.
	const count = 600
	phys, err := fa.Alloc(count)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	const virt = mm.VirtAddr(0x1_0000_0000)

	if err := pt.Map(mm.MappingRegion{PhysBegin: phys, VirtBegin: virt, Count: count}, Flags{Writable: true}); err != nil {
		t.Fatalf("Map: %v", err)
	}

	for _, i := range []uint64{0, 511, 512, 599} {
		got, ok := pt.Resolve(virt + mm.VirtAddr(i*uint64(mm.PageSize)))
		if !ok {
			t.Fatalf("page %d: expected mapped", i)
		}
		if want := phys + mm.PhysAddr(i*uint64(mm.PageSize)); got != want {
			t.Fatalf("page %d: resolve = %v, want %v", i, got, want)
		}
	}
}

func TestExecutableFlagHonoured(t *testing.T) {
	pt, fa := setup(t, 64)

	phys, _ := fa.Alloc(1)
	const virt = mm.VirtAddr(0x5000_0000)
	if err := pt.Map(mm.MappingRegion{PhysBegin: phys, VirtBegin: virt, Count: 1}, Flags{Executable: true}); err != nil {
		t.Fatalf("Map: %v", err)
	}

	pml4t := physPtr[table](pt.pml4)
	pdpt := physPtr[table](pml4t[pml4Index(virt)].frame())
	pdt := physPtr[table](pdpt[pdptIndex(virt)].frame())
	ptbl := physPtr[table](pdt[pdIndex(virt)].frame())
	leaf := ptbl[ptIndex(virt)]

	if leaf&flagNX != 0 {
		t.Fatal("expected executable mapping to have NX clear")
	}
}

func TestDropFreesIntermediateTables(t *testing.T) {
	pt, fa := setup(t, 64)

	phys, _ := fa.Alloc(1)
	pt.Map(mm.MappingRegion{PhysBegin: phys, VirtBegin: 0x3000_0000, Count: 1}, Flags{Writable: true})

	if err := pt.Drop(); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	// PML4 + PDPT + PD + PT; the mapped leaf frame is not freed.
	if want := uint64(4); fa.freed != want {
		t.Fatalf("Drop freed %d frames, want %d", fa.freed, want)
	}
}
