// Package pmm is the kernel's physical frame allocator: a fixed-capacity
// free list of frame regions, allocated first-fit and coalesced greedily on
// free so that fragmentation never grows past what the capacity bound
// allows.
package pmm

import (
	"nanokernel/kernel/mm"
	"nanokernel/kernel/sync"
)

// maxRegions bounds the free list's backing array. The boot memory map
// rarely has more than a handful of usable runs. AddRegion and Free check
// this bound before inserting, so once all slots are in use they return
// ErrCapacityExceeded even for a region that would merge with a neighbour.
const maxRegions = 64

// Allocator is a region-coalescing free-list frame allocator. The zero value
// is an empty allocator with no free frames; call AddRegion to seed it with
// usable memory.
type Allocator struct {
	mu      sync.IRQSpinlock
	regions [maxRegions]mm.FrameRegion
	count   int
}

// ErrOutOfMemory is returned by Alloc when no free region is large enough
// to satisfy the request.
type ErrOutOfMemory struct{ Frames uint64 }

func (e ErrOutOfMemory) Error() string { return "pmm: out of memory" }

// ErrCapacityExceeded is returned by AddRegion/Free when accepting a region
// would need more free-list slots than the allocator was built with.
type ErrCapacityExceeded struct{}

func (e ErrCapacityExceeded) Error() string { return "pmm: free-list capacity exceeded" }

// New returns an empty allocator.
func New() *Allocator { return &Allocator{} }

// AddRegion donates a run of physical frames to the allocator, e.g. during
// boot when walking a bootloader-provided memory map. Regions may be added
// in any order; they are kept sorted and merged with any adjacent region
// already present.
func (a *Allocator) AddRegion(r mm.FrameRegion) error {
	g := a.mu.Acquire()
	defer g.Release()
	return a.insertLocked(r)
}

// Alloc removes a run of n contiguous frames from the free list and returns
// its starting physical address. It uses first-fit: the first free region
// at least n frames long is chosen, split if it is larger than requested,
// and the unused tail remains free.
func (a *Allocator) Alloc(n uint64) (mm.PhysAddr, error) {
	g := a.mu.Acquire()
	defer g.Release()

	for i := 0; i < a.count; i++ {
		r := a.regions[i]
		if r.Count < n {
			continue
		}
		begin := r.Begin
		if r.Count == n {
			a.removeAtLocked(i)
		} else {
			a.regions[i].Begin = r.Begin + mm.PhysAddr(n*uint64(mm.PageSize))
			a.regions[i].Count = r.Count - n
		}
		return begin, nil
	}
	return 0, ErrOutOfMemory{Frames: n}
}

// Free returns a run of n contiguous frames starting at begin to the free
// list, merging it with any adjacent free region.
func (a *Allocator) Free(begin mm.PhysAddr, n uint64) error {
	g := a.mu.Acquire()
	defer g.Release()
	return a.insertLocked(mm.FrameRegion{Begin: begin, Count: n})
}

// FreeFrames reports the total number of frames currently available.
func (a *Allocator) FreeFrames() uint64 {
	g := a.mu.Acquire()
	defer g.Release()

	var total uint64
	for i := 0; i < a.count; i++ {
		total += a.regions[i].Count
	}
	return total
}

// insertLocked inserts r in sorted position and merges it with whichever
// neighbours it now touches. Caller holds a.mu.
func (a *Allocator) insertLocked(r mm.FrameRegion) error {
	if r.Count == 0 {
		return nil
	}

	pos := 0
	for pos < a.count && a.regions[pos].Begin < r.Begin {
		pos++
	}

	if a.count == maxRegions {
		return ErrCapacityExceeded{}
	}
	copy(a.regions[pos+1:a.count+1], a.regions[pos:a.count])
	a.regions[pos] = r
	a.count++

	a.mergeAroundLocked(pos)
	return nil
}

// mergeAroundLocked greedily merges the region at idx with its predecessor
// and successor while they are adjacent, shrinking the list in place.
func (a *Allocator) mergeAroundLocked(idx int) {
	if idx+1 < a.count && a.regions[idx].Adjacent(a.regions[idx+1]) {
		a.regions[idx].Count += a.regions[idx+1].Count
		a.removeAtLocked(idx + 1)
	}
	if idx > 0 && a.regions[idx-1].Adjacent(a.regions[idx]) {
		a.regions[idx-1].Count += a.regions[idx].Count
		a.removeAtLocked(idx)
	}
}

// removeAtLocked deletes the region at idx, shifting the tail down. Caller
// holds a.mu.
func (a *Allocator) removeAtLocked(idx int) {
	copy(a.regions[idx:a.count-1], a.regions[idx+1:a.count])
	a.count--
	a.regions[a.count] = mm.FrameRegion{}
}
