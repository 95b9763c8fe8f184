// Package heap implements the kernel's dynamic memory allocator: a single
// contiguous arena split between a bump region growing down from the
// ceiling and a list of freed holes threaded through the freed blocks
// themselves, so no separate bookkeeping allocation is ever needed.
package heap

import (
	"nanokernel/kernel/mm"
	"nanokernel/kernel/sync"
)

// hole is the header written at the start of every free block linked into
// the hole list; the free bump region below ceiling carries no header.
// The hole list is singly linked and unordered; insertion
// always happens at the head, and merging is opportunistic rather than
// sorted.
type hole struct {
	size uintptr // including this header
	next uintptr // address of next hole, or 0
}

const holeHeaderSize = unsafeSizeofHole

// Heap is a bump-and-hole-list allocator over a single arena
// [base, base+size). floor is the lowest address the ceiling may reach;
// nothing is handed out from the low end, so it stays at base. ceiling
// tracks the next byte to hand out from the high end going down.
// Allocation first tries the hole list, then falls back to bumping
// ceiling down.
type Heap struct {
	mu      sync.Spinlock
	base    uintptr
	floor   uintptr
	ceiling uintptr
	holes   uintptr // address of first hole, or 0
}

// Init prepares h to serve allocations from [base, base+size). The caller
// is responsible for having the range already mapped and zeroed.
func (h *Heap) Init(base uintptr, size mm.Size) {
	h.base = base
	h.floor = base
	h.ceiling = base + uintptr(size)
	h.holes = 0
}

const minAlign = 16

func alignUp(v uintptr, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// Alloc reserves size bytes aligned to align (rounded up to minAlign) and
// returns their address. It returns 0 if the arena has no room left.
func (h *Heap) Alloc(size uintptr, align uintptr) uintptr {
	if align < minAlign {
		align = minAlign
	}
	size = alignUp(size, minAlign)

	g := h.mu.Acquire()
	defer g.Release()

	if addr, ok := h.tryAllocFromHoleLocked(size, align); ok {
		return addr
	}
	return h.tryAllocFromCeilingLocked(size, align)
}

// tryAllocFromCeilingLocked bumps the ceiling down by size (plus whatever
// slack alignment demands), recording the alignment slack as a new hole
// rather than wasting it. Caller holds h.mu.
func (h *Heap) tryAllocFromCeilingLocked(size, align uintptr) uintptr {
	allocEnd := h.ceiling
	allocStart := (allocEnd - size) &^ (align - 1)
	if allocStart < h.floor || allocStart > allocEnd {
		return 0
	}

	slack := allocEnd - (allocStart + size)
	if slack >= holeHeaderSize {
		h.insertHoleLocked(allocStart+size, slack)
	}
	h.ceiling = allocStart
	return allocStart
}

// tryAllocFromHoleLocked walks the hole list for the first hole that can
// satisfy size at the given alignment, splitting off any leftover before
// and after the allocation back into the list.
func (h *Heap) tryAllocFromHoleLocked(size, align uintptr) (uintptr, bool) {
	var prev uintptr
	cur := h.holes

	for cur != 0 {
		hd := readHole(cur)
		allocStart := alignUp(cur, align)
		allocEnd := allocStart + size

		if allocEnd <= cur+hd.size {
			h.unlinkHoleLocked(prev, cur, hd.next)

			if before := allocStart - cur; before >= holeHeaderSize {
				h.insertHoleLocked(cur, before)
			}
			if after := (cur + hd.size) - allocEnd; after >= holeHeaderSize {
				h.insertHoleLocked(allocEnd, after)
			}
			return allocStart, true
		}

		prev = cur
		cur = hd.next
	}
	return 0, false
}

// Free returns a previously allocated block to the bump region if it
// starts exactly at the ceiling (then also absorbing any holes that now
// start at the raised ceiling), and otherwise to the hole list, merging it
// with memory-adjacent holes as described at mergeHolesLocked.
func (h *Heap) Free(addr uintptr, size uintptr) {
	size = alignUp(size, minAlign)

	g := h.mu.Acquire()
	defer g.Release()

	// A block most recently handed out by tryAllocFromCeilingLocked
	// starts exactly at the ceiling left behind by that call, with any
	// alignment slack recorded as a separate hole directly above it.
	// Freeing such a block just grows the ceiling back up over it.
	if addr == h.ceiling {
		h.ceiling = addr + size
		h.absorbTrailingHolesIntoCeilingLocked()
		return
	}

	h.insertHoleLocked(addr, size)
	h.mergeHolesLocked()
}

// insertHoleLocked links a new hole at the head of the list. Caller holds
// h.mu.
func (h *Heap) insertHoleLocked(addr, size uintptr) {
	writeHole(addr, hole{size: size, next: h.holes})
	h.holes = addr
}

// unlinkHoleLocked removes the hole at addr from the list, given its
// predecessor's address (0 if addr was the head) and its own next pointer.
func (h *Heap) unlinkHoleLocked(prev, addr, next uintptr) {
	if prev == 0 {
		h.holes = next
		return
	}
	ph := readHole(prev)
	ph.next = next
	writeHole(prev, ph)
}

// mergeHolesLocked walks the hole list merging each hole with its list
// successor when the two are memory-adjacent. On a successful merge it
// re-examines the surviving hole against its (possibly new) next neighbor
// before advancing. Only list neighbours are compared: two memory-adjacent
// holes separated in the list by an unrelated hole are not merged.
func (h *Heap) mergeHolesLocked() {
	cur := h.holes
	for cur != 0 {
		hd := readHole(cur)
		if hd.next != 0 {
			if merged, ok := h.tryMergeLocked(cur, hd.next); ok {
				cur = merged
				continue
			}
		}
		cur = hd.next
	}
}

// tryMergeLocked merges the hole at b into the hole at a if they are
// adjacent in either order, unlinking b from the list. Returns the
// surviving hole's address.
func (h *Heap) tryMergeLocked(a, b uintptr) (uintptr, bool) {
	ha := readHole(a)
	hb := readHole(b)

	switch {
	case a+ha.size == b:
		ha.size += hb.size
		ha.next = hb.next
		writeHole(a, ha)
		return a, true
	case b+hb.size == a:
		// b survives at its own address with its own (unchanged) next
		// pointer: a is always cur and b is always hd.next here (the only
		// caller is mergeHolesLocked), so ha.next is always exactly b —
		// copying it into hb.next would make the surviving hole point at
		// itself and livelock mergeHolesLocked forever.
		hb.size += ha.size
		writeHole(b, hb)
		h.relinkHeadLocked(a, b)
		return b, true
	}
	return 0, false
}

// relinkHeadLocked fixes up the list head or whichever hole pointed at old
// so it now points at new instead, after a merge changes which address
// represents the combined hole.
func (h *Heap) relinkHeadLocked(old, new uintptr) {
	if h.holes == old {
		h.holes = new
		return
	}
	cur := h.holes
	for cur != 0 {
		hd := readHole(cur)
		if hd.next == old {
			hd.next = new
			writeHole(cur, hd)
			return
		}
		cur = hd.next
	}
}

// absorbTrailingHolesIntoCeilingLocked repeatedly folds the hole (if any)
// that starts exactly at the current ceiling back into the bump region,
// shrinking the hole list and growing free bump space instead of leaving
// reclaimable space stranded as a hole.
func (h *Heap) absorbTrailingHolesIntoCeilingLocked() {
	for {
		prev := uintptr(0)
		cur := h.holes
		found := false

		for cur != 0 {
			hd := readHole(cur)
			if cur == h.ceiling {
				h.unlinkHoleLocked(prev, cur, hd.next)
				h.ceiling = cur + hd.size
				found = true
				break
			}
			prev = cur
			cur = hd.next
		}
		if !found {
			return
		}
	}
}
