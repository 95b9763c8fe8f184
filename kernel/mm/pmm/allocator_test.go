package pmm

import (
	"testing"

	"nanokernel/kernel/mm"
)

func framesOf(begin uint64, count uint64) mm.FrameRegion {
	return mm.FrameRegion{Begin: mm.FrameFromIndex(begin), Count: count}
}

func TestAllocFirstFit(t *testing.T) {
	a := New()
	if err := a.AddRegion(framesOf(0, 4)); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if err := a.AddRegion(framesOf(10, 4)); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}

	got, err := a.Alloc(2)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if want := mm.FrameFromIndex(0); got != want {
		t.Fatalf("Alloc = %v, want %v", got, want)
	}
	if want := uint64(6); a.FreeFrames() != want {
		t.Fatalf("FreeFrames = %d, want %d", a.FreeFrames(), want)
	}
}

func TestAllocExactRegionIsRemoved(t *testing.T) {
	a := New()
	a.AddRegion(framesOf(0, 2))

	if _, err := a.Alloc(2); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if a.count != 0 {
		t.Fatalf("expected region list empty, got %d entries", a.count)
	}
}

func TestAllocOutOfMemory(t *testing.T) {
	a := New()
	a.AddRegion(framesOf(0, 2))

	if _, err := a.Alloc(3); err == nil {
		t.Fatal("expected ErrOutOfMemory, got nil")
	}
}

func TestFreeMergesAdjacentRegions(t *testing.T) {
	a := New()
	a.AddRegion(framesOf(0, 4))
	a.AddRegion(framesOf(8, 4))

	// Freeing frames 4..8 should bridge the two existing regions into one.
	if err := a.Free(mm.FrameFromIndex(4), 4); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if a.count != 1 {
		t.Fatalf("expected a single merged region, got %d", a.count)
	}
	if a.regions[0].Count != 12 {
		t.Fatalf("merged region count = %d, want 12", a.regions[0].Count)
	}
}

func TestFreeMergesBothNeighbours(t *testing.T) {
	a := New()
	a.AddRegion(framesOf(0, 2))
	a.AddRegion(framesOf(4, 2))

	if err := a.Free(mm.FrameFromIndex(2), 2); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if a.count != 1 || a.regions[0].Begin != mm.FrameFromIndex(0) || a.regions[0].Count != 6 {
		t.Fatalf("unexpected merge result: count=%d region=%+v", a.count, a.regions[0])
	}
}

func TestAllocSplitsLargerRegion(t *testing.T) {
	a := New()
	a.AddRegion(framesOf(0, 10))

	got, err := a.Alloc(3)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if got != mm.FrameFromIndex(0) {
		t.Fatalf("Alloc = %v, want frame 0", got)
	}
	if a.count != 1 || a.regions[0].Begin != mm.FrameFromIndex(3) || a.regions[0].Count != 7 {
		t.Fatalf("unexpected remainder: count=%d region=%+v", a.count, a.regions[0])
	}
}

func TestCapacityExceeded(t *testing.T) {
	a := New()
	// Seed maxRegions disjoint, non-adjacent regions (gap of one frame
	// between each) so none merge away and the list is genuinely full.
	for i := 0; i < maxRegions; i++ {
		if err := a.AddRegion(framesOf(uint64(i*2), 1)); err != nil {
			t.Fatalf("AddRegion %d: %v", i, err)
		}
	}
	if err := a.AddRegion(framesOf(uint64(maxRegions*2+100), 1)); err == nil {
		t.Fatal("expected ErrCapacityExceeded, got nil")
	}
}
