// Package mm holds the address- and size-related types shared by the
// physical frame allocator, the kernel heap and the page-table engine.
package mm

// PageShift is log2(PageSize); shifting a physical or virtual address right
// by PageShift yields its page/frame number, and left by PageShift recovers
// the address of that page/frame's first byte.
const PageShift = 12

// PageSize is the system's page size in bytes.
const PageSize = Size(1 << PageShift)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of whole pages required to hold a block of this
// size, rounding up.
func (s Size) Pages() uint64 {
	pageSizeMinus1 := PageSize - 1
	return uint64((s+pageSizeMinus1) &^ pageSizeMinus1 / PageSize)
}

// PhysAddr is a physical memory address.
type PhysAddr uintptr

// VirtAddr is a virtual memory address.
type VirtAddr uintptr

// Frame returns the frame number containing this address.
func (a PhysAddr) Frame() uint64 { return uint64(a) >> PageShift }

// Offset returns the offset of this address within its containing page.
func (a PhysAddr) Offset() uintptr { return uintptr(a) & uintptr(PageSize-1) }

// Page returns the page number containing this address.
func (a VirtAddr) Page() uint64 { return uint64(a) >> PageShift }

// Offset returns the offset of this address within its containing page.
func (a VirtAddr) Offset() uintptr { return uintptr(a) & uintptr(PageSize-1) }

// FrameFromIndex returns the physical address of the first byte of frame
// number idx.
func FrameFromIndex(idx uint64) PhysAddr { return PhysAddr(idx << PageShift) }

// PageFromIndex returns the virtual address of the first byte of page
// number idx.
func PageFromIndex(idx uint64) VirtAddr { return VirtAddr(idx << PageShift) }

// FrameRegion describes a contiguous run of physical frames: Count frames
// starting at the physical address Begin.
type FrameRegion struct {
	Begin PhysAddr
	Count uint64
}

// End returns the physical address one past the last frame in the region.
func (r FrameRegion) End() PhysAddr {
	return r.Begin + PhysAddr(r.Count*uint64(PageSize))
}

// Adjacent reports whether other begins exactly where r ends, so the two
// regions could be merged into one.
func (r FrameRegion) Adjacent(other FrameRegion) bool {
	return r.End() == other.Begin
}

// PageRegion describes a contiguous run of virtual pages, mirroring
// FrameRegion on the virtual side.
type PageRegion struct {
	Begin VirtAddr
	Count uint64
}

// End returns the virtual address one past the last page in the region.
func (r PageRegion) End() VirtAddr {
	return r.Begin + VirtAddr(r.Count*uint64(PageSize))
}

// MappingRegion describes a run of virtual pages mapped to a run of
// physical frames of the same length, starting at PhysBegin/VirtBegin.
type MappingRegion struct {
	PhysBegin PhysAddr
	VirtBegin VirtAddr
	Count     uint64
}
