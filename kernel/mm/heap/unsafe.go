package heap

import "unsafe"

const unsafeSizeofHole = unsafe.Sizeof(hole{})

// readHole and writeHole overlay a hole header onto raw arena memory. The
// heap arena is not Go-managed memory (it backs the allocator the Go
// runtime itself is wired to), so every access to a hole header has to go
// through unsafe.Pointer rather than a slice.
func readHole(addr uintptr) hole {
	return *(*hole)(unsafe.Pointer(addr))
}

func writeHole(addr uintptr, h hole) {
	*(*hole)(unsafe.Pointer(addr)) = h
}
