package syscall

import "unsafe"

// unsafeBytesAt overlays a byte slice onto a user-supplied pointer/length
// pair already validated by the caller against the kernel/user split.
func unsafeBytesAt(ptr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
}
