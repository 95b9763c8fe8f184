package goruntime

import (
	"testing"
	"unsafe"

	"nanokernel/kernel/mm"
	"nanokernel/kernel/mm/heap"
)

func newTestHeap(t *testing.T, size mm.Size) *heap.Heap {
	t.Helper()
	arena := make([]byte, size)
	h := &heap.Heap{}
	h.Init(uintptr(unsafe.Pointer(&arena[0])), size)
	return h
}

func TestSysReserveAllocatesFromHeap(t *testing.T) {
	defer func() { kernelHeap = nil }()
	kernelHeap = newTestHeap(t, 64*mm.Kb)

	var reserved bool
	ptr := sysReserve(nil, 128, &reserved)
	if ptr == nil {
		t.Fatal("sysReserve returned nil")
	}
	if !reserved {
		t.Fatal("expected reserved = true")
	}
}

func TestSysMapRequiresReserved(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected sysMap to panic when reserved = false")
		}
	}()
	var stat uint64
	sysMap(nil, 0, false, &stat)
}

func TestSysAllocAccountsSize(t *testing.T) {
	defer func() { kernelHeap = nil }()
	kernelHeap = newTestHeap(t, 64*mm.Kb)

	var stat uint64
	ptr := sysAlloc(256, &stat)
	if ptr == nil {
		t.Fatal("sysAlloc returned nil")
	}
	if stat != 256 {
		t.Fatalf("expected sysStat to be increased by 256, got %d", stat)
	}
}

func TestGetRandomDataFillsSlice(t *testing.T) {
	prngSeed = 0xdeadc0de
	buf := make([]byte, 16)
	getRandomData(buf)

	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatal("expected getRandomData to produce non-zero bytes")
	}
}
