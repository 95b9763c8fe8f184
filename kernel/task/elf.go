package task

import (
	"encoding/binary"
	"errors"

	"nanokernel/kernel/mm"
	"nanokernel/kernel/mm/vmm"
)

// ErrNotELF64 is returned by loadELF when the image's magic or class
// fields don't match a little-endian 64-bit ELF executable.
var ErrNotELF64 = errors.New("task: not a 64-bit little-endian ELF executable")

const (
	elfMagic = "\x7fELF"

	elfClass64    = 2
	elfDataLittle = 1

	phtLoad = 1

	phFlagExec  = 1 << 0
	phFlagWrite = 1 << 1
	phFlagRead  = 1 << 2
)

// elfHeader is the subset of the ELF64 file header the loader needs.
type elfHeader struct {
	entry     uint64
	phOff     uint64
	phEntSize uint16
	phNum     uint16
}

// programHeader is the subset of an ELF64 program header the loader needs.
type programHeader struct {
	kind     uint32
	flags    uint32
	offset   uint64
	vaddr    uint64
	fileSize uint64
	memSize  uint64
}

func parseELFHeader(img []byte) (elfHeader, error) {
	if len(img) < 64 || string(img[0:4]) != elfMagic {
		return elfHeader{}, ErrNotELF64
	}
	if img[4] != elfClass64 || img[5] != elfDataLittle {
		return elfHeader{}, ErrNotELF64
	}
	return elfHeader{
		entry:     binary.LittleEndian.Uint64(img[24:32]),
		phOff:     binary.LittleEndian.Uint64(img[32:40]),
		phEntSize: binary.LittleEndian.Uint16(img[54:56]),
		phNum:     binary.LittleEndian.Uint16(img[56:58]),
	}, nil
}

func parseProgramHeader(img []byte, off uint64) programHeader {
	b := img[off:]
	return programHeader{
		kind:     binary.LittleEndian.Uint32(b[0:4]),
		flags:    binary.LittleEndian.Uint32(b[4:8]),
		offset:   binary.LittleEndian.Uint64(b[8:16]),
		vaddr:    binary.LittleEndian.Uint64(b[16:24]),
		fileSize: binary.LittleEndian.Uint64(b[32:40]),
		memSize:  binary.LittleEndian.Uint64(b[40:48]),
	}
}

// loadELF maps and populates every PT_LOAD segment of img into pt, using
// fa to obtain the backing frames, and returns the image's entry point.
// Segment permissions (R/W/X) from the program header are carried through
// to the mapping's Flags verbatim, rather than being forced to a fixed
// read-write-no-exec policy.
func loadELF(img []byte, pt *vmm.PageTable, fa vmm.FrameAllocator) (uint64, error) {
	hdr, err := parseELFHeader(img)
	if err != nil {
		return 0, err
	}

	for i := uint16(0); i < hdr.phNum; i++ {
		ph := parseProgramHeader(img, hdr.phOff+uint64(i)*uint64(hdr.phEntSize))
		if ph.kind != phtLoad || ph.memSize == 0 {
			continue
		}

		pageCount := mm.Size(ph.memSize).Pages()
		frame, err := fa.Alloc(pageCount)
		if err != nil {
			return 0, err
		}

		dst := vmm.PhysSlice(frame, int(pageCount)*int(mm.PageSize))
		for i := range dst {
			dst[i] = 0
		}
		if ph.fileSize > 0 {
			copy(dst, img[ph.offset:ph.offset+ph.fileSize])
		}

		region := mm.MappingRegion{
			PhysBegin: frame,
			VirtBegin: mm.VirtAddr(ph.vaddr &^ uint64(mm.PageSize-1)),
			Count:     pageCount,
		}
		flags := vmm.Flags{
			Writable:   ph.flags&phFlagWrite != 0,
			Executable: ph.flags&phFlagExec != 0,
			Usermode:   true,
		}
		if err := pt.Map(region, flags); err != nil {
			return 0, err
		}
	}

	return hdr.entry, nil
}
