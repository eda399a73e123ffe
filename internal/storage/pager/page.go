// Package pager implements the on-disk page format and the file manager
// that serves fixed-size pages to one file per table.
//
// Every page is PAGE_SIZE (8192) bytes. The first four bytes are a page
// header (free_space_start, free_space_end, both big-endian uint16),
// immediately followed by an ascending array of 4-byte slot descriptors
// (tuple_offset, tuple_size). Tuple bodies grow downward from
// free_space_end; slot descriptors grow forward from free_space_start.
// All multibyte integers in the page format are big-endian.
package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/dbcore/erdb/internal/common"
)

// PageHeaderSize is the number of bytes occupied by the page header itself,
// before the first slot descriptor.
const PageHeaderSize = 4

// SlotSize is the number of bytes occupied by one slot descriptor.
const SlotSize = 4

// MaxTupleSize is the largest a serialized tuple (header + values) may be:
// the page must still have room for the page header and one slot.
const MaxTupleSize = common.PageSize - PageHeaderSize - SlotSize

// Slot is a (tuple_offset, tuple_size) pair, the on-disk shape of one slot
// descriptor. Slot indices are stable for the lifetime of the tuple they
// describe.
type Slot struct {
	Offset uint16
	Size   uint16
}

// Header is the 4-byte page header: the boundary between the slot array
// (growing forward from the start) and tuple bodies (growing backward from
// the end).
type Header struct {
	FreeSpaceStart uint16
	FreeSpaceEnd   uint16
}

// EmptyHeader returns the header of a freshly zeroed page: no slots yet,
// the whole page free.
func EmptyHeader() Header {
	return Header{FreeSpaceStart: PageHeaderSize, FreeSpaceEnd: common.PageSize}
}

// ParseHeader reads the header from the first PageHeaderSize bytes of page.
func ParseHeader(page []byte) Header {
	return Header{
		FreeSpaceStart: binary.BigEndian.Uint16(page[0:2]),
		FreeSpaceEnd:   binary.BigEndian.Uint16(page[2:4]),
	}
}

// Write serializes h into the first PageHeaderSize bytes of page.
func (h Header) Write(page []byte) {
	binary.BigEndian.PutUint16(page[0:2], h.FreeSpaceStart)
	binary.BigEndian.PutUint16(page[2:4], h.FreeSpaceEnd)
}

// FreeSpace returns the number of bytes between the end of the slot array
// and the start of the tuple area. A new insert needs room for its tuple
// plus one SlotSize descriptor out of this.
func (h Header) FreeSpace() uint16 {
	return h.FreeSpaceEnd - h.FreeSpaceStart
}

// SlotCount returns how many slot descriptors are currently recorded.
func (h Header) SlotCount() uint8 {
	return uint8((h.FreeSpaceStart - PageHeaderSize) / SlotSize)
}

// ReadSlot returns the i-th slot descriptor. The caller must ensure
// i < h.SlotCount().
func ReadSlot(page []byte, i uint8) Slot {
	off := PageHeaderSize + int(i)*SlotSize
	return Slot{
		Offset: binary.BigEndian.Uint16(page[off : off+2]),
		Size:   binary.BigEndian.Uint16(page[off+2 : off+4]),
	}
}

func writeSlot(page []byte, i uint8, s Slot) {
	off := PageHeaderSize + int(i)*SlotSize
	binary.BigEndian.PutUint16(page[off:off+2], s.Offset)
	binary.BigEndian.PutUint16(page[off+2:off+4], s.Size)
}

// TryInsert places a tuple of tupleSize bytes into page if there is room
// for both the tuple body and a new slot descriptor. On success it writes
// the slot descriptor and advances the header, returning the offset at
// which the caller must write the tuple bytes and true. On failure the
// page is left untouched and it returns (0, false).
func TryInsert(page []byte, tupleSize uint16) (offset uint16, ok bool) {
	h := ParseHeader(page)
	if h.FreeSpace() < tupleSize+SlotSize {
		return 0, false
	}
	newEnd := h.FreeSpaceEnd - tupleSize
	slotIdx := h.SlotCount()
	writeSlot(page, slotIdx, Slot{Offset: newEnd, Size: tupleSize})
	h.FreeSpaceStart += SlotSize
	h.FreeSpaceEnd = newEnd
	h.Write(page)
	return newEnd, true
}

// ValidateInvariants checks the four structural page invariants from
// spec §3 that are independent of tuple contents. It is used by tests and
// may be used defensively after reading a page back from disk.
func ValidateInvariants(page []byte) error {
	h := ParseHeader(page)
	if h.FreeSpaceStart < PageHeaderSize {
		return fmt.Errorf("free_space_start %d below header size %d", h.FreeSpaceStart, PageHeaderSize)
	}
	if h.FreeSpaceStart > h.FreeSpaceEnd || h.FreeSpaceEnd > common.PageSize {
		return fmt.Errorf("invalid free space bounds [%d,%d]", h.FreeSpaceStart, h.FreeSpaceEnd)
	}
	for i := uint8(0); i < h.SlotCount(); i++ {
		s := ReadSlot(page, i)
		if s.Offset == 0 && s.Size == 0 {
			continue // tombstoned slot of a deleted-in-place tuple is never produced by this engine, but tolerate it
		}
		if int(s.Offset)+int(s.Size) > common.PageSize || s.Offset < h.FreeSpaceEnd {
			return fmt.Errorf("slot %d out of bounds: offset=%d size=%d free_space_end=%d", i, s.Offset, s.Size, h.FreeSpaceEnd)
		}
	}
	return nil
}
