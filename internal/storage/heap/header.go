// Package heap implements the MVCC heap tuple format and the Table type of
// spec §4.5 and §3: tuples are stored inside pager slotted pages, each
// carrying its own insert/delete transaction ids, an optional forwarding
// pointer to a newer version, and an optional null bitmap. Grounded on
// original_source/src/storage/heap/header.rs, tuple.rs and table.rs,
// extended with the insert_tid/delete_tid/forwarding-pointer fields
// spec §3 adds to the header that the reference implementation's excerpt
// did not carry.
package heap

import (
	"encoding/binary"

	"github.com/dbcore/erdb/internal/common"
)

// headerFlagHasNull marks that a null bitmap follows the fixed header.
const headerFlagHasNull = 0x01

// ConstantHeaderSize is the number of header bytes present on every tuple,
// before any null bitmap: 1 flags + 1 user_data_start + 4 insert_tid +
// 4 delete_tid + 7 forwarding pointer (2 table id + 4 page no + 1 slot).
const ConstantHeaderSize = 1 + 1 + 4 + 4 + 7

// ForwardPointer names the newer tuple version an updated row was moved
// to. It is the zero value (Valid == false) until the row is updated.
type ForwardPointer struct {
	Table common.TableId
	Page  common.PageNo
	Slot  uint8
	Valid bool
}

// Header is a tuple's fixed MVCC header, parsed out of its first
// ConstantHeaderSize(+null bitmap) bytes.
type Header struct {
	HasNull          bool
	UserDataStart    uint8
	InsertTid        common.TxID
	DeleteTid        common.TxID
	Forward          ForwardPointer
	NullBitmapOffset int
	NullBitmapSize   int
}

// nullBitmapSize is the number of bytes needed for one null bit per column.
func nullBitmapSize(columnCount int) int {
	return (columnCount + 7) / 8
}

// ParseHeader reads a tuple's header out of tupleBytes. columnCount is
// needed to size the null bitmap when the has-null flag is set.
func ParseHeader(tupleBytes []byte, columnCount int) Header {
	flags := tupleBytes[0]
	hasNull := flags&headerFlagHasNull != 0
	h := Header{
		HasNull:       hasNull,
		UserDataStart: tupleBytes[1],
		InsertTid:     common.TxID(binary.BigEndian.Uint32(tupleBytes[2:6])),
		DeleteTid:     common.TxID(binary.BigEndian.Uint32(tupleBytes[6:10])),
	}
	fwdTable := common.TableId(binary.BigEndian.Uint16(tupleBytes[10:12]))
	fwdPage := common.PageNo(binary.BigEndian.Uint32(tupleBytes[12:16]))
	fwdSlot := tupleBytes[16]
	h.Forward = ForwardPointer{
		Table: fwdTable,
		Page:  fwdPage,
		Slot:  fwdSlot,
		Valid: fwdTable != 0 || fwdPage != 0 || fwdSlot != 0,
	}
	if hasNull {
		h.NullBitmapOffset = ConstantHeaderSize
		h.NullBitmapSize = nullBitmapSize(columnCount)
	}
	return h
}

// Write serializes h into the first ConstantHeaderSize bytes of tupleBytes.
// It does not touch the null bitmap or column values.
func (h Header) Write(tupleBytes []byte) {
	flags := byte(0)
	if h.HasNull {
		flags |= headerFlagHasNull
	}
	tupleBytes[0] = flags
	tupleBytes[1] = h.UserDataStart
	binary.BigEndian.PutUint32(tupleBytes[2:6], uint32(h.InsertTid))
	binary.BigEndian.PutUint32(tupleBytes[6:10], uint32(h.DeleteTid))
	if h.Forward.Valid {
		binary.BigEndian.PutUint16(tupleBytes[10:12], uint16(h.Forward.Table))
		binary.BigEndian.PutUint32(tupleBytes[12:16], uint32(h.Forward.Page))
		tupleBytes[16] = h.Forward.Slot
	} else {
		for i := 10; i < 17; i++ {
			tupleBytes[i] = 0
		}
	}
}

// SetDeleteTid mutates only the delete_tid field of an already-written
// tuple in place; this is the in-place header rewrite UpdateTuple and
// DeleteTuple perform on the old version without moving it.
func SetDeleteTid(tupleBytes []byte, tid common.TxID) {
	binary.BigEndian.PutUint32(tupleBytes[6:10], uint32(tid))
}

// SetForward mutates only the forwarding pointer field of an
// already-written tuple in place.
func SetForward(tupleBytes []byte, fwd ForwardPointer) {
	if fwd.Valid {
		binary.BigEndian.PutUint16(tupleBytes[10:12], uint16(fwd.Table))
		binary.BigEndian.PutUint32(tupleBytes[12:16], uint32(fwd.Page))
		tupleBytes[16] = fwd.Slot
		return
	}
	for i := 10; i < 17; i++ {
		tupleBytes[i] = 0
	}
}

func setNullBit(bitmap []byte, col uint8) {
	bitmap[col/8] |= 1 << (col % 8)
}

// IsColumnNull reports whether col's null bit is set in bitmap.
func IsColumnNull(bitmap []byte, col uint8) bool {
	return bitmap[col/8]&(1<<(col%8)) != 0
}
