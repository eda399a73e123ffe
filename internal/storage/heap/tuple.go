package heap

import (
	"encoding/binary"

	"github.com/dbcore/erdb/internal/common"
	"github.com/dbcore/erdb/internal/value"
)

func hasAnyNull(tuple value.Tuple) bool {
	for _, v := range tuple {
		if v.IsNull() {
			return true
		}
	}
	return false
}

// RequiredSpace returns the number of bytes Serialize needs to write tuple:
// the fixed header, an optional null bitmap, and every non-null column
// value at its wire size (spec §3: Boolean 1 byte, Integer 4 bytes,
// Text 1-byte length prefix + bytes; a null column occupies 0 bytes).
func RequiredSpace(tuple value.Tuple) uint16 {
	size := ConstantHeaderSize
	if hasAnyNull(tuple) {
		size += nullBitmapSize(len(tuple))
	}
	for _, v := range tuple {
		size += v.Size()
	}
	return uint16(size)
}

// Serialize writes tuple's MVCC header and column values into buf, which
// must be at least RequiredSpace(tuple) bytes.
func Serialize(buf []byte, tuple value.Tuple, insertTid common.TxID) {
	hasNull := hasAnyNull(tuple)
	nbSize := 0
	if hasNull {
		nbSize = nullBitmapSize(len(tuple))
		for i := 0; i < nbSize; i++ {
			buf[ConstantHeaderSize+i] = 0
		}
	}
	userDataStart := uint8(ConstantHeaderSize + nbSize)

	offset := int(userDataStart)
	for i, v := range tuple {
		if v.IsNull() {
			if hasNull {
				setNullBit(buf[ConstantHeaderSize:], uint8(i))
			}
			continue
		}
		writeValue(buf[offset:], v)
		offset += v.Size()
	}

	h := Header{HasNull: hasNull, UserDataStart: userDataStart, InsertTid: insertTid}
	h.Write(buf)
}

func writeValue(buf []byte, v value.Value) {
	switch v.Kind() {
	case value.KindBoolean:
		if v.AsBool() {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
	case value.KindInteger:
		binary.BigEndian.PutUint32(buf[0:4], uint32(v.AsInt()))
	case value.KindText:
		s := v.AsText()
		buf[0] = byte(len(s))
		copy(buf[1:1+len(s)], s)
	}
}

func readValue(buf []byte, t value.TypeId) value.Value {
	switch t {
	case value.TypeBoolean:
		return value.Boolean(buf[0] != 0)
	case value.TypeInteger:
		return value.Integer(int32(binary.BigEndian.Uint32(buf[0:4])))
	case value.TypeText:
		n := int(buf[0])
		return value.Text(string(buf[1 : 1+n]))
	}
	return value.Null()
}

// Parse decodes a tuple's column values according to schema, and returns
// the header alongside it (callers need the header's insert/delete tids
// and forwarding pointer to run the MVCC visibility checks).
func Parse(tupleBytes []byte, schema *value.Schema) (value.Tuple, Header) {
	h := ParseHeader(tupleBytes, schema.ColumnCount())
	vals := make(value.Tuple, schema.ColumnCount())

	var bitmap []byte
	if h.HasNull {
		bitmap = tupleBytes[h.NullBitmapOffset : h.NullBitmapOffset+h.NullBitmapSize]
	}

	offset := int(h.UserDataStart)
	for i, col := range schema.Columns {
		if h.HasNull && IsColumnNull(bitmap, uint8(i)) {
			vals[i] = value.Null()
			continue
		}
		v := readValue(tupleBytes[offset:], col.Type)
		vals[i] = v
		offset += v.Size()
	}
	return vals, h
}
