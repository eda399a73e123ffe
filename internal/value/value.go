// Package value implements the typed value system of spec §4.7: a
// four-variant Value type, column schemas, and the binary/unary physical
// expression tree with Null-propagating semantics.
package value

import (
	"fmt"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// TypeId names a column's storage type.
type TypeId uint8

const (
	TypeBoolean TypeId = iota
	TypeInteger
	TypeText
)

func (t TypeId) String() string {
	switch t {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// Column describes one column of a schema: its type, name, its 0-based
// offset (both its position in the schema and the bit it occupies in the
// null bitmap) and whether it may hold NULL.
type Column struct {
	Name     string
	Type     TypeId
	Offset   uint8
	NotNull  bool
}

// Schema is an ordered list of columns.
type Schema struct {
	Columns []Column
}

func (s *Schema) ColumnCount() int { return len(s.Columns) }

// Kind reports which of the four Value variants v holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindText
)

// Value is the tagged union of the four runtime value types: Null,
// Boolean, Integer (32-bit signed) and Text.
type Value struct {
	kind Kind
	b    bool
	i    int32
	s    string
}

func Null() Value             { return Value{kind: KindNull} }
func Boolean(b bool) Value    { return Value{kind: KindBoolean, b: b} }
func Integer(i int32) Value   { return Value{kind: KindInteger, i: i} }
func Text(s string) Value     { return Value{kind: KindText, s: s} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) AsBool() bool  { return v.b }
func (v Value) AsInt() int32  { return v.i }
func (v Value) AsText() string { return v.s }

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.b == other.b
	case KindInteger:
		return v.i == other.i
	case KindText:
		return v.s == other.s
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBoolean:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindText:
		return v.s
	}
	return "?"
}

// textCollator provides locale-aware ordering for Text <, <=, >, >=
// comparisons (equality always uses byte-exact comparison, since MVCC
// slot/visibility logic must never depend on locale). A single root
// collator is sufficient here; the core has no per-connection locale
// concept.
var textCollator = collate.New(language.Und)

// CompareText orders two Text values for <, <=, >, >=.
func CompareText(a, b string) int {
	return textCollator.CompareString(a, b)
}

// maxTextSize is the largest Text value the 1-byte length-prefixed wire
// format can represent (spec §9 Open Questions: no spillover for larger
// strings).
const maxTextSize = 255

// Size returns the number of bytes v occupies in a serialized tuple: 0 for
// NULL (the null bitmap records its absence instead), 1 for Boolean, 4 for
// Integer, 1+len(s) for Text.
func (v Value) Size() int {
	switch v.kind {
	case KindNull:
		return 0
	case KindBoolean:
		return 1
	case KindInteger:
		return 4
	case KindText:
		return 1 + len(v.s)
	}
	return 0
}

// ValidateForColumn checks v against col's declared type and nullability.
func ValidateForColumn(v Value, col Column) error {
	if v.IsNull() {
		if col.NotNull {
			return fmt.Errorf("column %q is NOT NULL", col.Name)
		}
		return nil
	}
	switch col.Type {
	case TypeBoolean:
		if v.Kind() != KindBoolean {
			return fmt.Errorf("column %q expects BOOLEAN, got %v", col.Name, v.Kind())
		}
	case TypeInteger:
		if v.Kind() != KindInteger {
			return fmt.Errorf("column %q expects INTEGER, got %v", col.Name, v.Kind())
		}
	case TypeText:
		if v.Kind() != KindText {
			return fmt.Errorf("column %q expects TEXT, got %v", col.Name, v.Kind())
		}
		if len(v.s) > maxTextSize {
			return fmt.Errorf("column %q text value of %d bytes exceeds the %d byte limit", col.Name, len(v.s), maxTextSize)
		}
	}
	return nil
}
