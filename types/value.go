// Package types defines the typed value system, schema, tuple, and row/
// page identifiers shared by the index, heap, and executor packages. It
// generalizes the teacher's map[string]interface{} Row
// (types/row.go) and string-typed ColumnDef (types/table.go) into a
// small closed set of concrete types so executors can compare, hash, and
// serialize values without reflection.
package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TypeID is the closed set of value types this engine supports.
type TypeID int

const (
	TypeInvalid TypeID = iota
	TypeInteger
	TypeVarchar
	TypeBoolean
	TypeNull
)

func (t TypeID) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeVarchar:
		return "VARCHAR"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeNull:
		return "NULL"
	default:
		return "INVALID"
	}
}

// Value is a tagged union over the supported column types. Zero Value is
// a null.
type Value struct {
	Type    TypeID
	Integer int64
	Str     string
	Boolean bool
}

// NewInteger builds an Value holding an int64.
func NewInteger(v int64) Value { return Value{Type: TypeInteger, Integer: v} }

// NewVarchar builds a Value holding a string.
func NewVarchar(v string) Value { return Value{Type: TypeVarchar, Str: v} }

// NewBoolean builds a Value holding a bool.
func NewBoolean(v bool) Value { return Value{Type: TypeBoolean, Boolean: v} }

// NewNull builds a null Value.
func NewNull() Value { return Value{Type: TypeNull} }

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.Type == TypeNull }

func (v Value) String() string {
	switch v.Type {
	case TypeInteger:
		return fmt.Sprintf("%d", v.Integer)
	case TypeVarchar:
		return v.Str
	case TypeBoolean:
		return fmt.Sprintf("%t", v.Boolean)
	default:
		return "NULL"
	}
}

// CmpResult is the three-way result of comparing two Values, with an
// additional "not comparable" state for null operands — the
// "CmpTrue semantics (null != null)" referenced by spec.md's hash-join
// equality rule.
type CmpResult int

const (
	CmpLess CmpResult = iota
	CmpEqual
	CmpGreater
	CmpNull // either operand was null: no ordering holds
)

// Compare orders two Values of the same type. Comparing across types, or
// against a null operand, returns CmpNull.
func Compare(a, b Value) CmpResult {
	if a.IsNull() || b.IsNull() {
		return CmpNull
	}
	if a.Type != b.Type {
		return CmpNull
	}
	switch a.Type {
	case TypeInteger:
		switch {
		case a.Integer < b.Integer:
			return CmpLess
		case a.Integer > b.Integer:
			return CmpGreater
		default:
			return CmpEqual
		}
	case TypeVarchar:
		switch c := bytes.Compare([]byte(a.Str), []byte(b.Str)); {
		case c < 0:
			return CmpLess
		case c > 0:
			return CmpGreater
		default:
			return CmpEqual
		}
	case TypeBoolean:
		switch {
		case !a.Boolean && b.Boolean:
			return CmpLess
		case a.Boolean && !b.Boolean:
			return CmpGreater
		default:
			return CmpEqual
		}
	default:
		return CmpNull
	}
}

// CompareEquals reports whether a and b are equal under SQL three-valued
// logic: two nulls are never equal ("CmpTrue semantics" in spec.md §4.5's
// HashJoin description).
func CompareEquals(a, b Value) bool {
	return Compare(a, b) == CmpEqual
}

// HashKey produces a stable hash key for grouping/probing (aggregation
// group-by, hash-join build side). Every null value produces the same
// key, so a hash-bucket hit does not by itself mean equal — callers that
// need null != null must re-check CompareEquals after a hit.
func (v Value) HashKey() string {
	var buf bytes.Buffer
	buf.WriteByte(byte(v.Type))
	switch v.Type {
	case TypeInteger:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Integer))
		buf.Write(b[:])
	case TypeVarchar:
		buf.WriteString(v.Str)
	case TypeBoolean:
		if v.Boolean {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.String()
}

// FixedKey encodes an integer value into the fixed 8-byte key format the
// B+ tree index stores, per spec.md §3's "fixed-size keys".
func FixedKey(v int64) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)^signBit)
	return b
}

// signBit flips the sign bit so that BigEndian byte comparison of the
// encoded key matches signed integer ordering.
const signBit = uint64(1) << 63

// DecodeFixedKey reverses FixedKey.
func DecodeFixedKey(b [8]byte) int64 {
	return int64(binary.BigEndian.Uint64(b[:]) ^ signBit)
}
