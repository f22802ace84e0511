package types

import (
	"encoding/binary"
	"fmt"
)

// Tuple is an ordered, schema-bound row of Values. It is the unit every
// executor's Next produces, generalizing the teacher's
// map[string]interface{} Row (types/row.go) into a positional
// representation that round-trips through fixed-layout page bytes.
type Tuple struct {
	Values []Value
}

// NewTuple builds a Tuple from values in schema column order.
func NewTuple(values ...Value) *Tuple {
	return &Tuple{Values: values}
}

// GetValue returns the value at schema column idx.
func (t *Tuple) GetValue(idx int) Value {
	if idx < 0 || idx >= len(t.Values) {
		return NewNull()
	}
	return t.Values[idx]
}

// Clone returns a deep-enough copy (Values are themselves immutable by
// convention) safe to mutate independently of t.
func (t *Tuple) Clone() *Tuple {
	cp := make([]Value, len(t.Values))
	copy(cp, t.Values)
	return &Tuple{Values: cp}
}

// Concat appends right's values after t's, used by join operators to
// build the combined output tuple.
func (t *Tuple) Concat(right *Tuple) *Tuple {
	out := make([]Value, 0, len(t.Values)+len(right.Values))
	out = append(out, t.Values...)
	out = append(out, right.Values...)
	return &Tuple{Values: out}
}

// Serialize encodes the tuple into a variable-length byte slice for heap
// storage: per column, a type tag followed by its payload (8 bytes for an
// integer, 1 for a boolean, a 4-byte length plus the bytes for a varchar,
// nothing for a null), mirroring
// the teacher's DeserializeRow/SerializeRow pair in
// query_executor/serialization.go.
func (t *Tuple) Serialize() []byte {
	buf := make([]byte, 0, 64)
	var tmp [8]byte
	for _, v := range t.Values {
		buf = append(buf, byte(v.Type))
		switch v.Type {
		case TypeInteger:
			binary.BigEndian.PutUint64(tmp[:], uint64(v.Integer))
			buf = append(buf, tmp[:]...)
		case TypeBoolean:
			if v.Boolean {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case TypeVarchar:
			binary.BigEndian.PutUint32(tmp[:4], uint32(len(v.Str)))
			buf = append(buf, tmp[:4]...)
			buf = append(buf, v.Str...)
		case TypeNull:
			// no payload
		}
	}
	return buf
}

// DeserializeTuple decodes bytes produced by Serialize according to
// schema's column types.
func DeserializeTuple(data []byte, schema *Schema) (*Tuple, error) {
	values := make([]Value, 0, len(schema.Columns))
	off := 0
	for range schema.Columns {
		if off >= len(data) {
			return nil, fmt.Errorf("deserialize tuple: truncated at column %d", len(values))
		}
		typ := TypeID(data[off])
		off++
		switch typ {
		case TypeInteger:
			if off+8 > len(data) {
				return nil, fmt.Errorf("deserialize tuple: truncated integer")
			}
			values = append(values, NewInteger(int64(binary.BigEndian.Uint64(data[off:off+8]))))
			off += 8
		case TypeBoolean:
			if off+1 > len(data) {
				return nil, fmt.Errorf("deserialize tuple: truncated boolean")
			}
			values = append(values, NewBoolean(data[off] != 0))
			off++
		case TypeVarchar:
			if off+4 > len(data) {
				return nil, fmt.Errorf("deserialize tuple: truncated varchar length")
			}
			n := int(binary.BigEndian.Uint32(data[off : off+4]))
			off += 4
			if off+n > len(data) {
				return nil, fmt.Errorf("deserialize tuple: truncated varchar payload")
			}
			values = append(values, NewVarchar(string(data[off:off+n])))
			off += n
		case TypeNull:
			values = append(values, NewNull())
		default:
			return nil, fmt.Errorf("deserialize tuple: unknown type tag %d", typ)
		}
	}
	return &Tuple{Values: values}, nil
}
