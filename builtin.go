package coz

import (
	"encoding/binary"
	"fmt"
)

// Serializable wrappers for the builtin types that snapshot-able frame
// states and promises are most often built from. All three register
// themselves, so they can also be persisted as live awaited temporaries.

type (
	// Int is a Serializable int.
	Int int
	// Bool is a Serializable bool.
	Bool bool
	// String is a Serializable string.
	String string
)

var (
	_ Serializable   = Int(0)
	_ Deserializable = (*Int)(nil)
	_ Serializable   = Bool(false)
	_ Deserializable = (*Bool)(nil)
	_ Serializable   = String("")
	_ Deserializable = (*String)(nil)
)

func (i Int) MarshalAppend(b []byte) ([]byte, error) {
	return binary.AppendVarint(b, int64(i)), nil
}

func (i *Int) Unmarshal(b []byte) (int, error) {
	v, n := binary.Varint(b)
	if n <= 0 || int64(Int(v)) != v {
		return 0, fmt.Errorf("coz: invalid Int: %v", b)
	}
	*i = Int(v)
	return n, nil
}

func (v Bool) MarshalAppend(b []byte) ([]byte, error) {
	if v {
		return append(b, 1), nil
	}
	return append(b, 0), nil
}

func (v *Bool) Unmarshal(b []byte) (int, error) {
	if len(b) == 0 || b[0] > 1 {
		return 0, fmt.Errorf("coz: invalid Bool: %v", b)
	}
	*v = b[0] == 1
	return 1, nil
}

func (s String) MarshalAppend(b []byte) ([]byte, error) {
	b = binary.AppendVarint(b, int64(len(s)))
	return append(b, s...), nil
}

func (s *String) Unmarshal(b []byte) (int, error) {
	l, n := binary.Varint(b)
	if n <= 0 || l < 0 || int64(len(b)-n) < l {
		return 0, fmt.Errorf("coz: invalid String: %v", b)
	}
	*s = String(b[n : n+int(l)])
	return n + int(l), nil
}

func init() {
	RegisterSerializable(Int(0), func(b []byte) (Serializable, int, error) {
		var v Int
		n, err := v.Unmarshal(b)
		return v, n, err
	})
	RegisterSerializable(Bool(false), func(b []byte) (Serializable, int, error) {
		var v Bool
		n, err := v.Unmarshal(b)
		return v, n, err
	})
	RegisterSerializable(String(""), func(b []byte) (Serializable, int, error) {
		var v String
		n, err := v.Unmarshal(b)
		return v, n, err
	})
}
