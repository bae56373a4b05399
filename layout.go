package coz

import "reflect"

// SizeAlign describes the storage requirement of a type: its size and
// alignment in bytes.
type SizeAlign struct {
	Size  uintptr
	Align uintptr
}

// Unite returns the component-wise maximum of two layouts: storage with the
// united layout can hold whichever one of the two types is live at a given
// moment. Unite is commutative and associative, so the layout of a body does
// not depend on the order its suspension points are declared in.
func (a SizeAlign) Unite(b SizeAlign) SizeAlign {
	return SizeAlign{
		Size:  max(a.Size, b.Size),
		Align: max(a.Align, b.Align),
	}
}

// IsZero reports whether the layout requires no storage.
func (a SizeAlign) IsZero() bool {
	return a == SizeAlign{}
}

func sizeAlignOf(t reflect.Type) SizeAlign {
	return SizeAlign{Size: t.Size(), Align: uintptr(t.Align())}
}
