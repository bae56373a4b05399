package coz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

// Serializable objects can be serialized to bytes.
type Serializable interface {
	// MarshalAppend marshals the object and appends the resulting bytes to
	// the provided buffer.
	MarshalAppend(b []byte) ([]byte, error)
}

// Deserializable objects can be deserialized from bytes.
type Deserializable interface {
	// Unmarshal unmarshals an object from a buffer. It returns the number of
	// bytes that were read from the buffer in order to reconstruct the object.
	Unmarshal(b []byte) (n int, err error)
}

// ErrNotSuspended is returned when marshaling a frame that is not suspended
// at one of its body's suspension points.
var ErrNotSuspended = errors.New("coz: frame is not suspended")

// MarshalAppend appends a snapshot of a suspended frame to the provided
// buffer: the program-counter pair, the saved handler labels, the state, the
// promise, and the live awaited temporary if there is one. The frame's state
// and promise types must implement Serializable; a live temporary must be of
// a type registered with RegisterSerializable.
func (c *Coroutine[S, P]) MarshalAppend(b []byte) ([]byte, error) {
	if c.hdr.next < 0 {
		return b, ErrNotSuspended
	}
	state, ok := any(&c.state).(Serializable)
	if !ok {
		return b, fmt.Errorf("coz: state type %T is not serializable", c.state)
	}
	prom, ok := any(&c.prom).(Serializable)
	if !ok {
		return b, fmt.Errorf("coz: promise type %T is not serializable", c.prom)
	}

	b = binary.AppendVarint(b, int64(c.hdr.next))
	b = binary.AppendVarint(b, int64(c.hdr.eh))
	b = binary.AppendVarint(b, int64(len(c.ehSaves)))
	for _, l := range c.ehSaves {
		b = binary.AppendVarint(b, int64(l))
	}

	var err error
	if b, err = state.MarshalAppend(b); err != nil {
		return b, err
	}
	if b, err = prom.MarshalAppend(b); err != nil {
		return b, err
	}

	if !c.scr.live {
		return append(b, 0), nil
	}
	s, ok := c.scr.value.(Serializable)
	if !ok {
		return b, fmt.Errorf("coz: awaited temporary %T is not serializable", c.scr.value)
	}
	return MarshalAppend(append(b, 1), s)
}

// Unmarshal restores a snapshot into a freshly constructed frame of the same
// body, returning the number of bytes that were read in order to reconstruct
// the frame. The restored frame resumes at the suspension point it was
// marshaled at.
func (c *Coroutine[S, P]) Unmarshal(b []byte) (int, error) {
	if c.hdr.next != labelUnstarted {
		return 0, errors.New("coz: cannot restore into a started frame")
	}
	state, ok := any(&c.state).(Deserializable)
	if !ok {
		return 0, fmt.Errorf("coz: state type %T is not deserializable", c.state)
	}
	prom, ok := any(&c.prom).(Deserializable)
	if !ok {
		return 0, fmt.Errorf("coz: promise type %T is not deserializable", c.prom)
	}

	// A restored frame resumes where it was suspended, so the instruction
	// pointer must name a suspension point, and the handler labels must be
	// labels a run of this body could actually have installed.
	next, n := binary.Varint(b)
	if n <= 0 || next < 0 || int(next) >= len(c.body.steps) || c.body.steps[next].resume == nil {
		return 0, fmt.Errorf("coz: invalid frame instruction pointer: %v", b)
	}
	eh, en := binary.Varint(b[n:])
	if en <= 0 || !c.body.handlerLabel(Label(eh)) {
		return 0, fmt.Errorf("coz: invalid frame handler label: %v", b)
	}
	n += en

	saveCount, sn := binary.Varint(b[n:])
	if sn <= 0 || saveCount < 0 {
		return 0, fmt.Errorf("coz: invalid handler stack depth: %v", b)
	}
	n += sn
	saves := make([]Label, saveCount)
	for i := range saves {
		l, ln := binary.Varint(b[n:])
		if ln <= 0 || !c.body.handlerLabel(Label(l)) {
			return 0, fmt.Errorf("coz: invalid saved handler label: %v", b)
		}
		saves[i] = Label(l)
		n += ln
	}

	vn, err := state.Unmarshal(b[n:])
	if err != nil {
		return 0, err
	}
	n += vn
	if vn, err = prom.Unmarshal(b[n:]); err != nil {
		return 0, err
	}
	n += vn

	if n >= len(b) || (b[n] != 0 && b[n] != 1) {
		return 0, fmt.Errorf("coz: invalid scratch flag: %v", b)
	}
	hasScratch := b[n] == 1
	n++
	if hasScratch {
		v, vn, err := Unmarshal(b[n:])
		if err != nil {
			return 0, err
		}
		c.scr.set(v)
		n += vn
	}

	c.hdr.next = Label(next)
	c.hdr.eh = Label(eh)
	c.ehSaves = saves
	return n, nil
}

// handlerLabel reports whether l can appear as a frame's handler label: the
// no-handler sentinel, or the label of a Catch handler step.
func (b *Body[S, P]) handlerLabel(l Label) bool {
	return l == labelNone || (l >= 0 && int(l) < len(b.steps) && b.steps[l].handler)
}

// MarshalAppend appends a Serializable object to a buffer, along with
// information about its type, so that Unmarshal can later reconstruct the
// same object. The object's type must have been registered with
// RegisterSerializable.
func MarshalAppend(b []byte, s Serializable) ([]byte, error) {
	t, ok := serializableByReflectType[reflect.TypeOf(s)]
	if !ok {
		return nil, fmt.Errorf("coz: serializable type %T has not been registered", s)
	}
	b = binary.AppendVarint(b, int64(t.id))
	return s.MarshalAppend(b)
}

// Unmarshal unmarshals a Serializable object from a buffer. It returns the
// object, and the number of bytes that were read from the buffer in order to
// reconstruct the object.
func Unmarshal(b []byte) (Serializable, int, error) {
	id, n := binary.Varint(b)
	if n <= 0 || int64(int(id)) != id {
		return nil, 0, errors.New("coz: invalid serializable type info")
	}
	t, ok := serializableByID[int(id)]
	if !ok {
		return nil, 0, fmt.Errorf("coz: serializable type %d not registered", id)
	}
	value, vn, err := t.constructor(b[n:])
	return value, n + vn, err
}

// UnmarshalSerializable unmarshals a Serializable object from a buffer. It
// returns the object, and the number of bytes that were read from the buffer
// in order to reconstruct the object.
type UnmarshalSerializable func([]byte) (Serializable, int, error)

// RegisterSerializable registers a Serializable type for use with the
// top-level MarshalAppend and Unmarshal functions, which frame snapshots use
// to persist a live awaited temporary. The constructor is expected to
// unmarshal bytes into a new instance of the same type as s.
func RegisterSerializable(s Serializable, constructor UnmarshalSerializable) {
	reflectType := reflect.TypeOf(s)
	if _, ok := serializableByReflectType[reflectType]; ok {
		panic(fmt.Sprintf("coz: serializable type %T already registered", s))
	}

	t := &serializableType{
		id:          serializableNextID,
		constructor: constructor,
	}
	serializableNextID++

	serializableByReflectType[reflectType] = t
	serializableByID[t.id] = t
}

var serializableByReflectType = map[reflect.Type]*serializableType{}
var serializableByID = map[int]*serializableType{}
var serializableNextID int

type serializableType struct {
	id          int
	constructor UnmarshalSerializable
}
